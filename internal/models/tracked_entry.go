package models

import (
	"time"

	"github.com/code-100-precent/LingCare/pkg/assessment"
	"gorm.io/gorm"
)

// TrackedEntry is one assessment the dashboard received from a room.
type TrackedEntry struct {
	ID         string          `json:"id" gorm:"primaryKey;size:96"`
	Room       string          `json:"room" gorm:"size:128;index:idx_tracked_room_kind_time,priority:1"`
	Kind       assessment.Kind `json:"type" gorm:"size:32;index:idx_tracked_room_kind_time,priority:2"`
	Sender     string          `json:"sender,omitempty" gorm:"size:128"`
	Payload    string          `json:"-" gorm:"type:text;comment:data object as received"`
	ReceivedAt time.Time       `json:"timestamp" gorm:"index:idx_tracked_room_kind_time,priority:3"`
	CreatedAt  time.Time       `json:"-" gorm:"autoCreateTime"`
}

func (TrackedEntry) TableName() string {
	return "tracked_entries"
}

// TrackedEntryQuery filters entries; zero values match everything.
type TrackedEntryQuery struct {
	Room  string
	Kind  assessment.Kind
	Since time.Time
	Limit int
}

func CreateTrackedEntry(db *gorm.DB, entry *TrackedEntry) error {
	return db.Create(entry).Error
}

func GetTrackedEntryByID(db *gorm.DB, id string) (*TrackedEntry, error) {
	var entry TrackedEntry
	if err := db.Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTrackedEntries returns matches oldest first.
func ListTrackedEntries(db *gorm.DB, q TrackedEntryQuery) ([]TrackedEntry, error) {
	query := db.Model(&TrackedEntry{})
	if q.Room != "" {
		query = query.Where("room = ?", q.Room)
	}
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if !q.Since.IsZero() {
		query = query.Where("received_at >= ?", q.Since)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var entries []TrackedEntry
	err := query.Order("received_at ASC").Order("id ASC").Find(&entries).Error
	return entries, err
}

// LatestTrackedEntries returns up to n most recent entries of kind, newest first.
func LatestTrackedEntries(db *gorm.DB, room string, kind assessment.Kind, n int) ([]TrackedEntry, error) {
	query := db.Model(&TrackedEntry{}).Where("kind = ?", kind)
	if room != "" {
		query = query.Where("room = ?", room)
	}
	var entries []TrackedEntry
	err := query.Order("received_at DESC").Order("id DESC").Limit(n).Find(&entries).Error
	return entries, err
}

// DeleteTrackedEntries clears a room's history, or everything when room is empty.
func DeleteTrackedEntries(db *gorm.DB, room string) (int64, error) {
	query := db.Where("1 = 1")
	if room != "" {
		query = db.Where("room = ?", room)
	}
	res := query.Delete(&TrackedEntry{})
	return res.RowsAffected, res.Error
}
