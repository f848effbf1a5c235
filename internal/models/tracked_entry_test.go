package models

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/code-100-precent/LingCare/pkg/assessment"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTrackedEntryTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tracking.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&TrackedEntry{}))
	return db
}

func TestTrackedEntry_CRUD(t *testing.T) {
	db := setupTrackedEntryTestDB(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []TrackedEntry{
		{ID: "pain_assessment-a", Room: "room-1", Kind: assessment.KindPain, Payload: `{"painLevel":6}`, ReceivedAt: base},
		{ID: "pain_assessment-b", Room: "room-1", Kind: assessment.KindPain, Payload: `{"painLevel":4}`, ReceivedAt: base.Add(time.Hour)},
		{ID: "sleep_quality-a", Room: "room-1", Kind: assessment.KindSleep, Payload: `{"sleepQuality":7}`, ReceivedAt: base.Add(2 * time.Hour)},
		{ID: "pain_assessment-c", Room: "room-2", Kind: assessment.KindPain, Payload: `{"painLevel":9}`, ReceivedAt: base.Add(3 * time.Hour)},
	}
	for i := range entries {
		require.NoError(t, CreateTrackedEntry(db, &entries[i]))
	}

	got, err := GetTrackedEntryByID(db, "sleep_quality-a")
	require.NoError(t, err)
	assert.Equal(t, `{"sleepQuality":7}`, got.Payload)
	assert.True(t, got.ReceivedAt.Equal(base.Add(2*time.Hour)))

	list, err := ListTrackedEntries(db, TrackedEntryQuery{Room: "room-1", Kind: assessment.KindPain})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pain_assessment-a", list[0].ID)

	list, err = ListTrackedEntries(db, TrackedEntryQuery{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	latest, err := LatestTrackedEntries(db, "room-1", assessment.KindPain, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "pain_assessment-b", latest[0].ID)

	latest, err = LatestTrackedEntries(db, "", assessment.KindPain, 1)
	require.NoError(t, err)
	assert.Equal(t, "pain_assessment-c", latest[0].ID)

	n, err := DeleteTrackedEntries(db, "room-2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = DeleteTrackedEntries(db, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = GetTrackedEntryByID(db, "pain_assessment-a")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
