package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingCare/internal/models"
	"github.com/code-100-precent/LingCare/pkg/assessment"
	"github.com/code-100-precent/LingCare/pkg/cache"
	gonanoid "github.com/matoous/go-nanoid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	analyticsKeyPrefix = "lingcare:analytics:"
	idAlphabet         = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength           = 12
	latestPerKind      = 2
)

// Store persists tracked entries and caches analytics per room and period.
type Store struct {
	db     *gorm.DB
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(db *gorm.DB, c cache.Cache, ttl time.Duration, lg *zap.Logger) *Store {
	if lg == nil {
		lg = zap.L()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{db: db, cache: c, ttl: ttl, logger: lg, now: utcNow}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&models.TrackedEntry{})
}

// Add stores a decoded message under a new id "<kind>-<nanoid>" stamped with
// the receive time.
func (s *Store) Add(ctx context.Context, room, sender string, msg *assessment.Message) (*models.TrackedEntry, error) {
	suffix, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return nil, fmt.Errorf("generate entry id: %w", err)
	}
	payload := string(msg.Raw)
	if payload == "" {
		b, err := sonic.Marshal(msg.Record)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", msg.Type, err)
		}
		payload = string(b)
	}
	entry := &models.TrackedEntry{
		ID:         string(msg.Type) + "-" + suffix,
		Room:       room,
		Kind:       msg.Type,
		Sender:     sender,
		Payload:    payload,
		ReceivedAt: s.now(),
	}
	if err := models.CreateTrackedEntry(s.db.WithContext(ctx), entry); err != nil {
		return nil, fmt.Errorf("store %s: %w", msg.Type, err)
	}
	s.invalidate(ctx)
	return entry, nil
}

// Tracking returns the room's entries inside period, oldest first. An empty
// room returns every room.
func (s *Store) Tracking(ctx context.Context, room string, period Period) (*TrackingData, error) {
	since := startOfDay(s.now()).AddDate(0, 0, -(period.Days() - 1))
	rows, err := models.ListTrackedEntries(s.db.WithContext(ctx), models.TrackedEntryQuery{Room: room, Since: since})
	if err != nil {
		return nil, err
	}
	data := newTrackingData()
	for i := range rows {
		if err := data.append(&rows[i]); err != nil {
			s.logger.Warn("skipping unreadable entry", zap.String("id", rows[i].ID), zap.Error(err))
		}
	}
	return data, nil
}

// Analytics summarizes a room over period. Results are cached until the next
// entry arrives or the cache ttl passes.
func (s *Store) Analytics(ctx context.Context, room string, period Period) (*Analytics, error) {
	key := analyticsKeyPrefix + room + ":" + string(period)
	if s.cache != nil {
		if cached, ok := cache.GetJSON[Analytics](ctx, s.cache, key); ok {
			return &cached, nil
		}
	}

	data, err := s.Tracking(ctx, room, period)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := &Analytics{
		Room:        room,
		Period:      period,
		Daily:       dailySeries(data, period.Days(), now),
		GeneratedAt: now,
	}
	if out.Pain, err = s.summary(ctx, room, assessment.KindPain); err != nil {
		return nil, err
	}
	if out.Sleep, err = s.summary(ctx, room, assessment.KindSleep); err != nil {
		return nil, err
	}
	if out.Mood, err = s.summary(ctx, room, assessment.KindMood); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, out, s.ttl); err != nil {
			s.logger.Warn("cache analytics", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

func (s *Store) summary(ctx context.Context, room string, kind assessment.Kind) (MetricSummary, error) {
	rows, err := models.LatestTrackedEntries(s.db.WithContext(ctx), room, kind, latestPerKind)
	if err != nil {
		return MetricSummary{}, err
	}
	values := make([]float64, 0, len(rows))
	var at time.Time
	for i, row := range rows {
		v, err := headline(&row)
		if err != nil {
			return MetricSummary{}, err
		}
		if i == 0 {
			at = row.ReceivedAt
		}
		values = append(values, v)
	}
	return summarize(values, at, kind == assessment.KindPain), nil
}

// Clear deletes a room's history, or all history when room is empty.
func (s *Store) Clear(ctx context.Context, room string) (int64, error) {
	n, err := models.DeleteTrackedEntries(s.db.WithContext(ctx), room)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return n, nil
}

// AddDemoData seeds two entries of each kind from yesterday and last night.
func (s *Store) AddDemoData(ctx context.Context, room string) ([]models.TrackedEntry, error) {
	now := s.now()
	dayAgo, halfDayAgo := now.Add(-24*time.Hour), now.Add(-12*time.Hour)
	demo := []struct {
		at     time.Time
		record assessment.Record
	}{
		{dayAgo, assessment.PainAssessment{PainLevel: 6, Location: "lower back", Quality: "dull aching", Triggers: "sitting too long", CopingStrategies: "heat therapy"}},
		{halfDayAgo, assessment.PainAssessment{PainLevel: 4, Location: "neck", Quality: "sharp", Triggers: "stress", CopingStrategies: "breathing exercises"}},
		{dayAgo, assessment.SleepQuality{SleepQuality: 6, HoursSlept: 7.5, SleepOnsetMinutes: 30, WakeUps: 2, SleepFactors: "pain flare"}},
		{halfDayAgo, assessment.SleepQuality{SleepQuality: 8, HoursSlept: 8, SleepOnsetMinutes: 15, WakeUps: 1, SleepFactors: "good sleep hygiene"}},
		{dayAgo, assessment.MoodAssessment{MoodRating: 5, EnergyLevel: 4, DailyActivitiesCompletion: 6, SocialEngagement: 3, EmotionalCoping: "journaling"}},
		{halfDayAgo, assessment.MoodAssessment{MoodRating: 7, EnergyLevel: 6, DailyActivitiesCompletion: 8, SocialEngagement: 7, EmotionalCoping: "mindfulness"}},
	}

	out := make([]models.TrackedEntry, 0, len(demo))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range demo {
			b, err := sonic.Marshal(d.record)
			if err != nil {
				return err
			}
			suffix, err := gonanoid.Generate(idAlphabet, idLength)
			if err != nil {
				return err
			}
			entry := models.TrackedEntry{
				ID:         "demo-" + string(d.record.Kind()) + "-" + suffix,
				Room:       room,
				Kind:       d.record.Kind(),
				Payload:    string(b),
				ReceivedAt: d.at,
			}
			if err := models.CreateTrackedEntry(tx, &entry); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return out, nil
}

func (s *Store) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, analyticsKeyPrefix); err != nil {
		s.logger.Warn("invalidate analytics cache", zap.Error(err))
	}
}

func (d *TrackingData) append(row *models.TrackedEntry) error {
	switch row.Kind {
	case assessment.KindPain:
		e := PainEntry{ID: row.ID, Timestamp: row.ReceivedAt}
		if err := sonic.UnmarshalString(row.Payload, &e.PainAssessment); err != nil {
			return err
		}
		d.PainAssessments = append(d.PainAssessments, e)
	case assessment.KindSleep:
		e := SleepEntry{ID: row.ID, Timestamp: row.ReceivedAt}
		if err := sonic.UnmarshalString(row.Payload, &e.SleepQuality); err != nil {
			return err
		}
		d.SleepQuality = append(d.SleepQuality, e)
	case assessment.KindMood:
		e := MoodEntry{ID: row.ID, Timestamp: row.ReceivedAt}
		if err := sonic.UnmarshalString(row.Payload, &e.MoodAssessment); err != nil {
			return err
		}
		d.MoodAssessments = append(d.MoodAssessments, e)
	default:
		return fmt.Errorf("%w: %q", assessment.ErrUnknownKind, row.Kind)
	}
	return nil
}

// entryView renders a stored row the way the tracking endpoint does.
func entryView(row *models.TrackedEntry) (interface{}, error) {
	d := newTrackingData()
	if err := d.append(row); err != nil {
		return nil, err
	}
	switch {
	case len(d.PainAssessments) == 1:
		return d.PainAssessments[0], nil
	case len(d.SleepQuality) == 1:
		return d.SleepQuality[0], nil
	default:
		return d.MoodAssessments[0], nil
	}
}

// headline is the value shown on a metric card for the row's kind.
func headline(row *models.TrackedEntry) (float64, error) {
	var v struct {
		PainLevel    *float64 `json:"painLevel"`
		SleepQuality *float64 `json:"sleepQuality"`
		MoodRating   *float64 `json:"moodRating"`
	}
	if err := sonic.UnmarshalString(row.Payload, &v); err != nil {
		return 0, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	var p *float64
	switch row.Kind {
	case assessment.KindPain:
		p = v.PainLevel
	case assessment.KindSleep:
		p = v.SleepQuality
	case assessment.KindMood:
		p = v.MoodRating
	}
	if p == nil {
		return 0, nil
	}
	return *p, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// timestamps are kept in UTC so stored values compare as text in sqlite
func utcNow() time.Time { return time.Now().UTC() }
