// Package dashboard keeps the history of assessments published in therapy
// rooms and serves it to the analytics front end.
package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/code-100-precent/LingCare/pkg/assessment"
)

type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"

	EventTrackingUpdated = "tracking.updated"
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrRoomRequired  = errors.New("room is required")
)

// ParsePeriod accepts 7d, 30d or 90d; empty means 7d.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return Period7d, nil
	case Period7d, Period30d, Period90d:
		return Period(s), nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidPeriod, s)
}

func (p Period) Days() int {
	switch p {
	case Period30d:
		return 30
	case Period90d:
		return 90
	}
	return 7
}

// Entries carry the record fields flat next to id and timestamp.
type PainEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	assessment.PainAssessment
}

type SleepEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	assessment.SleepQuality
}

type MoodEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	assessment.MoodAssessment
}

type TrackingData struct {
	PainAssessments []PainEntry  `json:"painAssessments"`
	SleepQuality    []SleepEntry `json:"sleepQuality"`
	MoodAssessments []MoodEntry  `json:"moodAssessments"`
}

func newTrackingData() *TrackingData {
	return &TrackingData{
		PainAssessments: []PainEntry{},
		SleepQuality:    []SleepEntry{},
		MoodAssessments: []MoodEntry{},
	}
}

// TrackingUpdate is published on the event bus and pushed to live clients.
type TrackingUpdate struct {
	Room    string          `json:"room"`
	Type    assessment.Kind `json:"type"`
	Message string          `json:"message"`
	Entry   interface{}     `json:"entry"`
}

func updateMessage(kind assessment.Kind) string {
	switch kind {
	case assessment.KindPain:
		return "New pain assessment recorded"
	case assessment.KindSleep:
		return "Sleep quality logged"
	case assessment.KindMood:
		return "Mood assessment updated"
	}
	return "Assessment recorded"
}
