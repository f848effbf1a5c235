// Package assessment defines the records the therapist tools publish and the
// {type, data} envelope they travel in over the room data channel.
package assessment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

type Kind string

const (
	KindPain  Kind = "pain_assessment"
	KindSleep Kind = "sleep_quality"
	KindMood  Kind = "mood_assessment"
)

var (
	ErrUnknownKind = errors.New("assessment: unknown kind")
	ErrMalformed   = errors.New("assessment: malformed envelope")
)

// Kinds lists every kind in dashboard order.
var Kinds = []Kind{KindPain, KindSleep, KindMood}

func (k Kind) Valid() bool {
	switch k {
	case KindPain, KindSleep, KindMood:
		return true
	}
	return false
}

// Record is implemented by the three assessment payloads.
type Record interface {
	Kind() Kind
}

// PainAssessment levels run 1-10; the range is advisory only.
type PainAssessment struct {
	PainLevel        int    `json:"painLevel"`
	Location         string `json:"location"`
	Quality          string `json:"quality"`
	Triggers         string `json:"triggers"`
	CopingStrategies string `json:"copingStrategies"`
}

type SleepQuality struct {
	SleepQuality      int     `json:"sleepQuality"`
	HoursSlept        float64 `json:"hoursSlept"`
	SleepOnsetMinutes int     `json:"sleepOnsetMinutes"`
	WakeUps           int     `json:"wakeUps"`
	SleepFactors      string  `json:"sleepFactors"`
}

type MoodAssessment struct {
	MoodRating                int    `json:"moodRating"`
	EnergyLevel               int    `json:"energyLevel"`
	DailyActivitiesCompletion int    `json:"dailyActivitiesCompletion"`
	SocialEngagement          int    `json:"socialEngagement"`
	EmotionalCoping           string `json:"emotionalCoping"`
}

func (PainAssessment) Kind() Kind { return KindPain }
func (SleepQuality) Kind() Kind   { return KindSleep }
func (MoodAssessment) Kind() Kind { return KindMood }

// Envelope is the wire shape.
type Envelope struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

// Message is a decoded envelope.
type Message struct {
	Type   Kind
	Record Record
	// Raw holds the data object exactly as received.
	Raw json.RawMessage
}

// Encode renders {"type":kind,"data":record}. Keys keep struct order.
func Encode(kind Kind, record Record) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformed)
	}
	if record.Kind() != kind {
		return nil, fmt.Errorf("%w: %s record under type %s", ErrMalformed, record.Kind(), kind)
	}
	b, err := sonic.Marshal(Envelope{Type: kind, Data: record})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return b, nil
}

// EncodeRecord is Encode with the kind taken from the record.
func EncodeRecord(record Record) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformed)
	}
	return Encode(record.Kind(), record)
}

type rawEnvelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses an envelope and its data into the typed record.
func Decode(b []byte) (*Message, error) {
	var env rawEnvelope
	if err := sonic.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}

	kind := Kind(*env.Type)
	var rec Record
	var err error
	switch kind {
	case KindPain:
		var p PainAssessment
		err = sonic.Unmarshal(env.Data, &p)
		rec = p
	case KindSleep:
		var s SleepQuality
		err = sonic.Unmarshal(env.Data, &s)
		rec = s
	case KindMood:
		var m MoodAssessment
		err = sonic.Unmarshal(env.Data, &m)
		rec = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrMalformed, kind, err)
	}
	return &Message{Type: kind, Record: rec, Raw: env.Data}, nil
}
