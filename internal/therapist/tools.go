package therapist

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/code-100-precent/LingCare/pkg/assessment"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	ToolLogPainAssessment        = "log_pain_assessment"
	ToolTrackSleepQuality        = "track_sleep_quality"
	ToolAssessMoodAndFunctioning = "assess_mood_and_functioning"

	publishTimeout = 5 * time.Second
)

var (
	ErrMissingArgument = errors.New("missing required argument")
	ErrNoRoom          = errors.New("room not set")
)

const painDescription = `Use this tool to record comprehensive pain metrics for chronic pain monitoring.

This tool helps track pain patterns and management effectiveness as part of therapeutic care.`

const sleepDescription = `Use this tool to monitor sleep patterns and quality for patients with chronic pain and sleep disorders.

Sleep tracking is essential for understanding the relationship between pain, sleep, and overall wellbeing.`

const moodDescription = `Use this tool to evaluate emotional wellbeing and daily functioning for comprehensive chronic pain care.

This assessment helps monitor the psychological and functional impact of chronic conditions.`

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

var painSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"pain_level":        prop("integer", "Current pain level on a scale of 1-10 (1 = minimal, 10 = severe)"),
		"pain_location":     prop("string", `Where the pain is located (e.g., "lower back", "neck and shoulders", "widespread")`),
		"pain_quality":      prop("string", `Description of pain type (e.g., "sharp", "dull", "burning", "throbbing", "aching")`),
		"triggers":          prop("string", `Optional. What may have triggered or worsened the pain (e.g., "weather change", "stress", "activity")`),
		"coping_strategies": prop("string", `Optional. Current pain management strategies being used (e.g., "heat therapy", "medication", "breathing exercises")`),
	},
	"required": []string{"pain_level", "pain_location", "pain_quality"},
}

var sleepSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"sleep_quality":       prop("integer", "Overall sleep quality rating on a scale of 1-10 (1 = very poor, 10 = excellent)"),
		"hours_slept":         prop("number", "Total hours of sleep obtained (e.g., 6.5, 7.0)"),
		"sleep_onset_minutes": prop("integer", "Optional. Minutes it took to fall asleep (default: 0 if not specified)"),
		"wake_ups":            prop("integer", "Optional. Number of times awakened during the night (default: 0)"),
		"sleep_factors":       prop("string", `Optional. Factors that affected sleep (e.g., "pain flare", "anxiety", "medication change", "good sleep hygiene")`),
	},
	"required": []string{"sleep_quality", "hours_slept"},
}

var moodSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"mood_rating":                 prop("integer", "Current mood on a scale of 1-10 (1 = very low/depressed, 10 = very positive/happy)"),
		"energy_level":                prop("integer", "Current energy level on a scale of 1-10 (1 = completely exhausted, 10 = very energetic)"),
		"daily_activities_completion": prop("integer", "Ability to complete daily activities on a scale of 1-10 (1 = unable to complete basic tasks, 10 = completed all planned activities)"),
		"social_engagement":           prop("integer", "Level of social interaction/engagement on a scale of 1-10 (1 = completely isolated, 10 = very socially active)"),
		"emotional_coping":            prop("string", `Optional. Current emotional coping strategies being used (e.g., "mindfulness", "talking to friends", "journaling", "therapy techniques")`),
	},
	"required": []string{"mood_rating", "energy_level", "daily_activities_completion", "social_engagement"},
}

// Schemas returns the JSON schema of every tool by name.
func Schemas() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		ToolLogPainAssessment:        painSchema,
		ToolTrackSleepQuality:        sleepSchema,
		ToolAssessMoodAndFunctioning: moodSchema,
	}
}

// LogPainAssessment records a pain check-in and publishes it to the room.
func (t *Therapist) LogPainAssessment(ctx context.Context, args map[string]interface{}) (string, error) {
	var rec assessment.PainAssessment
	var err error
	if rec.PainLevel, err = requiredInt(args, "pain_level"); err != nil {
		return "", err
	}
	if rec.Location, err = requiredString(args, "pain_location"); err != nil {
		return "", err
	}
	if rec.Quality, err = requiredString(args, "pain_quality"); err != nil {
		return "", err
	}
	if rec.Triggers, err = optionalString(args, "triggers"); err != nil {
		return "", err
	}
	if rec.CopingStrategies, err = optionalString(args, "coping_strategies"); err != nil {
		return "", err
	}

	t.logger.Info("logging pain assessment",
		zap.Int("level", rec.PainLevel),
		zap.String("location", rec.Location),
		zap.String("quality", rec.Quality))
	t.publish(ctx, ToolLogPainAssessment, rec)

	return fmt.Sprintf("Pain assessment recorded successfully. Level: %d/10, Location: %s, Quality: %s. This information will be available for your healthcare provider review.",
		rec.PainLevel, rec.Location, rec.Quality), nil
}

// TrackSleepQuality records last night's sleep and publishes it to the room.
func (t *Therapist) TrackSleepQuality(ctx context.Context, args map[string]interface{}) (string, error) {
	var rec assessment.SleepQuality
	var err error
	if rec.SleepQuality, err = requiredInt(args, "sleep_quality"); err != nil {
		return "", err
	}
	if rec.HoursSlept, err = requiredFloat(args, "hours_slept"); err != nil {
		return "", err
	}
	if rec.SleepOnsetMinutes, err = optionalInt(args, "sleep_onset_minutes"); err != nil {
		return "", err
	}
	if rec.WakeUps, err = optionalInt(args, "wake_ups"); err != nil {
		return "", err
	}
	if rec.SleepFactors, err = optionalString(args, "sleep_factors"); err != nil {
		return "", err
	}

	t.logger.Info("tracking sleep quality",
		zap.Int("quality", rec.SleepQuality),
		zap.Float64("hours", rec.HoursSlept),
		zap.Int("wake_ups", rec.WakeUps))
	t.publish(ctx, ToolTrackSleepQuality, rec)

	return fmt.Sprintf("Sleep data recorded successfully. Quality: %d/10, Duration: %s hours, Wake-ups: %d. This information helps track your sleep patterns and their relationship to pain management.",
		rec.SleepQuality, formatHours(rec.HoursSlept), rec.WakeUps), nil
}

// AssessMoodAndFunctioning records mood, energy and functioning and
// publishes them to the room.
func (t *Therapist) AssessMoodAndFunctioning(ctx context.Context, args map[string]interface{}) (string, error) {
	var rec assessment.MoodAssessment
	var err error
	if rec.MoodRating, err = requiredInt(args, "mood_rating"); err != nil {
		return "", err
	}
	if rec.EnergyLevel, err = requiredInt(args, "energy_level"); err != nil {
		return "", err
	}
	if rec.DailyActivitiesCompletion, err = requiredInt(args, "daily_activities_completion"); err != nil {
		return "", err
	}
	if rec.SocialEngagement, err = requiredInt(args, "social_engagement"); err != nil {
		return "", err
	}
	if rec.EmotionalCoping, err = optionalString(args, "emotional_coping"); err != nil {
		return "", err
	}

	t.logger.Info("assessing mood and functioning",
		zap.Int("mood", rec.MoodRating),
		zap.Int("energy", rec.EnergyLevel),
		zap.Int("activities", rec.DailyActivitiesCompletion))
	t.publish(ctx, ToolAssessMoodAndFunctioning, rec)

	return fmt.Sprintf("Mood and functioning assessment recorded. Mood: %d/10, Energy: %d/10, Daily activities: %d/10, Social engagement: %d/10. This holistic view supports your comprehensive care plan.",
		rec.MoodRating, rec.EnergyLevel, rec.DailyActivitiesCompletion, rec.SocialEngagement), nil
}

// publish sends the record on the reliable data channel. Failures are
// logged and counted but never reach the model.
func (t *Therapist) publish(ctx context.Context, tool string, rec assessment.Record) {
	m := &metrics.ToolMetrics{Timestamp: time.Now(), Tool: tool}
	defer t.emit(m)

	err := t.send(ctx, rec)
	if err != nil {
		m.Error = err.Error()
		t.logger.Error("failed to send assessment to dashboard",
			zap.String("tool", tool),
			zap.String("kind", string(rec.Kind())),
			zap.Error(err))
		return
	}
	m.Published = true
}

func (t *Therapist) send(ctx context.Context, rec assessment.Record) error {
	payload, err := assessment.EncodeRecord(rec)
	if err != nil {
		return err
	}
	room := t.Room()
	if room == nil {
		return ErrNoRoom
	}
	// an interrupted reply must not drop a record the model already took
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return room.LocalParticipant().PublishData(pctx, payload, true)
}

func (t *Therapist) emit(m metrics.AgentMetrics) {
	t.mu.RLock()
	fn := t.onMetrics
	t.mu.RUnlock()
	if fn != nil {
		fn(m)
	}
}

func requiredInt(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	return toInt(key, v)
}

func optionalInt(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, nil
	}
	return toInt(key, v)
}

// toInt accepts whole numbers only; 7.9 is an error, not a 7.
func toInt(key string, v interface{}) (int, error) {
	switch f := v.(type) {
	case float64:
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("argument %s: not an integer", key)
		}
	case float32:
		if float64(f) != math.Trunc(float64(f)) {
			return 0, fmt.Errorf("argument %s: not an integer", key)
		}
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return n, nil
}

func requiredFloat(args map[string]interface{}, key string) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return f, nil
}

func requiredString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	return toString(key, v)
}

func optionalString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	return toString(key, v)
}

func toString(key string, v interface{}) (string, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("argument %s: %w", key, err)
	}
	return s, nil
}

// formatHours prints whole numbers with one decimal, 7 -> "7.0", 6.5 -> "6.5".
func formatHours(h float64) string {
	s := strconv.FormatFloat(h, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
