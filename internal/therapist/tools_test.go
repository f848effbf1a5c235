package therapist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingCare/pkg/agents"
	"github.com/code-100-precent/LingCare/pkg/assessment"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sentPacket struct {
	payload  []byte
	reliable bool
}

type recordingPublisher struct {
	err error

	mu   sync.Mutex
	sent []sentPacket
}

func (p *recordingPublisher) Identity() string { return "lingcare-agent" }

func (p *recordingPublisher) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.sent = append(p.sent, sentPacket{payload: append([]byte(nil), payload...), reliable: reliable})
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) packets() []sentPacket {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentPacket(nil), p.sent...)
}

type stubRoom struct {
	pub *recordingPublisher
}

func (r stubRoom) Name() string                       { return "care-room" }
func (r stubRoom) LocalParticipant() agents.Publisher { return r.pub }

func newTestTherapist(pubErr error) (*Therapist, *recordingPublisher, *observer.ObservedLogs, *[]metrics.AgentMetrics) {
	core, logs := observer.New(zapcore.DebugLevel)
	t := NewTherapist(zap.New(core))
	pub := &recordingPublisher{err: pubErr}
	t.SetRoom(stubRoom{pub: pub})
	var got []metrics.AgentMetrics
	var mu sync.Mutex
	t.SetMetricsSink(func(m metrics.AgentMetrics) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	return t, pub, logs, &got
}

func dataKeys(t *testing.T, payload []byte) (string, map[string]interface{}) {
	t.Helper()
	var env struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(payload, &env))
	return env.Type, env.Data
}

func TestLogPainAssessmentPublishesExactEnvelope(t *testing.T) {
	th, pub, _, got := newTestTherapist(nil)

	out, err := th.LogPainAssessment(context.Background(), map[string]interface{}{
		"pain_level":    7.0,
		"pain_location": "lower back",
		"pain_quality":  "sharp",
	})
	require.NoError(t, err)
	assert.Equal(t, "Pain assessment recorded successfully. Level: 7/10, Location: lower back, Quality: sharp. This information will be available for your healthcare provider review.", out)

	sent := pub.packets()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].reliable)
	assert.JSONEq(t, `{"type":"pain_assessment","data":{"painLevel":7,"location":"lower back","quality":"sharp","triggers":"","copingStrategies":""}}`, string(sent[0].payload))

	require.Len(t, *got, 1)
	tm := (*got)[0].(*metrics.ToolMetrics)
	assert.Equal(t, ToolLogPainAssessment, tm.Tool)
	assert.True(t, tm.Published)
}

func TestTrackSleepQuality(t *testing.T) {
	th, pub, _, _ := newTestTherapist(nil)

	out, err := th.TrackSleepQuality(context.Background(), map[string]interface{}{
		"sleep_quality":       4.0,
		"hours_slept":         5.5,
		"sleep_onset_minutes": 45.0,
		"wake_ups":            3.0,
		"sleep_factors":       "pain flare",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sleep data recorded successfully. Quality: 4/10, Duration: 5.5 hours, Wake-ups: 3. This information helps track your sleep patterns and their relationship to pain management.", out)

	sent := pub.packets()
	require.Len(t, sent, 1)
	msg, err := assessment.Decode(sent[0].payload)
	require.NoError(t, err)
	assert.Equal(t, assessment.KindSleep, msg.Type)
	assert.Equal(t, assessment.SleepQuality{
		SleepQuality: 4, HoursSlept: 5.5, SleepOnsetMinutes: 45, WakeUps: 3, SleepFactors: "pain flare",
	}, msg.Record)

	typ, data := dataKeys(t, sent[0].payload)
	assert.Equal(t, "sleep_quality", typ)
	assert.ElementsMatch(t, []string{"sleepQuality", "hoursSlept", "sleepOnsetMinutes", "wakeUps", "sleepFactors"}, keys(data))
}

func TestTrackSleepQualityDefaults(t *testing.T) {
	th, pub, _, _ := newTestTherapist(nil)

	out, err := th.TrackSleepQuality(context.Background(), map[string]interface{}{
		"sleep_quality": 8,
		"hours_slept":   7,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Duration: 7.0 hours, Wake-ups: 0.")

	msg, err := assessment.Decode(pub.packets()[0].payload)
	require.NoError(t, err)
	assert.Equal(t, assessment.SleepQuality{SleepQuality: 8, HoursSlept: 7}, msg.Record)
}

func TestAssessMoodAndFunctioning(t *testing.T) {
	th, pub, _, _ := newTestTherapist(nil)

	out, err := th.AssessMoodAndFunctioning(context.Background(), map[string]interface{}{
		"mood_rating":                 "6",
		"energy_level":                3.0,
		"daily_activities_completion": 5.0,
		"social_engagement":           2.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "Mood and functioning assessment recorded. Mood: 6/10, Energy: 3/10, Daily activities: 5/10, Social engagement: 2/10. This holistic view supports your comprehensive care plan.", out)

	typ, data := dataKeys(t, pub.packets()[0].payload)
	assert.Equal(t, "mood_assessment", typ)
	assert.Equal(t, "", data["emotionalCoping"])
	assert.EqualValues(t, 6, data["moodRating"])
	assert.ElementsMatch(t, []string{"moodRating", "energyLevel", "dailyActivitiesCompletion", "socialEngagement", "emotionalCoping"}, keys(data))
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	tests := []struct {
		name string
		tool string
		call func(*Therapist) (string, error)
		want string
		kind string
	}{
		{
			name: "pain",
			tool: ToolLogPainAssessment,
			call: func(th *Therapist) (string, error) {
				return th.LogPainAssessment(context.Background(), map[string]interface{}{
					"pain_level": 3, "pain_location": "neck", "pain_quality": "dull",
				})
			},
			want: "Pain assessment recorded successfully. Level: 3/10, Location: neck, Quality: dull. This information will be available for your healthcare provider review.",
			kind: "pain_assessment",
		},
		{
			name: "sleep",
			tool: ToolTrackSleepQuality,
			call: func(th *Therapist) (string, error) {
				return th.TrackSleepQuality(context.Background(), map[string]interface{}{
					"sleep_quality": 5, "hours_slept": 6.5, "wake_ups": 2,
				})
			},
			want: "Sleep data recorded successfully. Quality: 5/10, Duration: 6.5 hours, Wake-ups: 2. This information helps track your sleep patterns and their relationship to pain management.",
			kind: "sleep_quality",
		},
		{
			name: "mood",
			tool: ToolAssessMoodAndFunctioning,
			call: func(th *Therapist) (string, error) {
				return th.AssessMoodAndFunctioning(context.Background(), map[string]interface{}{
					"mood_rating": 4, "energy_level": 3, "daily_activities_completion": 6, "social_engagement": 2,
				})
			},
			want: "Mood and functioning assessment recorded. Mood: 4/10, Energy: 3/10, Daily activities: 6/10, Social engagement: 2/10. This holistic view supports your comprehensive care plan.",
			kind: "mood_assessment",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, _, logs, got := newTestTherapist(errors.New("data channel closed"))

			out, err := tt.call(th)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)

			failures := logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("failed to send assessment to dashboard")
			require.Equal(t, 1, failures.Len())
			fields := failures.All()[0].ContextMap()
			assert.Equal(t, "data channel closed", fields["error"])
			assert.Equal(t, tt.tool, fields["tool"])
			assert.Equal(t, tt.kind, fields["kind"])

			require.Len(t, *got, 1)
			tm := (*got)[0].(*metrics.ToolMetrics)
			assert.Equal(t, tt.tool, tm.Tool)
			assert.False(t, tm.Published)
			assert.Equal(t, "data channel closed", tm.Error)
		})
	}
}

func TestPublishWithoutRoom(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	th := NewTherapist(zap.New(core))

	out, err := th.AssessMoodAndFunctioning(context.Background(), map[string]interface{}{
		"mood_rating": 5, "energy_level": 5, "daily_activities_completion": 5, "social_engagement": 5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, 1, logs.FilterMessage("failed to send assessment to dashboard").Len())
}

func TestPublishSurvivesCancelledReply(t *testing.T) {
	th, pub, _, _ := newTestTherapist(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := th.LogPainAssessment(ctx, map[string]interface{}{
		"pain_level": 5, "pain_location": "hips", "pain_quality": "aching",
	})
	require.NoError(t, err)
	assert.Len(t, pub.packets(), 1)
}

func TestMissingRequiredArgument(t *testing.T) {
	th, pub, _, _ := newTestTherapist(nil)

	_, err := th.LogPainAssessment(context.Background(), map[string]interface{}{"pain_level": 4})
	assert.ErrorIs(t, err, ErrMissingArgument)
	assert.ErrorContains(t, err, "pain_location")

	_, err = th.TrackSleepQuality(context.Background(), map[string]interface{}{"sleep_quality": 4})
	assert.ErrorIs(t, err, ErrMissingArgument)

	_, err = th.AssessMoodAndFunctioning(context.Background(), map[string]interface{}{"pain_level": "x"})
	assert.ErrorIs(t, err, ErrMissingArgument)

	_, err = th.LogPainAssessment(context.Background(), map[string]interface{}{
		"pain_level": "severe", "pain_location": "back", "pain_quality": "sharp",
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingArgument)

	assert.Empty(t, pub.packets())
}

func TestInvalidArgumentsRejected(t *testing.T) {
	pain := func(level, location interface{}) map[string]interface{} {
		return map[string]interface{}{"pain_level": level, "pain_location": location, "pain_quality": "sharp"}
	}
	tests := []struct {
		name string
		call func(*Therapist) (string, error)
		want string
	}{
		{
			name: "fractional pain level",
			call: func(th *Therapist) (string, error) {
				return th.LogPainAssessment(context.Background(), pain(7.9, "lower back"))
			},
			want: "argument pain_level: not an integer",
		},
		{
			name: "object location",
			call: func(th *Therapist) (string, error) {
				return th.LogPainAssessment(context.Background(), pain(7, map[string]interface{}{"a": 1}))
			},
			want: "argument pain_location",
		},
		{
			name: "array triggers",
			call: func(th *Therapist) (string, error) {
				args := pain(7, "knee")
				args["triggers"] = []interface{}{"stairs"}
				return th.LogPainAssessment(context.Background(), args)
			},
			want: "argument triggers",
		},
		{
			name: "fractional wake ups",
			call: func(th *Therapist) (string, error) {
				return th.TrackSleepQuality(context.Background(), map[string]interface{}{
					"sleep_quality": 5, "hours_slept": 6.5, "wake_ups": 1.5,
				})
			},
			want: "argument wake_ups: not an integer",
		},
		{
			name: "fractional mood",
			call: func(th *Therapist) (string, error) {
				return th.AssessMoodAndFunctioning(context.Background(), map[string]interface{}{
					"mood_rating": 5.5, "energy_level": 5, "daily_activities_completion": 5, "social_engagement": 5,
				})
			},
			want: "argument mood_rating: not an integer",
		},
		{
			name: "object emotional coping",
			call: func(th *Therapist) (string, error) {
				return th.AssessMoodAndFunctioning(context.Background(), map[string]interface{}{
					"mood_rating": 5, "energy_level": 5, "daily_activities_completion": 5, "social_engagement": 5,
					"emotional_coping": map[string]interface{}{"x": true},
				})
			},
			want: "argument emotional_coping",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, pub, _, got := newTestTherapist(nil)
			out, err := tt.call(th)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
			assert.NotErrorIs(t, err, ErrMissingArgument)
			assert.Empty(t, out)
			assert.Empty(t, pub.packets())
			assert.Empty(t, *got)
		})
	}
}

func TestWholeFloatArgumentsAccepted(t *testing.T) {
	th, pub, _, _ := newTestTherapist(nil)
	_, err := th.LogPainAssessment(context.Background(), map[string]interface{}{
		"pain_level": 6.0, "pain_location": "shoulder", "pain_quality": "throbbing",
	})
	require.NoError(t, err)
	msg, err := assessment.Decode(pub.packets()[0].payload)
	require.NoError(t, err)
	assert.Equal(t, 6, msg.Record.(assessment.PainAssessment).PainLevel)
}

type deadlinePublisher struct {
	deadline time.Time
	ok       bool
}

func (p *deadlinePublisher) Identity() string { return "lingcare-agent" }

func (p *deadlinePublisher) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	p.deadline, p.ok = ctx.Deadline()
	return nil
}

type deadlineRoom struct{ pub *deadlinePublisher }

func (r deadlineRoom) Name() string                       { return "care-room" }
func (r deadlineRoom) LocalParticipant() agents.Publisher { return r.pub }

func TestPublishIsBounded(t *testing.T) {
	th := NewTherapist(zap.NewNop())
	pub := &deadlinePublisher{}
	th.SetRoom(deadlineRoom{pub: pub})

	_, err := th.LogPainAssessment(context.Background(), map[string]interface{}{
		"pain_level": 2, "pain_location": "wrist", "pain_quality": "tingling",
	})
	require.NoError(t, err)
	require.True(t, pub.ok)
	assert.WithinDuration(t, time.Now().Add(publishTimeout), pub.deadline, time.Second)
}

func TestToolsDefinitions(t *testing.T) {
	th := NewTherapist(zap.NewNop())
	assert.Equal(t, Prompt, th.Instructions())

	tools := th.Tools()
	require.Len(t, tools, 3)
	names := make([]string, 0, len(tools))
	for _, def := range tools {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.NotNil(t, def.Callback)
		schema := def.Parameters.(map[string]interface{})
		assert.Equal(t, "object", schema["type"])
	}
	assert.Equal(t, []string{ToolLogPainAssessment, ToolTrackSleepQuality, ToolAssessMoodAndFunctioning}, names)
	assert.Equal(t, []string{"sleep_quality", "hours_slept"}, Schemas()[ToolTrackSleepQuality]["required"])
}

func TestFormatHours(t *testing.T) {
	for in, want := range map[float64]string{7: "7.0", 6.5: "6.5", 0: "0.0", 7.25: "7.25"} {
		assert.Equal(t, want, formatHours(in))
	}
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
