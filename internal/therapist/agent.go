// Package therapist is the chronic pain and sleep therapy agent: its prompt,
// the three assessment tools and the job entrypoint that wires them into a
// voice session.
package therapist

import (
	"sync"

	"github.com/code-100-precent/LingCare/pkg/agents"
	"github.com/code-100-precent/LingCare/pkg/llm"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"go.uber.org/zap"
)

// Room is what the tools need to publish: the local participant.
type Room interface {
	Name() string
	LocalParticipant() agents.Publisher
}

// Therapist implements agents.Agent. The room must be set before the
// session starts, otherwise tool calls log a publish failure.
type Therapist struct {
	logger *zap.Logger

	mu        sync.RWMutex
	room      Room
	onMetrics func(metrics.AgentMetrics)
}

func NewTherapist(lg *zap.Logger) *Therapist {
	if lg == nil {
		lg = zap.L()
	}
	return &Therapist{logger: lg}
}

func (t *Therapist) SetRoom(room Room) {
	t.mu.Lock()
	t.room = room
	t.mu.Unlock()
}

func (t *Therapist) Room() Room {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.room
}

// SetMetricsSink receives one ToolMetrics per tool call.
func (t *Therapist) SetMetricsSink(fn func(metrics.AgentMetrics)) {
	t.mu.Lock()
	t.onMetrics = fn
	t.mu.Unlock()
}

func (t *Therapist) Instructions() string { return Prompt }

func (t *Therapist) Tools() []llm.FunctionToolDefinition {
	return []llm.FunctionToolDefinition{
		{
			Name:        ToolLogPainAssessment,
			Description: painDescription,
			Parameters:  painSchema,
			Callback:    t.LogPainAssessment,
		},
		{
			Name:        ToolTrackSleepQuality,
			Description: sleepDescription,
			Parameters:  sleepSchema,
			Callback:    t.TrackSleepQuality,
		},
		{
			Name:        ToolAssessMoodAndFunctioning,
			Description: moodDescription,
			Parameters:  moodSchema,
			Callback:    t.AssessMoodAndFunctioning,
		},
	}
}

var _ agents.Agent = (*Therapist)(nil)
