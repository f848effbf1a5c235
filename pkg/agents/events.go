package agents

import (
	"time"

	"github.com/code-100-precent/LingCare/pkg/metrics"
)

const (
	EventMetricsCollected       = "metrics_collected"
	EventAgentFalseInterruption = "agent_false_interruption"
	EventUserInputTranscribed   = "user_input_transcribed"
	EventAgentStateChanged      = "agent_state_changed"
	EventClose                  = "close"
)

type AgentState string

const (
	AgentStateInitializing AgentState = "initializing"
	AgentStateListening    AgentState = "listening"
	AgentStateThinking     AgentState = "thinking"
	AgentStateSpeaking     AgentState = "speaking"
)

type MetricsCollectedEvent struct {
	Metrics metrics.AgentMetrics
}

// AgentFalseInterruptionEvent is emitted when the user made a sound while the
// agent was speaking but no words followed. ExtraInstructions are the
// instructions of the reply that got cut off.
type AgentFalseInterruptionEvent struct {
	ExtraInstructions string
	Timestamp         time.Time
}

type UserInputTranscribedEvent struct {
	Transcript string
	Language   string
	IsFinal    bool
}

type AgentStateChangedEvent struct {
	OldState AgentState
	NewState AgentState
}

type CloseEvent struct {
	Reason string
}
