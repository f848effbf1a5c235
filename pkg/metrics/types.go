// Package metrics holds the per-step measurements the agent session emits,
// the usage collector that sums them and their prometheus mirror.
package metrics

import "time"

const (
	TypeLLM  = "llm_metrics"
	TypeSTT  = "stt_metrics"
	TypeTTS  = "tts_metrics"
	TypeVAD  = "vad_metrics"
	TypeEOU  = "eou_metrics"
	TypeTool = "tool_metrics"
)

// AgentMetrics is one measurement from a pipeline step.
type AgentMetrics interface {
	Type() string
	At() time.Time
}

type LLMMetrics struct {
	RequestID        string
	Timestamp        time.Time
	Model            string
	TTFT             time.Duration
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ToolRounds       int
	Cancelled        bool
}

type STTMetrics struct {
	RequestID     string
	Timestamp     time.Time
	Provider      string
	Duration      time.Duration
	AudioDuration time.Duration
}

type TTSMetrics struct {
	RequestID       string
	Timestamp       time.Time
	Provider        string
	TTFB            time.Duration
	Duration        time.Duration
	AudioDuration   time.Duration
	CharactersCount int
	Cached          bool
	Cancelled       bool
}

type VADMetrics struct {
	Timestamp         time.Time
	IdleTime          time.Duration
	InferenceCount    int
	InferenceDuration time.Duration
}

// EOUMetrics measures end of speech to turn commit.
type EOUMetrics struct {
	Timestamp           time.Time
	EndOfUtteranceDelay time.Duration
	TranscriptionDelay  time.Duration
	Probability         float64
}

// ToolMetrics records one tool invocation and whether its data packet left.
type ToolMetrics struct {
	Timestamp time.Time
	Tool      string
	Published bool
	Error     string
}

func (m *LLMMetrics) Type() string  { return TypeLLM }
func (m *STTMetrics) Type() string  { return TypeSTT }
func (m *TTSMetrics) Type() string  { return TypeTTS }
func (m *VADMetrics) Type() string  { return TypeVAD }
func (m *EOUMetrics) Type() string  { return TypeEOU }
func (m *ToolMetrics) Type() string { return TypeTool }

func (m *LLMMetrics) At() time.Time  { return m.Timestamp }
func (m *STTMetrics) At() time.Time  { return m.Timestamp }
func (m *TTSMetrics) At() time.Time  { return m.Timestamp }
func (m *VADMetrics) At() time.Time  { return m.Timestamp }
func (m *EOUMetrics) At() time.Time  { return m.Timestamp }
func (m *ToolMetrics) At() time.Time { return m.Timestamp }
