package metrics

import (
	"fmt"
	"sync"
	"time"
)

// UsageSummary totals billable usage over a session.
type UsageSummary struct {
	LLMPromptTokens     int           `json:"llm_prompt_tokens"`
	LLMCompletionTokens int           `json:"llm_completion_tokens"`
	STTAudioDuration    time.Duration `json:"stt_audio_duration"`
	TTSCharactersCount  int           `json:"tts_characters_count"`
	TTSAudioDuration    time.Duration `json:"tts_audio_duration"`
	ToolCalls           int           `json:"tool_calls"`
	ToolPublishFailures int           `json:"tool_publish_failures"`
}

func (s UsageSummary) String() string {
	return fmt.Sprintf(
		"UsageSummary(llm_prompt_tokens=%d, llm_completion_tokens=%d, stt_audio_duration=%.2f, tts_characters_count=%d, tts_audio_duration=%.2f, tool_calls=%d, tool_publish_failures=%d)",
		s.LLMPromptTokens, s.LLMCompletionTokens, s.STTAudioDuration.Seconds(),
		s.TTSCharactersCount, s.TTSAudioDuration.Seconds(), s.ToolCalls, s.ToolPublishFailures)
}

// UsageCollector sums metrics; safe for concurrent use.
type UsageCollector struct {
	mu      sync.Mutex
	summary UsageSummary
}

func NewUsageCollector() *UsageCollector {
	return &UsageCollector{}
}

func (c *UsageCollector) Collect(m AgentMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := m.(type) {
	case *LLMMetrics:
		c.summary.LLMPromptTokens += v.PromptTokens
		c.summary.LLMCompletionTokens += v.CompletionTokens
	case *STTMetrics:
		c.summary.STTAudioDuration += v.AudioDuration
	case *TTSMetrics:
		c.summary.TTSCharactersCount += v.CharactersCount
		c.summary.TTSAudioDuration += v.AudioDuration
	case *ToolMetrics:
		c.summary.ToolCalls++
		if !v.Published {
			c.summary.ToolPublishFailures++
		}
	}
}

func (c *UsageCollector) Summary() UsageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}
