package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sample() []AgentMetrics {
	return []AgentMetrics{
		&LLMMetrics{PromptTokens: 120, CompletionTokens: 30, TTFT: 300 * time.Millisecond},
		&LLMMetrics{PromptTokens: 80, CompletionTokens: 10},
		&STTMetrics{AudioDuration: 2500 * time.Millisecond},
		&TTSMetrics{CharactersCount: 42, AudioDuration: 3 * time.Second, TTFB: 200 * time.Millisecond},
		&VADMetrics{InferenceCount: 50},
		&EOUMetrics{EndOfUtteranceDelay: 600 * time.Millisecond},
		&ToolMetrics{Tool: "log_pain_assessment", Published: true},
		&ToolMetrics{Tool: "track_sleep_quality", Published: false, Error: "not connected"},
	}
}

func TestUsageCollector(t *testing.T) {
	c := NewUsageCollector()
	for _, m := range sample() {
		c.Collect(m)
	}
	s := c.Summary()
	assert.Equal(t, 200, s.LLMPromptTokens)
	assert.Equal(t, 40, s.LLMCompletionTokens)
	assert.Equal(t, 2500*time.Millisecond, s.STTAudioDuration)
	assert.Equal(t, 42, s.TTSCharactersCount)
	assert.Equal(t, 3*time.Second, s.TTSAudioDuration)
	assert.Equal(t, 2, s.ToolCalls)
	assert.Equal(t, 1, s.ToolPublishFailures)
	assert.Contains(t, s.String(), "llm_prompt_tokens=200")
	assert.Contains(t, s.String(), "stt_audio_duration=2.50")
}

func TestUsageCollectorConcurrent(t *testing.T) {
	c := NewUsageCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Collect(&LLMMetrics{PromptTokens: 1, CompletionTokens: 2})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Summary().LLMPromptTokens)
	assert.Equal(t, 100, c.Summary().LLMCompletionTokens)
}

func TestLogMetricsOneLinePerMetric(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := zap.New(core)
	for _, m := range sample() {
		LogMetrics(lg, m)
	}
	require.Equal(t, len(sample()), logs.Len())

	tool := logs.FilterMessage("Tool metrics").All()
	require.Len(t, tool, 2)
	assert.Equal(t, "not connected", tool[1].ContextMap()["error"])
	assert.Equal(t, int64(120), logs.FilterMessage("LLM metrics").All()[0].ContextMap()["prompt_tokens"])
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, reg)
	for _, m := range sample() {
		r.Observe(m)
	}
	r.TrackedEntry("pain_assessment")

	assert.Equal(t, 200.0, testutil.ToFloat64(r.llmTokens.WithLabelValues("prompt")))
	assert.Equal(t, 2.5, testutil.ToFloat64(r.sttAudio))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishFailure.WithLabelValues("track_sleep_quality")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.publishFailure.WithLabelValues("log_pain_assessment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trackedEntries.WithLabelValues("pain_assessment")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lingcare_tool_publish_failures_total"))
}
