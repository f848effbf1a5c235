package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder mirrors agent metrics into prometheus collectors.
type Recorder struct {
	gatherer prometheus.Gatherer

	llmTokens      *prometheus.CounterVec
	llmTTFT        prometheus.Histogram
	sttAudio       prometheus.Counter
	ttsCharacters  prometheus.Counter
	ttsAudio       prometheus.Counter
	ttsTTFB        prometheus.Histogram
	eouDelay       prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	publishFailure *prometheus.CounterVec
	trackedEntries *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// DefaultRecorder registers on the process-wide prometheus registry once.
func DefaultRecorder() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewRecorder(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return defaultRecorder
}

func NewRecorder(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	latency := []float64{.05, .1, .25, .5, .75, 1, 1.5, 2, 3, 5, 8}
	r := &Recorder{
		gatherer: gatherer,
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingcare_llm_tokens_total",
			Help: "LLM tokens consumed, by direction.",
		}, []string{"direction"}),
		llmTTFT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingcare_llm_ttft_seconds",
			Help:    "Time to first LLM token.",
			Buckets: latency,
		}),
		sttAudio: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lingcare_stt_audio_seconds_total",
			Help: "Audio seconds sent to speech recognition.",
		}),
		ttsCharacters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lingcare_tts_characters_total",
			Help: "Characters synthesized.",
		}),
		ttsAudio: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lingcare_tts_audio_seconds_total",
			Help: "Audio seconds synthesized.",
		}),
		ttsTTFB: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingcare_tts_ttfb_seconds",
			Help:    "Time to first synthesized byte.",
			Buckets: latency,
		}),
		eouDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingcare_eou_delay_seconds",
			Help:    "End of speech to committed user turn.",
			Buckets: latency,
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingcare_tool_calls_total",
			Help: "Assessment tool invocations.",
		}, []string{"tool"}),
		publishFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingcare_tool_publish_failures_total",
			Help: "Assessment records that could not be published to the room.",
		}, []string{"tool"}),
		trackedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingcare_tracked_entries_total",
			Help: "Records stored by the dashboard, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(r.llmTokens, r.llmTTFT, r.sttAudio, r.ttsCharacters, r.ttsAudio,
		r.ttsTTFB, r.eouDelay, r.toolCalls, r.publishFailure, r.trackedEntries)
	return r
}

func (r *Recorder) Observe(m AgentMetrics) {
	switch v := m.(type) {
	case *LLMMetrics:
		r.llmTokens.WithLabelValues("prompt").Add(float64(v.PromptTokens))
		r.llmTokens.WithLabelValues("completion").Add(float64(v.CompletionTokens))
		if v.TTFT > 0 {
			r.llmTTFT.Observe(v.TTFT.Seconds())
		}
	case *STTMetrics:
		r.sttAudio.Add(v.AudioDuration.Seconds())
	case *TTSMetrics:
		r.ttsCharacters.Add(float64(v.CharactersCount))
		r.ttsAudio.Add(v.AudioDuration.Seconds())
		if v.TTFB > 0 {
			r.ttsTTFB.Observe(v.TTFB.Seconds())
		}
	case *EOUMetrics:
		r.eouDelay.Observe(v.EndOfUtteranceDelay.Seconds())
	case *ToolMetrics:
		r.toolCalls.WithLabelValues(v.Tool).Inc()
		if !v.Published {
			r.publishFailure.WithLabelValues(v.Tool).Inc()
		}
	}
}

// TrackedEntry counts a record stored by the dashboard.
func (r *Recorder) TrackedEntry(kind string) {
	r.trackedEntries.WithLabelValues(kind).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
