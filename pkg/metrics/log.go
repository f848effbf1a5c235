package metrics

import (
	"go.uber.org/zap"
)

// LogMetrics writes one structured line per measurement.
func LogMetrics(lg *zap.Logger, m AgentMetrics) {
	if lg == nil {
		lg = zap.L()
	}
	switch v := m.(type) {
	case *LLMMetrics:
		lg.Info("LLM metrics",
			zap.String("model", v.Model),
			zap.Duration("ttft", v.TTFT),
			zap.Duration("duration", v.Duration),
			zap.Int("prompt_tokens", v.PromptTokens),
			zap.Int("completion_tokens", v.CompletionTokens),
			zap.Int("tool_rounds", v.ToolRounds),
			zap.Bool("cancelled", v.Cancelled))
	case *STTMetrics:
		lg.Info("STT metrics",
			zap.String("provider", v.Provider),
			zap.Duration("audio_duration", v.AudioDuration),
			zap.Duration("duration", v.Duration))
	case *TTSMetrics:
		lg.Info("TTS metrics",
			zap.String("provider", v.Provider),
			zap.Duration("ttfb", v.TTFB),
			zap.Duration("audio_duration", v.AudioDuration),
			zap.Int("characters", v.CharactersCount),
			zap.Bool("cached", v.Cached))
	case *VADMetrics:
		lg.Debug("VAD metrics",
			zap.Int("inference_count", v.InferenceCount),
			zap.Duration("inference_duration", v.InferenceDuration),
			zap.Duration("idle_time", v.IdleTime))
	case *EOUMetrics:
		lg.Info("EOU metrics",
			zap.Duration("end_of_utterance_delay", v.EndOfUtteranceDelay),
			zap.Duration("transcription_delay", v.TranscriptionDelay),
			zap.Float64("probability", v.Probability))
	case *ToolMetrics:
		fields := []zap.Field{zap.String("tool", v.Tool), zap.Bool("published", v.Published)}
		if v.Error != "" {
			fields = append(fields, zap.String("error", v.Error))
		}
		lg.Info("Tool metrics", fields...)
	case nil:
	default:
		lg.Info("metrics", zap.String("type", m.Type()))
	}
}
