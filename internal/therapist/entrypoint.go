package therapist

import (
	"context"
	"fmt"

	"github.com/code-100-precent/LingCare/pkg/agents"
	"github.com/code-100-precent/LingCare/pkg/config"
	"github.com/code-100-precent/LingCare/pkg/events"
	"github.com/code-100-precent/LingCare/pkg/llm"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/code-100-precent/LingCare/pkg/recognizer"
	"github.com/code-100-precent/LingCare/pkg/synthesizer"
	"github.com/code-100-precent/LingCare/pkg/turn"
	"github.com/code-100-precent/LingCare/pkg/vad"
	"go.uber.org/zap"
)

// UserdataVAD is the process userdata key the prewarmed VAD lives under.
const UserdataVAD = "vad"

// Providers are the model handles a job session is built from. STT and TTS
// are shared across jobs; each job gets its own LLM since it holds the
// chat history.
type Providers struct {
	STT    recognizer.Transcriber
	TTS    synthesizer.Synthesizer
	NewLLM func(ctx context.Context, lg *zap.Logger) (llm.LLMProvider, error)
	Turn   turn.Detector
}

// ProvidersFromConfig builds the configured providers.
func ProvidersFromConfig(cfg *config.Config, lg *zap.Logger) (*Providers, error) {
	stt, err := recognizer.NewTranscriber(recognizer.Config{
		Vendor:   cfg.Services.STT.Provider,
		APIKey:   cfg.Services.STT.APIKey,
		BaseURL:  cfg.Services.STT.BaseURL,
		Model:    cfg.Services.STT.Model,
		Language: cfg.Services.STT.Language,
	}, lg)
	if err != nil {
		return nil, err
	}
	tts, err := synthesizer.NewSynthesizer(synthesizer.Config{
		Vendor:    cfg.Services.TTS.Provider,
		APIKey:    cfg.Services.TTS.APIKey,
		BaseURL:   cfg.Services.TTS.BaseURL,
		Model:     cfg.Services.TTS.Model,
		CacheSize: cfg.Services.TTS.CacheSize,
	}, lg)
	if err != nil {
		return nil, err
	}
	llmCfg := cfg.Services.LLM
	if _, err := llm.NewLLMProvider(context.Background(), llmCfg.Provider, llmCfg.APIKey, llmCfg.BaseURL, llmCfg.Model, "", lg); err != nil {
		return nil, err
	}
	return &Providers{
		STT: stt,
		TTS: tts,
		NewLLM: func(ctx context.Context, lg *zap.Logger) (llm.LLMProvider, error) {
			return llm.NewLLMProvider(ctx, llmCfg.Provider, llmCfg.APIKey, llmCfg.BaseURL, llmCfg.Model, "", lg)
		},
		Turn: turn.NewMultilingualModel(),
	}, nil
}

type EntrypointOptions struct {
	Providers *Providers
	Agent     config.AgentConfig
	// Recorder mirrors session metrics to prometheus; nil skips it.
	Recorder *metrics.Recorder
}

// Prewarm loads the VAD once per worker process.
func Prewarm(threshold float64) agents.PrewarmFunc {
	return func(proc *agents.JobProcess) {
		opts := vad.DefaultOptions()
		if threshold > 0 {
			opts.Threshold = threshold
		}
		proc.Set(UserdataVAD, vad.Load(opts, zap.L().Named("vad")))
	}
}

// NewEntrypoint returns the job entrypoint that runs one therapy session
// in a room.
func NewEntrypoint(opts EntrypointOptions) agents.EntrypointFunc {
	return func(ctx context.Context, job *agents.JobContext) error {
		if opts.Providers == nil || opts.Providers.NewLLM == nil {
			return fmt.Errorf("therapist: providers are required")
		}
		job.SetLogContextFields(zap.String("room", job.Room.Name()))
		lg := job.Logger()

		model, err := opts.Providers.NewLLM(ctx, lg.Named("llm"))
		if err != nil {
			return fmt.Errorf("create llm: %w", err)
		}
		detector := opts.Providers.Turn
		if detector == nil {
			detector = turn.NewMultilingualModel()
		}
		session := agents.NewAgentSession(agents.SessionOptions{
			LLM:                      model,
			STT:                      opts.Providers.STT,
			TTS:                      opts.Providers.TTS,
			TurnDetection:            detector,
			VAD:                      prewarmedVAD(job.Proc),
			PreemptiveGeneration:     opts.Agent.PreemptiveGeneration,
			FalseInterruptionTimeout: opts.Agent.FalseInterruptionTimeout,
			MinEndpointingDelay:      opts.Agent.MinEndpointingDelay,
			MaxEndpointingDelay:      opts.Agent.MaxEndpointingDelay,
			Logger:                   lg.Named("session"),
		})

		// background noise can cut the agent off; resume when no words followed
		session.On(agents.EventAgentFalseInterruption, func(e events.Event) error {
			ev, _ := e.Payload.(agents.AgentFalseInterruptionEvent)
			lg.Info("false positive interruption, resuming")
			_, err := session.GenerateReply(ctx, ev.ExtraInstructions)
			return err
		})

		usage := metrics.NewUsageCollector()
		session.On(agents.EventMetricsCollected, func(e events.Event) error {
			ev, ok := e.Payload.(agents.MetricsCollectedEvent)
			if !ok {
				return nil
			}
			metrics.LogMetrics(lg, ev.Metrics)
			usage.Collect(ev.Metrics)
			if opts.Recorder != nil {
				opts.Recorder.Observe(ev.Metrics)
			}
			return nil
		})

		job.AddShutdownCallback(func(context.Context) {
			if err := session.Close(); err != nil {
				lg.Warn("close session", zap.Error(err))
			}
			lg.Info("Usage: " + usage.Summary().String())
		})

		agent := NewTherapist(lg.Named("therapist"))
		agent.SetRoom(job.Room)
		agent.SetMetricsSink(session.EmitMetrics)

		if err := session.Start(ctx, agent, job.Room, agents.RoomInputOptions{}); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if err := job.Connect(ctx); err != nil {
			return fmt.Errorf("connect room: %w", err)
		}
		return nil
	}
}

func prewarmedVAD(proc *agents.JobProcess) *vad.VAD {
	if proc != nil {
		if v, ok := proc.Get(UserdataVAD); ok {
			if loaded, ok := v.(*vad.VAD); ok {
				return loaded
			}
		}
	}
	return vad.Load(vad.DefaultOptions(), zap.L().Named("vad"))
}
