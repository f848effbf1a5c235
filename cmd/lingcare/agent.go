package main

import (
	"github.com/code-100-precent/LingCare/internal/therapist"
	"github.com/code-100-precent/LingCare/pkg/agents"
	"github.com/code-100-precent/LingCare/pkg/config"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorker(cfg *config.Config, recorder *metrics.Recorder) (*agents.Worker, error) {
	if err := cfg.ValidateVoice(); err != nil {
		return nil, err
	}
	providers, err := therapist.ProvidersFromConfig(cfg, logger.Lg)
	if err != nil {
		return nil, err
	}
	return agents.NewWorker(agents.WorkerOptions{
		EntrypointFnc: therapist.NewEntrypoint(therapist.EntrypointOptions{
			Providers: providers,
			Agent:     cfg.Agent,
			Recorder:  recorder,
		}),
		PrewarmFnc:       therapist.Prewarm(cfg.Agent.VADThreshold),
		AgentName:        cfg.Agent.Name,
		URL:              cfg.LiveKit.URL,
		APIKey:           cfg.LiveKit.APIKey,
		APISecret:        cfg.LiveKit.APISecret,
		DispatchSchedule: cfg.Agent.DispatchSchedule,
		Logger:           logger.Lg,
	}), nil
}

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the worker and join rooms that need a therapist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			recorder := metrics.DefaultRecorder()
			w, err := newWorker(cfg, recorder)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			serveMetrics(ctx, cfg.Agent.MetricsAddr, recorder)
			return w.Run(ctx)
		},
	}
}

func NewConnectCommand() *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Run one session in the given room",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			recorder := metrics.DefaultRecorder()
			w, err := newWorker(cfg, recorder)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			serveMetrics(ctx, cfg.Agent.MetricsAddr, recorder)
			logger.Info("connecting to room", zap.String("room", room))
			return w.RunRoom(ctx, room)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "Room to join")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}
