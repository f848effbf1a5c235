package main

import (
	"os"

	"github.com/code-100-precent/LingCare/internal/therapist"
	"github.com/code-100-precent/LingCare/internal/toolserver"
	"github.com/code-100-precent/LingCare/pkg/agents"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewMCPCommand(version string) *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assessment tools over MCP stdio, publishing into a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			cfg, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			lg := logger.Lg.Named("mcp").With(zap.String("room", room))
			lkRoom := agents.NewRoom(agents.RoomConfig{
				URL:         cfg.LiveKit.URL,
				APIKey:      cfg.LiveKit.APIKey,
				APISecret:   cfg.LiveKit.APISecret,
				RoomName:    room,
				Identity:    cfg.Agent.Name + "-mcp",
				Name:        cfg.Agent.Name,
				PublishOnly: true,
			}, lg)
			if err := lkRoom.Connect(ctx); err != nil {
				return err
			}
			defer lkRoom.Disconnect()

			usage := metrics.NewUsageCollector()
			t := therapist.NewTherapist(lg)
			t.SetRoom(lkRoom)
			t.SetMetricsSink(func(m metrics.AgentMetrics) {
				metrics.LogMetrics(lg, m)
				usage.Collect(m)
			})

			s, err := toolserver.New(t, version, lg)
			if err != nil {
				return err
			}
			err = toolserver.ServeStdio(ctx, s, os.Stdin, os.Stdout, lg)
			lg.Info("Usage: " + usage.Summary().String())
			return err
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "Room to publish assessments into")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}
