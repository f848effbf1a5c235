package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/code-100-precent/LingCare/cmd/bootstrap"
	"github.com/code-100-precent/LingCare/pkg/config"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lingcare",
		Short:         "Voice therapist agent for chronic pain and sleep",
		Long:          `LingCare runs a voice agent in LiveKit rooms that records pain, sleep and mood assessments, and a dashboard that charts them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("banner", "", "Print this banner file on start")

	rootCmd.AddCommand(NewStartCommand())
	rootCmd.AddCommand(NewConnectCommand())
	rootCmd.AddCommand(NewDashboardCommand())
	rootCmd.AddCommand(NewMCPCommand(version))
	return rootCmd
}

// setup loads config and the logger. Quiet keeps stdout free of log lines.
func setup(cmd *cobra.Command, quiet bool) (*config.Config, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	cfg := config.GlobalConfig
	mode := cfg.Mode
	if quiet {
		mode = "quiet"
	}
	if err := logger.Init(&cfg.Log, mode); err != nil {
		return nil, err
	}
	if banner, _ := cmd.Flags().GetString("banner"); banner != "" && !quiet {
		if err := bootstrap.PrintBannerFromFile(banner); err != nil {
			logger.Warn("banner", zap.Error(err))
		}
	}
	bootstrap.LogConfigInfo()
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serveMetrics exposes the recorder until ctx ends.
func serveMetrics(ctx context.Context, addr string, recorder *metrics.Recorder) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
