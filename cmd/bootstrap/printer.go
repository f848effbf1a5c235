package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/code-100-precent/LingCare/pkg/config"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo prints the loaded configuration. Keys and secrets are only
// reported as set or unset.
func LogConfigInfo() {
	cfg := config.GlobalConfig
	if cfg == nil {
		logger.Warn("config not loaded")
		return
	}
	logger.Info("system config load finished", zap.String("mode", cfg.Mode))

	logger.Info("livekit config",
		zap.String("url", cfg.LiveKit.URL),
		zap.String("api_key", maskSecret(cfg.LiveKit.APIKey)),
		zap.String("api_secret", maskSecret(cfg.LiveKit.APISecret)),
	)

	logger.Info("agent config",
		zap.String("name", cfg.Agent.Name),
		zap.String("dispatch_schedule", cfg.Agent.DispatchSchedule),
		zap.Bool("preemptive_generation", cfg.Agent.PreemptiveGeneration),
		zap.Duration("false_interruption_timeout", cfg.Agent.FalseInterruptionTimeout),
		zap.Duration("min_endpointing_delay", cfg.Agent.MinEndpointingDelay),
		zap.Duration("max_endpointing_delay", cfg.Agent.MaxEndpointingDelay),
		zap.Float64("vad_threshold", cfg.Agent.VADThreshold),
		zap.String("metrics_addr", cfg.Agent.MetricsAddr),
	)

	logger.Info("services config",
		zap.String("llm_provider", cfg.Services.LLM.Provider),
		zap.String("llm_model", cfg.Services.LLM.Model),
		zap.String("llm_api_key", maskSecret(cfg.Services.LLM.APIKey)),
		zap.String("stt_provider", cfg.Services.STT.Provider),
		zap.String("stt_model", cfg.Services.STT.Model),
		zap.String("stt_language", cfg.Services.STT.Language),
		zap.String("tts_provider", cfg.Services.TTS.Provider),
		zap.String("tts_model", cfg.Services.TTS.Model),
		zap.String("deepgram_api_key", maskSecret(cfg.Services.STT.APIKey)),
	)

	logger.Info("dashboard config",
		zap.String("addr", cfg.Dashboard.Addr),
		zap.String("api_prefix", cfg.Dashboard.APIPrefix),
		zap.String("monitor_prefix", cfg.Dashboard.MonitorPrefix),
		zap.String("rate_limit", cfg.Dashboard.RateLimit),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cache_type", cfg.Cache.Type),
	)

	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
	)
}

func maskSecret(s string) string {
	if s == "" {
		return "unset"
	}
	return "set"
}

// PrintBannerFromFile prints the file one colour per line.
func PrintBannerFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;45m",
		"\x1b[38;5;51m",
		"\x1b[38;5;87m",
		"\x1b[38;5;123m",
		"\x1b[38;5;159m",
		"\x1b[38;5;195m",
	}

	for i, line := range lines {
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
