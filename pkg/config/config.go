package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/code-100-precent/LingCare/pkg/cache"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"github.com/code-100-precent/LingCare/pkg/utils"
)

// Config main configuration structure
type Config struct {
	Mode      string           `env:"MODE"`
	LiveKit   LiveKitConfig    `mapstructure:"livekit"`
	Agent     AgentConfig      `mapstructure:"agent"`
	Services  ServicesConfig   `mapstructure:"services"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Cache     cache.Config     `mapstructure:"cache"`
	Dashboard DashboardConfig  `mapstructure:"dashboard"`
	Log       logger.LogConfig `mapstructure:"log"`
}

// LiveKitConfig room server credentials
type LiveKitConfig struct {
	URL       string `env:"LIVEKIT_URL"`
	APIKey    string `env:"LIVEKIT_API_KEY"`
	APISecret string `env:"LIVEKIT_API_SECRET"`
}

// AgentConfig worker and session options
type AgentConfig struct {
	Name                     string        `env:"AGENT_NAME"`
	DispatchSchedule         string        `env:"DISPATCH_SCHEDULE"`
	PreemptiveGeneration     bool          `env:"PREEMPTIVE_GENERATION"`
	FalseInterruptionTimeout time.Duration `env:"FALSE_INTERRUPTION_TIMEOUT"`
	MinEndpointingDelay      time.Duration `env:"MIN_ENDPOINTING_DELAY"`
	MaxEndpointingDelay      time.Duration `env:"MAX_ENDPOINTING_DELAY"`
	VADThreshold             float64       `env:"VAD_THRESHOLD"`
	MetricsAddr              string        `env:"METRICS_ADDR"`
}

// ServicesConfig upstream model providers
type ServicesConfig struct {
	LLM LLMConfig `mapstructure:"llm"`
	STT STTConfig `mapstructure:"stt"`
	TTS TTSConfig `mapstructure:"tts"`
}

// LLMConfig LLM service configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER"`
	APIKey   string `env:"LLM_API_KEY"`
	BaseURL  string `env:"LLM_BASE_URL"`
	Model    string `env:"LLM_MODEL"`
}

// STTConfig speech recognition configuration
type STTConfig struct {
	Provider string `env:"STT_PROVIDER"`
	APIKey   string `env:"DEEPGRAM_API_KEY"`
	BaseURL  string `env:"DEEPGRAM_BASE_URL"`
	Model    string `env:"STT_MODEL"`
	Language string `env:"STT_LANGUAGE"`
}

// TTSConfig speech synthesis configuration
type TTSConfig struct {
	Provider  string `env:"TTS_PROVIDER"`
	APIKey    string `env:"DEEPGRAM_API_KEY"`
	BaseURL   string `env:"DEEPGRAM_BASE_URL"`
	Model     string `env:"TTS_MODEL"`
	CacheSize int    `env:"TTS_CACHE_SIZE"`
}

// DatabaseConfig dashboard store
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DSN"`
}

// DashboardConfig HTTP service options
type DashboardConfig struct {
	Addr          string        `env:"DASHBOARD_ADDR"`
	APIPrefix     string        `env:"API_PREFIX"`
	MonitorPrefix string        `env:"MONITOR_PREFIX"`
	RateLimit     string        `env:"RATE_LIMIT"`
	TokenTTL      time.Duration `env:"TOKEN_TTL"`
	Identity      string        `env:"DASHBOARD_IDENTITY"`
	AnalyticsTTL  time.Duration `env:"ANALYTICS_CACHE_TTL"`
}

var GlobalConfig *Config

func Load() error {
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	deepgramKey := getStringOrDefault("DEEPGRAM_API_KEY", "")
	deepgramURL := getStringOrDefault("DEEPGRAM_BASE_URL", "https://api.deepgram.com")

	GlobalConfig = &Config{
		Mode: getStringOrDefault("MODE", "development"),
		LiveKit: LiveKitConfig{
			URL:       getStringOrDefault("LIVEKIT_URL", ""),
			APIKey:    getStringOrDefault("LIVEKIT_API_KEY", ""),
			APISecret: getStringOrDefault("LIVEKIT_API_SECRET", ""),
		},
		Agent: AgentConfig{
			Name:                     getStringOrDefault("AGENT_NAME", "lingcare-therapist"),
			DispatchSchedule:         getStringOrDefault("DISPATCH_SCHEDULE", "@every 5s"),
			PreemptiveGeneration:     getBoolOrDefault("PREEMPTIVE_GENERATION", true),
			FalseInterruptionTimeout: parseDuration(utils.GetEnv("FALSE_INTERRUPTION_TIMEOUT"), 2*time.Second),
			MinEndpointingDelay:      parseDuration(utils.GetEnv("MIN_ENDPOINTING_DELAY"), 500*time.Millisecond),
			MaxEndpointingDelay:      parseDuration(utils.GetEnv("MAX_ENDPOINTING_DELAY"), 6*time.Second),
			VADThreshold:             getFloatOrDefault("VAD_THRESHOLD", 0.02),
			MetricsAddr:              getStringOrDefault("METRICS_ADDR", ":9464"),
		},
		Services: ServicesConfig{
			LLM: LLMConfig{
				Provider: getStringOrDefault("LLM_PROVIDER", "openai"),
				APIKey:   getStringOrDefault("LLM_API_KEY", utils.GetEnv("OPENAI_API_KEY")),
				BaseURL:  getStringOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
				Model:    getStringOrDefault("LLM_MODEL", "gpt-4o-mini"),
			},
			STT: STTConfig{
				Provider: getStringOrDefault("STT_PROVIDER", "deepgram"),
				APIKey:   deepgramKey,
				BaseURL:  deepgramURL,
				Model:    getStringOrDefault("STT_MODEL", "nova-3"),
				Language: getStringOrDefault("STT_LANGUAGE", "multi"),
			},
			TTS: TTSConfig{
				Provider:  getStringOrDefault("TTS_PROVIDER", "deepgram"),
				APIKey:    deepgramKey,
				BaseURL:   deepgramURL,
				Model:     getStringOrDefault("TTS_MODEL", "aura-2-andromeda-en"),
				CacheSize: getIntOrDefault("TTS_CACHE_SIZE", 128),
			},
		},
		Database: DatabaseConfig{
			Driver: getStringOrDefault("DB_DRIVER", "sqlite"),
			DSN:    getStringOrDefault("DSN", "./lingcare.db"),
		},
		Cache: loadCacheConfig(),
		Dashboard: DashboardConfig{
			Addr:          getStringOrDefault("DASHBOARD_ADDR", ":7080"),
			APIPrefix:     getStringOrDefault("API_PREFIX", "/api"),
			MonitorPrefix: getStringOrDefault("MONITOR_PREFIX", "/metrics"),
			RateLimit:     getStringOrDefault("RATE_LIMIT", "300-M"),
			TokenTTL:      parseDuration(utils.GetEnv("TOKEN_TTL"), 15*time.Minute),
			Identity:      getStringOrDefault("DASHBOARD_IDENTITY", "lingcare-dashboard"),
			AnalyticsTTL:  parseDuration(utils.GetEnv("ANALYTICS_CACHE_TTL"), time.Minute),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/lingcare.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", false),
		},
	}
	return nil
}

// Validate checks what every command needs: a reachable LiveKit server.
func (c *Config) Validate() error {
	if c.LiveKit.URL == "" {
		return errors.New("LIVEKIT_URL is required")
	}
	if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		return errors.New("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	if c.Agent.MinEndpointingDelay > c.Agent.MaxEndpointingDelay {
		return errors.New("MIN_ENDPOINTING_DELAY must not exceed MAX_ENDPOINTING_DELAY")
	}
	return nil
}

// ValidateVoice checks the provider keys the worker needs on top of Validate.
func (c *Config) ValidateVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Services.LLM.APIKey == "" {
		return errors.New("LLM_API_KEY (or OPENAI_API_KEY) is required")
	}
	if c.Services.STT.APIKey == "" {
		return errors.New("DEEPGRAM_API_KEY is required")
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if utils.GetEnv(key) == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if utils.GetEnv(key) == "" {
		return defaultValue
	}
	if f := utils.GetFloatEnv(key); f != 0 {
		return f
	}
	return defaultValue
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func loadCacheConfig() cache.Config {
	return cache.Config{
		Type: getStringOrDefault("CACHE_TYPE", cache.KindLocal),
		Redis: cache.RedisConfig{
			Addr:         getStringOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     utils.GetEnv("REDIS_PASSWORD"),
			DB:           int(utils.GetIntEnv("REDIS_DB")),
			PoolSize:     getIntOrDefault("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntOrDefault("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  parseDuration(utils.GetEnv("REDIS_DIAL_TIMEOUT"), 5*time.Second),
			ReadTimeout:  parseDuration(utils.GetEnv("REDIS_READ_TIMEOUT"), 3*time.Second),
			WriteTimeout: parseDuration(utils.GetEnv("REDIS_WRITE_TIMEOUT"), 3*time.Second),
		},
		Local: cache.LocalConfig{
			DefaultExpiration: parseDuration(utils.GetEnv("LOCAL_CACHE_DEFAULT_EXPIRATION"), 5*time.Minute),
			CleanupInterval:   parseDuration(utils.GetEnv("LOCAL_CACHE_CLEANUP_INTERVAL"), 10*time.Minute),
		},
	}
}
