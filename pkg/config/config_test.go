package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// t.Setenv keeps cases from leaking into each other
func setAllEnvs(t *testing.T) {
	t.Setenv("MODE", "release")
	t.Setenv("LIVEKIT_URL", "wss://lk.example.com")
	t.Setenv("LIVEKIT_API_KEY", "lk-key")
	t.Setenv("LIVEKIT_API_SECRET", "lk-secret")
	t.Setenv("AGENT_NAME", "night-shift")
	t.Setenv("DISPATCH_SCHEDULE", "@every 10s")
	t.Setenv("PREEMPTIVE_GENERATION", "false")
	t.Setenv("MIN_ENDPOINTING_DELAY", "300ms")
	t.Setenv("VAD_THRESHOLD", "0.05")

	t.Setenv("LLM_API_KEY", "ak")
	t.Setenv("LLM_BASE_URL", "https://llm.example.com")
	t.Setenv("LLM_MODEL", "gpt-x")
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("STT_LANGUAGE", "en")

	t.Setenv("DB_DRIVER", "pg")
	t.Setenv("DSN", "host=127.0.0.1 user=u dbname=d sslmode=disable")
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RATE_LIMIT", "10-S")

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILENAME", "app.log")
	t.Setenv("LOG_MAX_SIZE", "128")
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	setAllEnvs(t)
	GlobalConfig = nil

	require.NoError(t, Load())
	require.NotNil(t, GlobalConfig)

	c := GlobalConfig
	assert.Equal(t, "release", c.Mode)
	assert.Equal(t, "wss://lk.example.com", c.LiveKit.URL)
	assert.Equal(t, "night-shift", c.Agent.Name)
	assert.Equal(t, "@every 10s", c.Agent.DispatchSchedule)
	assert.False(t, c.Agent.PreemptiveGeneration)
	assert.Equal(t, 300*time.Millisecond, c.Agent.MinEndpointingDelay)
	assert.Equal(t, 6*time.Second, c.Agent.MaxEndpointingDelay)
	assert.InDelta(t, 0.05, c.Agent.VADThreshold, 1e-9)

	assert.Equal(t, "gpt-x", c.Services.LLM.Model)
	assert.Equal(t, "dg", c.Services.STT.APIKey)
	assert.Equal(t, "dg", c.Services.TTS.APIKey)
	assert.Equal(t, "en", c.Services.STT.Language)
	assert.Equal(t, "nova-3", c.Services.STT.Model)

	assert.Equal(t, "pg", c.Database.Driver)
	assert.Equal(t, "redis", c.Cache.Type)
	assert.Equal(t, "redis:6379", c.Cache.Redis.Addr)
	assert.Equal(t, "10-S", c.Dashboard.RateLimit)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 128, c.Log.MaxSize)

	assert.NoError(t, c.Validate())
	assert.NoError(t, c.ValidateVoice())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	for _, k := range []string{"LLM_MODEL", "LLM_API_KEY", "OPENAI_API_KEY", "STT_MODEL", "TTS_MODEL", "PREEMPTIVE_GENERATION", "FALSE_INTERRUPTION_TIMEOUT", "CACHE_TYPE", "LIVEKIT_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	require.NoError(t, Load())
	c := GlobalConfig
	assert.Equal(t, "gpt-4o-mini", c.Services.LLM.Model)
	assert.Equal(t, "sk-fallback", c.Services.LLM.APIKey)
	assert.Equal(t, "aura-2-andromeda-en", c.Services.TTS.Model)
	assert.True(t, c.Agent.PreemptiveGeneration)
	assert.Equal(t, 2*time.Second, c.Agent.FalseInterruptionTimeout)
	assert.Equal(t, "local", c.Cache.Type)

	assert.EqualError(t, c.Validate(), "LIVEKIT_URL is required")
}

func TestValidate_EndpointingOrder(t *testing.T) {
	c := &Config{
		LiveKit: LiveKitConfig{URL: "ws://x", APIKey: "k", APISecret: "s"},
		Agent:   AgentConfig{MinEndpointingDelay: 2 * time.Second, MaxEndpointingDelay: time.Second},
	}
	assert.Error(t, c.Validate())
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("nope", time.Second))
	assert.Equal(t, 3*time.Minute, parseDuration("3m", time.Second))
}
