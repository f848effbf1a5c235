package synthesizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Vendor string

const VendorDeepgram Vendor = "deepgram"

// Audio is synthesized mono 16-bit PCM.
type Audio struct {
	PCM        []int16
	SampleRate int
	Duration   time.Duration
	TTFB       time.Duration
	Cached     bool
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
	Vendor() Vendor
	Model() string
	SampleRate() int
}

type Config struct {
	Vendor    string
	APIKey    string
	BaseURL   string
	Model     string
	CacheSize int
	Timeout   time.Duration
}

// NewSynthesizer builds a Synthesizer by vendor name.
func NewSynthesizer(cfg Config, lg *zap.Logger) (Synthesizer, error) {
	switch Vendor(strings.ToLower(cfg.Vendor)) {
	case VendorDeepgram, "":
		return NewDeepgram(DeepgramOptions{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			CacheSize: cfg.CacheSize,
			Timeout:   cfg.Timeout,
		}, lg)
	default:
		return nil, fmt.Errorf("unsupported tts vendor: %s", cfg.Vendor)
	}
}

// DecodeLinear16 reads little-endian 16-bit samples; a trailing odd byte is dropped.
func DecodeLinear16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}
