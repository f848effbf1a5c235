package recognizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Vendor string

const (
	VendorDeepgram Vendor = "deepgram"
)

// Transcript is a final recognition result for one utterance.
type Transcript struct {
	Text          string
	Language      string
	Confidence    float64
	AudioDuration time.Duration
	// RequestDuration is wall time spent waiting on the provider.
	RequestDuration time.Duration
}

// Transcriber turns a buffered mono 16-bit utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Transcript, error)
	Vendor() Vendor
	Model() string
}

type Config struct {
	Vendor   string
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// NewTranscriber builds a Transcriber by vendor name.
func NewTranscriber(cfg Config, lg *zap.Logger) (Transcriber, error) {
	switch Vendor(strings.ToLower(cfg.Vendor)) {
	case VendorDeepgram, "":
		return NewDeepgram(DeepgramOptions{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Language: cfg.Language,
			Timeout:  cfg.Timeout,
		}, lg), nil
	default:
		return nil, fmt.Errorf("unsupported stt vendor: %s", cfg.Vendor)
	}
}
