package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	defaultDeepgramURL = "https://api.deepgram.com"
	DefaultTTSModel    = "aura-2-andromeda-en"
	DefaultSampleRate  = 48000
)

var ErrEmptyText = errors.New("tts: empty text")

type DeepgramOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	SampleRate int
	// CacheSize phrases are kept; 0 disables the cache.
	CacheSize int
	Timeout   time.Duration
}

// Deepgram synthesizes with /v1/speak as raw linear16.
type Deepgram struct {
	opts   DeepgramOptions
	client *resty.Client
	cache  *lru.Cache[string, []int16]
	logger *zap.Logger
}

func NewDeepgram(opts DeepgramOptions, lg *zap.Logger) (*Deepgram, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultDeepgramURL
	}
	if opts.Model == "" {
		opts.Model = DefaultTTSModel
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if lg == nil {
		lg = zap.L()
	}
	d := &Deepgram{
		opts: opts,
		client: resty.New().
			SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
			SetHeader("Authorization", "Token "+opts.APIKey).
			SetTimeout(opts.Timeout),
		logger: lg.Named("tts"),
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, []int16](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("tts: cache: %w", err)
		}
		d.cache = c
	}
	return d, nil
}

func (d *Deepgram) Vendor() Vendor  { return VendorDeepgram }
func (d *Deepgram) Model() string   { return d.opts.Model }
func (d *Deepgram) SampleRate() int { return d.opts.SampleRate }

func (d *Deepgram) Synthesize(ctx context.Context, text string) (*Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	key := d.opts.Model + "|" + text
	if d.cache != nil {
		if pcm, ok := d.cache.Get(key); ok {
			return d.audio(pcm, 0, true), nil
		}
	}

	start := time.Now()
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"model":       d.opts.Model,
			"encoding":    "linear16",
			"sample_rate": strconv.Itoa(d.opts.SampleRate),
			"container":   "none",
		}).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": text}).
		Post("/v1/speak")
	if err != nil {
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tts: deepgram status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	pcm := DecodeLinear16(resp.Body())
	if d.cache != nil {
		d.cache.Add(key, pcm)
	}
	a := d.audio(pcm, time.Since(start), false)
	d.logger.Debug("synthesized",
		zap.Int("chars", len(text)),
		zap.Duration("audio", a.Duration),
		zap.Duration("ttfb", a.TTFB))
	return a, nil
}

func (d *Deepgram) audio(pcm []int16, ttfb time.Duration, cached bool) *Audio {
	return &Audio{
		PCM:        pcm,
		SampleRate: d.opts.SampleRate,
		Duration:   time.Duration(len(pcm)) * time.Second / time.Duration(d.opts.SampleRate),
		TTFB:       ttfb,
		Cached:     cached,
	}
}
