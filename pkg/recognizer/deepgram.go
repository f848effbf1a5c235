package recognizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultDeepgramURL = "https://api.deepgram.com"
	DefaultSTTModel    = "nova-3"
	DefaultLanguage    = "multi"
)

var ErrEmptyAudio = errors.New("stt: empty audio")

type DeepgramOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Language    string
	SmartFormat bool
	Timeout     time.Duration
}

// Deepgram calls the pre-recorded /v1/listen endpoint once per utterance.
type Deepgram struct {
	opts   DeepgramOptions
	client *resty.Client
	logger *zap.Logger
}

type listenResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string   `json:"transcript"`
				Confidence float64  `json:"confidence"`
				Languages  []string `json:"languages"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func NewDeepgram(opts DeepgramOptions, lg *zap.Logger) *Deepgram {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultDeepgramURL
	}
	if opts.Model == "" {
		opts.Model = DefaultSTTModel
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if lg == nil {
		lg = zap.L()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Authorization", "Token "+opts.APIKey).
		SetTimeout(opts.Timeout)
	return &Deepgram{opts: opts, client: client, logger: lg.Named("stt")}
}

func (d *Deepgram) Vendor() Vendor { return VendorDeepgram }
func (d *Deepgram) Model() string  { return d.opts.Model }

func (d *Deepgram) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Transcript, error) {
	if len(pcm) == 0 || sampleRate <= 0 {
		return nil, ErrEmptyAudio
	}
	body, err := EncodeWAV(pcm, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("stt: encode wav: %w", err)
	}

	params := map[string]string{
		"model":    d.opts.Model,
		"language": d.opts.Language,
	}
	if d.opts.SmartFormat {
		params["smart_format"] = "true"
	}
	// punctuation feeds the end-of-turn heuristic
	params["punctuate"] = "true"

	start := time.Now()
	var out listenResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("Content-Type", "audio/wav").
		SetBody(body).
		SetResult(&out).
		Post("/v1/listen")
	if err != nil {
		return nil, fmt.Errorf("stt: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stt: deepgram status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	tr := &Transcript{
		AudioDuration:   time.Duration(len(pcm)) * time.Second / time.Duration(sampleRate),
		RequestDuration: time.Since(start),
	}
	if len(out.Results.Channels) > 0 {
		ch := out.Results.Channels[0]
		tr.Language = ch.DetectedLanguage
		if len(ch.Alternatives) > 0 {
			alt := ch.Alternatives[0]
			tr.Text = strings.TrimSpace(alt.Transcript)
			tr.Confidence = alt.Confidence
			if tr.Language == "" && len(alt.Languages) > 0 {
				tr.Language = alt.Languages[0]
			}
		}
	}
	d.logger.Debug("transcribed",
		zap.String("request_id", out.Metadata.RequestID),
		zap.Duration("audio", tr.AudioDuration),
		zap.Duration("latency", tr.RequestDuration),
		zap.Int("chars", len(tr.Text)))
	return tr, nil
}
