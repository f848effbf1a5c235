package agents

import (
	"context"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	opusSampleRate = 48000
	// 20ms at 48kHz mono
	opusFrameSamples = 960
	opusFrameDur     = 20 * time.Millisecond
	// frames written ahead of real time before pacing kicks in
	preBufferFrames = 3
)

// Resample converts mono 16-bit PCM by linear interpolation.
func Resample(pcm []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(pcm) == 0 {
		return pcm
	}
	ratio := float64(toRate) / float64(fromRate)
	n := int(float64(len(pcm)) * ratio)
	out := make([]int16, n)
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx+1 < len(pcm) {
			frac := pos - float64(idx)
			out[i] = int16(float64(pcm[idx])*(1-frac) + float64(pcm[idx+1])*frac)
		} else {
			out[i] = pcm[len(pcm)-1]
		}
	}
	return out
}

// opusOutput encodes agent speech into 20ms Opus samples and paces them
// to real time so that interruption takes effect promptly.
type opusOutput struct {
	mu       sync.Mutex
	writer   func(media.Sample) error
	enc      *opus.Encoder
	pending  []int16
	sent     int
	lastSend time.Time
	packet   []byte
}

func newOpusOutput() *opusOutput {
	return &opusOutput{packet: make([]byte, 4000)}
}

// bind attaches the published track. Until then frames are rejected.
func (o *opusOutput) bind(write func(media.Sample) error) error {
	enc, err := opus.NewEncoder(opusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.writer = write
	o.enc = enc
	o.mu.Unlock()
	return nil
}

func (o *opusOutput) unbind() {
	o.mu.Lock()
	o.writer = nil
	o.enc = nil
	o.pending = nil
	o.mu.Unlock()
}

func (o *opusOutput) CaptureFrame(ctx context.Context, frame AudioFrame) error {
	o.mu.Lock()
	if o.writer == nil {
		o.mu.Unlock()
		return ErrNotConnected
	}
	o.pending = append(o.pending, Resample(frame.Data, frame.SampleRate, opusSampleRate)...)
	var packets [][]byte
	for len(o.pending) >= opusFrameSamples {
		n, err := o.enc.Encode(o.pending[:opusFrameSamples], o.packet)
		o.pending = o.pending[opusFrameSamples:]
		if err != nil {
			o.mu.Unlock()
			return err
		}
		packets = append(packets, append([]byte(nil), o.packet[:n]...))
	}
	write := o.writer
	o.mu.Unlock()

	for _, p := range packets {
		if err := o.pace(ctx); err != nil {
			return err
		}
		if err := write(media.Sample{Data: p, Duration: opusFrameDur}); err != nil {
			return err
		}
	}
	return nil
}

func (o *opusOutput) pace(ctx context.Context) error {
	o.mu.Lock()
	now := time.Now()
	if now.Sub(o.lastSend) > 2*opusFrameDur {
		// playout went idle, start a new burst
		o.sent = 0
	}
	var delay time.Duration
	if o.sent >= preBufferFrames {
		delay = time.Until(o.lastSend.Add(opusFrameDur))
	}
	o.sent++
	o.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.mu.Lock()
	o.lastSend = time.Now()
	o.mu.Unlock()
	return nil
}

func (o *opusOutput) ClearBuffer() {
	o.mu.Lock()
	o.pending = nil
	o.sent = 0
	o.mu.Unlock()
}
