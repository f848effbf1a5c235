package agents

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SpeechHandle tracks one agent reply from generation through playout.
// A handle may run speculatively: its LLM call starts before the user's
// turn is committed, but nothing is spoken and no tool fires until Commit.
type SpeechHandle struct {
	ID           string
	Instructions string
	UserText     string

	sayText    string
	checkpoint int

	ctx        context.Context
	cancel     context.CancelFunc
	committed  chan struct{}
	commitOnce sync.Once
	done       chan struct{}

	mu          sync.Mutex
	paused      bool
	resume      chan struct{}
	interrupted bool
}

func newSpeechHandle(parent context.Context, userText, instructions string) *SpeechHandle {
	ctx, cancel := context.WithCancel(parent)
	return &SpeechHandle{
		ID:           "speech_" + uuid.NewString()[:8],
		Instructions: instructions,
		UserText:     userText,
		checkpoint:   -1,
		ctx:          ctx,
		cancel:       cancel,
		committed:    make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (h *SpeechHandle) commit() {
	h.commitOnce.Do(func() { close(h.committed) })
}

func (h *SpeechHandle) Committed() bool {
	select {
	case <-h.committed:
		return true
	default:
		return false
	}
}

// waitCommitted blocks until the turn is committed or ctx ends.
func (h *SpeechHandle) waitCommitted(ctx context.Context) error {
	select {
	case <-h.committed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SpeechHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until playout finished or the handle was interrupted.
func (h *SpeechHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SpeechHandle) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

func (h *SpeechHandle) interrupt() {
	h.mu.Lock()
	h.interrupted = true
	if h.paused {
		h.paused = false
		close(h.resume)
	}
	h.mu.Unlock()
	h.cancel()
}

// discard drops a speculative handle without marking it interrupted.
func (h *SpeechHandle) discard() { h.cancel() }

func (h *SpeechHandle) pause() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused || h.interrupted {
		return false
	}
	h.paused = true
	h.resume = make(chan struct{})
	return true
}

func (h *SpeechHandle) unpause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		h.paused = false
		close(h.resume)
	}
}

func (h *SpeechHandle) isPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *SpeechHandle) waitResumed() error {
	h.mu.Lock()
	if !h.paused {
		h.mu.Unlock()
		return h.ctx.Err()
	}
	ch := h.resume
	h.mu.Unlock()
	select {
	case <-ch:
		return h.ctx.Err()
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

type speechKey struct{}

func withSpeech(ctx context.Context, h *SpeechHandle) context.Context {
	return context.WithValue(ctx, speechKey{}, h)
}

// SpeechFromContext returns the reply a tool call belongs to, if any.
func SpeechFromContext(ctx context.Context) *SpeechHandle {
	h, _ := ctx.Value(speechKey{}).(*SpeechHandle)
	return h
}
