package agents

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/code-100-precent/LingCare/pkg/events"
	"github.com/code-100-precent/LingCare/pkg/llm"
	"github.com/code-100-precent/LingCare/pkg/recognizer"
	"github.com/code-100-precent/LingCare/pkg/synthesizer"
	"github.com/code-100-precent/LingCare/pkg/turn"
	"github.com/code-100-precent/LingCare/pkg/vad"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLLM struct {
	reply    string
	toolName string
	toolArgs map[string]interface{}

	mu           sync.Mutex
	system       string
	history      []llm.Message
	tools        map[string]*llm.FunctionToolDefinition
	calls        []string
	instructions []string
	toolResults  []string
	rollbacks    []int
	stats        llm.Stats
	hasStats     bool
}

func newFakeLLM(reply string) *fakeLLM {
	return &fakeLLM{reply: reply, tools: map[string]*llm.FunctionToolDefinition{}}
}

func (f *fakeLLM) Query(ctx context.Context, text string) (string, error) {
	return f.QueryStream(ctx, text, llm.QueryOptions{}, nil)
}

func (f *fakeLLM) QueryWithOptions(ctx context.Context, text string, o llm.QueryOptions) (string, error) {
	return f.QueryStream(ctx, text, o, nil)
}

func (f *fakeLLM) QueryStream(ctx context.Context, text string, o llm.QueryOptions, cb func(string, bool) error) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.instructions = append(f.instructions, o.Instructions)
	if text != "" {
		f.history = append(f.history, llm.Message{Role: llm.RoleUser, Content: text})
	}
	tool := f.tools[f.toolName]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.stats = llm.Stats{Model: "fake", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, TTFT: time.Millisecond, Cancelled: ctx.Err() != nil}
		f.hasStats = true
		f.mu.Unlock()
	}()

	if tool != nil {
		res, err := tool.Callback(ctx, f.toolArgs)
		if err != nil {
			res = "error: " + err.Error()
		}
		f.mu.Lock()
		f.toolResults = append(f.toolResults, res)
		f.history = append(f.history, llm.Message{Role: llm.RoleTool, Content: res})
		f.mu.Unlock()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	if cb != nil {
		for _, w := range strings.SplitAfter(f.reply, " ") {
			if err := cb(w, false); err != nil {
				return "", err
			}
		}
	}
	f.mu.Lock()
	f.history = append(f.history, llm.Message{Role: llm.RoleAssistant, Content: f.reply})
	f.mu.Unlock()
	if cb != nil {
		if err := cb("", true); err != nil {
			return "", err
		}
	}
	return f.reply, nil
}

func (f *fakeLLM) RegisterFunctionTool(name, description string, parameters interface{}, callback llm.FunctionToolCallback) {
	f.RegisterFunctionToolDefinition(&llm.FunctionToolDefinition{Name: name, Description: description, Parameters: parameters, Callback: callback})
}

func (f *fakeLLM) RegisterFunctionToolDefinition(def *llm.FunctionToolDefinition) {
	f.mu.Lock()
	f.tools[def.Name] = def
	f.mu.Unlock()
}

func (f *fakeLLM) ListFunctionTools() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name := range f.tools {
		out = append(out, name)
	}
	return out
}

func (f *fakeLLM) GetLastUsage() (llm.Usage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats.Usage, f.hasStats
}

func (f *fakeLLM) LastStats() (llm.Stats, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, f.hasStats
}

func (f *fakeLLM) SetSystemPrompt(prompt string) {
	f.mu.Lock()
	f.system = prompt
	f.mu.Unlock()
}

func (f *fakeLLM) History() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Message(nil), f.history...)
}

func (f *fakeLLM) Checkpoint() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history)
}

func (f *fakeLLM) Rollback(cp int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks = append(f.rollbacks, cp)
	if cp >= 0 && cp < len(f.history) {
		f.history = f.history[:cp]
	}
}

func (f *fakeLLM) ResetMessages() {
	f.mu.Lock()
	f.history = nil
	f.mu.Unlock()
}

func (f *fakeLLM) Interrupt()    {}
func (f *fakeLLM) Model() string { return "fake" }

func (f *fakeLLM) snapshot() (calls, instructions, toolResults []string, rollbacks []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]string(nil), f.instructions...),
		append([]string(nil), f.toolResults...), append([]int(nil), f.rollbacks...)
}

type fakeSTT struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSTT) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*recognizer.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text := ""
	if len(f.texts) > 0 {
		text = f.texts[0]
		f.texts = f.texts[1:]
	}
	return &recognizer.Transcript{
		Text:          text,
		Language:      "en",
		AudioDuration: time.Duration(len(pcm)) * time.Second / time.Duration(sampleRate),
	}, nil
}

func (f *fakeSTT) Vendor() recognizer.Vendor { return "fake" }
func (f *fakeSTT) Model() string             { return "fake" }

type fakeTTS struct {
	samples int

	mu    sync.Mutex
	texts []string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) (*synthesizer.Audio, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return &synthesizer.Audio{
		PCM:        make([]int16, f.samples),
		SampleRate: 48000,
		Duration:   time.Duration(f.samples) * time.Second / 48000,
	}, nil
}

func (f *fakeTTS) Vendor() synthesizer.Vendor { return "fake" }
func (f *fakeTTS) Model() string              { return "fake" }
func (f *fakeTTS) SampleRate() int            { return 48000 }

func (f *fakeTTS) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeOutput struct {
	perFrame time.Duration

	mu      sync.Mutex
	frames  int
	cleared int
}

func (o *fakeOutput) CaptureFrame(ctx context.Context, frame AudioFrame) error {
	if o.perFrame > 0 {
		select {
		case <-time.After(o.perFrame):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.mu.Lock()
	o.frames++
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) ClearBuffer() {
	o.mu.Lock()
	o.cleared++
	o.mu.Unlock()
}

func (o *fakeOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames
}

type fakePublisher struct {
	err error

	mu       sync.Mutex
	payloads [][]byte
}

func (p *fakePublisher) Identity() string { return "agent-test" }

func (p *fakePublisher) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
	return nil
}

type fakeRoom struct {
	name string
	pub  *fakePublisher
	in   chan AudioFrame
	out  *fakeOutput

	mu        sync.Mutex
	connected int
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeRoom(name string) *fakeRoom {
	return &fakeRoom{
		name: name,
		pub:  &fakePublisher{},
		in:   make(chan AudioFrame, 256),
		out:  &fakeOutput{},
		done: make(chan struct{}),
	}
}

func (r *fakeRoom) Name() string                  { return r.name }
func (r *fakeRoom) LocalParticipant() Publisher   { return r.pub }
func (r *fakeRoom) AudioInput() <-chan AudioFrame { return r.in }
func (r *fakeRoom) AudioOutput() AudioOutput      { return r.out }
func (r *fakeRoom) Done() <-chan struct{}         { return r.done }

func (r *fakeRoom) Connect(ctx context.Context) error {
	r.mu.Lock()
	r.connected++
	r.mu.Unlock()
	return nil
}

func (r *fakeRoom) Disconnect() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *fakeRoom) speak(frames int) {
	for i := 0; i < frames; i++ {
		pcm := make([]int16, 960)
		for j := range pcm {
			pcm[j] = 8000
			if j%2 == 1 {
				pcm[j] = -8000
			}
		}
		r.in <- AudioFrame{Data: pcm, SampleRate: 48000, Participant: "user"}
	}
}

func (r *fakeRoom) silence(frames int) {
	for i := 0; i < frames; i++ {
		r.in <- AudioFrame{Data: make([]int16, 960), SampleRate: 48000, Participant: "user"}
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(ev events.Event) error {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) ofType(typ string) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) metricsOfType(typ string) int {
	n := 0
	for _, ev := range l.ofType(EventMetricsCollected) {
		if ev.Payload.(MetricsCollectedEvent).Metrics.Type() == typ {
			n++
		}
	}
	return n
}

type sessionFixture struct {
	session *AgentSession
	llm     *fakeLLM
	stt     *fakeSTT
	tts     *fakeTTS
	room    *fakeRoom
	log     *eventLog
}

func newSessionFixture(t *testing.T, reply string, mutate func(*SessionOptions)) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		llm:  newFakeLLM(reply),
		stt:  &fakeSTT{},
		tts:  &fakeTTS{samples: 4800},
		room: newFakeRoom("room-1"),
		log:  &eventLog{},
	}
	opts := SessionOptions{
		STT:                  f.stt,
		TTS:                  f.tts,
		LLM:                  f.llm,
		VAD:                  vad.Load(vad.Options{MinSilenceDuration: 100 * time.Millisecond}, nil),
		TurnDetection:        turn.NewMultilingualModel(),
		PreemptiveGeneration: true,
		MinEndpointingDelay:  20 * time.Millisecond,
		MaxEndpointingDelay:  5 * time.Second,
		Logger:               zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.session = NewAgentSession(opts)
	f.session.On(events.Wildcard, f.log.record)
	t.Cleanup(func() { _ = f.session.Close() })
	return f
}

func (f *sessionFixture) start(t *testing.T, agent Agent) {
	t.Helper()
	require.NoError(t, f.session.Start(context.Background(), agent, f.room, RoomInputOptions{}))
}
