package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/code-100-precent/LingCare/pkg/events"
	"github.com/code-100-precent/LingCare/pkg/llm"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/code-100-precent/LingCare/pkg/recognizer"
	"github.com/code-100-precent/LingCare/pkg/synthesizer"
	"github.com/code-100-precent/LingCare/pkg/turn"
	"github.com/code-100-precent/LingCare/pkg/vad"
	"go.uber.org/zap"
)

const (
	DefaultFalseInterruptionTimeout = 2 * time.Second
	DefaultMinEndpointingDelay      = 500 * time.Millisecond
	DefaultMaxEndpointingDelay      = 6 * time.Second

	// one VAD metrics sample per second of 20ms frames
	vadMetricsEvery = 50
)

var (
	ErrSessionStarted = errors.New("agent session already started")
	ErrSessionClosed  = errors.New("agent session closed")
	ErrNotStarted     = errors.New("agent session not started")
)

type SessionOptions struct {
	STT           recognizer.Transcriber
	TTS           synthesizer.Synthesizer
	LLM           llm.LLMProvider
	VAD           *vad.VAD
	TurnDetection turn.Detector

	// PreemptiveGeneration starts the LLM on a final transcript before the
	// endpointing delay has elapsed.
	PreemptiveGeneration bool
	// FalseInterruptionTimeout after the user stops talking over the agent
	// with no transcript. Negative disables the check.
	FalseInterruptionTimeout time.Duration
	MinEndpointingDelay      time.Duration
	MaxEndpointingDelay      time.Duration

	Logger *zap.Logger
}

// AgentSession owns one conversation: room audio in, turn detection,
// LLM replies with tools, synthesized audio out.
type AgentSession struct {
	opts   SessionOptions
	bus    *events.EventBus
	logger *zap.Logger

	// genMu serializes replies since they share the LLM chat history.
	genMu sync.Mutex
	wg    sync.WaitGroup

	ctx           context.Context
	cancel        context.CancelFunc
	room          RoomIO
	inputIdentity string
	utterances    chan vad.Event

	mu             sync.Mutex
	started        bool
	closed         bool
	state          AgentState
	userSpeaking   bool
	pending        []string
	language       string
	lastSpeechEnd  time.Time
	lastTranscript time.Time
	turnSeq        uint64
	endpointTimer  *time.Timer
	falseSeq       uint64
	falseTimer     *time.Timer
	current        *SpeechHandle
	speculative    *SpeechHandle
}

func NewAgentSession(opts SessionOptions) *AgentSession {
	if opts.FalseInterruptionTimeout == 0 {
		opts.FalseInterruptionTimeout = DefaultFalseInterruptionTimeout
	}
	if opts.MinEndpointingDelay <= 0 {
		opts.MinEndpointingDelay = DefaultMinEndpointingDelay
	}
	if opts.MaxEndpointingDelay <= 0 {
		opts.MaxEndpointingDelay = DefaultMaxEndpointingDelay
	}
	if opts.MaxEndpointingDelay < opts.MinEndpointingDelay {
		opts.MaxEndpointingDelay = opts.MinEndpointingDelay
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.L()
	}
	return &AgentSession{
		opts:   opts,
		bus:    events.NewEventBus(lg.Named("session_events")),
		logger: lg,
		state:  AgentStateInitializing,
	}
}

// On subscribes a handler. Handlers run asynchronously.
func (s *AgentSession) On(eventType string, handler events.EventHandler) {
	s.bus.Subscribe(eventType, handler)
}

func (s *AgentSession) publish(eventType string, payload interface{}) {
	s.bus.Publish(events.Event{Type: eventType, Payload: payload, Source: "agent_session"})
}

// EmitMetrics publishes a metrics_collected event, also for measurements
// taken outside the session such as tool calls.
func (s *AgentSession) EmitMetrics(m metrics.AgentMetrics) {
	s.publish(EventMetricsCollected, MetricsCollectedEvent{Metrics: m})
}

func (s *AgentSession) State() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start registers the agent's tools, binds room audio and begins listening.
// The room does not need to be connected yet.
func (s *AgentSession) Start(ctx context.Context, agent Agent, room RoomIO, opts RoomInputOptions) error {
	if agent == nil || room == nil {
		return errors.New("agent session: agent and room are required")
	}
	if s.opts.LLM == nil || s.opts.STT == nil || s.opts.TTS == nil || s.opts.VAD == nil {
		return errors.New("agent session: stt, tts, llm and vad are required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.room = room
	s.inputIdentity = opts.ParticipantIdentity
	s.utterances = make(chan vad.Event, 8)
	s.wg.Add(2)
	s.mu.Unlock()

	s.opts.LLM.SetSystemPrompt(agent.Instructions())
	tools := agent.Tools()
	for _, def := range tools {
		def.Callback = s.gateTool(def.Name, def.Callback)
		s.opts.LLM.RegisterFunctionToolDefinition(&def)
	}

	go s.audioLoop(s.opts.VAD.NewStream(), room.AudioInput())
	go s.transcribeLoop()

	s.setState(AgentStateListening)
	s.logger.Info("agent session started",
		zap.String("room", room.Name()),
		zap.Int("tools", len(tools)),
		zap.Bool("preemptive_generation", s.opts.PreemptiveGeneration))
	return nil
}

// gateTool holds a speculative reply's tool call until its turn commits,
// so a discarded generation never publishes anything.
func (s *AgentSession) gateTool(name string, cb llm.FunctionToolCallback) llm.FunctionToolCallback {
	if cb == nil {
		return nil
	}
	return func(ctx context.Context, args map[string]interface{}) (string, error) {
		if h := SpeechFromContext(ctx); h != nil && !h.Committed() {
			s.logger.Debug("tool call waiting for turn commit",
				zap.String("tool", name), zap.String("speech_id", h.ID))
			if err := h.waitCommitted(ctx); err != nil {
				return "", err
			}
		}
		return cb(ctx, args)
	}
}

// GenerateReply asks the LLM for a reply, optionally steered by
// instructions, and speaks it. Cancelling ctx interrupts the reply.
func (s *AgentSession) GenerateReply(ctx context.Context, instructions string) (*SpeechHandle, error) {
	return s.reply(ctx, instructions, "")
}

// Say speaks text as-is.
func (s *AgentSession) Say(ctx context.Context, text string) (*SpeechHandle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("agent session: empty text")
	}
	return s.reply(ctx, "", text)
}

func (s *AgentSession) reply(ctx context.Context, instructions, sayText string) (*SpeechHandle, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case !s.started:
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	s.mu.Unlock()

	h := newSpeechHandle(s.ctx, "", instructions)
	h.sayText = sayText
	if ctx != nil {
		stop := context.AfterFunc(ctx, h.interrupt)
		go func() {
			<-h.done
			stop()
		}()
	}
	s.commitSpeech(h)
	s.schedule(h)
	return h, nil
}

// Interrupt stops the current reply and drops any speculative one.
func (s *AgentSession) Interrupt() {
	s.mu.Lock()
	cur, spec := s.current, s.speculative
	s.speculative = nil
	s.mu.Unlock()
	if spec != nil {
		spec.discard()
	}
	if cur != nil {
		s.interruptSpeech(cur)
	}
}

func (s *AgentSession) interruptSpeech(h *SpeechHandle) {
	h.interrupt()
	if s.room != nil {
		if out := s.room.AudioOutput(); out != nil {
			out.ClearBuffer()
		}
	}
}

// Close stops all loops, waits for in-flight replies and event handlers,
// then emits close. Do not call it from an event handler.
func (s *AgentSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.turnSeq++
	stopTimer(&s.endpointTimer)
	s.cancelFalseInterruption()
	cur, spec := s.current, s.speculative
	cancel := s.cancel
	s.mu.Unlock()

	if spec != nil {
		spec.discard()
	}
	if cur != nil {
		s.interruptSpeech(cur)
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	// let metrics handlers finish so usage summaries are complete
	s.bus.Wait()
	s.publish(EventClose, CloseEvent{Reason: "session closed"})
	s.logger.Info("agent session closed")
	return nil
}

func (s *AgentSession) setState(st AgentState) {
	s.mu.Lock()
	old := s.state
	if old == st || s.closed {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	s.publish(EventAgentStateChanged, AgentStateChangedEvent{OldState: old, NewState: st})
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// caller holds s.mu
func (s *AgentSession) cancelFalseInterruption() {
	s.falseSeq++
	stopTimer(&s.falseTimer)
}

func (s *AgentSession) audioLoop(stream *vad.Stream, in <-chan AudioFrame) {
	defer s.wg.Done()
	frames := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}
			if s.inputIdentity != "" && f.Participant != "" && f.Participant != s.inputIdentity {
				continue
			}
			for _, ev := range stream.Push(f.Data, f.SampleRate) {
				switch ev.Type {
				case vad.StartOfSpeech:
					s.onStartOfSpeech()
				case vad.EndOfSpeech:
					s.onEndOfSpeech(ev)
				}
			}
			frames++
			if frames%vadMetricsEvery == 0 {
				count, inference, idle := stream.Stats()
				s.EmitMetrics(&metrics.VADMetrics{
					Timestamp:         time.Now(),
					IdleTime:          idle,
					InferenceCount:    count,
					InferenceDuration: inference,
				})
			}
		}
	}
}

func (s *AgentSession) onStartOfSpeech() {
	s.mu.Lock()
	s.userSpeaking = true
	s.turnSeq++
	stopTimer(&s.endpointTimer)
	s.cancelFalseInterruption()
	spec := s.speculative
	s.speculative = nil
	cur := s.current
	speaking := s.state == AgentStateSpeaking
	s.mu.Unlock()

	if spec != nil {
		s.logger.Debug("user kept talking, preemptive reply discarded", zap.String("speech_id", spec.ID))
		spec.discard()
	}
	if cur != nil && speaking && cur.pause() {
		s.logger.Debug("user speech over agent, playout paused", zap.String("speech_id", cur.ID))
	}
}

func (s *AgentSession) onEndOfSpeech(ev vad.Event) {
	s.mu.Lock()
	s.userSpeaking = false
	s.lastSpeechEnd = time.Now()
	if cur := s.current; cur != nil && cur.isPaused() && s.opts.FalseInterruptionTimeout > 0 {
		s.cancelFalseInterruption()
		seq := s.falseSeq
		s.falseTimer = time.AfterFunc(s.opts.FalseInterruptionTimeout, func() {
			s.onFalseInterruption(cur, seq)
		})
	}
	s.mu.Unlock()

	select {
	case s.utterances <- ev:
	case <-s.ctx.Done():
	}
}

func (s *AgentSession) onFalseInterruption(h *SpeechHandle, seq uint64) {
	s.mu.Lock()
	if seq != s.falseSeq || s.closed {
		s.mu.Unlock()
		return
	}
	s.falseTimer = nil
	s.mu.Unlock()
	if !h.isPaused() {
		return
	}
	s.interruptSpeech(h)
	s.logger.Debug("no transcript after user noise", zap.String("speech_id", h.ID))
	s.publish(EventAgentFalseInterruption, AgentFalseInterruptionEvent{
		ExtraInstructions: h.Instructions,
		Timestamp:         time.Now(),
	})
}

func (s *AgentSession) transcribeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.utterances:
			tr, err := s.opts.STT.Transcribe(s.ctx, ev.Speech, ev.SampleRate)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Warn("transcription failed", zap.Error(err))
				s.onTranscript(&recognizer.Transcript{})
				continue
			}
			s.EmitMetrics(&metrics.STTMetrics{
				Timestamp:     time.Now(),
				Provider:      string(s.opts.STT.Vendor()),
				Duration:      tr.RequestDuration,
				AudioDuration: tr.AudioDuration,
			})
			s.onTranscript(tr)
		}
	}
}

func (s *AgentSession) onTranscript(tr *recognizer.Transcript) {
	text := strings.TrimSpace(tr.Text)

	s.mu.Lock()
	if text == "" {
		cur := s.current
		resume := cur != nil && s.opts.FalseInterruptionTimeout < 0
		reschedule := len(s.pending) > 0 && !s.userSpeaking
		s.mu.Unlock()
		if resume {
			cur.unpause()
		}
		if reschedule {
			s.scheduleEndOfTurn()
		}
		return
	}
	s.cancelFalseInterruption()
	if tr.Language != "" {
		s.language = tr.Language
	}
	s.pending = append(s.pending, text)
	s.lastTranscript = time.Now()
	cur := s.current
	userSpeaking := s.userSpeaking
	s.mu.Unlock()

	if cur != nil {
		s.logger.Info("agent interrupted by user", zap.String("speech_id", cur.ID))
		s.interruptSpeech(cur)
	}
	s.publish(EventUserInputTranscribed, UserInputTranscribedEvent{
		Transcript: text,
		Language:   tr.Language,
		IsFinal:    true,
	})
	if !userSpeaking {
		s.scheduleEndOfTurn()
	}
}

// scheduleEndOfTurn arms the endpointing timer for the pending transcript.
// The delay is short when the turn detector thinks the user is done.
func (s *AgentSession) scheduleEndOfTurn() {
	s.mu.Lock()
	if s.closed || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	text := strings.Join(s.pending, " ")
	lang := s.language
	lastEnd := s.lastSpeechEnd
	s.turnSeq++
	seq := s.turnSeq
	s.mu.Unlock()

	prob := 1.0
	delay := s.opts.MinEndpointingDelay
	if td := s.opts.TurnDetection; td != nil {
		history := append(s.opts.LLM.History(), llm.Message{Role: llm.RoleUser, Content: text})
		p, err := td.PredictEndOfTurn(s.ctx, history)
		if err != nil {
			s.logger.Warn("end of turn prediction failed", zap.Error(err))
		} else {
			prob = p
			if p < td.UnlikelyThreshold(lang) {
				delay = s.opts.MaxEndpointingDelay
			}
		}
	}
	wait := delay - time.Since(lastEnd)
	if wait < 0 {
		wait = 0
	}

	if s.opts.PreemptiveGeneration {
		s.startSpeculative(text, seq)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.turnSeq || s.userSpeaking || s.closed {
		return
	}
	stopTimer(&s.endpointTimer)
	s.endpointTimer = time.AfterFunc(wait, func() { s.commitTurn(seq, prob) })
}

func (s *AgentSession) startSpeculative(text string, seq uint64) {
	s.mu.Lock()
	if seq != s.turnSeq || s.userSpeaking || s.closed {
		s.mu.Unlock()
		return
	}
	old := s.speculative
	if old != nil && old.UserText == text && old.ctx.Err() == nil {
		s.mu.Unlock()
		return
	}
	h := newSpeechHandle(s.ctx, text, "")
	s.speculative = h
	s.mu.Unlock()

	if old != nil {
		old.discard()
	}
	s.logger.Debug("preemptive generation started", zap.String("speech_id", h.ID))
	s.schedule(h)
}

func (s *AgentSession) commitTurn(seq uint64, prob float64) {
	s.mu.Lock()
	if seq != s.turnSeq || s.userSpeaking || s.closed {
		s.mu.Unlock()
		return
	}
	s.endpointTimer = nil
	text := strings.Join(s.pending, " ")
	s.pending = nil
	spec := s.speculative
	s.speculative = nil
	lastEnd, lastTranscript := s.lastSpeechEnd, s.lastTranscript
	s.mu.Unlock()

	transcriptionDelay := lastTranscript.Sub(lastEnd)
	if transcriptionDelay < 0 {
		transcriptionDelay = 0
	}
	s.EmitMetrics(&metrics.EOUMetrics{
		Timestamp:           time.Now(),
		EndOfUtteranceDelay: time.Since(lastEnd),
		TranscriptionDelay:  transcriptionDelay,
		Probability:         prob,
	})

	if spec != nil && spec.UserText == text && spec.ctx.Err() == nil {
		s.commitSpeech(spec)
		return
	}
	if spec != nil {
		spec.discard()
	}
	h := newSpeechHandle(s.ctx, text, "")
	s.commitSpeech(h)
	s.schedule(h)
}

func (s *AgentSession) commitSpeech(h *SpeechHandle) {
	h.commit()
	s.mu.Lock()
	s.current = h
	listening := s.state == AgentStateListening
	s.mu.Unlock()
	if listening {
		s.setState(AgentStateThinking)
	}
}

func (s *AgentSession) schedule(h *SpeechHandle) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.discard()
		close(h.done)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(h.done)
		s.runSpeech(h)
	}()
}

func (s *AgentSession) runSpeech(h *SpeechHandle) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	defer s.finishSpeech(h)
	if h.ctx.Err() != nil {
		return
	}

	sentences := make(chan string, 8)
	played := make(chan struct{})
	go func() {
		defer close(played)
		s.playout(h, sentences)
	}()

	if h.sayText != "" {
		sentences <- h.sayText
	} else {
		s.generate(h, sentences)
	}
	close(sentences)
	<-played
}

func (s *AgentSession) finishSpeech(h *SpeechHandle) {
	if !h.Committed() && h.checkpoint >= 0 {
		s.opts.LLM.Rollback(h.checkpoint)
	}
	h.cancel()

	s.mu.Lock()
	if s.speculative == h {
		s.speculative = nil
	}
	last := s.current == h
	if last {
		s.current = nil
	}
	s.mu.Unlock()
	if last {
		s.setState(AgentStateListening)
	}
}

// generate streams the LLM reply and hands complete sentences to playout.
func (s *AgentSession) generate(h *SpeechHandle, sentences chan<- string) {
	h.checkpoint = s.opts.LLM.Checkpoint()

	send := func(text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		select {
		case sentences <- text:
			return nil
		case <-h.ctx.Done():
			return h.ctx.Err()
		}
	}

	var buf strings.Builder
	_, err := s.opts.LLM.QueryStream(withSpeech(h.ctx, h), h.UserText, llm.QueryOptions{Instructions: h.Instructions},
		func(segment string, complete bool) error {
			if complete {
				rest := buf.String()
				buf.Reset()
				return send(rest)
			}
			buf.WriteString(segment)
			text := buf.String()
			if cut := lastSentenceBoundary(text); cut > 0 {
				buf.Reset()
				buf.WriteString(text[cut:])
				return send(text[:cut])
			}
			return nil
		})
	if err != nil && h.ctx.Err() == nil {
		s.logger.Error("llm generation failed", zap.String("speech_id", h.ID), zap.Error(err))
	}

	if st, ok := s.opts.LLM.LastStats(); ok {
		s.EmitMetrics(&metrics.LLMMetrics{
			RequestID:        h.ID,
			Timestamp:        time.Now(),
			Model:            st.Model,
			TTFT:             st.TTFT,
			Duration:         st.Duration,
			PromptTokens:     st.Usage.PromptTokens,
			CompletionTokens: st.Usage.CompletionTokens,
			TotalTokens:      st.Usage.TotalTokens,
			ToolRounds:       st.ToolRounds,
			Cancelled:        st.Cancelled || h.ctx.Err() != nil,
		})
	}
}

func (s *AgentSession) playout(h *SpeechHandle, sentences <-chan string) {
	for text := range sentences {
		if h.waitCommitted(h.ctx) != nil {
			continue
		}
		start := time.Now()
		audio, err := s.opts.TTS.Synthesize(h.ctx, text)
		if err != nil {
			if h.ctx.Err() == nil {
				s.logger.Error("speech synthesis failed", zap.String("speech_id", h.ID), zap.Error(err))
			}
			continue
		}
		m := &metrics.TTSMetrics{
			RequestID:       h.ID,
			Timestamp:       time.Now(),
			Provider:        string(s.opts.TTS.Vendor()),
			TTFB:            audio.TTFB,
			AudioDuration:   audio.Duration,
			CharactersCount: utf8.RuneCountInString(text),
			Cached:          audio.Cached,
		}
		m.Cancelled = s.play(h, audio) != nil
		m.Duration = time.Since(start)
		s.EmitMetrics(m)
	}
}

// play writes audio in 20ms frames, honouring pause and interruption.
func (s *AgentSession) play(h *SpeechHandle, audio *synthesizer.Audio) error {
	out := s.room.AudioOutput()
	step := audio.SampleRate / 50
	if step <= 0 {
		step = 960
	}
	for off := 0; off < len(audio.PCM); off += step {
		if err := h.waitResumed(); err != nil {
			return err
		}
		s.markSpeaking(h)
		end := min(off+step, len(audio.PCM))
		if err := out.CaptureFrame(h.ctx, AudioFrame{Data: audio.PCM[off:end], SampleRate: audio.SampleRate}); err != nil {
			if h.ctx.Err() == nil {
				s.logger.Warn("audio output failed", zap.String("speech_id", h.ID), zap.Error(err))
			}
			return err
		}
	}
	return nil
}

func (s *AgentSession) markSpeaking(h *SpeechHandle) {
	s.mu.Lock()
	mine := s.current == h && s.state != AgentStateSpeaking
	s.mu.Unlock()
	if mine {
		s.setState(AgentStateSpeaking)
	}
}

// lastSentenceBoundary returns the byte offset just past the last complete
// sentence in text, or -1.
func lastSentenceBoundary(text string) int {
	cut := -1
	for i, r := range text {
		switch r {
		case '。', '！', '？':
			cut = i + utf8.RuneLen(r)
		case '.', '!', '?':
			if next := i + 1; next < len(text) && (text[next] == ' ' || text[next] == '\n') {
				cut = next
			}
		}
	}
	return cut
}
