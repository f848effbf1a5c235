package vad

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType int

const (
	StartOfSpeech EventType = iota
	EndOfSpeech
)

func (t EventType) String() string {
	if t == StartOfSpeech {
		return "start_of_speech"
	}
	return "end_of_speech"
}

// Event is emitted when speech starts or ends. Speech carries the whole
// utterance (prefix padding included) on EndOfSpeech.
type Event struct {
	Type            EventType
	Speech          []int16
	SampleRate      int
	SpeechDuration  time.Duration
	SilenceDuration time.Duration
}

type Options struct {
	// Threshold is the RMS level, normalized to [0,1], above which a frame is voiced.
	Threshold float64
	// ActivationFrames voiced frames in a row start speech.
	ActivationFrames int
	// MinSilenceDuration of unvoiced audio ends speech.
	MinSilenceDuration time.Duration
	PrefixPadding      time.Duration
	MaxSpeechDuration  time.Duration
}

func DefaultOptions() Options {
	return Options{
		Threshold:          0.02,
		ActivationFrames:   3,
		MinSilenceDuration: 550 * time.Millisecond,
		PrefixPadding:      300 * time.Millisecond,
		MaxSpeechDuration:  60 * time.Second,
	}
}

// VAD is an energy detector shared by a worker; each session opens a Stream.
type VAD struct {
	opts   Options
	logger *zap.Logger
}

// Load builds the detector. Zero fields fall back to DefaultOptions.
func Load(opts Options, lg *zap.Logger) *VAD {
	def := DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.ActivationFrames <= 0 {
		opts.ActivationFrames = def.ActivationFrames
	}
	if opts.MinSilenceDuration <= 0 {
		opts.MinSilenceDuration = def.MinSilenceDuration
	}
	if opts.PrefixPadding < 0 {
		opts.PrefixPadding = 0
	}
	if opts.MaxSpeechDuration <= 0 {
		opts.MaxSpeechDuration = def.MaxSpeechDuration
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	lg.Info("vad loaded",
		zap.Float64("threshold", opts.Threshold),
		zap.Int("activation_frames", opts.ActivationFrames),
		zap.Duration("min_silence", opts.MinSilenceDuration))
	return &VAD{opts: opts, logger: lg}
}

func (v *VAD) Options() Options { return v.opts }

func (v *VAD) NewStream() *Stream {
	return &Stream{opts: v.opts, logger: v.logger, lastActive: time.Now()}
}

// Stream tracks speech state over consecutive frames of one audio source.
type Stream struct {
	opts   Options
	logger *zap.Logger

	mu           sync.Mutex
	speaking     bool
	activeFrames int
	prefix       [][]int16
	prefixDur    time.Duration
	speech       []int16
	speechDur    time.Duration
	silenceDur   time.Duration

	inferenceCount int
	inferenceTime  time.Duration
	lastActive     time.Time
}

// Push feeds one mono 16-bit frame and returns any resulting events.
func (s *Stream) Push(frame []int16, sampleRate int) []Event {
	if len(frame) == 0 || sampleRate <= 0 {
		return nil
	}
	begin := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		s.inferenceCount++
		s.inferenceTime += time.Since(begin)
	}()

	frameDur := time.Duration(len(frame)) * time.Second / time.Duration(sampleRate)
	voiced := RMS(frame) > s.opts.Threshold

	if !s.speaking {
		s.pushPrefix(frame, frameDur)
		if !voiced {
			s.activeFrames = 0
			return nil
		}
		s.activeFrames++
		if s.activeFrames < s.opts.ActivationFrames {
			return nil
		}
		s.speaking = true
		s.silenceDur = 0
		s.speech = s.speech[:0]
		s.speechDur = 0
		for _, f := range s.prefix {
			s.speech = append(s.speech, f...)
			s.speechDur += time.Duration(len(f)) * time.Second / time.Duration(sampleRate)
		}
		s.prefix = nil
		s.prefixDur = 0
		s.lastActive = time.Now()
		return []Event{{Type: StartOfSpeech, SampleRate: sampleRate, SpeechDuration: s.speechDur}}
	}

	s.speech = append(s.speech, frame...)
	s.speechDur += frameDur
	s.lastActive = time.Now()
	if voiced {
		s.silenceDur = 0
	} else {
		s.silenceDur += frameDur
	}
	if s.silenceDur < s.opts.MinSilenceDuration && s.speechDur < s.opts.MaxSpeechDuration {
		return nil
	}

	ev := Event{
		Type:            EndOfSpeech,
		Speech:          append([]int16(nil), s.speech...),
		SampleRate:      sampleRate,
		SpeechDuration:  s.speechDur - s.silenceDur,
		SilenceDuration: s.silenceDur,
	}
	s.logger.Debug("vad end of speech",
		zap.Duration("speech", ev.SpeechDuration),
		zap.Duration("silence", ev.SilenceDuration))
	s.speaking = false
	s.activeFrames = 0
	s.speech = s.speech[:0]
	s.speechDur = 0
	s.silenceDur = 0
	return []Event{ev}
}

func (s *Stream) pushPrefix(frame []int16, frameDur time.Duration) {
	s.prefix = append(s.prefix, append([]int16(nil), frame...))
	s.prefixDur += frameDur
	for len(s.prefix) > 1 && s.prefixDur > s.opts.PrefixPadding {
		head := s.prefix[0]
		s.prefix = s.prefix[1:]
		s.prefixDur -= frameDur * time.Duration(len(head)) / time.Duration(len(frame))
	}
}

func (s *Stream) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Stats returns and resets inference counters.
func (s *Stream) Stats() (count int, inference time.Duration, idle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, inference = s.inferenceCount, s.inferenceTime
	if !s.speaking {
		idle = time.Since(s.lastActive)
	}
	s.inferenceCount, s.inferenceTime = 0, 0
	return
}

func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	s.activeFrames = 0
	s.prefix = nil
	s.prefixDur = 0
	s.speech = s.speech[:0]
	s.speechDur = 0
	s.silenceDur = 0
}

// RMS of 16-bit samples normalized to [0,1]. Speech usually sits well above 0.015.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
