package agents

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("room not connected")

// AudioFrame is mono 16-bit PCM.
type AudioFrame struct {
	Data       []int16
	SampleRate int
	// Participant is the identity of the sender, empty for local audio.
	Participant string
}

// Publisher sends data packets as the local participant.
type Publisher interface {
	Identity() string
	PublishData(ctx context.Context, payload []byte, reliable bool) error
}

// AudioOutput plays agent speech into the room. CaptureFrame may block for
// the frame's duration.
type AudioOutput interface {
	CaptureFrame(ctx context.Context, frame AudioFrame) error
	// ClearBuffer drops anything queued but not yet played.
	ClearBuffer()
}

// RoomIO is what a session needs from a room.
type RoomIO interface {
	Name() string
	LocalParticipant() Publisher
	AudioInput() <-chan AudioFrame
	AudioOutput() AudioOutput
}

// JobRoom is a RoomIO with a connection lifecycle, owned by a job.
type JobRoom interface {
	RoomIO
	Connect(ctx context.Context) error
	Disconnect()
	// Done is closed once the room is gone or the last remote participant left.
	Done() <-chan struct{}
}

// RoomInputOptions narrows which participant feeds the session.
type RoomInputOptions struct {
	// ParticipantIdentity, when set, ignores audio from anyone else.
	ParticipantIdentity string
}
