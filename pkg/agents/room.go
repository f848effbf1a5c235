package agents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

const agentTrackName = "agent-voice"

type RoomConfig struct {
	URL       string
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string
	Name      string
	// Observer joins hidden, without audio, only to receive data packets.
	Observer bool
	// PublishOnly joins hidden with a data-only grant. It neither
	// subscribes nor publishes a voice track, so it does not count as
	// the room's agent.
	PublishOnly bool
}

func (c RoomConfig) hidden() bool { return c.Observer || c.PublishOnly }

func (c RoomConfig) publishesVoice() bool { return !c.hidden() }

// DataHandler receives user data packets published by other participants.
type DataHandler func(payload []byte, sender string)

// Room is a LiveKit room as seen by one server-side participant. It is
// unconnected until Connect.
type Room struct {
	cfg    RoomConfig
	logger *zap.Logger

	audioIn chan AudioFrame
	output  *opusOutput
	local   *localParticipant

	mu           sync.Mutex
	lk           *lksdk.Room
	dataHandlers []DataHandler
	remotes      map[string]struct{}
	done         chan struct{}
	doneOnce     sync.Once
}

func NewRoom(cfg RoomConfig, lg *zap.Logger) *Room {
	if lg == nil {
		lg = zap.NewNop()
	}
	r := &Room{
		cfg:     cfg,
		logger:  lg.With(zap.String("room", cfg.RoomName)),
		audioIn: make(chan AudioFrame, 100),
		output:  newOpusOutput(),
		remotes: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	r.local = &localParticipant{room: r}
	return r
}

func (r *Room) Name() string                  { return r.cfg.RoomName }
func (r *Room) LocalParticipant() Publisher   { return r.local }
func (r *Room) AudioInput() <-chan AudioFrame { return r.audioIn }
func (r *Room) AudioOutput() AudioOutput      { return r.output }
func (r *Room) Done() <-chan struct{}         { return r.done }

// OnData registers a handler for incoming data packets. Register before Connect.
func (r *Room) OnData(h DataHandler) {
	r.mu.Lock()
	r.dataHandlers = append(r.dataHandlers, h)
	r.mu.Unlock()
}

func (r *Room) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	if r.lk != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: r.onTrackSubscribed,
			OnDataPacket:      r.onDataPacket,
		},
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected: func() {
			r.finish("disconnected")
		},
	}
	opts := []lksdk.ConnectOption{lksdk.WithAutoSubscribe(r.cfg.publishesVoice())}

	var (
		lk  *lksdk.Room
		err error
	)
	if r.cfg.hidden() {
		token, terr := ParticipantToken(r.cfg.APIKey, r.cfg.APISecret, TokenRequest{
			Room:     r.cfg.RoomName,
			Identity: r.cfg.Identity,
			Name:     r.cfg.Name,
			Hidden:   true,
			DataOnly: r.cfg.PublishOnly,
			TTL:      24 * time.Hour,
		})
		if terr != nil {
			return terr
		}
		lk, err = lksdk.ConnectToRoomWithToken(r.cfg.URL, token, cb, opts...)
	} else {
		lk, err = lksdk.ConnectToRoom(r.cfg.URL, lksdk.ConnectInfo{
			APIKey:              r.cfg.APIKey,
			APISecret:           r.cfg.APISecret,
			RoomName:            r.cfg.RoomName,
			ParticipantIdentity: r.cfg.Identity,
			ParticipantName:     r.cfg.Name,
			ParticipantKind:     lksdk.ParticipantAgent,
		}, cb, opts...)
	}
	if err != nil {
		return fmt.Errorf("connect to room %s: %w", r.cfg.RoomName, err)
	}

	if r.cfg.publishesVoice() {
		if err := r.publishVoiceTrack(lk); err != nil {
			lk.Disconnect()
			return err
		}
	}

	r.mu.Lock()
	r.lk = lk
	for _, rp := range lk.GetRemoteParticipants() {
		r.remotes[rp.Identity()] = struct{}{}
	}
	r.mu.Unlock()
	r.logger.Info("room connected",
		zap.String("identity", r.cfg.Identity),
		zap.Bool("observer", r.cfg.Observer),
		zap.Bool("publish_only", r.cfg.PublishOnly))
	return nil
}

func (r *Room) publishVoiceTrack(lk *lksdk.Room) error {
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: opusSampleRate,
		Channels:  2,
	})
	if err != nil {
		return fmt.Errorf("create voice track: %w", err)
	}
	if _, err := lk.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   agentTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		return fmt.Errorf("publish voice track: %w", err)
	}
	return r.output.bind(func(s media.Sample) error {
		return track.WriteSample(s, nil)
	})
}

func (r *Room) Disconnect() {
	r.mu.Lock()
	lk := r.lk
	r.lk = nil
	r.mu.Unlock()
	r.output.unbind()
	if lk != nil {
		lk.Disconnect()
	}
	r.finish("local disconnect")
}

func (r *Room) finish(reason string) {
	r.doneOnce.Do(func() {
		r.logger.Info("room closed", zap.String("reason", reason))
		close(r.done)
	})
}

func (r *Room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	r.remotes[rp.Identity()] = struct{}{}
	r.mu.Unlock()
	r.logger.Info("participant joined", zap.String("participant", rp.Identity()))
}

func (r *Room) onParticipantDisconnected(rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	delete(r.remotes, rp.Identity())
	empty := len(r.remotes) == 0
	r.mu.Unlock()
	r.logger.Info("participant left", zap.String("participant", rp.Identity()))
	if empty && !r.cfg.Observer {
		r.finish("all participants left")
	}
}

func (r *Room) onDataPacket(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
	payload := data.ToProto().GetUser().GetPayload()
	if len(payload) == 0 {
		return
	}
	r.mu.Lock()
	handlers := append([]DataHandler(nil), r.dataHandlers...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(payload, params.SenderIdentity)
	}
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	r.logger.Info("audio track subscribed",
		zap.String("participant", rp.Identity()),
		zap.String("codec", track.Codec().MimeType))
	go r.readAudio(track, rp.Identity())
}

func (r *Room) readAudio(track *webrtc.TrackRemote, identity string) {
	dec, err := opus.NewDecoder(opusSampleRate, 1)
	if err != nil {
		r.logger.Error("create opus decoder", zap.Error(err))
		return
	}
	// up to 120ms per packet
	pcm := make([]int16, opusSampleRate*120/1000)
	dropped := 0
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug("audio track ended", zap.String("participant", identity), zap.Error(err))
			}
			return
		}
		frame, ok := decodePacket(dec, pkt, pcm)
		if !ok {
			continue
		}
		frame.Participant = identity
		select {
		case r.audioIn <- frame:
		default:
			dropped++
			if dropped%50 == 1 {
				r.logger.Warn("audio input full, dropping frames", zap.Int("dropped", dropped))
			}
		}
	}
}

func decodePacket(dec *opus.Decoder, pkt *rtp.Packet, pcm []int16) (AudioFrame, bool) {
	if pkt == nil || len(pkt.Payload) == 0 {
		return AudioFrame{}, false
	}
	n, err := dec.Decode(pkt.Payload, pcm)
	if err != nil || n == 0 {
		return AudioFrame{}, false
	}
	return AudioFrame{Data: append([]int16(nil), pcm[:n]...), SampleRate: opusSampleRate}, true
}

type localParticipant struct {
	room *Room
}

func (p *localParticipant) Identity() string { return p.room.cfg.Identity }

// PublishData sends payload to every participant in the room.
func (p *localParticipant) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.room.mu.Lock()
	lk := p.room.lk
	p.room.mu.Unlock()
	if lk == nil {
		return ErrNotConnected
	}
	return sendWithContext(ctx, func() error {
		return lk.LocalParticipant.PublishDataPacket(lksdk.UserData(payload), lksdk.WithDataPublishReliable(reliable))
	})
}

// sendWithContext stops waiting for send once ctx ends. The send itself
// keeps running in the background and its late result is dropped.
func sendWithContext(ctx context.Context, send func() error) error {
	done := make(chan error, 1)
	go func() { done <- send() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("publish data: %w", ctx.Err())
	}
}

type TokenRequest struct {
	Room     string
	Identity string
	Name     string
	Hidden   bool
	// DataOnly allows data packets but no tracks and no subscriptions.
	DataOnly bool
	TTL      time.Duration
}

// ParticipantToken signs a join token for one room.
func ParticipantToken(apiKey, apiSecret string, req TokenRequest) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", errors.New("livekit api key and secret are required")
	}
	if req.TTL <= 0 {
		req.TTL = 15 * time.Minute
	}
	at := auth.NewAccessToken(apiKey, apiSecret)
	at.AddGrant(videoGrant(req)).
		SetIdentity(req.Identity).
		SetName(req.Name).
		SetValidFor(req.TTL)
	return at.ToJWT()
}

func videoGrant(req TokenRequest) *auth.VideoGrant {
	g := &auth.VideoGrant{
		RoomJoin: true,
		Room:     req.Room,
		Hidden:   req.Hidden,
	}
	if req.DataOnly {
		g.SetCanPublish(false)
		g.SetCanSubscribe(false)
		g.SetCanPublishData(true)
	}
	return g
}
