package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/code-100-precent/LingCare/internal/models"
	"github.com/code-100-precent/LingCare/pkg/agents"
	"github.com/code-100-precent/LingCare/pkg/assessment"
	"github.com/code-100-precent/LingCare/pkg/events"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"go.uber.org/zap"
)

// ObservedRoom is a room joined only to receive data packets.
type ObservedRoom interface {
	Connect(ctx context.Context) error
	Disconnect()
	Done() <-chan struct{}
	OnData(h agents.DataHandler)
}

type RoomFactory func(room string) ObservedRoom

// LiveKitRooms joins rooms as a hidden observer participant.
func LiveKitRooms(url, apiKey, apiSecret, identity string, lg *zap.Logger) RoomFactory {
	return func(room string) ObservedRoom {
		return agents.NewRoom(agents.RoomConfig{
			URL:       url,
			APIKey:    apiKey,
			APISecret: apiSecret,
			RoomName:  room,
			Identity:  identity + "-" + room,
			Name:      identity,
			Observer:  true,
		}, lg)
	}
}

// Listener turns data packets from watched rooms into stored entries and
// tracking.updated events.
type Listener struct {
	store    *Store
	bus      *events.EventBus
	recorder *metrics.Recorder
	newRoom  RoomFactory
	logger   *zap.Logger

	mu       sync.Mutex
	watching map[string]context.CancelFunc
	wg       sync.WaitGroup
}

func NewListener(store *Store, bus *events.EventBus, recorder *metrics.Recorder, newRoom RoomFactory, lg *zap.Logger) *Listener {
	if lg == nil {
		lg = zap.L()
	}
	return &Listener{
		store:    store,
		bus:      bus,
		recorder: recorder,
		newRoom:  newRoom,
		logger:   lg,
		watching: make(map[string]context.CancelFunc),
	}
}

// Watch joins room and records its assessments until the room closes, ctx
// ends or Close is called. Watching a room twice is a no-op.
func (l *Listener) Watch(ctx context.Context, room string) error {
	if room == "" {
		return ErrRoomRequired
	}
	if l.newRoom == nil {
		return errors.New("dashboard: no room factory configured")
	}
	l.mu.Lock()
	if _, ok := l.watching[room]; ok {
		l.mu.Unlock()
		return nil
	}
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.watching[room] = cancel
	l.mu.Unlock()

	r := l.newRoom(room)
	r.OnData(func(payload []byte, sender string) {
		if _, err := l.HandleData(wctx, room, sender, payload); err != nil {
			l.logger.Warn("dropped data packet",
				zap.String("room", room), zap.String("sender", sender), zap.Error(err))
		}
	})
	if err := r.Connect(ctx); err != nil {
		l.forget(room)
		cancel()
		return err
	}
	l.logger.Info("watching room", zap.String("room", room))

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		select {
		case <-r.Done():
		case <-wctx.Done():
		case <-ctx.Done():
		}
		r.Disconnect()
		l.forget(room)
		cancel()
		l.logger.Info("stopped watching room", zap.String("room", room))
	}()
	return nil
}

func (l *Listener) forget(room string) {
	l.mu.Lock()
	delete(l.watching, room)
	l.mu.Unlock()
}

func (l *Listener) Watching() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.watching))
	for room := range l.watching {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// HandleData decodes one packet, stores it and announces it.
func (l *Listener) HandleData(ctx context.Context, room, sender string, payload []byte) (*models.TrackedEntry, error) {
	msg, err := assessment.Decode(payload)
	if err != nil {
		return nil, err
	}
	entry, err := l.store.Add(ctx, room, sender, msg)
	if err != nil {
		return nil, err
	}
	if l.recorder != nil {
		l.recorder.TrackedEntry(string(entry.Kind))
	}
	l.logger.Info("assessment recorded",
		zap.String("room", room), zap.String("id", entry.ID), zap.String("type", string(entry.Kind)))

	if l.bus != nil {
		view, err := entryView(entry)
		if err != nil {
			return entry, err
		}
		l.bus.Publish(events.Event{
			Type:   EventTrackingUpdated,
			Source: "dashboard",
			Payload: TrackingUpdate{
				Room:    room,
				Type:    entry.Kind,
				Message: updateMessage(entry.Kind),
				Entry:   view,
			},
		})
	}
	return entry, nil
}

// Close stops watching every room and waits for the observers to leave.
func (l *Listener) Close() {
	l.mu.Lock()
	for _, cancel := range l.watching {
		cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}
