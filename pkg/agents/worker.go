package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultDispatchSchedule = "@every 5s"

var ErrJobRunning = errors.New("a job is already running for this room")

type EntrypointFunc func(ctx context.Context, job *JobContext) error

type PrewarmFunc func(proc *JobProcess)

type WorkerOptions struct {
	EntrypointFnc EntrypointFunc
	PrewarmFnc    PrewarmFunc
	AgentName     string

	URL       string
	APIKey    string
	APISecret string
	// DispatchSchedule is a cron spec for polling rooms.
	DispatchSchedule string

	// NewRoom and Rooms default to LiveKit.
	NewRoom func(roomName string) JobRoom
	Rooms   RoomLister
	Logger  *zap.Logger
}

type RoomSummary struct {
	Name string
	// NumParticipants counts visible non-agent participants. Hidden
	// observers and tool publishers are not users waiting for an agent.
	NumParticipants int
	HasAgent        bool
}

type RoomLister interface {
	ListRooms(ctx context.Context) ([]RoomSummary, error)
}

type roomService struct {
	client *lksdk.RoomServiceClient
}

// NewRoomLister lists rooms through the LiveKit room service API.
func NewRoomLister(url, apiKey, apiSecret string) RoomLister {
	return &roomService{client: lksdk.NewRoomServiceClient(url, apiKey, apiSecret)}
}

func (s *roomService) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	resp, err := s.client.ListRooms(ctx, &livekit.ListRoomsRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]RoomSummary, 0, len(resp.Rooms))
	for _, rm := range resp.Rooms {
		if rm.NumParticipants == 0 {
			out = append(out, RoomSummary{Name: rm.Name})
			continue
		}
		parts, err := s.client.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: rm.Name})
		if err != nil {
			return nil, fmt.Errorf("list participants of %s: %w", rm.Name, err)
		}
		out = append(out, summarizeRoom(rm.Name, parts.Participants))
	}
	return out, nil
}

func summarizeRoom(name string, parts []*livekit.ParticipantInfo) RoomSummary {
	sum := RoomSummary{Name: name}
	for _, p := range parts {
		switch {
		case p.Kind == livekit.ParticipantInfo_AGENT:
			sum.HasAgent = true
		case p.GetPermission().GetHidden():
			// observers and tool publishers
		default:
			sum.NumParticipants++
		}
	}
	return sum
}

// Worker runs one job per room.
type Worker struct {
	opts   WorkerOptions
	proc   *JobProcess
	logger *zap.Logger

	prewarmOnce sync.Once
	wg          sync.WaitGroup
	mu          sync.Mutex
	jobs        map[string]*JobContext
}

func NewWorker(opts WorkerOptions) *Worker {
	lg := opts.Logger
	if lg == nil {
		lg = zap.L()
	}
	if opts.AgentName == "" {
		opts.AgentName = "agent"
	}
	if opts.DispatchSchedule == "" {
		opts.DispatchSchedule = DefaultDispatchSchedule
	}
	w := &Worker{
		opts:   opts,
		proc:   NewJobProcess(),
		logger: lg.With(zap.String("agent", opts.AgentName)),
		jobs:   make(map[string]*JobContext),
	}
	if w.opts.NewRoom == nil {
		w.opts.NewRoom = func(roomName string) JobRoom {
			return NewRoom(RoomConfig{
				URL:       opts.URL,
				APIKey:    opts.APIKey,
				APISecret: opts.APISecret,
				RoomName:  roomName,
				Identity:  opts.AgentName + "-" + uuid.NewString()[:8],
				Name:      opts.AgentName,
			}, lg)
		}
	}
	if w.opts.Rooms == nil && opts.URL != "" {
		w.opts.Rooms = NewRoomLister(opts.URL, opts.APIKey, opts.APISecret)
	}
	return w
}

func (w *Worker) Process() *JobProcess {
	w.prewarm()
	return w.proc
}

func (w *Worker) prewarm() {
	w.prewarmOnce.Do(func() {
		if w.opts.PrewarmFnc != nil {
			w.opts.PrewarmFnc(w.proc)
			w.logger.Info("worker prewarmed")
		}
	})
}

// ActiveJobs returns the rooms with a running job.
func (w *Worker) ActiveJobs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.jobs))
	for name := range w.jobs {
		out = append(out, name)
	}
	return out
}

// RunRoom runs the entrypoint for roomName and blocks until the room
// closes or ctx ends. Shutdown callbacks run before it returns.
func (w *Worker) RunRoom(ctx context.Context, roomName string) error {
	if w.opts.EntrypointFnc == nil {
		return errors.New("worker: entrypoint is required")
	}
	w.prewarm()

	w.mu.Lock()
	if _, busy := w.jobs[roomName]; busy {
		w.mu.Unlock()
		return ErrJobRunning
	}
	room := w.opts.NewRoom(roomName)
	job := NewJobContext(ctx, room, w.proc, w.logger)
	w.jobs[roomName] = job
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.jobs, roomName)
		w.mu.Unlock()
	}()

	w.logger.Info("job started", zap.String("room", roomName))
	if err := w.opts.EntrypointFnc(job.Context(), job); err != nil {
		job.Shutdown("entrypoint failed")
		return fmt.Errorf("entrypoint for room %s: %w", roomName, err)
	}

	select {
	case <-room.Done():
		job.Shutdown("room closed")
	case <-job.Context().Done():
		job.Shutdown("job cancelled")
	}
	w.logger.Info("job finished", zap.String("room", roomName))
	return nil
}

// Run polls rooms on the dispatch schedule until ctx ends, then waits for
// running jobs to shut down.
func (w *Worker) Run(ctx context.Context) error {
	if w.opts.Rooms == nil {
		return errors.New("worker: no room lister configured")
	}
	w.prewarm()

	c := cron.New()
	if _, err := c.AddFunc(w.opts.DispatchSchedule, func() { w.dispatch(ctx) }); err != nil {
		return fmt.Errorf("invalid dispatch schedule %q: %w", w.opts.DispatchSchedule, err)
	}
	w.logger.Info("worker running", zap.String("schedule", w.opts.DispatchSchedule))
	c.Start()
	w.dispatch(ctx)

	<-ctx.Done()
	<-c.Stop().Done()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rooms, err := w.opts.Rooms.ListRooms(ctx)
	if err != nil {
		w.logger.Warn("list rooms failed", zap.Error(err))
		return
	}
	for _, rm := range rooms {
		if rm.NumParticipants == 0 || rm.HasAgent {
			continue
		}
		w.mu.Lock()
		_, busy := w.jobs[rm.Name]
		w.mu.Unlock()
		if busy {
			continue
		}
		w.logger.Info("dispatching job", zap.String("room", rm.Name), zap.Int("participants", rm.NumParticipants))
		w.wg.Add(1)
		go func(name string) {
			defer w.wg.Done()
			if err := w.RunRoom(ctx, name); err != nil && !errors.Is(err, ErrJobRunning) {
				w.logger.Error("job failed", zap.String("room", name), zap.Error(err))
			}
		}(rm.Name)
	}
}
