package agents

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// JobProcess is state shared by all jobs of a worker, filled once by prewarm.
type JobProcess struct {
	mu       sync.RWMutex
	Userdata map[string]interface{}
}

func NewJobProcess() *JobProcess {
	return &JobProcess{Userdata: make(map[string]interface{})}
}

func (p *JobProcess) Set(key string, v interface{}) {
	p.mu.Lock()
	p.Userdata[key] = v
	p.mu.Unlock()
}

func (p *JobProcess) Get(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.Userdata[key]
	return v, ok
}

// JobContext is handed to the entrypoint for one room.
type JobContext struct {
	Room JobRoom
	Proc *JobProcess

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu        sync.Mutex
	fields    []zap.Field
	callbacks []func(ctx context.Context)
	shutdown  sync.Once
}

func NewJobContext(ctx context.Context, room JobRoom, proc *JobProcess, lg *zap.Logger) *JobContext {
	if lg == nil {
		lg = zap.NewNop()
	}
	if proc == nil {
		proc = NewJobProcess()
	}
	jctx, cancel := context.WithCancel(ctx)
	return &JobContext{Room: room, Proc: proc, ctx: jctx, cancel: cancel, logger: lg}
}

// Context ends when the job shuts down.
func (j *JobContext) Context() context.Context { return j.ctx }

// SetLogContextFields attaches fields to every line logged through Logger.
func (j *JobContext) SetLogContextFields(fields ...zap.Field) {
	j.mu.Lock()
	j.fields = append(j.fields[:0], fields...)
	j.mu.Unlock()
}

func (j *JobContext) LogContextFields() []zap.Field {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]zap.Field(nil), j.fields...)
}

func (j *JobContext) Logger() *zap.Logger {
	return j.logger.With(j.LogContextFields()...)
}

// AddShutdownCallback runs fn when the job ends, in registration order.
func (j *JobContext) AddShutdownCallback(fn func(ctx context.Context)) {
	j.mu.Lock()
	j.callbacks = append(j.callbacks, fn)
	j.mu.Unlock()
}

func (j *JobContext) Connect(ctx context.Context) error {
	return j.Room.Connect(ctx)
}

// Shutdown runs the shutdown callbacks once, then leaves the room.
func (j *JobContext) Shutdown(reason string) {
	j.shutdown.Do(func() {
		lg := j.Logger()
		lg.Info("job shutting down", zap.String("reason", reason))
		j.mu.Lock()
		callbacks := append([]func(context.Context){}, j.callbacks...)
		j.mu.Unlock()
		for _, fn := range callbacks {
			func() {
				defer func() {
					if r := recover(); r != nil {
						lg.Error("shutdown callback panicked", zap.Any("panic", r))
					}
				}()
				fn(j.ctx)
			}()
		}
		j.cancel()
		if j.Room != nil {
			j.Room.Disconnect()
		}
	})
}
