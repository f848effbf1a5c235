package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/code-100-precent/LingCare/pkg/events"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/code-100-precent/LingCare/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type ServerOptions struct {
	Addr          string
	APIPrefix     string
	MonitorPrefix string
	RateLimit     string
	// RateLimitRedis shares limiter counters; nil keeps them in memory
	RateLimitRedis *redis.Client
	LiveKit        LiveKitOptions
}

// Server is the dashboard HTTP service.
type Server struct {
	opts     ServerOptions
	engine   *gin.Engine
	store    *Store
	listener *Listener
	hub      *Hub
	bus      *events.EventBus
	logger   *zap.Logger
}

// NewServer wires routes and subscribes the live hub to tracking updates.
// ctx bounds the rooms the listener joins on behalf of requests.
func NewServer(ctx context.Context, opts ServerOptions, store *Store, listener *Listener, bus *events.EventBus, recorder *metrics.Recorder, lg *zap.Logger) (*Server, error) {
	if lg == nil {
		lg = zap.L()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	hub := NewHub(lg.Named("live"))
	if bus != nil {
		bus.Subscribe(EventTrackingUpdated, hub.HandleEvent)
	}

	lim, err := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:   opts.RateLimit,
		Prefix: "lingcare_limiter",
		Redis:  opts.RateLimitRedis,
	})
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.CorsMiddleware(), middleware.LoggerMiddleware(lg))
	if recorder != nil && opts.MonitorPrefix != "" {
		engine.GET(opts.MonitorPrefix, gin.WrapH(recorder.Handler()))
	}

	api := engine.Group(opts.APIPrefix)
	api.Use(middleware.RateLimitMiddleware(lim))
	NewHandlers(ctx, store, listener, hub, opts.LiveKit, lg).Register(api)

	return &Server{
		opts:     opts,
		engine:   engine,
		store:    store,
		listener: listener,
		hub:      hub,
		bus:      bus,
		logger:   lg,
	}, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.hub }

// Run serves until ctx ends, then drains requests, live clients and
// watched rooms.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", zap.String("addr", s.opts.Addr), zap.String("api", s.opts.APIPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.close()
	s.logger.Info("dashboard stopped")
	return err
}

func (s *Server) close() {
	s.hub.Close()
	if s.listener != nil {
		s.listener.Close()
	}
	if s.bus != nil {
		s.bus.Wait()
	}
}
