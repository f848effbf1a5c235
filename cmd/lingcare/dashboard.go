package main

import (
	"os"

	"github.com/code-100-precent/LingCare/cmd/bootstrap"
	"github.com/code-100-precent/LingCare/internal/dashboard"
	"github.com/code-100-precent/LingCare/pkg/cache"
	"github.com/code-100-precent/LingCare/pkg/events"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"github.com/code-100-precent/LingCare/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewDashboardCommand() *cobra.Command {
	var initSQL string
	var watch []string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the assessment history and analytics API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
				InitSQLPath: initSQL,
				AutoMigrate: true,
				SeedNonProd: true,
			})
			if err != nil {
				return err
			}
			c, err := cache.NewCache(cfg.Cache)
			if err != nil {
				return err
			}
			defer c.Close()

			var limiterRedis *redis.Client
			if cfg.Cache.Backend() == cache.KindRedis {
				limiterRedis = cache.NewRedisClient(cfg.Cache.Redis)
				defer limiterRedis.Close()
			}

			lg := logger.Lg.Named("dashboard")
			recorder := metrics.DefaultRecorder()
			bus := events.GetEventBus()
			store := dashboard.NewStore(db, c, cfg.Dashboard.AnalyticsTTL, lg)

			var rooms dashboard.RoomFactory
			if cfg.Validate() == nil {
				rooms = dashboard.LiveKitRooms(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.Dashboard.Identity, lg)
			} else {
				lg.Warn("livekit not configured, rooms will not be watched")
			}
			listener := dashboard.NewListener(store, bus, recorder, rooms, lg)

			ctx, cancel := signalContext()
			defer cancel()
			if rooms != nil {
				for _, room := range watch {
					if err := listener.Watch(ctx, room); err != nil {
						lg.Warn("watch room", zap.String("room", room), zap.Error(err))
					}
				}
			}

			srv, err := dashboard.NewServer(ctx, dashboard.ServerOptions{
				Addr:           cfg.Dashboard.Addr,
				APIPrefix:      cfg.Dashboard.APIPrefix,
				MonitorPrefix:  cfg.Dashboard.MonitorPrefix,
				RateLimit:      cfg.Dashboard.RateLimit,
				RateLimitRedis: limiterRedis,
				LiveKit: dashboard.LiveKitOptions{
					URL:       cfg.LiveKit.URL,
					APIKey:    cfg.LiveKit.APIKey,
					APISecret: cfg.LiveKit.APISecret,
					TokenTTL:  cfg.Dashboard.TokenTTL,
				},
			}, store, listener, bus, recorder, lg)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&initSQL, "init-sql", "", "SQL script to run before migrating")
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "Rooms to watch from startup")
	return cmd
}
