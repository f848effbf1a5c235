package middleware

import (
	"fmt"
	"net/http"

	"github.com/code-100-precent/LingCare/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const DefaultRateLimit = "300-M"

// RateLimiterConfig uses the limiter format "<limit>-<period>", e.g. "300-M".
type RateLimiterConfig struct {
	Rate   string
	Prefix string
	// Redis shares counters between dashboard replicas; nil keeps them in memory.
	Redis *redis.Client
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{Rate: DefaultRateLimit, Prefix: "lingcare_limiter"}
}

// NewRateLimiter builds a per client IP limiter.
func NewRateLimiter(cfg RateLimiterConfig) (*limiter.Limiter, error) {
	if cfg.Rate == "" {
		cfg.Rate = DefaultRateLimit
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", cfg.Rate, err)
	}
	opts := limiter.StoreOptions{Prefix: cfg.Prefix}
	var store limiter.Store
	if cfg.Redis != nil {
		store, err = sredis.NewStoreWithOptions(cfg.Redis, opts)
		if err != nil {
			return nil, fmt.Errorf("rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return limiter.New(store, rate), nil
}

// RateLimitMiddleware rejects clients over the limit with a 429 envelope.
func RateLimitMiddleware(l *limiter.Limiter) gin.HandlerFunc {
	return mgin.NewMiddleware(l,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			response.Result(c, http.StatusTooManyRequests, http.StatusTooManyRequests,
				"Too many requests, please try again later", gin.H{"error": "RATE_LIMITED"})
			c.Abort()
		}),
	)
}
