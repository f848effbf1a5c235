package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerMiddleware writes one "Request" line per non-GET request. Reads are
// polled by the dashboard every few seconds and would drown the log.
func LoggerMiddleware(lg *zap.Logger) gin.HandlerFunc {
	if lg == nil {
		lg = zap.L()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if c.Request.Method == http.MethodGet {
			return
		}
		latency := time.Since(start)
		if latency <= 0 {
			latency = time.Nanosecond
		}
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("user-agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
		}
		lg.Info("Request", fields...)
	}
}
