package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newLoggedEngine() (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(LoggerMiddleware(zap.New(core)))
	r.POST("/api/tracking/demo", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.DELETE("/api/tracking", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/tracking", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, logs
}

func TestLoggerMiddleware_Fields(t *testing.T) {
	r, logs := newLoggedEngine()

	req := httptest.NewRequest(http.MethodPost, "/api/tracking/demo?room=r1", nil)
	req.Header.Set("User-Agent", "dashboard/1.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	fields := map[string]zapcore.Field{}
	for _, f := range entries[0].Context {
		fields[f.Key] = f
	}
	assert.Equal(t, int64(http.StatusCreated), fields["status"].Integer)
	assert.Equal(t, http.MethodPost, fields["method"].String)
	assert.Equal(t, "/api/tracking/demo", fields["path"].String)
	assert.Equal(t, "room=r1", fields["query"].String)
	assert.Equal(t, "203.0.113.1", fields["ip"].String)
	assert.Equal(t, "dashboard/1.0", fields["user-agent"].String)
	assert.Equal(t, zapcore.DurationType, fields["latency"].Type)
	assert.Greater(t, fields["latency"].Integer, int64(0))
}

func TestLoggerMiddleware_Methods(t *testing.T) {
	tests := []struct {
		method string
		path   string
		logged int
	}{
		{http.MethodGet, "/api/tracking?period=7d", 0},
		{http.MethodDelete, "/api/tracking?room=r1", 1},
		{http.MethodPost, "/missing", 1},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			r, logs := newLoggedEngine()
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.logged, logs.FilterMessage("Request").Len())
		})
	}
}
