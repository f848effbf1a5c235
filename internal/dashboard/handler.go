package dashboard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/code-100-precent/LingCare/pkg/agents"
	"github.com/code-100-precent/LingCare/pkg/response"
	"github.com/code-100-precent/LingCare/pkg/utils"
	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid"
	"go.uber.org/zap"
)

const roomNamePrefix = "lingcare_room_"

var ErrLiveKitNotConfigured = errors.New("livekit credentials are not configured")

// LiveKitOptions is what the connection-details endpoint needs to mint tokens.
type LiveKitOptions struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

type Handlers struct {
	store    *Store
	listener *Listener
	hub      *Hub
	livekit  LiveKitOptions
	logger   *zap.Logger
	// watchCtx outlives the request that asked to watch a room
	watchCtx context.Context
}

func NewHandlers(ctx context.Context, store *Store, listener *Listener, hub *Hub, lk LiveKitOptions, lg *zap.Logger) *Handlers {
	if lg == nil {
		lg = zap.L()
	}
	return &Handlers{store: store, listener: listener, hub: hub, livekit: lk, logger: lg, watchCtx: ctx}
}

func (h *Handlers) Register(r *gin.RouterGroup) {
	r.GET("/tracking", h.GetTracking)
	r.DELETE("/tracking", h.ClearTracking)
	r.POST("/tracking/demo", h.AddDemoData)
	r.GET("/analytics", h.GetAnalytics)
	r.POST("/connection-details", h.ConnectionDetails)
	r.GET("/rooms", h.ListRooms)
	r.GET("/live", h.hub.ServeWS)
	r.GET("/health", h.HealthCheck)
}

// roomQuery reads ?room=, where empty means every room.
func roomQuery(c *gin.Context) (string, bool) {
	room := utils.SanitizeInput(c.Query("room"))
	if err := utils.ValidateRoomName(room); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return "", false
	}
	return room, true
}

// GetTracking returns the tracking data for ?room= over ?period=.
func (h *Handlers) GetTracking(c *gin.Context) {
	period, err := ParsePeriod(c.Query("period"))
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}
	room, ok := roomQuery(c)
	if !ok {
		return
	}
	data, err := h.store.Tracking(c.Request.Context(), room, period)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "tracking data", data)
}

func (h *Handlers) ClearTracking(c *gin.Context) {
	room, ok := roomQuery(c)
	if !ok {
		return
	}
	n, err := h.store.Clear(c.Request.Context(), room)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("tracking data cleared", zap.String("room", room), zap.Int64("deleted", n))
	response.Success(c, "tracking data cleared", gin.H{"deleted": n})
}

type demoRequest struct {
	Room string `json:"room"`
}

func (h *Handlers) AddDemoData(c *gin.Context) {
	var req demoRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Fail(c, "invalid request", gin.H{"error": "INVALID_BODY"})
		return
	}
	if req.Room == "" {
		req.Room = c.Query("room")
	}
	req.Room = utils.SanitizeInput(req.Room)
	if err := utils.ValidateRoomName(req.Room); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}
	entries, err := h.store.AddDemoData(c.Request.Context(), req.Room)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "demo data added", gin.H{"added": len(entries)})
}

func (h *Handlers) GetAnalytics(c *gin.Context) {
	period, err := ParsePeriod(c.Query("period"))
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}
	room, ok := roomQuery(c)
	if !ok {
		return
	}
	out, err := h.store.Analytics(c.Request.Context(), room, period)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "analytics", out)
}

type connectionRequest struct {
	Room            string `json:"room"`
	ParticipantName string `json:"participantName"`
}

type ConnectionDetails struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantName  string `json:"participantName"`
	ParticipantToken string `json:"participantToken"`
}

// ConnectionDetails issues a join token for the patient and starts listening
// to the room so the dashboard sees its assessments.
func (h *Handlers) ConnectionDetails(c *gin.Context) {
	if h.livekit.URL == "" || h.livekit.APIKey == "" || h.livekit.APISecret == "" {
		response.AbortWithStatusJSON(c, http.StatusServiceUnavailable, ErrLiveKitNotConfigured)
		return
	}
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Fail(c, "invalid request", gin.H{"error": "INVALID_BODY"})
		return
	}
	req.Room = utils.SanitizeInput(req.Room)
	req.ParticipantName = utils.SanitizeInput(req.ParticipantName)
	if err := utils.ValidateRoomName(req.Room); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}
	if req.Room == "" {
		suffix, err := gonanoid.Generate(idAlphabet, 8)
		if err != nil {
			response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
			return
		}
		req.Room = roomNamePrefix + suffix
	}
	if req.ParticipantName == "" {
		req.ParticipantName = "user"
	}
	identity, err := gonanoid.Generate(idAlphabet, 10)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	token, err := agents.ParticipantToken(h.livekit.APIKey, h.livekit.APISecret, agents.TokenRequest{
		Room:     req.Room,
		Identity: "voice_assistant_user_" + identity,
		Name:     req.ParticipantName,
		TTL:      h.livekit.TokenTTL,
	})
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	if h.listener != nil {
		if err := h.listener.Watch(h.watchCtx, req.Room); err != nil {
			h.logger.Warn("could not watch room", zap.String("room", req.Room), zap.Error(err))
		}
	}
	c.Header("Cache-Control", "no-store")
	response.Success(c, "connection details", ConnectionDetails{
		ServerURL:        h.livekit.URL,
		RoomName:         req.Room,
		ParticipantName:  req.ParticipantName,
		ParticipantToken: token,
	})
}

func (h *Handlers) ListRooms(c *gin.Context) {
	rooms := []string{}
	if h.listener != nil {
		rooms = h.listener.Watching()
	}
	response.Success(c, "rooms", gin.H{"rooms": rooms, "live": h.hub.Stats()})
}

func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.store.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
