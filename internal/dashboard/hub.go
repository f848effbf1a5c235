package dashboard

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingCare/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 32
)

// liveClient is one websocket subscriber, optionally narrowed to a room.
type liveClient struct {
	conn *websocket.Conn
	room string
	send chan []byte
	once sync.Once
}

func (c *liveClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub pushes tracking updates to connected dashboards.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*liveClient]struct{}
	closed  bool

	messagesSent atomic.Uint64
	dropped      atomic.Uint64
}

func NewHub(lg *zap.Logger) *Hub {
	if lg == nil {
		lg = zap.L()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// CORS is handled by middleware for the REST routes; live
			// clients come from the same dashboard origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  lg,
		clients: make(map[*liveClient]struct{}),
	}
}

// ServeWS upgrades the request. ?room= limits the feed to one room.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &liveClient{conn: conn, room: c.Query("room"), send: make(chan []byte, clientSendSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("live client connected", zap.String("room", client.room), zap.Int("clients", count))

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop only watches for the close; clients never send data.
func (h *Hub) readLoop(c *liveClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *liveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			h.messagesSent.Add(1)
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("live client disconnected", zap.Int("clients", count))
}

// Broadcast queues msg for every client watching room (or all rooms). A
// client whose queue is full misses the message.
func (h *Hub) Broadcast(room string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.room != "" && c.room != room {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// HandleEvent is the event bus handler for tracking updates.
func (h *Hub) HandleEvent(e events.Event) error {
	update, ok := e.Payload.(TrackingUpdate)
	if !ok {
		return nil
	}
	msg, err := sonic.Marshal(update)
	if err != nil {
		return err
	}
	h.Broadcast(update.Room, msg)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type HubStats struct {
	Clients      int    `json:"clients"`
	MessagesSent uint64 `json:"messagesSent"`
	Dropped      uint64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{Clients: h.ClientCount(), MessagesSent: h.messagesSent.Load(), Dropped: h.dropped.Load()}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
