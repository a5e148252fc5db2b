package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/persontrack/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statsClient is one connected /ws/stats subscriber.
type statsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// statsHub fans the 1 Hz people-count tick out to every connected websocket
// client, the same register/unregister/broadcast-loop shape this lineage
// already uses for its face-recognition event push, generalized from
// per-event pushes to a fixed-interval tick.
type statsHub struct {
	mu      sync.RWMutex
	clients map[*statsClient]bool

	register   chan *statsClient
	unregister chan *statsClient
	broadcast  chan []byte

	logger *slog.Logger
}

func newStatsHub(logger *slog.Logger) *statsHub {
	return &statsHub{
		clients:    make(map[*statsClient]bool),
		register:   make(chan *statsClient),
		unregister: make(chan *statsClient),
		broadcast:  make(chan []byte, 16),
		logger:     logger,
	}
}

// run drives the hub's event loop until stop is closed.
func (h *statsHub) run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			observability.WSConnections.Dec()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// tick computes the current people-count payload via fn and broadcasts it,
// intended to be called once per second.
func (h *statsHub) tick(fn func() any) {
	data, err := json.Marshal(fn())
	if err != nil {
		h.logger.Warn("marshal ws stats tick", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

func (h *statsHub) handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := &statsClient{conn: conn, send: make(chan []byte, 4)}
	h.register <- client

	go client.writePump()
	client.readPump(h)
}

func (c *statsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *statsClient) readPump(h *statsHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
