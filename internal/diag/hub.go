package diag

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/blade-inspector/internal/observability"
	"github.com/your-org/blade-inspector/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected telemetry WebSocket subscriber.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	node string // optional filter: only "master" or "slave" events
}

// Hub fans out telemetry.IterationEvent broadcasts to every connected
// diagnostics WebSocket client, generalized directly from the teacher's
// ws.Hub (same register/unregister/broadcast channel triad).
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("diag: ws client connected", "filter", client.node)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			observability.WSConnections.Dec()
			slog.Debug("diag: ws client disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.node != "" {
					var wrapped wireEvent
					if err := json.Unmarshal(message, &wrapped); err == nil && wrapped.Node != client.node {
						continue
					}
				}
				select {
				case client.send <- message:
				default:
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// wireEvent is the broadcast envelope: a node tag plus the underlying
// telemetry event, letting ws clients filter by ?node= without
// unmarshalling the full payload twice.
type wireEvent struct {
	Node string `json:"node"`
	telemetry.IterationEvent
}

// BroadcastIteration fans one telemetry event out to connected clients.
// Satisfies telemetry.Broadcaster; cmd/master and cmd/slave feed it
// through telemetry.FanoutSink alongside the NATS publisher.
func (h *Hub) BroadcastIteration(node string, ev telemetry.IterationEvent) {
	payload, err := json.Marshal(struct {
		Node string `json:"node"`
		telemetry.IterationEvent
	}{Node: node, IterationEvent: ev})
	if err != nil {
		slog.Error("diag: marshal telemetry event", "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		slog.Warn("diag: broadcast channel full, dropping event")
	}
}

// HandleWS upgrades a GET /v1/ws request, optionally filtered by ?node=.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("diag: ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		node: c.Query("node"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
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
