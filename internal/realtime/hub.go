package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"montevecchio/internal/events"
)

const writeTimeout = 5 * time.Second

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub keeps the connected websocket clients and fans household events out
// to all of them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHub creates a hub. checkOrigin may be nil to accept any origin.
func NewHub(checkOrigin func(r *http.Request) bool, logger *zerolog.Logger) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:   logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *Hub) register(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = &client{conn: conn}
	h.mu.Unlock()
	h.logger.Info().Str("client_id", id).Msg("WebSocket connection registered")
	return id
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		h.logger.Info().Str("client_id", id).Msg("WebSocket connection unregistered")
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Clients that fail are dropped.
func (h *Hub) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	h.mu.RLock()
	targets := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		if err := c.send(data); err != nil {
			h.logger.Warn().Err(err).Str("client_id", id).Msg("Failed to send message")
			h.unregister(id)
		}
	}
	return nil
}

// HandleEvent is an events.EventHandler forwarding every event to clients.
func (h *Hub) HandleEvent(e events.Event) error {
	return h.Broadcast(Message{
		Type:      e.Type,
		Timestamp: e.CreatedAt.UnixMilli(),
		Data:      json.RawMessage(e.Payload),
	})
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away. Clients may send {"type":"ping"} and get a pong back.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	id := h.register(conn)
	defer h.unregister(id)

	h.reply(id, Message{Type: "connected", Timestamp: time.Now().UnixMilli()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", id).Msg("WebSocket error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(id, Message{Type: "error", Message: "invalid message format"})
			continue
		}
		switch msg.Type {
		case "ping":
			h.reply(id, Message{Type: "pong", Timestamp: time.Now().UnixMilli()})
		default:
			h.reply(id, Message{Type: "error", Message: "unknown message type"})
		}
	}
}

func (h *Hub) reply(id string, msg Message) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.send(data); err != nil {
		h.logger.Warn().Err(err).Str("client_id", id).Msg("Failed to reply")
	}
}
