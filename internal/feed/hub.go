// Package feed pushes the leaderboard to WebSocket clients after every cycle.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/observability"
)

// Default configuration values.
const (
	DefaultSendBuffer   = 8
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongTimeout  = 60 * time.Second
	DefaultPingInterval = 50 * time.Second // must be below the pong timeout
)

// MessageTypeLeaderboard tags leaderboard messages.
const MessageTypeLeaderboard = "leaderboard"

// Message is the payload pushed to clients.
type Message struct {
	Type    string                `json:"type"`
	CycleID string                `json:"cycle_id,omitempty"`
	At      time.Time             `json:"at"`
	Data    []domain.SnapshotView `json:"data"`
}

// HubConfig holds hub settings.
type HubConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   DefaultSendBuffer,
		WriteTimeout: DefaultWriteTimeout,
		PongTimeout:  DefaultPongTimeout,
		PingInterval: DefaultPingInterval,
	}
}

// Hub fans leaderboard messages out to connected clients.
type Hub struct {
	cfg      HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte // most recent message, replayed to new clients
}

// NewHub creates a hub. A nil logger disables logging.
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultHubConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = cfg.PongTimeout * 9 / 10
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Name identifies the hub in logs and metrics.
func (h *Hub) Name() string { return "websocket_feed" }

// Publish broadcasts the cycle's saved records as a leaderboard message.
func (h *Hub) Publish(_ context.Context, report *domain.CycleReport) error {
	if report == nil || len(report.Saved) == 0 {
		return nil
	}
	snaps := make([]*domain.Snapshot, len(report.Saved))
	for i, rec := range report.Saved {
		snaps[i] = domain.NewSnapshot(rec, report.At)
	}
	return h.Broadcast(Message{Type: MessageTypeLeaderboard, CycleID: report.ID, At: report.At, Data: domain.SnapshotViews(snaps)})
}

// Broadcast sends msg to every client. Clients whose send buffer is full
// are disconnected.
func (h *Hub) Broadcast(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = payload
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("dropping slow feed client", zap.String("remote", c.remote))
			h.removeLocked(c)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		remote: r.RemoteAddr,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	observability.SetFeedClients(len(h.clients))
	h.mu.Unlock()

	go c.writeLoop()
	go c.readLoop()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	observability.SetFeedClients(len(h.clients))
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// readLoop discards client messages and keeps the read deadline fresh on pongs.
func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on the connection.
func (c *client) writeLoop() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
