// Package websocket pushes notifications to connected users over
// github.com/coder/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Hub maintains the set of active clients keyed by user.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	allClients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	unicast    chan *UnicastMessage
	broadcast  chan *Message

	mu sync.RWMutex

	stats *Stats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	handlers map[string]MessageHandler

	rateLimitConfig RateLimitConfig
}

// Stats tracks connection counters since the hub started
type Stats struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig bounds inbound messages per connection
type RateLimitConfig struct {
	MessagesPerSecond float64
	Burst             int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{MessagesPerSecond: 10, Burst: 20}
}

func (c RateLimitConfig) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.MessagesPerSecond), c.Burst)
}

type UnicastMessage struct {
	UserID  string
	Message *Message
}

// MessageHandler processes an inbound message of one type
type MessageHandler func(client *Client, message *Message) error

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		register:        make(chan *Client, 256),
		unregister:      make(chan *Client, 256),
		unicast:         make(chan *UnicastMessage, 256),
		broadcast:       make(chan *Message, 256),
		stats:           &Stats{},
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

func (h *Hub) handler(msgType string) (MessageHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// Run is the hub's event loop; it returns after Shutdown
func (h *Hub) Run() {
	defer close(h.done)
	logger.Log.Info("WebSocket hub starting")

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		case u := <-h.unicast:
			h.sendToUser(u.UserID, u.Message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	h.allClients[client] = struct{}{}

	h.stats.TotalConnections.Add(1)
	h.stats.ActiveConnections.Add(1)
	metrics.Get().WebsocketConnections.Inc()

	logger.Log.Debug("WebSocket client connected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", h.stats.ActiveConnections.Load()))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	if set, ok := h.clients[client.UserID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	client.closeSend()

	h.stats.ActiveConnections.Add(-1)
	metrics.Get().WebsocketConnections.Dec()

	logger.Log.Debug("WebSocket client disconnected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", h.stats.ActiveConnections.Load()))
}

// deliver queues data on every client in set; a full buffer drops the client.
// h.mu must be held.
func (h *Hub) deliver(set map[*Client]struct{}, data []byte) {
	for client := range set {
		if client.trySend(data) {
			h.stats.MessagesSent.Add(1)
			continue
		}
		h.stats.ConnectionsDropped.Add(1)
		go h.Unregister(client)
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.allClients, data)
}

func (h *Hub) sendToUser(userID string, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("Failed to marshal unicast message", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if set, ok := h.clients[userID]; ok {
		h.deliver(set, data)
	}
}

func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.ctx.Done():
	}
}

// SendToUser delivers message to every connection of userID
func (h *Hub) SendToUser(userID string, message *Message) {
	select {
	case h.unicast <- &UnicastMessage{UserID: userID, Message: message}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) IsUserOnline(userID string) bool {
	return h.UserConnectionCount(userID) > 0
}

func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

func (h *Hub) Stats() Snapshot {
	return Snapshot{
		TotalConnections:   h.stats.TotalConnections.Load(),
		ActiveConnections:  h.stats.ActiveConnections.Load(),
		MessagesReceived:   h.stats.MessagesReceived.Load(),
		MessagesSent:       h.stats.MessagesSent.Load(),
		Errors:             h.stats.Errors.Load(),
		ConnectionsDropped: h.stats.ConnectionsDropped.Load(),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		s.ActiveConnections, s.TotalConnections,
		s.MessagesReceived, s.MessagesSent,
		s.Errors, s.ConnectionsDropped,
	)
}

// Shutdown stops the event loop and closes every connection
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		logger.Log.Info("WebSocket hub shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, _ := json.Marshal(NewMessage(MessageTypeSystem, SystemPayload{Event: "server_shutdown"}))
	for client := range h.allClients {
		client.trySend(data)
		client.closeSend()
		metrics.Get().WebsocketConnections.Dec()
	}
	logger.Log.Info("Closed websocket connections", zap.Int("count", len(h.allClients)))

	h.clients = make(map[string]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})
	h.stats.ActiveConnections.Store(0)
}

func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

func (h *Hub) RateLimit() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
