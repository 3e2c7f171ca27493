package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/soundbay/backend/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait = 10 * time.Second

	// a silent client is dropped after pongWait
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBufferSize = 64
)

// Client is one websocket connection belonging to a user
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	UserID   string
	Username string

	send       chan []byte
	sendMu     sync.RWMutex
	sendClosed bool

	ConnectedAt time.Time
	RemoteAddr  string
	UserAgent   string

	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, username string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:         hub,
		conn:        conn,
		UserID:      userID,
		Username:    username,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		limiter:     hub.RateLimit().limiter(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// trySend queues data without blocking; false means the buffer is full
// or the hub already closed this client
func (c *Client) trySend(data []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend is called by the hub only
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// ReadPump reads inbound frames until the connection drops
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		readCtx, cancel := context.WithTimeout(c.ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		cancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("WebSocket client closed", logger.WithUserID(c.UserID))
			} else if c.ctx.Err() == nil {
				logger.Log.Debug("WebSocket read error", logger.WithUserID(c.UserID), zap.Error(err))
				c.hub.stats.Errors.Add(1)
			}
			return
		}

		if !c.limiter.Allow() {
			c.SendError("rate_limited", "Too many messages, please slow down")
			c.hub.stats.Errors.Add(1)
			continue
		}
		c.hub.stats.MessagesReceived.Add(1)

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			c.SendError("invalid_json", "Failed to parse message")
			continue
		}
		c.handleMessage(&message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "closing")
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				logger.Log.Debug("WebSocket write error", logger.WithUserID(c.UserID), zap.Error(err))
				c.hub.stats.Errors.Add(1)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				logger.Log.Debug("WebSocket ping failed", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) handleMessage(message *Message) {
	if message.Type == MessageTypePing {
		c.handlePing(message)
		return
	}

	if handler, ok := c.hub.handler(message.Type); ok {
		if err := handler(c, message); err != nil {
			logger.Log.Warn("WebSocket handler error", zap.String("type", message.Type), zap.Error(err))
			c.SendError("handler_error", fmt.Sprintf("Failed to process %s", message.Type))
		}
		return
	}

	c.SendError("unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
}

func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	pong := NewMessage(MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    serverTime - ping.ClientTime,
	})
	pong.ReplyTo = message.ID
	_ = c.Send(pong)
}

// Send queues message for this connection only
func (c *Client) Send(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if !c.trySend(data) {
		return fmt.Errorf("send buffer full")
	}
	return nil
}

func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	})
}
