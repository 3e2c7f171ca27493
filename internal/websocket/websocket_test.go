package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticValidator map[string]*models.User

func (s staticValidator) ValidateToken(_ context.Context, token string) (*models.User, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	go hub.Run()

	users := staticValidator{
		"alice-token": {ID: "u-alice", Username: "alice"},
		"bob-token":   {ID: "u-bob", Username: "bob"},
	}
	h := NewHandler(hub, users, []string{"http://localhost:3000"})

	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)
	r.GET("/ws/stats", h.HandleStats)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hub.Shutdown(ctx)
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestConnectSendsWelcome(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv, "alice-token")

	msg := read(t, conn)
	assert.Equal(t, MessageTypeSystem, msg.Type)

	var payload SystemPayload
	require.NoError(t, msg.ParsePayload(&payload))
	assert.Equal(t, "connected", payload.Event)
	assert.Equal(t, "u-alice", payload.Data["user_id"])

	require.Eventually(t, func() bool { return hub.IsUserOnline("u-alice") }, time.Second, 10*time.Millisecond)
}

func TestRejectsMissingToken(t *testing.T) {
	_, srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=wrong"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendToUserReachesOnlyThatUser(t *testing.T) {
	hub, srv := newTestServer(t)
	alice := dial(t, srv, "alice-token")
	bob := dial(t, srv, "bob-token")
	read(t, alice)
	read(t, bob)

	require.Eventually(t, func() bool {
		return hub.IsUserOnline("u-alice") && hub.IsUserOnline("u-bob")
	}, time.Second, 10*time.Millisecond)

	hub.SendToUser("u-alice", NewMessage(MessageTypeNotificationCount, NotificationCountPayload{UnreadCount: 3}))
	hub.SendToUser("u-bob", NewMessage(MessageTypeNotificationCount, NotificationCountPayload{UnreadCount: 7}))

	msg := read(t, alice)
	assert.Equal(t, MessageTypeNotificationCount, msg.Type)
	var count NotificationCountPayload
	require.NoError(t, msg.ParsePayload(&count))
	assert.Equal(t, int64(3), count.UnreadCount)

	msg = read(t, bob)
	require.NoError(t, msg.ParsePayload(&count))
	assert.Equal(t, int64(7), count.UnreadCount)
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	hub, srv := newTestServer(t)
	first := dial(t, srv, "alice-token")
	second := dial(t, srv, "alice-token")
	read(t, first)
	read(t, second)

	require.Eventually(t, func() bool { return hub.UserConnectionCount("u-alice") == 2 }, time.Second, 10*time.Millisecond)

	hub.SendToUser("u-alice", NewMessage(MessageTypeNotification, map[string]string{"type": "like"}))
	assert.Equal(t, MessageTypeNotification, read(t, first).Type)
	assert.Equal(t, MessageTypeNotification, read(t, second).Type)

	first.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return hub.UserConnectionCount("u-alice") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPingPong(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "alice-token")
	read(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, map[string]interface{}{
		"type":      "ping",
		"id":        "p-1",
		"payload":   map[string]int64{"client_time": time.Now().UnixMilli()},
		"timestamp": time.Now().UnixMilli(),
	}))

	msg := read(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
	assert.Equal(t, "p-1", msg.ReplyTo)
}

func TestUnknownTypeAndBadJSON(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "alice-token")
	read(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	msg := read(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"type": "dance"}))
	msg = read(t, conn)
	var payload ErrorPayload
	require.NoError(t, msg.ParsePayload(&payload))
	assert.Equal(t, "unknown_type", payload.Code)
}

func TestInboundRateLimit(t *testing.T) {
	hub, srv := newTestServer(t)
	hub.SetRateLimitConfig(RateLimitConfig{MessagesPerSecond: 0.001, Burst: 1})
	conn := dial(t, srv, "alice-token")
	read(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"type": "ping"}))
	}

	assert.Equal(t, MessageTypePong, read(t, conn).Type)
	msg := read(t, conn)
	var payload ErrorPayload
	require.NoError(t, msg.ParsePayload(&payload))
	assert.Equal(t, "rate_limited", payload.Code)
}

func TestRegisteredHandler(t *testing.T) {
	hub, srv := newTestServer(t)
	hub.RegisterHandler("echo", func(c *Client, m *Message) error {
		return c.Send(NewMessage("echo", m.Payload))
	})
	conn := dial(t, srv, "bob-token")
	read(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, map[string]interface{}{"type": "echo", "payload": "hi"}))
	msg := read(t, conn)
	assert.Equal(t, "echo", msg.Type)
	assert.Equal(t, "hi", msg.Payload)
}

func TestFlexibleTime(t *testing.T) {
	var ft FlexibleTime
	require.NoError(t, json.Unmarshal([]byte(`1700000000000`), &ft))
	assert.Equal(t, int64(1700000000000), ft.UnixMilli())

	require.NoError(t, json.Unmarshal([]byte(`"2024-01-02T03:04:05Z"`), &ft))
	assert.Equal(t, 2024, ft.Year())

	assert.Error(t, json.Unmarshal([]byte(`{}`), &ft))
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{TotalConnections: 3, ActiveConnections: 1, MessagesSent: 5}
	assert.Equal(t, "connections=1/3 messages=rx:0/tx:5 errors=0 dropped=0", s.String())
}
