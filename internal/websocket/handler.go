package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"go.uber.org/zap"
)

// TokenValidator resolves a bearer token to its user
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.User, error)
}

// Handler upgrades authenticated HTTP requests to websocket connections
type Handler struct {
	hub            *Hub
	auth           TokenValidator
	allowedOrigins []string
}

func NewHandler(hub *Hub, auth TokenValidator, allowedOrigins []string) *Handler {
	return &Handler{hub: hub, auth: auth, allowedOrigins: allowedOrigins}
}

// HandleWebSocket authenticates with ?token= or an Authorization header
func (h *Handler) HandleWebSocket(c *gin.Context) {
	user, err := h.authenticate(c)
	if err != nil {
		logger.Log.Debug("WebSocket auth failed", logger.WithIP(c.ClientIP()), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "UNAUTHORIZED", "message": err.Error()},
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns(),
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", logger.WithUserID(user.ID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, user.ID, user.Username)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")
	h.hub.Register(client)

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event: "connected",
		Data: map[string]interface{}{
			"user_id":     user.ID,
			"username":    user.Username,
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump()
}

func (h *Handler) authenticate(c *gin.Context) (*models.User, error) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return nil, errors.New("no authentication token provided")
	}
	return h.auth.ValidateToken(c.Request.Context(), token)
}

// originPatterns strips schemes; coder/websocket matches on host
func (h *Handler) originPatterns() []string {
	patterns := make([]string, 0, len(h.allowedOrigins))
	for _, o := range h.allowedOrigins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// HandleStats reports hub counters for admins
func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket": h.hub.Stats(),
		"timestamp": time.Now().UTC(),
	})
}
