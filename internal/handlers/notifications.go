package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/soundbay/backend/internal/errors"
	"github.com/soundbay/backend/internal/util"
)

// GetNotifications lists the caller's notifications, newest first
// GET /api/v1/notifications?unread=true
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	ctx := c.Request.Context()

	items, total, err := h.notifier.List(ctx, userID, util.ParseBool(c.Query("unread"), false), page)
	if err != nil {
		util.RespondInternalError(c, "failed to list notifications", err)
		return
	}
	unread, err := h.notifier.UnreadCount(ctx, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to count notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"unread": unread,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// GetUnreadCount
// GET /api/v1/notifications/unread-count
func (h *Handlers) GetUnreadCount(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	unread, err := h.notifier.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		util.RespondInternalError(c, "failed to count notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread})
}

// MarkNotificationRead
// POST /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.notifier.MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err, "failed to mark notification read")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllNotificationsRead
// POST /api/v1/notifications/read
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	n, err := h.notifier.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		util.RespondInternalError(c, "failed to mark notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// DeleteNotification
// DELETE /api/v1/notifications/:id
func (h *Handlers) DeleteNotification(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.notifier.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err, "failed to delete notification")
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleWebSocket upgrades to the live notification stream
// GET /api/v1/ws?token=...
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	if h.wsHandler == nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("websocket"))
		return
	}
	h.wsHandler.HandleWebSocket(c)
}

// WebSocketStats
// GET /api/v1/admin/ws/stats
func (h *Handlers) WebSocketStats(c *gin.Context) {
	if h.wsHandler == nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("websocket"))
		return
	}
	h.wsHandler.HandleStats(c)
}
