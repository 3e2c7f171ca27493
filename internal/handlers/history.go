package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/util"
)

// GetHistory lists the caller's recent plays, newest first
// GET /api/v1/me/history
func (h *Handlers) GetHistory(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	entries, total, err := h.history.List(c.Request.Context(), userID, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list history", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(entries, total, page))
}

// ClearHistory
// DELETE /api/v1/me/history
func (h *Handlers) ClearHistory(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	n, err := h.history.Clear(c.Request.Context(), userID)
	if err != nil {
		util.RespondInternalError(c, "failed to clear history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// RemoveHistoryEntry
// DELETE /api/v1/me/history/:id
func (h *Handlers) RemoveHistoryEntry(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.history.Remove(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err, "failed to remove history entry")
		return
	}
	c.Status(http.StatusNoContent)
}
