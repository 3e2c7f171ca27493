package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

const (
	maxCommentLength = 1000
	// mentions beyond this many in one comment are ignored
	maxMentions = 10
)

func validCommentBody(body string) bool {
	n := len([]rune(body))
	return n >= 1 && n <= maxCommentLength
}

// CreateComment adds a comment or reply to an approved track
// POST /api/v1/tracks/:id/comments
func (h *Handlers) CreateComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Body             string   `json:"body"`
		ParentID         *string  `json:"parent_id"`
		TimestampSeconds *float64 `json:"timestamp_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if !validCommentBody(req.Body) {
		util.RespondValidationError(c, "body", "comment must be 1-1000 characters")
		return
	}
	if req.TimestampSeconds != nil && *req.TimestampSeconds < 0 {
		util.RespondValidationError(c, "timestamp_seconds", "timestamp must not be negative")
		return
	}

	track, ok := h.visibleTrack(c, c.Param("id"))
	if !ok {
		return
	}
	if req.TimestampSeconds != nil && track.DurationSeconds > 0 && *req.TimestampSeconds > track.DurationSeconds {
		util.RespondValidationError(c, "timestamp_seconds", "timestamp is past the end of the track")
		return
	}

	comment := &models.Comment{
		TrackID:          track.ID,
		UserID:           user.ID,
		ParentID:         req.ParentID,
		Body:             req.Body,
		TimestampSeconds: req.TimestampSeconds,
	}
	created, err := h.comments.Create(c.Request.Context(), comment)
	if err != nil {
		respondError(c, err, "failed to create comment")
		return
	}
	metrics.Get().Social("comment")
	h.notifyComment(c.Request.Context(), user, created)

	c.JSON(http.StatusCreated, created.Comment)
}

// notifyComment tells the track owner, the replied-to author and anyone
// mentioned. Each recipient gets at most one notification.
func (h *Handlers) notifyComment(ctx context.Context, actor *models.User, created *repository.CreatedComment) {
	notified := map[string]bool{actor.ID: true}
	send := func(recipientID string, n *models.Notification) {
		if notified[recipientID] {
			return
		}
		notified[recipientID] = true
		h.notify(n)
	}

	if created.RepliedTo != nil {
		send(created.RepliedTo.UserID, notifications.Replied(actor, created.RepliedTo.UserID, created.Track, created.Comment))
	}
	send(created.Track.UserID, notifications.Commented(actor, created.Track, created.Comment))

	mentions := util.ExtractMentions(created.Comment.Body)
	if len(mentions) > maxMentions {
		mentions = mentions[:maxMentions]
	}
	for _, username := range mentions {
		mentioned, err := h.users.GetByUsername(ctx, username)
		if err != nil {
			continue
		}
		if mentioned.IsBanned {
			continue
		}
		send(mentioned.ID, notifications.Mentioned(actor, mentioned.ID, created.Track, created.Comment))
	}
}

// ListComments pages top-level comments with their replies nested
// GET /api/v1/tracks/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	track, ok := h.visibleTrack(c, c.Param("id"))
	if !ok {
		return
	}
	page := pageFromQuery(c)
	comments, total, err := h.comments.ListForTrack(c.Request.Context(), track.ID, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list comments", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(comments, total, page))
}

// UpdateComment lets the author edit within the edit window
// PATCH /api/v1/comments/:id
func (h *Handlers) UpdateComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if !validCommentBody(req.Body) {
		util.RespondValidationError(c, "body", "comment must be 1-1000 characters")
		return
	}

	ctx := c.Request.Context()
	comment, err := h.comments.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load comment")
		return
	}
	if comment.UserID != userID {
		util.RespondForbidden(c, "only the author can edit this comment")
		return
	}

	updated, err := h.comments.Update(ctx, comment.ID, req.Body, time.Now())
	if err != nil {
		respondError(c, err, "failed to update comment")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteComment soft-deletes a comment. The author, the track owner and
// admins may delete.
// DELETE /api/v1/comments/:id
func (h *Handlers) DeleteComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	comment, err := h.comments.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load comment")
		return
	}

	allowed := comment.UserID == user.ID || user.IsAdmin
	if !allowed {
		track, err := h.tracks.Get(ctx, comment.TrackID)
		if err != nil {
			respondError(c, err, "failed to load track")
			return
		}
		allowed = track.UserID == user.ID
	}
	if !allowed {
		util.RespondForbidden(c, "you cannot delete this comment")
		return
	}

	if _, err := h.comments.Delete(ctx, comment.ID); err != nil {
		respondError(c, err, "failed to delete comment")
		return
	}
	logger.Log.Info("Comment deleted",
		logger.WithUserID(user.ID),
		logger.WithTrackID(comment.TrackID),
		zap.String("comment_id", comment.ID))
	c.Status(http.StatusNoContent)
}
