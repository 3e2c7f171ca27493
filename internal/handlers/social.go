package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/util"
)

const (
	trendingWindow   = 7 * 24 * time.Hour
	maxTrending      = 50
	maxCaptionLength = 280
)

// LikeTrack
// POST /api/v1/tracks/:id/like
func (h *Handlers) LikeTrack(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if _, ok := h.visibleTrack(c, c.Param("id")); !ok {
		return
	}

	track, err := h.social.Like(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to like track")
		return
	}
	metrics.Get().Social("like")
	h.notify(notifications.Liked(user, track))
	c.JSON(http.StatusOK, gin.H{"liked": true, "like_count": track.LikeCount})
}

// UnlikeTrack
// DELETE /api/v1/tracks/:id/like
func (h *Handlers) UnlikeTrack(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	track, err := h.social.Unlike(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to unlike track")
		return
	}
	metrics.Get().Social("unlike")
	c.JSON(http.StatusOK, gin.H{"liked": false, "like_count": track.LikeCount})
}

// RepostTrack shares another user's track with the reposter's followers
// POST /api/v1/tracks/:id/repost
func (h *Handlers) RepostTrack(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Caption string `json:"caption"`
	}
	// the body is optional
	_ = c.ShouldBindJSON(&req)
	req.Caption = strings.TrimSpace(req.Caption)
	if len([]rune(req.Caption)) > maxCaptionLength {
		util.RespondValidationError(c, "caption", "caption must be at most 280 characters")
		return
	}
	if _, ok := h.visibleTrack(c, c.Param("id")); !ok {
		return
	}

	track, err := h.social.Repost(c.Request.Context(), user.ID, c.Param("id"), req.Caption)
	if err != nil {
		respondError(c, err, "failed to repost track")
		return
	}
	metrics.Get().Social("repost")
	h.notify(notifications.Reposted(user, track))
	c.JSON(http.StatusOK, gin.H{"reposted": true, "repost_count": track.RepostCount})
}

// UnrepostTrack
// DELETE /api/v1/tracks/:id/repost
func (h *Handlers) UnrepostTrack(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	track, err := h.social.Unrepost(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to remove repost")
		return
	}
	metrics.Get().Social("unrepost")
	c.JSON(http.StatusOK, gin.H{"reposted": false, "repost_count": track.RepostCount})
}

// ListLikers
// GET /api/v1/tracks/:id/likes
func (h *Handlers) ListLikers(c *gin.Context) {
	track, ok := h.visibleTrack(c, c.Param("id"))
	if !ok {
		return
	}
	page := pageFromQuery(c)
	users, err := h.social.Likers(c.Request.Context(), track.ID, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list likes", err)
		return
	}
	c.JSON(http.StatusOK, uncountedList(users, page))
}

// ListLikedTracks
// GET /api/v1/users/:username/likes
func (h *Handlers) ListLikedTracks(c *gin.Context) {
	user, ok := h.userByUsername(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	tracks, err := h.social.LikedTracks(c.Request.Context(), user.ID, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list liked tracks", err)
		return
	}
	c.JSON(http.StatusOK, uncountedList(tracks, page))
}

// FollowUser
// POST /api/v1/users/:username/follow
func (h *Handlers) FollowUser(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	target, ok := h.userByUsername(c)
	if !ok {
		return
	}

	if err := h.social.Follow(c.Request.Context(), user.ID, target.ID); err != nil {
		respondError(c, err, "failed to follow user")
		return
	}
	metrics.Get().Social("follow")
	h.notify(notifications.Followed(user, target.ID))
	c.JSON(http.StatusOK, gin.H{"following": true})
}

// UnfollowUser
// DELETE /api/v1/users/:username/follow
func (h *Handlers) UnfollowUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	target, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}

	if err := h.social.Unfollow(c.Request.Context(), userID, target.ID); err != nil {
		respondError(c, err, "failed to unfollow user")
		return
	}
	metrics.Get().Social("unfollow")
	c.JSON(http.StatusOK, gin.H{"following": false})
}

// ListFollowers
// GET /api/v1/users/:username/followers
func (h *Handlers) ListFollowers(c *gin.Context) {
	user, ok := h.userByUsername(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	users, err := h.social.Followers(c.Request.Context(), user.ID, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list followers", err)
		return
	}
	c.JSON(http.StatusOK, uncountedList(users, page))
}

// ListFollowing
// GET /api/v1/users/:username/following
func (h *Handlers) ListFollowing(c *gin.Context) {
	user, ok := h.userByUsername(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	users, err := h.social.Following(c.Request.Context(), user.ID, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list following", err)
		return
	}
	c.JSON(http.StatusOK, uncountedList(users, page))
}

// GetFeed returns uploads and reposts from followed users, newest first
// GET /api/v1/feed
func (h *Handlers) GetFeed(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	items, err := h.tracks.Feed(c.Request.Context(), userID, page)
	if err != nil {
		util.RespondInternalError(c, "failed to load feed", err)
		return
	}
	c.JSON(http.StatusOK, uncountedList(items, page))
}

// GetTrending ranks tracks by plays and likes over the last week.
// Responses are cached by the route's ResponseCache middleware.
// GET /api/v1/feed/trending
func (h *Handlers) GetTrending(c *gin.Context) {
	limit := util.ParseInt(c.Query("limit"), 20)
	if limit <= 0 || limit > maxTrending {
		limit = maxTrending
	}
	tracks, err := h.tracks.Trending(c.Request.Context(), time.Now().UTC().Add(-trendingWindow), limit)
	if err != nil {
		util.RespondInternalError(c, "failed to load trending tracks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tracks, "window": "7d"})
}
