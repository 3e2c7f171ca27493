package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

// ModerationQueue lists tracks by moderation status, pending by default
// GET /api/v1/admin/tracks?status=pending
func (h *Handlers) ModerationQueue(c *gin.Context) {
	status := models.TrackStatus(c.DefaultQuery("status", string(models.TrackPending)))
	if !status.Valid() {
		util.RespondValidationError(c, "status", "status must be pending, approved or rejected")
		return
	}
	page := pageFromQuery(c)
	tracks, total, err := h.tracks.ListByStatus(c.Request.Context(), status, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list tracks", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(tracks, total, page))
}

// ApproveTrack
// POST /api/v1/admin/tracks/:id/approve
func (h *Handlers) ApproveTrack(c *gin.Context) {
	adminID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	decision, err := h.moderator.Approve(c.Request.Context(), c.Param("id"), adminID)
	if err != nil {
		respondError(c, err, "failed to approve track")
		return
	}
	c.JSON(http.StatusOK, decision)
}

// RejectTrack requires a reason, which is shown to the owner
// POST /api/v1/admin/tracks/:id/reject
func (h *Handlers) RejectTrack(c *gin.Context) {
	adminID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	decision, err := h.moderator.Reject(c.Request.Context(), c.Param("id"), req.Reason, adminID)
	if err != nil {
		respondError(c, err, "failed to reject track")
		return
	}
	c.JSON(http.StatusOK, decision)
}

// RetranscodeTrack resubmits a track from its retained original
// POST /api/v1/admin/tracks/:id/retranscode
func (h *Handlers) RetranscodeTrack(c *gin.Context) {
	ctx := c.Request.Context()
	track, err := h.tracks.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load track")
		return
	}
	job, err := h.queue.Requeue(ctx, track.ID)
	if err != nil {
		respondError(c, err, "failed to requeue track")
		return
	}
	logger.Log.Info("Track requeued for transcoding",
		logger.WithTrackID(track.ID),
		logger.WithJobID(job.ID),
		logger.WithUserID(util.ViewerID(c)))
	c.JSON(http.StatusAccepted, jobResponse(track, job))
}

// ListReports
// GET /api/v1/admin/reports?status=open
func (h *Handlers) ListReports(c *gin.Context) {
	status := models.ReportStatus(c.DefaultQuery("status", string(models.ReportOpen)))
	if status == "all" {
		status = ""
	}
	page := pageFromQuery(c)
	reports, total, err := h.reports.List(c.Request.Context(), status, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list reports", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(reports, total, page))
}

// ResolveReport closes a report as acted upon
// POST /api/v1/admin/reports/:id/resolve
func (h *Handlers) ResolveReport(c *gin.Context) {
	h.closeReport(c, models.ReportResolved)
}

// DismissReport closes a report without action
// POST /api/v1/admin/reports/:id/dismiss
func (h *Handlers) DismissReport(c *gin.Context) {
	h.closeReport(c, models.ReportDismissed)
}

func (h *Handlers) closeReport(c *gin.Context, status models.ReportStatus) {
	adminID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	_ = c.ShouldBindJSON(&req)

	report, err := h.reports.Close(c.Request.Context(), c.Param("id"), status, adminID, strings.TrimSpace(req.Note))
	if err != nil {
		respondError(c, err, "failed to close report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListUsers searches accounts for admins
// GET /api/v1/admin/users?q=&banned=&admin=
func (h *Handlers) ListUsers(c *gin.Context) {
	filter := repository.UserFilter{Query: strings.TrimSpace(c.Query("q"))}
	if v := c.Query("banned"); v != "" {
		banned := util.ParseBool(v, false)
		filter.Banned = &banned
	}
	if v := c.Query("admin"); v != "" {
		admin := util.ParseBool(v, false)
		filter.Admin = &admin
	}
	page := pageFromQuery(c)
	users, total, err := h.users.List(c.Request.Context(), filter, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list users", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(users, total, page))
}

// BanUser blocks login and hides the user's tracks
// POST /api/v1/admin/users/:id/ban
func (h *Handlers) BanUser(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	h.setBanned(c, true, strings.TrimSpace(req.Reason))
}

// UnbanUser
// DELETE /api/v1/admin/users/:id/ban
func (h *Handlers) UnbanUser(c *gin.Context) {
	h.setBanned(c, false, "")
}

func (h *Handlers) setBanned(c *gin.Context, banned bool, reason string) {
	adminID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")
	if targetID == adminID {
		util.RespondBadRequest(c, "cannot change your own ban state")
		return
	}

	ctx := c.Request.Context()
	if err := h.users.SetBanned(ctx, targetID, banned, reason); err != nil {
		respondError(c, err, "failed to update user")
		return
	}
	user, err := h.users.Get(ctx, targetID)
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}
	h.syncUser(ctx, user)

	logger.Log.Info("User ban state changed",
		logger.WithUserID(targetID),
		zap.String("admin_id", adminID),
		zap.Bool("banned", banned))
	c.JSON(http.StatusOK, user)
}

// PromoteUser grants admin
// POST /api/v1/admin/users/:id/promote
func (h *Handlers) PromoteUser(c *gin.Context) {
	h.setAdmin(c, true)
}

// DemoteUser revokes admin
// POST /api/v1/admin/users/:id/demote
func (h *Handlers) DemoteUser(c *gin.Context) {
	h.setAdmin(c, false)
}

func (h *Handlers) setAdmin(c *gin.Context, admin bool) {
	adminID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")
	if targetID == adminID && !admin {
		util.RespondBadRequest(c, "cannot revoke your own admin role")
		return
	}

	ctx := c.Request.Context()
	if err := h.users.SetAdmin(ctx, targetID, admin); err != nil {
		respondError(c, err, "failed to update user")
		return
	}
	user, err := h.users.Get(ctx, targetID)
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}
	logger.Log.Info("User admin role changed",
		logger.WithUserID(targetID),
		zap.String("admin_id", adminID),
		zap.Bool("is_admin", admin))
	c.JSON(http.StatusOK, user)
}

// Stats is the admin dashboard summary
type Stats struct {
	Users       int64                        `json:"users"`
	Tracks      map[models.TrackStatus]int64 `json:"tracks"`
	Plays       int64                        `json:"plays"`
	OpenReports int64                        `json:"open_reports"`
	Queue       QueueStats                   `json:"queue"`
	Online      int64                        `json:"websocket_connections"`
}

type QueueStats struct {
	Depth    int `json:"depth"`
	Running  int `json:"running"`
	Capacity int `json:"capacity"`
}

// GetStats
// GET /api/v1/admin/stats
func (h *Handlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	var stats Stats
	var err error

	if stats.Users, err = h.users.Count(ctx); err != nil {
		util.RespondInternalError(c, "failed to count users", err)
		return
	}
	if stats.Tracks, err = h.tracks.CountByStatus(ctx); err != nil {
		util.RespondInternalError(c, "failed to count tracks", err)
		return
	}
	if stats.Plays, err = h.tracks.TotalPlays(ctx); err != nil {
		util.RespondInternalError(c, "failed to count plays", err)
		return
	}
	if stats.OpenReports, err = h.reports.CountOpen(ctx); err != nil {
		util.RespondInternalError(c, "failed to count reports", err)
		return
	}
	if h.queue != nil {
		stats.Queue = QueueStats{Depth: h.queue.Depth(), Running: h.queue.Running(), Capacity: h.queue.Capacity()}
	}
	if h.hub != nil {
		stats.Online = h.hub.Stats().ActiveConnections
	}
	c.JSON(http.StatusOK, stats)
}
