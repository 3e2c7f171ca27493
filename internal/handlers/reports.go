package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

const maxReportDetails = 2000

// CreateReport flags a track, comment or user for moderators
// POST /api/v1/reports
func (h *Handlers) CreateReport(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		TargetType models.ReportTargetType `json:"target_type" binding:"required"`
		TargetID   string                  `json:"target_id" binding:"required"`
		Reason     models.ReportReason     `json:"reason" binding:"required"`
		Details    string                  `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if !models.ValidReportTarget(req.TargetType) {
		util.RespondValidationError(c, "target_type", "target_type must be track, comment or user")
		return
	}
	if !models.ValidReportReason(req.Reason) {
		util.RespondValidationError(c, "reason", "reason must be spam, offensive, copyright or other")
		return
	}
	req.Details = strings.TrimSpace(req.Details)
	if len([]rune(req.Details)) > maxReportDetails {
		util.RespondValidationError(c, "details", "details must be at most 2000 characters")
		return
	}

	ctx := c.Request.Context()
	var err error
	switch req.TargetType {
	case models.ReportTargetTrack:
		_, err = h.tracks.Get(ctx, req.TargetID)
	case models.ReportTargetComment:
		_, err = h.comments.Get(ctx, req.TargetID)
	case models.ReportTargetUser:
		if req.TargetID == userID {
			util.RespondBadRequest(c, "cannot report yourself")
			return
		}
		_, err = h.users.Get(ctx, req.TargetID)
	}
	if err != nil {
		respondError(c, err, "failed to load report target")
		return
	}

	report := &models.Report{
		ReporterID: userID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Reason:     req.Reason,
		Details:    req.Details,
	}
	if err := h.reports.Create(ctx, report); err != nil {
		respondError(c, err, "failed to create report")
		return
	}
	logger.Log.Info("Report filed",
		logger.WithUserID(userID),
		zap.String("target_type", string(report.TargetType)),
		zap.String("target_id", report.TargetID),
		zap.String("reason", string(report.Reason)))
	c.JSON(http.StatusCreated, report)
}
