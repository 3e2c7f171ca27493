package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/util"
)

type twoFactorCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetTwoFactorStatus
// GET /api/v1/me/2fa
func (h *Handlers) GetTwoFactorStatus(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	status, err := h.auth.TwoFactorStatus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load two-factor status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// SetupTwoFactor returns the secret, otpauth URL and backup codes. They are
// only shown once.
// POST /api/v1/me/2fa/setup
func (h *Handlers) SetupTwoFactor(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	_ = c.ShouldBindJSON(&req)

	setup, err := h.auth.SetupTwoFactor(c.Request.Context(), userID, req.Password)
	if err != nil {
		respondError(c, err, "failed to set up two-factor")
		return
	}
	c.JSON(http.StatusOK, setup)
}

// EnableTwoFactor
// POST /api/v1/me/2fa/enable
func (h *Handlers) EnableTwoFactor(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req twoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.EnableTwoFactor(c.Request.Context(), userID, req.Code); err != nil {
		respondError(c, err, "failed to enable two-factor")
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// DisableTwoFactor
// POST /api/v1/me/2fa/disable
func (h *Handlers) DisableTwoFactor(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
		Code     string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.DisableTwoFactor(c.Request.Context(), userID, req.Password, req.Code); err != nil {
		respondError(c, err, "failed to disable two-factor")
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// RegenerateBackupCodes
// POST /api/v1/me/2fa/backup-codes
func (h *Handlers) RegenerateBackupCodes(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req twoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	codes, err := h.auth.RegenerateBackupCodes(c.Request.Context(), userID, req.Code)
	if err != nil {
		respondError(c, err, "failed to regenerate backup codes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}
