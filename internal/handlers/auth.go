package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/auth"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

// Register creates a native account
// POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "failed to register")
		return
	}
	h.syncUser(c.Request.Context(), resp.User)
	c.JSON(http.StatusCreated, resp)
}

// Login signs in by email or username. Accounts with 2FA get a challenge
// token to complete with VerifyTwoFactorLogin.
// POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "failed to log in")
		return
	}
	c.JSON(http.StatusOK, result)
}

// VerifyTwoFactorLogin exchanges a challenge token and code for a session
// POST /api/v1/auth/2fa/verify
func (h *Handlers) VerifyTwoFactorLogin(c *gin.Context) {
	var req struct {
		ChallengeToken string `json:"challenge_token" binding:"required"`
		Code           string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.VerifyTwoFactorLogin(c.Request.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		respondError(c, err, "failed to verify code")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// OAuthLogin redirects to the provider's consent page
// GET /api/v1/auth/oauth/:provider
func (h *Handlers) OAuthLogin(c *gin.Context) {
	url, err := h.auth.OAuthURL(c.Request.Context(), c.Param("provider"))
	if err != nil {
		respondError(c, err, "failed to start oauth login")
		return
	}
	if c.Query("redirect") == "false" {
		c.JSON(http.StatusOK, gin.H{"url": url})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// OAuthCallback completes a provider login
// GET /api/v1/auth/oauth/:provider/callback
func (h *Handlers) OAuthCallback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		util.RespondBadRequest(c, "oauth login was cancelled: "+reason)
		return
	}

	resp, err := h.auth.OAuthCallback(c.Request.Context(), c.Param("provider"), c.Query("state"), c.Query("code"))
	if err != nil {
		logger.Log.Warn("OAuth callback failed",
			logger.WithRequestID(c.GetString("request_id")),
			zap.String("provider", c.Param("provider")),
			zap.Error(err))
		respondError(c, err, "failed to complete oauth login")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RequestPasswordReset always answers 202 so callers cannot discover accounts
// POST /api/v1/auth/password-reset
func (h *Handlers) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		logger.Log.Error("Password reset request failed",
			logger.WithRequestID(c.GetString("request_id")),
			zap.Error(err))
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "if the account exists, a reset link has been sent"})
}

// ResetPassword redeems a reset token
// POST /api/v1/auth/password-reset/confirm
func (h *Handlers) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		respondError(c, err, "failed to reset password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

// Me returns the authenticated user with their profile
// GET /api/v1/me
func (h *Handlers) Me(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// ChangePassword requires the current password when one is set
// POST /api/v1/me/password
func (h *Handlers) ChangePassword(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err, "failed to change password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
