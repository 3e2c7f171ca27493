package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/auth"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/util"
)

// TokenValidator resolves a bearer token to its user
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.User, error)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user under "user" and its id under "user_id"
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "missing bearer token")
			return
		}
		user, err := validator.ValidateToken(c.Request.Context(), token)
		if errors.Is(err, auth.ErrUserBanned) {
			util.RespondForbidden(c, "account is banned")
			return
		}
		if err != nil {
			util.RespondUnauthorized(c, "invalid or expired token")
			return
		}
		util.SetUser(c, user)
		c.Next()
	}
}

// OptionalAuth identifies the viewer when a valid token is present and
// otherwise lets the request through anonymously
func OptionalAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if user, err := validator.ValidateToken(c.Request.Context(), token); err == nil {
				util.SetUser(c, user)
			}
		}
		c.Next()
	}
}
