package util

import (
	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/models"
)

// Context keys set by the auth middleware
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
)

// GetUserFromContext extracts the authenticated user from the Gin context.
// If the user is not authenticated, it responds with 401 Unauthorized.
func GetUserFromContext(c *gin.Context) (*models.User, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		RespondUnauthorized(c)
		return nil, false
	}
	return user, true
}

// GetUserIDFromContext extracts the user ID from the Gin context.
// If the user is not authenticated, it responds with 401 Unauthorized.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		RespondUnauthorized(c)
		return "", false
	}
	return userID, true
}

// CurrentUser returns the viewer without responding; used on optional-auth routes
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(ContextUser)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

// ViewerID is the authenticated user's id or ""
func ViewerID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// IsAdmin reports whether the authenticated viewer is an admin
func IsAdmin(c *gin.Context) bool {
	user, ok := CurrentUser(c)
	return ok && user.IsAdmin
}

// SetUser stores the authenticated user on the context
func SetUser(c *gin.Context, user *models.User) {
	c.Set(ContextUserID, user.ID)
	c.Set(ContextUser, user)
}
