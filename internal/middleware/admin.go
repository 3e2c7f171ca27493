package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

// RequireAdmin must run after RequireAuth. The user loaded by the token
// validator is fresh, so demoted admins lose access immediately.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := util.CurrentUser(c)
		if !ok {
			util.RespondUnauthorized(c)
			return
		}
		if !user.IsAdmin {
			logger.Log.Warn("Admin route denied",
				logger.WithUserID(user.ID),
				zap.String("path", c.FullPath()))
			util.RespondForbidden(c, "admin access required")
			return
		}
		c.Next()
	}
}
