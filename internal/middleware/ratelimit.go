package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/errors"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Name separates counters of different route groups
	Name   string
	Limit  int
	Window time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "api", Limit: 300, Window: time.Minute}
}

// AuthRateLimitConfig returns stricter limits for auth endpoints
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "auth", Limit: 10, Window: time.Minute}
}

// UploadRateLimitConfig returns limits for upload endpoints
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "upload", Limit: 10, Window: time.Hour}
}

// SearchRateLimitConfig returns limits for search endpoints
func SearchRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "search", Limit: 60, Window: time.Minute}
}

// RateLimit is a fixed-window limiter keyed by user id, or client IP for
// anonymous requests. Counters live in the cache store, so with Redis the
// limit is shared by every instance.
func RateLimit(store cache.Store, config RateLimitConfig) gin.HandlerFunc {
	limit := strconv.Itoa(config.Limit)
	retryAfter := strconv.Itoa(int(config.Window.Seconds()))

	return func(c *gin.Context) {
		subject := c.GetString("user_id")
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		key := cache.RateLimitPrefix + config.Name + ":" + subject

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		count, err := store.IncrWithTTL(ctx, key, config.Window)
		cancel()
		if err != nil {
			// fail closed
			logger.Log.Error("Rate limit check failed",
				logger.WithIP(c.ClientIP()),
				zap.String("limiter", config.Name),
				zap.Error(err))
			util.RespondWithAPIError(c, errors.ServiceUnavailable("rate limiter"))
			return
		}

		remaining := config.Limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > int64(config.Limit) {
			RecordRateLimitExceeded(config.Name, c.Request.Method)
			logger.Log.Warn("Rate limit exceeded",
				logger.WithIP(c.ClientIP()),
				zap.String("limiter", config.Name),
				zap.Int64("count", count))
			c.Header("Retry-After", retryAfter)
			util.RespondWithAPIError(c, errors.RateLimited("").WithDetails("retry after "+retryAfter+"s"))
			return
		}
		c.Next()
	}
}
