package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/logger"
	"go.uber.org/zap"
)

// ResponseCache caches successful GET responses that do not depend on the
// viewer. The key is prefix plus the raw query string.
// Adds X-Cache: HIT/MISS header for debugging.
func ResponseCache(store cache.Store, prefix string, ttl time.Duration) gin.HandlerFunc {
	cacheControl := fmt.Sprintf("public, max-age=%d", int(ttl.Seconds()))

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := prefix
		if q := c.Request.URL.RawQuery; q != "" {
			key += ":" + q
		}
		ctx := c.Request.Context()

		if cached, err := store.Get(ctx, key); err == nil {
			RecordCacheHit(prefix)
			c.Header("X-Cache", "HIT")
			c.Header("Cache-Control", cacheControl)
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			c.Abort()
			return
		}
		RecordCacheMiss(prefix)

		writer := &cachedResponseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Header("X-Cache", "MISS")
		c.Header("Cache-Control", cacheControl)

		c.Next()

		status := writer.Status()
		if status < 200 || status >= 300 || writer.body.Len() == 0 {
			return
		}
		// The request context may already be cancelled by the client
		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := store.Set(setCtx, key, writer.body.String(), ttl); err != nil {
			logger.Log.Debug("Failed to write response to cache", zap.String("key", key), zap.Error(err))
		}
	}
}

// cachedResponseWriter intercepts response writes to capture the response body
type cachedResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *cachedResponseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *cachedResponseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
