package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/database"
)

const healthTimeout = 3 * time.Second

// HealthResponse reports each backing service. The database is the only
// hard dependency; other failures mark the service degraded.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Queue    *QueueStats       `json:"queue,omitempty"`
	Time     time.Time         `json:"time"`
}

// Health
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "healthy",
		Services: map[string]string{},
		Time:     time.Now().UTC(),
	}
	check := func(name string, err error) bool {
		if err != nil {
			resp.Services[name] = "unhealthy: " + err.Error()
			return false
		}
		resp.Services[name] = "healthy"
		return true
	}

	status := http.StatusOK
	if !check("database", database.Health(ctx, h.db)) {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	if h.cache != nil && !check("cache", h.cache.Ping(ctx)) && resp.Status == "healthy" {
		resp.Status = "degraded"
	}
	if h.store != nil && !check("storage", h.store.CheckAccess(ctx)) && resp.Status == "healthy" {
		resp.Status = "degraded"
	}
	if h.search.Enabled() && !check("search", h.search.Client().Ping(ctx)) && resp.Status == "healthy" {
		resp.Status = "degraded"
	}
	if h.queue != nil {
		resp.Queue = &QueueStats{Depth: h.queue.Depth(), Running: h.queue.Running(), Capacity: h.queue.Capacity()}
		resp.Services["queue"] = "healthy"
	}

	c.JSON(status, resp)
}
