package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the Prometheus registry
// GET /metrics
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
