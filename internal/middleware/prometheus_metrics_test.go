package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware_RouteTemplateLabels(t *testing.T) {
	m := metrics.Initialize()
	m.HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/tracks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	get(router, "/tracks/a", "")
	get(router, "/tracks/b", "")
	get(router, "/boom", "")
	get(router, "/nowhere", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/tracks/:id", "200")))
	// Numeric status so queries like status=~"5.." match
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/boom", "502")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestCacheMetrics(t *testing.T) {
	m := metrics.Initialize()
	m.CacheHitsTotal.Reset()
	m.CacheMissesTotal.Reset()

	RecordCacheHit("test_cache")
	RecordCacheHit("test_cache")
	RecordCacheMiss("test_cache")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("test_cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("test_cache")))
}
