package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service
type Metrics struct {
	// HTTP
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSize       *prometheus.HistogramVec
	HTTPResponseSize      *prometheus.HistogramVec
	HTTPActiveConnections *prometheus.GaugeVec

	// Cache
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// Transcoding
	TranscodeJobsSubmitted prometheus.Counter
	TranscodeJobsTotal     *prometheus.CounterVec
	TranscodeDuration      *prometheus.HistogramVec
	TranscodeQueueDepth    prometheus.Gauge
	TranscodeRunning       prometheus.Gauge

	// Domain activity
	UploadsTotal         *prometheus.CounterVec
	UploadBytes          prometheus.Histogram
	ModerationTotal      *prometheus.CounterVec
	SocialActionsTotal   *prometheus.CounterVec
	PlaysTotal           prometheus.Counter
	SearchRequestsTotal  *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	WebsocketConnections prometheus.Gauge
	EmailsTotal          *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers every collector once
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_size_bytes",
					Help:    "HTTP request body size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path"},
			),
			HTTPResponseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of in-flight HTTP requests",
				},
				[]string{"method", "path"},
			),

			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),

			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			TranscodeJobsSubmitted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "transcode_jobs_submitted_total",
					Help: "Transcode jobs accepted into the queue",
				},
			),
			TranscodeJobsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "transcode_jobs_total",
					Help: "Finished transcode jobs by outcome",
				},
				[]string{"outcome"},
			),
			TranscodeDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "transcode_duration_seconds",
					Help:    "Transcode pipeline stage duration in seconds",
					Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
				},
				[]string{"stage"},
			),
			TranscodeQueueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "transcode_queue_depth",
					Help: "Jobs waiting in the transcode queue",
				},
			),
			TranscodeRunning: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "transcode_jobs_running",
					Help: "Jobs currently being processed",
				},
			),

			UploadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "track_uploads_total",
					Help: "Track uploads by result and format",
				},
				[]string{"status", "format"},
			),
			UploadBytes: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "track_upload_bytes",
					Help:    "Size of uploaded originals",
					Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
				},
			),
			ModerationTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moderation_actions_total",
					Help: "Moderation decisions by action",
				},
				[]string{"action"},
			),
			SocialActionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "social_actions_total",
					Help: "Likes, reposts, follows and comments",
				},
				[]string{"action"},
			),
			PlaysTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "track_plays_total",
					Help: "Counted plays after de-duplication",
				},
			),
			SearchRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "search_requests_total",
					Help: "Search requests by backend and type",
				},
				[]string{"backend", "type"},
			),
			NotificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notifications_total",
					Help: "Notifications stored by type and whether they were pushed live",
				},
				[]string{"type", "delivered"},
			),
			WebsocketConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "websocket_connections",
					Help: "Open websocket connections",
				},
			),
			EmailsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "emails_sent_total",
					Help: "Outbound emails by template and status",
				},
				[]string{"template", "status"},
			),

			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}

// TranscodeFinished records one job outcome ("complete" or "failed")
func (m *Metrics) TranscodeFinished(outcome string, seconds float64) {
	m.TranscodeJobsTotal.WithLabelValues(outcome).Inc()
	m.TranscodeDuration.WithLabelValues("total").Observe(seconds)
}

func (m *Metrics) Social(action string) {
	m.SocialActionsTotal.WithLabelValues(action).Inc()
}
