package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// SessionValidations counts session validation outcomes. Label
	// "result" is "valid" or the invalidity reason. Invalid outcomes are
	// routine traffic, not errors; the counter exists so operators can
	// watch their rate.
	SessionValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_validations_total",
		Help: "Session validation outcomes by result.",
	}, []string{"result"})

	// SessionsIssued counts sessions issued by login and registration.
	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_issued_total",
		Help: "Total sessions issued.",
	})

	// SessionsCleaned counts expired session slots nulled by the sweep.
	SessionsCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_cleaned_total",
		Help: "Total expired session slots cleared by cleanup sweeps.",
	})
)

// PrometheusMiddleware records request counts and latencies per route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}
