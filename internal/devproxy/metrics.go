package devproxy

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_devproxy_requests_total",
		Help: "Total HTTP requests by method, route, and response status.",
	}, []string{"method", "route", "status"})

	proxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocr_devproxy_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	proxyUpstreamErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocr_devproxy_upstream_errors_total",
		Help: "Total proxied requests that failed to reach the backend.",
	})

	proxyRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocr_devproxy_rate_limited_total",
		Help: "Total requests rejected by the per-IP rate limiter.",
	})

	proxyHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_devproxy_health_checks_total",
		Help: "Total backend health probes by result.",
	}, []string{"result"})
)

// routeKey is the gin context key carrying the metrics label for requests
// that did not match a registered route.
const routeKey = "devproxy.route"

// prometheusMiddleware records per-request metrics. Proxied and static
// requests are labelled by what served them rather than their raw path.
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.GetString(routeKey)
		}
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		proxyRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		proxyRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// metricsHandler serves Prometheus metrics.
func metricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordHealthCheck records a backend health probe result.
func RecordHealthCheck(success bool) {
	if success {
		proxyHealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		proxyHealthChecksTotal.WithLabelValues("failure").Inc()
	}
}
