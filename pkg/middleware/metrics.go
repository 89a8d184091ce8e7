package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, event streams excluded",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
		[]string{"service"},
	)

	httpStreamsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_event_streams_open",
			Help: "Current number of open server-sent event streams",
		},
		[]string{"service"},
	)

	httpStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_event_stream_duration_seconds",
			Help:    "Lifetime of server-sent event streams in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"service", "path"},
	)
)

// PrometheusMetrics returns middleware that collects HTTP metrics. Requests
// that accept text/event-stream are tracked as streams so their lifetime does
// not skew the request latency histogram.
func PrometheusMetrics(serviceName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			stream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")

			httpRequestsInFlight.WithLabelValues(serviceName).Inc()
			defer httpRequestsInFlight.WithLabelValues(serviceName).Dec()

			rw := newStatusRecorder(w)
			if stream {
				httpStreamsOpen.WithLabelValues(serviceName).Inc()
				defer httpStreamsOpen.WithLabelValues(serviceName).Dec()
			}
			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			// Label by route pattern so session IDs do not explode cardinality.
			routePattern := "unknown"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				routePattern = rctx.RoutePattern()
			}

			httpRequestsTotal.WithLabelValues(serviceName, r.Method, routePattern, status).Inc()
			if stream {
				httpStreamDuration.WithLabelValues(serviceName, routePattern).Observe(duration)
				return
			}
			httpRequestDuration.WithLabelValues(serviceName, r.Method, routePattern, status).Observe(duration)
		})
	}
}
