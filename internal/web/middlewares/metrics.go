package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NewRequestMetrics builds the request counter and latency histogram the
// Metrics middleware records into.
func NewRequestMetrics() (*prometheus.CounterVec, *prometheus.HistogramVec) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "touchlined_http_requests_total",
		Help: "HTTP requests by path and status",
	}, []string{"path", "status"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "touchlined_http_request_duration_seconds",
		Help:    "HTTP request latency by path",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	return requests, latency
}

// Metrics records request counts and latency.
func Metrics(requests *prometheus.CounterVec, latency *prometheus.HistogramVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			requests.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
			latency.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}
