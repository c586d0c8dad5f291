// Package web exposes the collaborator-facing HTTP surface: on-demand polls,
// the current snapshot, history queries, CSV export, health and metrics.
package web

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/touchline-tools/touchlined/internal/export"
	"github.com/touchline-tools/touchlined/internal/models"
	middleware "github.com/touchline-tools/touchlined/internal/web/middlewares"
)

// ServerConfig holds configuration options for the HTTP server
type ServerConfig struct {
	CacheSize      int     // Size of the LRU response cache
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		CacheSize:      256,
		RateLimit:      5.0,
		RateLimitBurst: 10,
	}
}

// Coordinator is the poll coordinator surface the handlers need.
type Coordinator interface {
	TriggerPoll() bool
	Snapshot() models.ZoneSnapshot
	Generation() uint64
}

// Pinger probes device reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetupServer builds the HTTP handler with the full middleware chain.
func SetupServer(
	coordinator Coordinator,
	history export.Source,
	pinger Pinger,
	config ServerConfig,
	logger *logrus.Logger,
	registry *prometheus.Registry,
) (http.Handler, error) {
	h := &Handler{
		coordinator: coordinator,
		history:     history,
		pinger:      pinger,
		logger:      logger,
	}

	// History and export answers only change when a poll lands; cache them
	// keyed by the coordinator's success generation.
	cacheMW, err := middleware.Cache(config.CacheSize, coordinator.Generation)
	if err != nil {
		return nil, err
	}

	requests, latency := middleware.NewRequestMetrics()
	registry.MustRegister(requests, latency)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/poll", h.handlePoll)
	mux.HandleFunc("GET /api/v1/snapshot", h.handleSnapshot)
	mux.Handle("GET /api/v1/zones/{zone}/history", cacheMW(http.HandlerFunc(h.handleHistory)))
	mux.Handle("GET /api/v1/export", cacheMW(http.HandlerFunc(h.handleExport)))
	mux.HandleFunc("GET /healthz", h.handleHealth)

	limiter := rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimitBurst)

	chained := chainMiddleware(mux,
		middleware.RequestID,                  // tag request first
		middleware.RateLimit(limiter),         // shed load early
		middleware.Logging(logger),            // log with request id
		middleware.Metrics(requests, latency), // then measure
	)

	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	root.Handle("/", chained)

	return root, nil
}

// chainMiddleware wraps handler so that the first middleware in the list is
// the outermost.
func chainMiddleware(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
