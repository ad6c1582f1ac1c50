// Package httpapi implements the HTTP API gateway for skillrouter.
//
// Security:
//   - Optional API key authentication on /v1 (constant-time comparison)
//   - Request body size limits (default 64 KiB)
//   - Per-client rate limiting via token bucket, with Retry-After
//   - All routing requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/observability"
	"github.com/jkaninda/skillrouter/internal/ratelimit"
	"github.com/jkaninda/skillrouter/internal/storage"
)

const defaultMaxRequestSize = 64 << 10

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        []string // Bearer tokens. Empty = unauthenticated.
	MaxRequestSize int64    // Maximum request body in bytes. 0 = 64 KiB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config    Config
	router    gateway.Router
	health    gateway.HealthFunc
	decisions storage.DecisionStore // nil = decision endpoints disabled.
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	server    *http.Server

	sseEnabled bool

	// Extra handlers mounted on the HTTP mux (e.g., WebSocket routing sessions).
	extraRoutes []extraRoute

	okapi *okapi.Okapi
	group *okapi.Group
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP API gateway. rl may be nil.
func NewGateway(cfg Config, r gateway.Router, health gateway.HealthFunc, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg,
		router:  r,
		health:  health,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithDecisions exposes the routing decision log under /v1/decisions.
func (g *Gateway) WithDecisions(store storage.DecisionStore) *Gateway {
	g.decisions = store
	return g
}

// WithSSE enables the streaming route endpoint.
func (g *Gateway) WithSSE(enabled bool) *Gateway {
	g.sseEnabled = enabled
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "skillrouter",
			Version: "v1",
		},
	)
	return g
}

// WithHandler mounts an additional handler on the HTTP mux at the given pattern.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}
	g.okapi.UseMiddleware(g.guard)

	g.group = g.okapi.Group("/v1")

	g.group.Post("/route", g.handleRoute,
		okapi.DocSummary("Rank skills for a request"),
		okapi.DocTags("Routing"),
		okapi.DocRequestBody(gateway.RouteRequest{}),
		okapi.DocResponse(gateway.RouteResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	if g.sseEnabled {
		g.group.Post("/route/stream", g.handleRouteStream,
			okapi.DocSummary("Stream ranked skills via SSE"),
			okapi.DocTags("Routing"),
			okapi.DocRequestBody(gateway.RouteRequest{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
	}
	g.group.Get("/catalog/health", g.handleCatalogHealth,
		okapi.DocSummary("Report skill catalog health"),
		okapi.DocTags("Catalog"),
		okapi.DocResponse(CatalogHealthResponse{}),
		okapi.DocResponse(http.StatusServiceUnavailable, CatalogHealthResponse{}),
	)

	if g.decisions != nil {
		g.group.Get("/decisions", g.handleDecisionList,
			okapi.DocSummary("List recent routing decisions"),
			okapi.DocTags("Decisions"),
			okapi.DocResponse(DecisionListResponse{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
		g.group.Get("/decisions/{id}", g.handleDecisionGet,
			okapi.DocSummary("Get a routing decision by ID"),
			okapi.DocTags("Decisions"),
			okapi.DocPathParam("id", "string", "Decision ID (UUID)"),
			okapi.DocResponse(storage.Decision{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		)
	}

	// Extra handlers (e.g., WebSocket routing sessions).
	for _, er := range g.extraRoutes {
		g.okapi.HandleStd("GET", er.pattern, er.handler.ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting",
		slog.String("addr", g.config.ListenAddr),
		slog.Bool("auth", len(g.config.APIKeys) > 0),
		slog.Bool("rate_limit", g.limiter.Enabled()),
	)
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}
