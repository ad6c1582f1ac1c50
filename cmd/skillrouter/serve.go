package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/gateway/httpapi"
	"github.com/jkaninda/skillrouter/internal/gateway/ws"
	"github.com/jkaninda/skillrouter/internal/observability"
	"github.com/jkaninda/skillrouter/internal/ratelimit"
	"github.com/jkaninda/skillrouter/internal/scheduler"
)

const (
	limiterPruneInterval = time.Minute
	limiterIdleTTL       = 10 * time.Minute
	decisionPurgeSpec    = "@hourly"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket routing gateways",
	Long: `Serve routing over HTTP (JSON and SSE) and, when enabled, persistent
WebSocket sessions mounted on the same server. The skill catalog is
watched for changes and reloaded without a restart.

Endpoints:
  POST /v1/route            rank skills for a request
  POST /v1/route/stream     same, streamed as server-sent events
  GET  /v1/catalog/health   catalog health report
  GET  /v1/decisions        routing decision log (requires storage)
  GET  /healthz, /readyz    liveness and readiness`,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	app, err := setup(appOptions{watch: true})
	if err != nil {
		return err
	}
	defer app.Cleanup()

	cfg := app.Config
	logger := app.Logger
	if cfg.Gateways.HTTP == nil || !cfg.Gateways.HTTP.Enabled {
		return fmt.Errorf("no gateways enabled in config (set gateways.http.enabled)")
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.Watcher != nil {
		go func() {
			if err := app.Watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("catalog watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	httpCfg := cfg.Gateways.HTTP
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: httpCfg.RateLimit.RequestsPerMinute,
		BurstSize:         httpCfg.RateLimit.BurstSize,
	})
	if limiter.Enabled() {
		go pruneLimiter(ctx, limiter, logger)
	}

	metrics := app.Obs.MetricsOrNil()
	probe := scheduler.NewHealthProbe(app.Sources, cfg.Catalog.SkillsDirs, func(report catalog.HealthReport) {
		metrics.RecordCatalogHealth(report.Err() == nil)
	}, logger)

	// Readiness checks.
	checker := observability.NewHealthChecker(logger)
	if app.Obs != nil && app.Obs.Health != nil {
		checker = app.Obs.Health
	}
	checker.AddCheck("catalog", probe.Check)
	if app.Store != nil {
		checker.AddCheck("storage", app.Store.Ping)
	}

	// Background jobs.
	cancelScheduler, err := startScheduler(ctx, app, probe)
	if err != nil {
		return err
	}
	defer cancelScheduler()

	// HTTP gateway.
	var tracer trace.Tracer
	if ts := app.Obs.TracerOrNil(); ts != nil {
		tracer = ts.Tracer()
	}
	apiCfg := httpapi.Config{
		ListenAddr:     httpCfg.Addr(),
		EnableDocs:     httpCfg.EnableDocs,
		APIKeys:        httpCfg.APIKeys,
		MaxRequestSize: httpCfg.MaxRequestSize(),
		HealthChecker:  checker,
		Metrics:        metrics,
		Tracer:         tracer,
	}
	if metrics != nil {
		apiCfg.MetricsRegistry = metrics.Registry
		apiCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
	}

	httpGW := httpapi.NewGateway(apiCfg, app.RouterFor(surfaceHTTP), app.Health, limiter, logger).
		WithSSE(true)
	if app.Store != nil {
		httpGW.WithDecisions(app.Store.Decisions())
	}

	// WebSocket routing sessions share the HTTP listener.
	if wsCfg := cfg.Gateways.WebSocket; wsCfg != nil && wsCfg.Enabled {
		wsServer := ws.NewServer(app.RouterFor(surfaceWS), app.Health, app.Router.Thresholds(),
			wsCfg, httpCfg.APIKeys, limiter, logger)
		httpGW.WithHandler(wsCfg.WSPath(), wsServer.Handler())
		logger.Debug("websocket server initialized",
			slog.String("path", wsCfg.WSPath()),
			slog.String("idle_timeout", wsCfg.IdleTimeout().String()),
		)
	}

	gateways := []gateway.Gateway{httpGW}
	logger.Info("gateways configured", slog.Int("count", len(gateways)))

	// Start all gateways in goroutines.
	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	// Wait for signal or first gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}
	return nil
}

// startScheduler registers the periodic catalog health probe and the
// decision retention purge. It returns a no-op stop when no job applies.
func startScheduler(ctx context.Context, app *App, probe *scheduler.HealthProbe) (func(), error) {
	var schedMetrics *scheduler.Metrics
	if app.Obs != nil && app.Obs.Metrics != nil {
		schedMetrics = scheduler.NewMetrics(app.Obs.Metrics.Registry)
	}
	sched := scheduler.New(schedMetrics, app.Logger)

	if expr := app.Config.HealthSchedule; expr != "" {
		if err := sched.Add(scheduler.Job{
			Name:     scheduler.HealthProbeJob,
			Schedule: expr,
			Run:      probe.Run,
		}); err != nil {
			return nil, fmt.Errorf("scheduling catalog health probe: %w", err)
		}
	}

	if app.Store != nil {
		if retention := app.Config.Storage.Retention(); retention > 0 {
			purge := scheduler.NewDecisionPurge(app.Store.Decisions(), retention, app.Logger)
			if err := sched.Add(scheduler.Job{
				Name:     scheduler.DecisionPurgeJob,
				Schedule: decisionPurgeSpec,
				Run:      purge.Run,
			}); err != nil {
				return nil, fmt.Errorf("scheduling decision purge: %w", err)
			}
		}
	}

	jobs := sched.Jobs()
	if len(jobs) == 0 {
		return func() {}, nil
	}
	for name, next := range jobs {
		app.Logger.Debug("scheduled job registered",
			slog.String("job", name),
			slog.Time("next_run", next),
		)
	}
	return sched.Start(ctx), nil
}

// pruneLimiter drops idle client buckets so the limiter does not grow
// with every address it has ever seen.
func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter, logger *slog.Logger) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(limiterIdleTTL); n > 0 {
				logger.Debug("rate limiter pruned", slog.Int("clients", n), slog.Int("remaining", limiter.Len()))
			}
		}
	}
}
