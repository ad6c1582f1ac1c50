package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jkaninda/skillrouter/internal/config"
	"github.com/jkaninda/skillrouter/internal/router"
)

// --- No-op Path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
	if obs.Anomaly != nil {
		t.Error("anomaly should be nil when not enabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestNew_MetricsAndAnomaly(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
		Anomaly: &config.AnomalyConfig{Enabled: true, MissRateThreshold: 0.5},
	}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs.MetricsOrNil() == nil || obs.Anomaly == nil {
		t.Error("expected metrics and anomaly detector")
	}
}

func TestObservability_NilReceivers(t *testing.T) {
	var obs *Observability
	obs.Shutdown(context.Background())
	if obs.TracerOrNil() != nil || obs.MetricsOrNil() != nil {
		t.Error("expected nil components from nil Observability")
	}

	wrapped := obs.WrapRouter(router.New(gitCatalog()), "cli")
	recs, err := wrapped.Route(context.Background(), "how do I commit my git changes")
	if err != nil || len(recs) != 1 {
		t.Errorf("Route = %v, %v", recs, err)
	}
}

func TestTracerSetup_NilIsNoop(t *testing.T) {
	var ts *TracerSetup
	_, span := ts.Tracer().Start(context.Background(), "noop")
	span.End()
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown = %v", err)
	}
}

// --- MetricsCollector ---

func TestMetricsCollector_Registered(t *testing.T) {
	m := NewMetricsCollector()
	m.RouteRequestsTotal.WithLabelValues("cli", OutcomePassed).Inc()
	m.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200").Inc()
	m.DecisionsRecordedTotal.WithLabelValues("success").Inc()
	m.TopRecommendations.WithLabelValues("workflows-git", "true").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, expected := range []string{
		"skillrouter_route_requests_total",
		"skillrouter_route_top_recommendations_total",
		"skillrouter_catalog_skills",
		"skillrouter_catalog_healthy",
		"skillrouter_decisions_recorded_total",
		"skillrouter_http_requests_total",
		"skillrouter_active_requests",
	} {
		if !names[expected] {
			t.Errorf("metric %q not found in registry", expected)
		}
	}
}

func TestMetricsCollector_Recorders(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordCatalogReload(12, 2)
	m.RecordCatalogReload(13, 0)
	m.RecordCatalogHealth(false)
	m.RecordDecision(nil)
	m.RecordDecision(errors.New("disk full"))

	if got := testutil.ToFloat64(m.CatalogReloadsTotal); got != 2 {
		t.Errorf("reloads = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CatalogSkills); got != 13 {
		t.Errorf("skills = %v, want 13", got)
	}
	if got := testutil.ToFloat64(m.CatalogLoadErrors); got != 0 {
		t.Errorf("load errors = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.CatalogHealthy); got != 0 {
		t.Errorf("healthy = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.DecisionsRecordedTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("decision errors = %v, want 1", got)
	}

	// Nil collectors are no-ops.
	var nilMetrics *MetricsCollector
	nilMetrics.RecordCatalogReload(1, 1)
	nilMetrics.RecordCatalogHealth(true)
	nilMetrics.RecordDecision(nil)
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string)
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

// --- HealthChecker ---

func TestHealthChecker_NoChecks(t *testing.T) {
	h := NewHealthChecker(nil)
	if status := h.CheckReady(context.Background()); status.Status != StatusOK {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

func TestHealthChecker_AllPass(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("catalog", func(ctx context.Context) error { return nil })
	h.AddCheck("decisions", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != StatusOK {
		t.Errorf("status = %q, want ok", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(status.Checks))
	}
	if names := h.CheckNames(); strings.Join(names, ",") != "catalog,decisions" {
		t.Errorf("CheckNames = %v", names)
	}
}

func TestHealthChecker_OneFails(t *testing.T) {
	h := NewHealthChecker(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	h.AddCheck("catalog", func(ctx context.Context) error { return errors.New("no skills found") })
	h.AddCheck("decisions", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if c := status.Checks["catalog"]; c.Status != StatusFail || c.Message != "no skills found" {
		t.Errorf("catalog check = %+v", c)
	}
	if c := status.Checks["decisions"]; c.Status != StatusOK {
		t.Errorf("decisions check = %+v", c)
	}
}

func TestHealthChecker_TimeoutReachesChecks(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})
	if status := h.CheckReady(context.Background()); status.Status != StatusOK {
		t.Errorf("status = %+v", status)
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("fail", func(ctx context.Context) error { return errors.New("down") })
	if status := h.CheckHealth(); status.Status != StatusOK || status.Uptime == "" {
		t.Errorf("liveness = %+v, want ok with uptime", status)
	}
}

// --- AnomalyDetector ---

func TestAnomalyDetector_NilSafe(t *testing.T) {
	var a *AnomalyDetector
	a.RecordOutcome("http", false)
	if rate, n := a.MissRate("http"); rate != 0 || n != 0 {
		t.Errorf("MissRate = %v, %d", rate, n)
	}
}

func TestAnomalyDetector_WarnsOnceAndRecovers(t *testing.T) {
	var buf bytes.Buffer
	a := NewAnomalyDetector(&config.AnomalyConfig{MissRateThreshold: 0.5, MinSamples: 4},
		slog.New(slog.NewTextHandler(&buf, nil)))

	for i := 0; i < 3; i++ {
		a.RecordOutcome("http", false)
	}
	if strings.Contains(buf.String(), "anomaly detected") {
		t.Fatal("warned before reaching min samples")
	}

	a.RecordOutcome("http", false)
	a.RecordOutcome("http", false)
	if got := strings.Count(buf.String(), "anomaly detected"); got != 1 {
		t.Errorf("warnings = %d, want 1", got)
	}

	for i := 0; i < 6; i++ {
		a.RecordOutcome("http", true)
	}
	if !strings.Contains(buf.String(), "routing miss rate recovered") {
		t.Error("expected recovery log")
	}
	if rate, n := a.MissRate("http"); n != 11 || rate > 0.5 {
		t.Errorf("MissRate = %v, %d", rate, n)
	}
	if _, n := a.MissRate("mcp"); n != 0 {
		t.Errorf("surfaces should be tracked separately, got %d samples", n)
	}
}

func TestAnomalyDetector_WindowExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAnomalyDetector(&config.AnomalyConfig{WindowSeconds: 60}, nil)
	a.now = func() time.Time { return now }

	a.RecordOutcome("cli", false)
	a.RecordOutcome("cli", true)
	if rate, n := a.MissRate("cli"); n != 2 || rate != 0.5 {
		t.Errorf("MissRate = %v, %d; want 0.5, 2", rate, n)
	}

	now = now.Add(2 * time.Minute)
	if _, n := a.MissRate("cli"); n != 0 {
		t.Errorf("samples after expiry = %d, want 0", n)
	}
}

// --- InstrumentedRouter ---

func gitCatalog() router.CatalogProvider {
	return router.CatalogFunc(func(context.Context) ([]router.Skill, error) {
		return []router.Skill{
			{Name: "workflows-git", Description: "Version control operations including commit, branch, and merge"},
			{Name: "zoo-keeper", Description: "Zebra enclosure scheduling"},
		}, nil
	})
}

func TestInstrumentedRouter_Outcomes(t *testing.T) {
	m := NewMetricsCollector()
	r := NewInstrumentedRouter(router.New(gitCatalog()), "http", m, nil, nil)
	ctx := context.Background()

	if _, err := r.Route(ctx, "how do I commit my git changes"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Route(ctx, "zebra"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Route(ctx, "   "); err != nil {
		t.Fatal(err)
	}

	for outcome, want := range map[string]float64{
		OutcomePassed:         1,
		OutcomeBelowThreshold: 1,
		OutcomeNoMatch:        1,
		OutcomeError:          0,
	} {
		got := testutil.ToFloat64(m.RouteRequestsTotal.WithLabelValues("http", outcome))
		if got != want {
			t.Errorf("outcome %s = %v, want %v", outcome, got, want)
		}
	}

	val := counterValue(t, m.Registry, "skillrouter_route_top_recommendations_total",
		prometheus.Labels{"skill": "workflows-git", "passes_threshold": "true"})
	if val != 1 {
		t.Errorf("top recommendations = %v, want 1", val)
	}
	if got := testutil.ToFloat64(m.ActiveRequests); got != 0 {
		t.Errorf("active requests = %v, want 0", got)
	}
}

func TestInstrumentedRouter_Error(t *testing.T) {
	m := NewMetricsCollector()
	failing := router.CatalogFunc(func(context.Context) ([]router.Skill, error) {
		return nil, errors.New("skills dir unreadable")
	})
	anomaly := NewAnomalyDetector(&config.AnomalyConfig{MissRateThreshold: 0.5}, nil)
	r := NewInstrumentedRouter(router.New(failing), "mcp", m, nil, anomaly)

	if _, err := r.Route(context.Background(), "commit"); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.RouteRequestsTotal.WithLabelValues("mcp", OutcomeError)); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if _, n := anomaly.MissRate("mcp"); n != 0 {
		t.Errorf("errors should not count as misses, got %d samples", n)
	}
}

func TestInstrumentedRouter_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	ts, err := newTracerSetup(context.Background(), &config.TracingConfig{Environment: "test"}, sdktrace.WithSpanProcessor(recorder))
	if err != nil {
		t.Fatal(err)
	}
	defer ts.Shutdown(context.Background())

	r := NewInstrumentedRouter(router.New(gitCatalog()), "cli", nil, ts, nil)
	if _, err := r.Route(context.Background(), "how do I commit my git changes"); err != nil {
		t.Fatal(err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "router.route" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if env, ok := spans[0].Resource().Set().Value("deployment.environment"); !ok || env.AsString() != "test" {
		t.Errorf("deployment.environment = %v (present %v), want test", env.AsString(), ok)
	}
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["router.top_skill"].AsString(); got != "workflows-git" {
		t.Errorf("top_skill = %q", got)
	}
	if got := attrs["router.outcome"].AsString(); got != OutcomePassed {
		t.Errorf("outcome = %q", got)
	}
}

// --- HTTP Middleware ---

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetricsCollector()

	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/v1/route", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	val := counterValue(t, metrics.Registry, "skillrouter_http_requests_total",
		prometheus.Labels{"method": "GET", "path": "/v1/route", "status_code": "418"})
	if val != 1 {
		t.Errorf("http requests = %v, want 1", val)
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHTTPMetricsMiddleware_Flush(t *testing.T) {
	handler := HTTPMetricsMiddleware(NewMetricsCollector(), nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Flusher")
		}
		_, _ = w.Write([]byte("data: {}\n\n"))
		f.Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/route/stream", nil))
	if !rec.Flushed {
		t.Error("Flushed = false, want true")
	}
}

// --- Helpers ---

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			lm := labelMap(metric.GetLabel())
			match := true
			for k, v := range labels {
				if lm[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
