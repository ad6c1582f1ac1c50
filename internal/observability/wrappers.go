package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/skillrouter/internal/router"
)

// Route outcome labels.
const (
	OutcomePassed         = "passed"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeNoMatch        = "no_match"
	OutcomeError          = "error"
)

// Router is the routing surface shared by router.Router and its wrappers.
type Router interface {
	Route(ctx context.Context, text string, opts ...router.RouteOption) ([]router.Recommendation, error)
}

// InstrumentedRouter wraps a Router with metrics, tracing and miss-rate
// detection. Each invocation surface gets its own wrapper so the surface
// label tells CLI, HTTP, WebSocket and MCP traffic apart.
type InstrumentedRouter struct {
	inner   Router
	surface string
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedRouter wraps inner. Any of metrics, ts and anomaly may be nil.
func NewInstrumentedRouter(inner Router, surface string, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedRouter {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedRouter{
		inner:   inner,
		surface: surface,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

// Route implements Router.
func (r *InstrumentedRouter) Route(ctx context.Context, text string, opts ...router.RouteOption) ([]router.Recommendation, error) {
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "router.route",
			trace.WithAttributes(
				attribute.String("router.surface", r.surface),
				attribute.Int("router.text_length", len(text)),
			))
		defer span.End()
	}

	if r.metrics != nil {
		r.metrics.ActiveRequests.Inc()
		defer r.metrics.ActiveRequests.Dec()
	}

	start := time.Now()
	recs, err := r.inner.Route(ctx, text, opts...)
	duration := time.Since(start).Seconds()

	outcome := routeOutcome(recs, err)

	if span != nil {
		span.SetAttributes(
			attribute.String("router.outcome", outcome),
			attribute.Int("router.recommendations", len(recs)),
		)
		if len(recs) > 0 {
			span.SetAttributes(
				attribute.String("router.top_skill", recs[0].Skill),
				attribute.Float64("router.top_confidence", recs[0].Confidence),
				attribute.Float64("router.top_uncertainty", recs[0].Uncertainty),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if r.metrics != nil {
		r.metrics.RouteRequestsTotal.WithLabelValues(r.surface, outcome).Inc()
		r.metrics.RouteDuration.WithLabelValues(r.surface).Observe(duration)
		if err == nil {
			r.metrics.RecommendationCount.Observe(float64(len(recs)))
		}
		if len(recs) > 0 {
			top := recs[0]
			r.metrics.TopRecommendations.WithLabelValues(top.Skill, strconv.FormatBool(top.PassesThreshold)).Inc()
			r.metrics.TopConfidence.Observe(top.Confidence)
			r.metrics.TopUncertainty.Observe(top.Uncertainty)
		}
	}

	if err == nil {
		r.anomaly.RecordOutcome(r.surface, outcome == OutcomePassed)
	}

	return recs, err
}

func routeOutcome(recs []router.Recommendation, err error) string {
	switch {
	case err != nil:
		return OutcomeError
	case len(recs) == 0:
		return OutcomeNoMatch
	case recs[0].PassesThreshold:
		return OutcomePassed
	default:
		return OutcomeBelowThreshold
	}
}
