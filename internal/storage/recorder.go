package storage

import (
	"context"
	"log/slog"

	"github.com/jkaninda/skillrouter/internal/router"
)

// Router is the routing surface the recorder wraps.
type Router interface {
	Route(ctx context.Context, text string, opts ...router.RouteOption) ([]router.Recommendation, error)
}

// RecordingRouter writes a Decision for every successful Route call. The
// decision holds the full ranking; the caller's filters apply only to the
// returned list. A failed write is logged and reported through onRecord
// but never fails the route itself.
type RecordingRouter struct {
	inner    Router
	store    DecisionStore
	surface  string
	logger   *slog.Logger
	onRecord func(err error)
}

// NewRecordingRouter wraps inner. onRecord may be nil.
func NewRecordingRouter(inner Router, store DecisionStore, surface string, logger *slog.Logger, onRecord func(err error)) *RecordingRouter {
	return &RecordingRouter{
		inner:    inner,
		store:    store,
		surface:  surface,
		logger:   logger,
		onRecord: onRecord,
	}
}

// Route implements Router.
func (r *RecordingRouter) Route(ctx context.Context, text string, opts ...router.RouteOption) ([]router.Recommendation, error) {
	recs, err := r.inner.Route(ctx, text)
	if err != nil {
		return recs, err
	}

	correlationID := router.CorrelationID(ctx)
	d := NewDecision(correlationID, r.surface, text, recs)
	recErr := r.store.RecordDecision(ctx, d)
	if recErr != nil {
		r.logger.WarnContext(ctx, "failed to record routing decision",
			slog.String("correlation_id", correlationID),
			slog.String("error", recErr.Error()),
		)
	}
	if r.onRecord != nil {
		r.onRecord(recErr)
	}
	return router.Filter(recs, opts...), nil
}
