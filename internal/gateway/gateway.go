// Package gateway defines the interface for network entry points and the
// request shape they share.
package gateway

import (
	"context"
	"errors"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/router"
)

// MaxTextLength caps the request text accepted by network surfaces.
const MaxTextLength = 8 << 10

var (
	ErrTextTooLong = errors.New("text exceeds 8192 bytes")
	ErrBadFilter   = errors.New("min_confidence and max_uncertainty must be within [0, 1]")
)

// Gateway is a network-facing surface (HTTP, WebSocket, MCP).
type Gateway interface {
	// Start launches the gateway's event loop and blocks until the gateway
	// exits or the context is canceled. Returns an error only on failure.
	Start(ctx context.Context) error

	// Stop performs graceful shutdown. The context carries a deadline
	// for the grace period. In-flight requests should drain before returning.
	Stop(ctx context.Context) error
}

// Router is the routing call every surface makes.
type Router interface {
	Route(ctx context.Context, text string, opts ...router.RouteOption) ([]router.Recommendation, error)
}

// HealthFunc reports catalog health for diagnostic endpoints.
type HealthFunc func(ctx context.Context) catalog.HealthReport

// RouteRequest is the routing payload accepted by every network surface.
type RouteRequest struct {
	Text           string   `json:"text"`
	MinConfidence  float64  `json:"min_confidence,omitempty"`  // 0 = no filter.
	MaxUncertainty *float64 `json:"max_uncertainty,omitempty"` // nil = no filter; 0 keeps only certain matches.
	PassingOnly    bool     `json:"passing_only,omitempty"`
}

// Validate checks the request before it reaches the router. Blank text
// is valid and routes to an empty list.
func (r RouteRequest) Validate() error {
	if len(r.Text) > MaxTextLength {
		return ErrTextTooLong
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return ErrBadFilter
	}
	if u := r.MaxUncertainty; u != nil && (*u < 0 || *u > 1) {
		return ErrBadFilter
	}
	return nil
}

// Options converts the request filters to router options.
func (r RouteRequest) Options() []router.RouteOption {
	var opts []router.RouteOption
	if r.MinConfidence > 0 {
		opts = append(opts, router.WithMinConfidence(r.MinConfidence))
	}
	if r.MaxUncertainty != nil {
		opts = append(opts, router.WithMaxUncertainty(*r.MaxUncertainty))
	}
	if r.PassingOnly {
		opts = append(opts, router.WithPassingOnly())
	}
	return opts
}

// RouteResponse is the routing result returned by every network surface.
type RouteResponse struct {
	CorrelationID   string                  `json:"correlation_id"`
	Recommendations []router.Recommendation `json:"recommendations"`
}

// Route validates req, routes it through r and wraps the result. The
// correlation ID is taken from ctx, or generated when absent.
func Route(ctx context.Context, r Router, req RouteRequest) (*RouteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	correlationID := router.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = router.NewCorrelationID()
		ctx = router.WithCorrelationID(ctx, correlationID)
	}

	recs, err := r.Route(ctx, req.Text, req.Options()...)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []router.Recommendation{}
	}
	return &RouteResponse{CorrelationID: correlationID, Recommendations: recs}, nil
}

// IsRequestError reports whether err came from request validation.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrTextTooLong) || errors.Is(err, ErrBadFilter)
}
