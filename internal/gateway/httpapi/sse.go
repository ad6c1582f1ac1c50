package httpapi

import (
	"log/slog"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/router"
)

// SSEEvent is one server-sent event on the streaming route endpoint.
type SSEEvent struct {
	Type           string                 `json:"type"` // "recommendation", "done", "error"
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	Rank           int                    `json:"rank,omitempty"`
	Recommendation *router.Recommendation `json:"recommendation,omitempty"`
	Count          int                    `json:"count,omitempty"`
	Content        string                 `json:"content,omitempty"`
}

// handleRouteStream handles POST /v1/route/stream. Ranking is computed
// in full, then each recommendation is sent as its own event in rank
// order, followed by a "done" event.
func (g *Gateway) handleRouteStream(c *okapi.Context) error {
	ctx := c.Request().Context()

	var req gateway.RouteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.AbortBadRequest(err.Error())
	}

	resp, err := gateway.Route(ctx, g.router, req)
	if err != nil {
		g.logger.Error("streaming route failed",
			slog.String("correlation_id", router.CorrelationID(ctx)),
			slog.String("error", err.Error()),
		)
		c.SSEvent("error", SSEEvent{Type: "error", Content: "routing failed"})
		return nil
	}

	for i := range resp.Recommendations {
		c.SSEvent("recommendation", SSEEvent{
			Type:           "recommendation",
			CorrelationID:  resp.CorrelationID,
			Rank:           i + 1,
			Recommendation: &resp.Recommendations[i],
		})
	}
	c.SSEvent("done", SSEEvent{Type: "done", CorrelationID: resp.CorrelationID, Count: len(resp.Recommendations)})
	return nil
}
