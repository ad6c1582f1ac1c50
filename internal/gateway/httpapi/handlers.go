package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/router"
	"github.com/jkaninda/skillrouter/internal/storage"
)

// --- Routing ---

func (g *Gateway) handleRoute(c *okapi.Context) error {
	ctx := c.Request().Context()

	var req gateway.RouteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	resp, err := gateway.Route(ctx, g.router, req)
	if err != nil {
		if gateway.IsRequestError(err) {
			return c.AbortBadRequest(err.Error())
		}
		g.logger.Error("routing failed",
			slog.String("client", clientFromContext(ctx)),
			slog.String("correlation_id", router.CorrelationID(ctx)),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("routing failed")
	}

	g.logger.Info("http route",
		slog.String("client", clientFromContext(ctx)),
		slog.String("correlation_id", resp.CorrelationID),
		slog.Int("recommendations", len(resp.Recommendations)),
	)
	return c.OK(resp)
}

// --- Catalog ---

// CatalogHealthResponse documents GET /v1/catalog/health.
type CatalogHealthResponse = catalog.HealthReport

func (g *Gateway) handleCatalogHealth(c *okapi.Context) error {
	report := g.health(c.Request().Context())
	code := http.StatusOK
	if report.Status != catalog.StatusOK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}

// --- Decisions ---

// DecisionListResponse is the JSON response for GET /v1/decisions.
type DecisionListResponse struct {
	Decisions []storage.Decision `json:"decisions"`
	Count     int                `json:"count"`
}

func (g *Gateway) handleDecisionList(c *okapi.Context) error {
	filter, err := parseDecisionFilter(c.Request().URL.Query())
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	list, err := g.decisions.ListDecisions(c.Request().Context(), filter)
	if err != nil {
		g.logger.Error("listing decisions failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing decisions failed")
	}
	if list == nil {
		list = []storage.Decision{}
	}
	return c.OK(DecisionListResponse{Decisions: list, Count: len(list)})
}

func (g *Gateway) handleDecisionGet(c *okapi.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid decision ID")
	}

	d, err := g.decisions.GetDecision(c.Request().Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "decision not found"})
	}
	if err != nil {
		g.logger.Error("getting decision failed",
			slog.String("decision_id", id.String()),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("getting decision failed")
	}
	return c.OK(d)
}

// parseDecisionFilter reads limit, surface, skill, passing_only and since
// (RFC 3339) from the query string.
func parseDecisionFilter(q url.Values) (storage.DecisionFilter, error) {
	f := storage.DecisionFilter{
		Surface:  q.Get("surface"),
		TopSkill: q.Get("skill"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("passing_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("passing_only must be a boolean")
		}
		f.PassingOnly = b
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since must be an RFC 3339 timestamp")
		}
		f.Since = t
	}
	return f, nil
}

// --- Probes ---

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Request().Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
