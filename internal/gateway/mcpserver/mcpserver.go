// Package mcpserver exposes the router to MCP clients over stdio.
//
// Tools:
//   - route_request: rank skills for a request text
//   - catalog_health: report what the skill catalog currently contains
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/router"
)

// Tool names.
const (
	ToolRoute  = "route_request"
	ToolHealth = "catalog_health"
)

// Server wraps an MCP server bound to a router.
type Server struct {
	router gateway.Router
	health gateway.HealthFunc
	logger *slog.Logger
	mcp    *server.MCPServer
}

// New creates an MCP server with both tools registered.
func New(r gateway.Router, health gateway.HealthFunc, version string, logger *slog.Logger) *Server {
	s := &Server{
		router: r,
		health: health,
		logger: logger,
		mcp: server.NewMCPServer("skillrouter", version,
			server.WithToolCapabilities(false),
		),
	}

	s.mcp.AddTool(mcp.NewTool(ToolRoute,
		mcp.WithDescription("Rank the available skills for a free-text request. "+
			"Returns recommendations ordered by confidence, each with an uncertainty "+
			"value and whether it clears the confidence/uncertainty gate."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The user request to route"),
		),
		mcp.WithNumber("min_confidence",
			mcp.Description("Drop recommendations below this confidence (0-1)"),
		),
		mcp.WithNumber("max_uncertainty",
			mcp.Description("Drop recommendations above this uncertainty (0-1)"),
		),
		mcp.WithBoolean("passing_only",
			mcp.Description("Only return recommendations that clear the gate"),
		),
	), s.handleRoute)

	s.mcp.AddTool(mcp.NewTool(ToolHealth,
		mcp.WithDescription("Report skill catalog health: skill count, names, directories and load errors."),
	), s.handleHealth)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in and out until ctx is canceled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handleRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rr := gateway.RouteRequest{
		Text:          text,
		MinConfidence: req.GetFloat("min_confidence", 0),
		PassingOnly:   req.GetBool("passing_only", false),
	}
	if _, ok := req.GetArguments()["max_uncertainty"]; ok {
		u := req.GetFloat("max_uncertainty", 1)
		rr.MaxUncertainty = &u
	}

	ctx = router.WithCorrelationID(ctx, router.NewCorrelationID())
	resp, err := gateway.Route(ctx, s.router, rr)
	if err != nil {
		if !gateway.IsRequestError(err) {
			s.logger.ErrorContext(ctx, "mcp routing failed",
				slog.String("correlation_id", router.CorrelationID(ctx)),
				slog.String("error", err.Error()),
			)
		}
		return mcp.NewToolResultError(fmt.Sprintf("routing failed: %v", err)), nil
	}
	return jsonResult(resp.Recommendations)
}

func (s *Server) handleHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.health(ctx))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
