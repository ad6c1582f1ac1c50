package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/skillrouter/internal/gateway/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the router as an MCP tool server over stdio",
	Long: `Speak the Model Context Protocol on stdin/stdout so agent runtimes can
call the router as a tool. Logs go to stderr.

Tools:
  route_request   rank skills for a request text
  catalog_health  report the skill catalog state`,
	RunE: runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	app, err := setup(appOptions{watch: true})
	if err != nil {
		return err
	}
	defer app.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.Watcher != nil {
		go func() { _ = app.Watcher.Run(ctx) }()
	}

	srv := mcpserver.New(app.RouterFor(surfaceMCP), app.Health, version, app.Logger)
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
