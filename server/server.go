package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/cnosuke/pagemirror/config"
	"github.com/cnosuke/pagemirror/fetcher"
	"github.com/cnosuke/pagemirror/mirror"
	"github.com/cockroachdb/errors"
)

// Run - Execute the MCP server
func Run(cfg *config.Config, name string, version string, revision string) error {
	zap.S().Infow("starting MCP Mirror Server")

	// Format version string with revision if available
	versionString := version
	if revision != "" && revision != "xxx" {
		versionString = versionString + " (" + revision + ")"
	}

	zap.S().Debugw("creating HTTP Fetcher")
	httpFetcher, err := fetcher.NewHTTPFetcher(&fetcher.Config{
		Timeout:     cfg.Fetch.Timeout,
		UserAgent:   cfg.Fetch.UserAgent,
		MaxBodySize: cfg.Fetch.MaxBodySize,
	})
	if err != nil {
		zap.S().Errorw("failed to create HTTP Fetcher", "error", err)
		return err
	}

	m := mirror.New(httpFetcher, &mirror.Config{
		MaxWorkers: cfg.Fetch.MaxWorkers,
		EntryFile:  cfg.Mirror.EntryFile,
	})

	zap.S().Debugw("creating MCP server",
		"name", name,
		"version", versionString,
	)
	mcpServer := server.NewMCPServer(
		name,
		versionString,
		server.WithHooks(newHooks()),
	)

	zap.S().Debugw("registering tools")
	if err := RegisterAllTools(mcpServer, m, cfg); err != nil {
		zap.S().Errorw("failed to register tools", "error", err)
		return err
	}

	// ServeStdio blocks until the client disconnects
	zap.S().Infow("starting MCP server")
	if err := server.ServeStdio(mcpServer); err != nil {
		zap.S().Errorw("failed to start server", "error", err)
		return errors.Wrap(err, "failed to start server")
	}

	zap.S().Infow("server shutting down")
	return nil
}

// newHooks - Create custom hooks for error handling
func newHooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		zap.S().Errorw("MCP error occurred",
			"id", id,
			"method", method,
			"error", err,
		)
	})
	return hooks
}
