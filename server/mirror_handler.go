package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/cnosuke/pagemirror/config"
	"github.com/cnosuke/pagemirror/mirror"
	"github.com/cnosuke/pagemirror/types"
)

// Mirrorer runs a mirror job. *mirror.Mirror implements it.
type Mirrorer interface {
	Run(ctx context.Context, job *types.MirrorJob) (*types.MirrorResult, error)
}

// RegisterMirrorTool - Register the mirror tool
func RegisterMirrorTool(mcpServer *server.MCPServer, m Mirrorer, cfg *config.Config) error {
	zap.S().Debugw("registering mirror tool")

	tool := mcp.NewTool("mirror",
		mcp.WithDescription("Downloads a web page and every resource it references, rewriting the page to use the local copies. Returns the mirror location and statistics as JSON."),
		mcp.WithString("url",
			mcp.Description("URL of the page to mirror"),
			mcp.Required(),
		),
		mcp.WithString("output_dir",
			mcp.Description(fmt.Sprintf("Directory that receives the {host}_files mirror root. Default is %q.", cfg.Mirror.OutputDir)),
		),
	)

	mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleMirror(ctx, m, cfg, request.Params.Arguments)
	})

	return nil
}

func handleMirror(ctx context.Context, m Mirrorer, cfg *config.Config, args map[string]interface{}) (*mcp.CallToolResult, error) {
	url, _ := args["url"].(string)
	outputDir, _ := args["output_dir"].(string)
	if outputDir == "" {
		outputDir = cfg.Mirror.OutputDir
	}

	zap.S().Infow("executing mirror",
		"url", url,
		"output_dir", outputDir)

	if url == "" {
		return mcp.NewToolResultError("URL is required"), nil
	}

	job, err := mirror.NewJob(url, outputDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %s", err.Error())), nil
	}

	result, err := m.Run(ctx, job)
	if err != nil {
		zap.S().Errorw("failed to mirror URL",
			"url", url,
			"error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to mirror URL: %s", err.Error())), nil
	}

	jsonResponse, err := json.Marshal(result)
	if err != nil {
		zap.S().Errorw("failed to marshal response to JSON",
			"error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response to JSON: %s", err.Error())), nil
	}

	return mcp.NewToolResultText(string(jsonResponse)), nil
}
