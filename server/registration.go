package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/cnosuke/pagemirror/config"
)

// RegisterAllTools - Register all tools with the server
func RegisterAllTools(mcpServer *server.MCPServer, m Mirrorer, cfg *config.Config) error {
	if err := RegisterMirrorTool(mcpServer, m, cfg); err != nil {
		return err
	}

	return nil
}
