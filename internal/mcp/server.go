package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"dataresource/internal/service"
)

// Server is the MCP server for data resources.
// It exposes tools, resources, and prompts so AI agents can describe, read,
// validate and catalog tabular data.
type Server struct {
	mcp *server.MCPServer

	// Optional; catalog tools report an error when nil.
	catalog *service.CatalogService

	basepath string
	trusted  bool
}

// Deps holds everything the command layer passes to the MCP server.
type Deps struct {
	Catalog  *service.CatalogService
	Basepath string // relative paths in tool arguments resolve here
	Trusted  bool
	Version  string
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	s := &Server{
		catalog:  deps.Catalog,
		basepath: deps.Basepath,
		trusted:  deps.Trusted,
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s.mcp = server.NewMCPServer(
		"dataresource-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerResourceTools()
	s.registerCatalogTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Info().Msg("mcp: starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) requireCatalog() (*service.CatalogService, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("catalog is not configured")
	}
	return s.catalog, nil
}
