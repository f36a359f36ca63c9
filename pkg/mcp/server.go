// Package mcp exposes domain resolution to agents as an MCP server.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/mcp/tools"
	"github.com/dock-ai/registry/pkg/services"
)

// ServerName is advertised to MCP clients during initialization.
const ServerName = "dock-ai"

// Deps contains the services the MCP tools call into.
type Deps struct {
	Resolver services.ResolutionService
	DB       tools.Pinger
}

// Server wraps the mcp-go MCPServer with the registry's tools.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates the MCP server and registers the resolve_domain and
// health tools.
func NewServer(version string, deps Deps, logger *zap.Logger) *Server {
	logger = logger.Named("mcp")

	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(newCallLogger(logger).Hooks()),
	)

	tools.RegisterResolveTool(mcpServer, &tools.ResolveToolDeps{
		Resolver: deps.Resolver,
		Logger:   logger,
	})
	tools.RegisterHealthTool(mcpServer, version, deps.DB)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
