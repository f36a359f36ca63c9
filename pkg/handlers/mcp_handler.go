package handlers

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/mcp"
	"github.com/dock-ai/registry/pkg/middleware"
)

// MCPHandler handles MCP protocol requests over HTTP.
type MCPHandler struct {
	httpServer *server.StreamableHTTPServer
	logger     *zap.Logger
}

// NewMCPHandler creates a new MCP handler from an MCP server.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		httpServer: mcpServer.NewStreamableHTTPServer(),
		logger:     logger,
	}
}

// RegisterRoutes registers the public /mcp endpoint. limit may be nil.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux, limit RouteMiddleware) {
	if limit == nil {
		limit = passthrough
	}
	// Logging is innermost so rejected requests are not parsed.
	loggedHandler := middleware.MCPRequestLogger(h.logger)(h.httpServer)
	mux.Handle("/mcp", h.requirePOST(limit(loggedHandler.ServeHTTP)))
}

// requirePOST returns 405 Method Not Allowed for non-POST requests.
// MCP over HTTP Streaming requires POST for JSON-RPC requests.
func (h *MCPHandler) requirePOST(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	})
}
