package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const healthProbeTimeout = 2 * time.Second

// Pinger reports whether the registry database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status and version. db may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, db Pinger) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns registry health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := healthResult{Status: "ok", Version: version}
		if db != nil {
			probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
			defer cancel()
			if err := db.Ping(probeCtx); err != nil {
				res.Status = "degraded"
				res.Database = "unreachable"
			} else {
				res.Database = "ok"
			}
		}

		result, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
