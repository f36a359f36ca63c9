package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/logging"
)

// callLogger logs every tool call with its outcome and duration.
type callLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

func newCallLogger(logger *zap.Logger) *callLogger {
	return &callLogger{logger: logger}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (c *callLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *callLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
}

func (c *callLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("elapsed", c.elapsed(id)),
	}
	if result != nil && result.IsError {
		c.logger.Info("MCP tool returned an error result", fields...)
		return
	}
	c.logger.Debug("MCP tool call", fields...)
}

func (c *callLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	c.logger.Warn("MCP tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Duration("elapsed", c.elapsed(id)),
		logging.Error(err))
}

func (c *callLogger) elapsed(id any) time.Duration {
	if v, ok := c.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}
