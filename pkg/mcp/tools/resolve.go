package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/services"
)

// ResolveToolDeps contains the dependencies of the resolve_domain tool.
type ResolveToolDeps struct {
	Resolver services.ResolutionService
	Logger   *zap.Logger
}

// DesktopServer is one entry of a claude_desktop_config mcpServers block.
type DesktopServer struct {
	URL string `json:"url"`
}

// DesktopConfig is a claude_desktop_config.json snippet an agent can offer
// the user to install the resolved providers.
type DesktopConfig struct {
	MCPServers map[string]DesktopServer `json:"mcpServers"`
}

type resolveDomainResponse struct {
	Domain              string                  `json:"domain"`
	Entities            []models.ResolvedEntity `json:"entities"`
	ClaudeDesktopConfig *DesktopConfig          `json:"claude_desktop_config,omitempty"`
}

// RegisterResolveTool adds the resolve_domain tool to the MCP server.
func RegisterResolveTool(s *server.MCPServer, deps *ResolveToolDeps) {
	tool := mcp.NewTool(
		"resolve_domain",
		mcp.WithDescription(
			"Resolve a business domain to the MCP endpoints that can act for it "+
				"(reservations, ordering, ...). Returns each entity with its endpoints, "+
				"their verification level (0 provider claim, 1 single-side, 2 dual attestation) "+
				"and a claude_desktop_config snippet for installing them.",
		),
		mcp.WithString(
			"domain",
			mcp.Required(),
			mcp.Description(`Domain to resolve (e.g., "example-restaurant.com")`),
		),
		mcp.WithString(
			"path",
			mcp.Description(`Optional path of one location under the domain (e.g., "/paris")`),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domain, err := req.RequireString("domain")
		if err != nil {
			return nil, err
		}
		domain = strings.TrimSpace(domain)
		if domain == "" {
			return NewErrorResult("invalid_parameters", "parameter 'domain' cannot be empty"), nil
		}
		path := strings.TrimSpace(req.GetString("path", ""))

		result, err := deps.Resolver.Resolve(ctx, domain, path)
		if err != nil {
			var verr *apperrors.ValidationError
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				return NewErrorResult("entity_not_found",
					fmt.Sprintf("no entity is registered for %q", domain)), nil
			case errors.As(err, &verr):
				return NewErrorResultWithDetails("invalid_parameters", verr.Message, verr.Details), nil
			}
			deps.Logger.Error("resolve_domain failed", zap.String("domain", domain), zap.Error(err))
			return nil, fmt.Errorf("failed to resolve domain: %w", err)
		}

		response := resolveDomainResponse{
			Domain:              result.Domain,
			Entities:            result.Entities,
			ClaudeDesktopConfig: buildDesktopConfig(result),
		}
		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal resolve result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// buildDesktopConfig lists the verified MCPs (level >= 1) of result, or every
// MCP when none is verified. The first registration of a provider wins.
func buildDesktopConfig(result *models.ResolveResult) *DesktopConfig {
	collect := func(minLevel int) map[string]DesktopServer {
		servers := make(map[string]DesktopServer)
		for _, entity := range result.Entities {
			for _, m := range entity.MCPs {
				if m.Verification.Level < minLevel {
					continue
				}
				if _, ok := servers[m.Provider]; ok {
					continue
				}
				servers[m.Provider] = DesktopServer{URL: mcpURL(m.Endpoint)}
			}
		}
		return servers
	}

	servers := collect(models.LevelSingleSide)
	if len(servers) == 0 {
		servers = collect(models.LevelProviderClaim)
	}
	if len(servers) == 0 {
		return nil
	}
	return &DesktopConfig{MCPServers: servers}
}

// mcpURL returns the streamable HTTP URL of a provider endpoint.
func mcpURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(endpoint, "/mcp") {
		return endpoint
	}
	return endpoint + "/mcp"
}
