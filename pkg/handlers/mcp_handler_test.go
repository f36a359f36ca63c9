package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/mcp"
	"github.com/dock-ai/registry/pkg/models"
)

func newMCPMux(resolver *mockResolutionService) *http.ServeMux {
	srv := mcp.NewServer("test", mcp.Deps{Resolver: resolver}, zap.NewNop())
	mux := http.NewServeMux()
	NewMCPHandler(srv, zap.NewNop()).RegisterRoutes(mux, nil)
	return mux
}

func TestMCPHandler_RejectsNonPOST(t *testing.T) {
	mux := newMCPMux(&mockResolutionService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
}

func TestMCPHandler_ResolveDomainToolCall(t *testing.T) {
	resolver := &mockResolutionService{result: &models.ResolveResult{
		Domain:   "example.com",
		Entities: []models.ResolvedEntity{{Name: "Example"}},
	}}
	mux := newMCPMux(resolver)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"resolve_domain","arguments":{"domain":"example.com"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "example.com", resolver.gotInput)

	var resp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Content, 1)
	assert.Contains(t, resp.Result.Content[0].Text, `"domain":"example.com"`)
}
