package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/services"
)

const msgReindexed = "Entity already indexed, updated"

// SubmitRequest for POST /v1/submit
type SubmitRequest struct {
	Domain string `json:"domain"`
}

// SubmitResponse for POST /v1/submit
type SubmitResponse struct {
	Success   bool                     `json:"success"`
	Domain    string                   `json:"domain"`
	Entity    services.SubmittedEntity `json:"entity"`
	MCPsCount int                      `json:"mcps_count"`
	Message   string                   `json:"message,omitempty"`
}

// SubmitHandler lets domain owners index their Entity Card.
type SubmitHandler struct {
	submitter services.SubmitService
	logger    *zap.Logger
}

// NewSubmitHandler creates a SubmitHandler.
func NewSubmitHandler(submitter services.SubmitService, logger *zap.Logger) *SubmitHandler {
	return &SubmitHandler{submitter: submitter, logger: logger.Named("submit-handler")}
}

// RegisterRoutes registers POST /v1/submit. limit may be nil.
func (h *SubmitHandler) RegisterRoutes(mux *http.ServeMux, limit RouteMiddleware) {
	if limit == nil {
		limit = passthrough
	}
	mux.HandleFunc("POST /v1/submit", limit(h.Submit))
}

// Submit handles POST /v1/submit
func (h *SubmitHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeJSON(w, r, maxBodyBytes, &req, h.logger) {
		return
	}

	result, err := h.submitter.Submit(r.Context(), req.Domain)
	if err != nil {
		writeServiceError(w, h.logger, err, "Submit")
		return
	}

	resp := SubmitResponse{
		Success:   true,
		Domain:    result.Domain,
		Entity:    result.Entity,
		MCPsCount: result.MCPsCount,
	}
	if result.Reindexed {
		resp.Message = msgReindexed
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
