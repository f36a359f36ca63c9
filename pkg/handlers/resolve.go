package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/services"
	"github.com/dock-ai/registry/pkg/validation"
)

// NotFoundResponse is the 404 body of a resolve for an unknown domain.
type NotFoundResponse struct {
	Error  string `json:"error"`
	Domain string `json:"domain"`
}

// RouteMiddleware wraps a route handler, e.g. with rate limiting.
type RouteMiddleware func(http.HandlerFunc) http.HandlerFunc

func passthrough(next http.HandlerFunc) http.HandlerFunc { return next }

// ResolveHandler serves domain resolution to agents.
type ResolveHandler struct {
	resolver services.ResolutionService
	logger   *zap.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(resolver services.ResolutionService, logger *zap.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: resolver, logger: logger.Named("resolve-handler")}
}

// RegisterRoutes registers GET /v1/resolve/domain/{domain}. limit may be nil.
func (h *ResolveHandler) RegisterRoutes(mux *http.ServeMux, limit RouteMiddleware) {
	if limit == nil {
		limit = passthrough
	}
	mux.HandleFunc("GET /v1/resolve/domain/{domain}", limit(h.Resolve))
}

// Resolve handles GET /v1/resolve/domain/{domain}?path=
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	path := r.URL.Query().Get("path")

	result, err := h.resolver.Resolve(r.Context(), domain, path)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			body := NotFoundResponse{Error: "Entity not found", Domain: domain}
			if normalized, nerr := validation.NormalizeDomain(domain); nerr == nil {
				body.Domain = normalized
			}
			if err := WriteJSON(w, http.StatusNotFound, body); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
			return
		}
		writeServiceError(w, h.logger, err, "Resolve")
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
