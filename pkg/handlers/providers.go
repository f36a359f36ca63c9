package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/auth"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// SyncRequest for POST /v1/providers/sync
type SyncRequest struct {
	Entities []models.EntityInput `json:"entities"`
}

// SyncResponse for a synchronous full sync.
type SyncResponse struct {
	Success  bool                 `json:"success"`
	Async    bool                 `json:"async"`
	Provider string               `json:"provider"`
	Results  models.SyncResult    `json:"results"`
	Errors   []models.EntityError `json:"errors,omitempty"`
}

// AsyncSyncResponse for a full sync handed to a background job.
type AsyncSyncResponse struct {
	Async         bool                 `json:"async"`
	JobID         uuid.UUID            `json:"job_id"`
	Status        models.SyncJobStatus `json:"status"`
	TotalEntities int                  `json:"total_entities"`
	Message       string               `json:"message"`
}

// SyncJobResponse for GET /v1/providers/sync?job_id=
type SyncJobResponse struct {
	JobID             uuid.UUID            `json:"job_id"`
	Status            models.SyncJobStatus `json:"status"`
	TotalEntities     int                  `json:"total_entities"`
	ProcessedEntities int                  `json:"processed_entities"`
	Created           int                  `json:"created"`
	Updated           int                  `json:"updated"`
	Deleted           int                  `json:"deleted"`
	Unchanged         int                  `json:"unchanged"`
	Errors            int                  `json:"errors"`
	ErrorDetails      []models.EntityError `json:"error_details,omitempty"`
	Error             string               `json:"error,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
}

// RegisterRequest for POST /v1/providers/register
type RegisterRequest struct {
	Operations []models.Operation `json:"operations"`
}

// RegisterResponse for POST /v1/providers/register
type RegisterResponse struct {
	Success  bool                 `json:"success"`
	Provider string               `json:"provider"`
	Results  models.SyncResult    `json:"results"`
	Errors   []models.EntityError `json:"errors,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// ProviderHandler serves provider bulk ingestion.
type ProviderHandler struct {
	syncService services.SyncService
	logger      *zap.Logger
}

// NewProviderHandler creates a ProviderHandler.
func NewProviderHandler(syncService services.SyncService, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{syncService: syncService, logger: logger.Named("provider-handler")}
}

// RegisterRoutes registers the provider routes. Rate limits run after
// authentication so they are keyed by provider. syncLimit and registerLimit
// may be nil.
func (h *ProviderHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, syncLimit, registerLimit RouteMiddleware) {
	if syncLimit == nil {
		syncLimit = passthrough
	}
	if registerLimit == nil {
		registerLimit = passthrough
	}

	mux.HandleFunc("POST /v1/providers/sync",
		authMiddleware.RequireProvider(true)(syncLimit(h.Sync)))
	mux.HandleFunc("GET /v1/providers/sync",
		authMiddleware.RequireProvider(true)(syncLimit(h.GetJob)))
	mux.HandleFunc("POST /v1/providers/register",
		authMiddleware.RequireProvider(false)(registerLimit(h.Register)))
}

// Sync handles POST /v1/providers/sync
func (h *ProviderHandler) Sync(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	var req SyncRequest
	if !decodeJSON(w, r, maxSyncBodyBytes, &req, h.logger) {
		return
	}

	out, err := h.syncService.Sync(r.Context(), provider.ID, req.Entities)
	if err != nil {
		writeServiceError(w, h.logger, err, "Full sync")
		return
	}

	if out.Async {
		resp := AsyncSyncResponse{
			Async:         true,
			JobID:         out.Job.ID,
			Status:        out.Job.Status,
			TotalEntities: out.Job.TotalEntities,
			Message:       fmt.Sprintf("Processing %d entities in background", out.Job.TotalEntities),
		}
		if err := WriteJSON(w, http.StatusAccepted, resp); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	resp := SyncResponse{
		Success:  out.Success(),
		Async:    false,
		Provider: provider.ID,
		Results:  out.Result,
		Errors:   out.Errors,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetJob handles GET /v1/providers/sync?job_id=
func (h *ProviderHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("job_id")
	jobID, err := uuid.Parse(raw)
	if err != nil {
		verr := apperrors.NewValidationError("Invalid request")
		if raw == "" {
			verr.Add("job_id", "Required")
		} else {
			verr.Add("job_id", "Must be a UUID")
		}
		writeServiceError(w, h.logger, verr, "Get sync job")
		return
	}

	job, err := h.syncService.GetJob(r.Context(), provider.ID, jobID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Get sync job")
		return
	}

	resp := SyncJobResponse{
		JobID:             job.ID,
		Status:            job.Status,
		TotalEntities:     job.TotalEntities,
		ProcessedEntities: job.ProcessedEntities,
		Created:           job.Created,
		Updated:           job.Updated,
		Deleted:           job.Deleted,
		Unchanged:         job.Unchanged,
		Errors:            job.Errors,
		ErrorDetails:      job.ErrorDetails,
		Error:             job.FailureReason,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Register handles POST /v1/providers/register
func (h *ProviderHandler) Register(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	var req RegisterRequest
	if !decodeJSON(w, r, maxSyncBodyBytes, &req, h.logger) {
		return
	}

	out, err := h.syncService.Register(r.Context(), provider.ID, req.Operations)
	if err != nil {
		writeServiceError(w, h.logger, err, "Register")
		return
	}

	resp := RegisterResponse{
		Success:  out.Success(),
		Provider: provider.ID,
		Results:  out.Result,
		Errors:   out.Errors,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// provider returns the authenticated provider. Routes are always wrapped by
// RequireProvider, so a miss is a wiring bug.
func (h *ProviderHandler) provider(w http.ResponseWriter, r *http.Request) (*models.Provider, bool) {
	p, ok := auth.GetProvider(r.Context())
	if !ok {
		writeServiceError(w, h.logger, apperrors.ErrUnauthorized, "Provider lookup")
		return nil, false
	}
	return p, true
}
