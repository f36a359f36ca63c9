package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/logging"
	"github.com/dock-ai/registry/pkg/services/workqueue"
)

// healthCheckTimeout bounds the dependency probe of /health.
const healthCheckTimeout = 2 * time.Second

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Database  string           `json:"database,omitempty"`
	SyncQueue *SyncQueueHealth `json:"sync_queue,omitempty"`
}

// SyncQueueHealth summarizes the background sync job queue.
type SyncQueueHealth struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
	Running int    `json:"running"`
	Failed  int    `json:"failed"`
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStatus reports the state of the sync job queue.
type QueueStatus interface {
	Progress() workqueue.Progress
	IsStopped() bool
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     Pinger
	queue  QueueStatus
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil to skip the
// database probe.
func NewHealthHandler(cfg *config.Config, db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// WithSyncQueue adds the sync job queue to /health. A stopped queue makes the
// instance unavailable.
func (h *HealthHandler) WithSyncQueue(q QueueStatus) *HealthHandler {
	h.queue = q
	return h
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests. It answers 503 when the database is
// unreachable or the sync queue has stopped.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := HealthResponse{Status: "ok"}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Health check: database unreachable", logging.Error(err))
			status = http.StatusServiceUnavailable
			resp = HealthResponse{Status: "unavailable", Database: "unreachable"}
		} else {
			resp.Database = "ok"
		}
	}

	if h.queue != nil {
		p := h.queue.Progress()
		q := &SyncQueueHealth{Status: "idle", Pending: p.Pending, Running: p.Running, Failed: p.Failed}
		switch {
		case h.queue.IsStopped():
			q.Status = "stopped"
			status = http.StatusServiceUnavailable
			resp.Status = "unavailable"
		case p.Busy():
			q.Status = "busy"
		}
		resp.SyncQueue = q
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		if err := ErrorResponse(w, http.StatusInternalServerError, "Failed to get hostname"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "dockai-registry",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
