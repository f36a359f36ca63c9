package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/logging"
)

// Request body caps. Full syncs carry whole provider catalogs.
const (
	maxBodyBytes     = 1 << 20
	maxSyncBodyBytes = 64 << 20
)

const msgInternalError = "Internal server error"

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error   string              `json:"error"`
	Details map[string][]string `json:"details,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, ErrorBody{Error: message})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error to its HTTP response. Unexpected
// errors are logged and answered with a generic 500; their text never
// reaches the client.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, op string) {
	status, body := classifyError(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", logging.Error(err))
	}
	if werr := WriteJSON(w, status, body); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

func classifyError(err error) (int, ErrorBody) {
	var (
		verr     *apperrors.ValidationError
		mismatch *apperrors.DomainMismatchError
		missing  *apperrors.CardUnavailableError
		invalid  *apperrors.InvalidCardError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorBody{Error: verr.Message, Details: verr.Details}
	case errors.As(err, &mismatch):
		return http.StatusBadRequest, ErrorBody{Error: mismatch.Error()}
	case errors.As(err, &missing):
		return http.StatusBadRequest, ErrorBody{Error: missing.Error()}
	case errors.As(err, &invalid):
		return http.StatusBadRequest, ErrorBody{Error: invalid.Error()}
	case errors.Is(err, apperrors.ErrTooManyOperations):
		return http.StatusBadRequest, ErrorBody{Error: "Too many operations"}
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorBody{Error: "Unauthorized"}
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Error: "Not found"}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: msgInternalError}
	}
}

// decodeJSON reads a JSON request body of at most limit bytes into dst. On
// failure it writes the 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		message := "Invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "Request body too large"
		}
		if err := ErrorResponse(w, http.StatusBadRequest, message); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}
