package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Messages returned on 401.
const (
	msgBadHeader          = "Missing or invalid Authorization header. Use: Bearer <api_key>"
	msgInvalidCredentials = "Invalid API key or provider not verified"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireProvider authenticates the caller as a verified provider and stores
// it in the request context. allowJWT additionally accepts dashboard JWTs.
func (m *Middleware) RequireProvider(allowJWT bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			provider, method, err := m.authService.Authenticate(r, allowJWT)
			if err != nil {
				switch {
				case errors.Is(err, ErrMissingAuthorization), errors.Is(err, ErrInvalidAuthFormat):
					m.unauthorized(w, msgBadHeader)
				case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrProviderNotVerified), errors.Is(err, ErrJWTNotAccepted):
					m.unauthorized(w, msgInvalidCredentials)
				default:
					m.logger.Error("Provider authentication failed", zap.Error(err))
					m.internalError(w)
				}
				return
			}

			next(w, r.WithContext(WithProvider(r.Context(), provider, method)))
		}
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	m.write(w, http.StatusUnauthorized, message)
}

func (m *Middleware) internalError(w http.ResponseWriter) {
	m.write(w, http.StatusInternalServerError, "Internal server error")
}

func (m *Middleware) write(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		m.logger.Error("Failed to write auth error response", zap.Error(err))
	}
}
