package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

// Authentication errors. All of them wrap apperrors.ErrUnauthorized.
var (
	ErrMissingAuthorization = fmt.Errorf("%w: missing authorization", apperrors.ErrUnauthorized)
	ErrInvalidAuthFormat    = fmt.Errorf("%w: invalid authorization header format", apperrors.ErrUnauthorized)
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	ErrProviderNotVerified  = fmt.Errorf("%w: provider not verified", apperrors.ErrUnauthorized)
	ErrJWTNotAccepted       = fmt.Errorf("%w: endpoint requires an API key", apperrors.ErrUnauthorized)
)

// ProviderStore looks up providers by credential.
type ProviderStore interface {
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Provider, error)
	GetByID(ctx context.Context, id string) (*models.Provider, error)
}

// AuthService authenticates provider requests.
type AuthService interface {
	// Authenticate reads the Bearer credential of r and returns the verified
	// provider it belongs to. JWTs are only considered when allowJWT is set.
	Authenticate(r *http.Request, allowJWT bool) (*models.Provider, Method, error)
}

type authService struct {
	tokens    TokenValidator
	providers ProviderStore
	scope     database.ScopeFunc
	logger    *zap.Logger
}

// NewAuthService creates an AuthService. tokens may be nil, in which case only
// API keys are accepted.
func NewAuthService(tokens TokenValidator, providers ProviderStore, scope database.ScopeFunc, logger *zap.Logger) AuthService {
	return &authService{
		tokens:    tokens,
		providers: providers,
		scope:     scope,
		logger:    logger.Named("auth"),
	}
}

func (s *authService) Authenticate(r *http.Request, allowJWT bool) (*models.Provider, Method, error) {
	credential, err := bearerCredential(r)
	if err != nil {
		s.logger.Debug("Rejected Authorization header",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return nil, "", err
	}

	ctx, done, err := s.scope(r.Context(), "")
	if err != nil {
		return nil, "", fmt.Errorf("acquire connection: %w", err)
	}
	defer done()

	var (
		provider *models.Provider
		method   Method
	)
	if LooksLikeAPIKey(credential) {
		method = MethodAPIKey
		provider, err = s.providers.GetByAPIKeyHash(ctx, HashAPIKey(credential))
	} else {
		method = MethodJWT
		provider, err = s.providerFromJWT(ctx, credential, allowJWT)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, method, ErrInvalidCredentials
		}
		return nil, method, err
	}

	if !provider.Verified {
		s.logger.Info("Unverified provider attempted to authenticate",
			zap.String("provider", provider.ID),
			zap.String("method", string(method)))
		return nil, method, ErrProviderNotVerified
	}

	return provider, method, nil
}

func (s *authService) providerFromJWT(ctx context.Context, token string, allowJWT bool) (*models.Provider, error) {
	if !allowJWT || s.tokens == nil {
		return nil, ErrJWTNotAccepted
	}

	claims, err := s.tokens.ValidateToken(ctx, token)
	if err != nil {
		s.logger.Debug("JWT validation failed", zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if claims.ProviderID == "" {
		return nil, ErrInvalidCredentials
	}

	return s.providers.GetByID(ctx, claims.ProviderID)
}

// bearerCredential extracts the credential of an "Authorization: Bearer" header.
func bearerCredential(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthorization
	}

	scheme, credential, ok := strings.Cut(header, " ")
	credential = strings.TrimSpace(credential)
	if !ok || !strings.EqualFold(scheme, "Bearer") || credential == "" {
		return "", ErrInvalidAuthFormat
	}
	return credential, nil
}

var _ AuthService = (*authService)(nil)
