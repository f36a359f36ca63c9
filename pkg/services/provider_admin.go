package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/auth"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/repositories"
	"github.com/dock-ai/registry/pkg/validation"
)

var providerIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,62}$`)

// NewProviderInput describes a provider being onboarded.
type NewProviderInput struct {
	ID             string
	Name           string
	Endpoint       string
	ProviderDomain string
	Capabilities   []string
	Trusted        bool
	Verified       bool
}

// ProviderAdminService onboards providers and manages their flags and keys.
// It backs the admin CLI.
type ProviderAdminService interface {
	// Create stores a provider and returns its API key. The key is shown once;
	// only its hash is kept.
	Create(ctx context.Context, in NewProviderInput) (*models.Provider, string, error)
	SetTrusted(ctx context.Context, id string, trusted bool) error
	SetVerified(ctx context.Context, id string, verified bool) error
	// RotateKey replaces the provider's API key and returns the new one.
	RotateKey(ctx context.Context, id string) (string, error)
	List(ctx context.Context) ([]*models.Provider, error)
}

type providerAdminService struct {
	scope     database.ScopeFunc
	providers repositories.ProviderRepository
	logger    *zap.Logger
}

// NewProviderAdminService creates a ProviderAdminService.
func NewProviderAdminService(scope database.ScopeFunc, providers repositories.ProviderRepository, logger *zap.Logger) ProviderAdminService {
	return &providerAdminService{
		scope:     scope,
		providers: providers,
		logger:    logger.Named("provider-admin"),
	}
}

var _ ProviderAdminService = (*providerAdminService)(nil)

func (s *providerAdminService) Create(ctx context.Context, in NewProviderInput) (*models.Provider, string, error) {
	p, err := newProvider(in)
	if err != nil {
		return nil, "", err
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}
	p.APIKeyHash = auth.HashAPIKey(key)

	ctx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return nil, "", fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	if err := s.providers.Create(ctx, p); err != nil {
		return nil, "", err
	}
	s.logger.Info("Provider created",
		zap.String("provider_id", p.ID),
		zap.String("endpoint", p.Endpoint),
		zap.Bool("trusted", p.Trusted),
		zap.Bool("verified", p.Verified))
	return p, key, nil
}

func newProvider(in NewProviderInput) (*models.Provider, error) {
	verr := apperrors.NewValidationError("Invalid provider")

	id := strings.TrimSpace(in.ID)
	if !providerIDPattern.MatchString(id) {
		verr.Add("id", "Must be a lowercase slug of 2-63 characters")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		verr.Add("name", "Required")
	}
	if err := validation.ValidateEndpoint(in.Endpoint); err != nil {
		verr.Add("endpoint", "Must be an absolute http(s) URL")
	}

	var domain string
	if strings.TrimSpace(in.ProviderDomain) != "" {
		d, err := validation.NormalizeDomain(in.ProviderDomain)
		if err != nil {
			verr.Add("provider_domain", "Invalid domain")
		}
		domain = d
	}

	caps, err := validation.NormalizeCapabilities(in.Capabilities)
	if err != nil {
		verr.Add("capabilities", err.Error())
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return &models.Provider{
		ID:             id,
		Name:           name,
		Endpoint:       validation.NormalizeEndpoint(in.Endpoint),
		ProviderDomain: domain,
		Capabilities:   caps,
		Trusted:        in.Trusted,
		Verified:       in.Verified,
	}, nil
}

func (s *providerAdminService) SetTrusted(ctx context.Context, id string, trusted bool) error {
	return s.setFlags(ctx, id, &trusted, nil)
}

func (s *providerAdminService) SetVerified(ctx context.Context, id string, verified bool) error {
	return s.setFlags(ctx, id, nil, &verified)
}

func (s *providerAdminService) setFlags(ctx context.Context, id string, trusted, verified *bool) error {
	ctx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	if err := s.providers.SetFlags(ctx, id, trusted, verified); err != nil {
		return err
	}
	fields := []zap.Field{zap.String("provider_id", id)}
	if trusted != nil {
		fields = append(fields, zap.Bool("trusted", *trusted))
	}
	if verified != nil {
		fields = append(fields, zap.Bool("verified", *verified))
	}
	s.logger.Info("Provider flags updated", fields...)
	return nil
}

func (s *providerAdminService) RotateKey(ctx context.Context, id string) (string, error) {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return "", err
	}

	ctx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	if err := s.providers.SetAPIKeyHash(ctx, id, auth.HashAPIKey(key)); err != nil {
		return "", err
	}
	s.logger.Info("Provider API key rotated", zap.String("provider_id", id))
	return key, nil
}

func (s *providerAdminService) List(ctx context.Context) ([]*models.Provider, error) {
	ctx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	return s.providers.List(ctx)
}
