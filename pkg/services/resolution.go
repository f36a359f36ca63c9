package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/entitycard"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/repositories"
	"github.com/dock-ai/registry/pkg/validation"
)

// ResolutionService resolves business domains to the MCP endpoints serving them.
type ResolutionService interface {
	// Resolve returns the entities at domain, optionally filtered to one path.
	// A domain with neither registrations nor an indexed Entity Card yields
	// apperrors.ErrNotFound; a known domain whose path filter matches nothing
	// yields an empty entity list.
	Resolve(ctx context.Context, domain, path string) (*models.ResolveResult, error)
}

type resolutionService struct {
	scope    database.ScopeFunc
	entities repositories.ProviderEntityRepository
	cards    repositories.EntityCardRepository
	pending  repositories.PendingProviderRepository
	source   entitycard.Source
	logger   *zap.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(
	scope database.ScopeFunc,
	entities repositories.ProviderEntityRepository,
	cards repositories.EntityCardRepository,
	pending repositories.PendingProviderRepository,
	source entitycard.Source,
	logger *zap.Logger,
) ResolutionService {
	return &resolutionService{
		scope:    scope,
		entities: entities,
		cards:    cards,
		pending:  pending,
		source:   source,
		logger:   logger.Named("resolution"),
	}
}

var _ ResolutionService = (*resolutionService)(nil)

// domainFacts is what the store knows about a domain.
type domainFacts struct {
	registrations []*models.Registration
	indexed       bool
	pending       []models.PendingProvider
}

func (s *resolutionService) Resolve(ctx context.Context, domain, path string) (*models.ResolveResult, error) {
	domain, err := normalizeResolveDomain(domain)
	if err != nil {
		return nil, err
	}
	var pathFilter string
	if path != "" {
		if pathFilter, err = validation.NormalizePath(path); err != nil {
			verr := apperrors.NewValidationError("Invalid request")
			verr.Add("path", "Invalid path")
			verr.Cause = err
			return nil, verr
		}
	}

	facts, err := s.loadFacts(ctx, domain)
	if err != nil {
		return nil, err
	}
	if len(facts.registrations) == 0 && !facts.indexed {
		return nil, fmt.Errorf("domain %s: %w", domain, apperrors.ErrNotFound)
	}

	// The connection is released before the outbound fetch.
	card := s.source.Lookup(ctx, domain)

	entities := MergeDomain(domain, card, facts.registrations, facts.pending)
	if pathFilter != "" {
		filtered := make([]models.ResolvedEntity, 0, 1)
		for _, e := range entities {
			if e.Path == pathFilter {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}

	result := &models.ResolveResult{Domain: domain, Entities: entities}
	s.logger.Debug("Resolved domain",
		zap.String("domain", domain),
		zap.String("path", pathFilter),
		zap.Bool("card", card != nil),
		zap.Int("entities", len(entities)),
		zap.Int("mcps", result.MCPCount()))
	return result, nil
}

func (s *resolutionService) loadFacts(ctx context.Context, domain string) (*domainFacts, error) {
	ctx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	regs, err := s.entities.ListRegistrationsByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}
	indexed, err := s.cards.Exists(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to check indexed card: %w", err)
	}
	if len(regs) == 0 && !indexed {
		return &domainFacts{}, nil
	}
	pending, err := s.pending.ListByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending providers: %w", err)
	}
	return &domainFacts{registrations: regs, indexed: indexed, pending: pending}, nil
}

func normalizeResolveDomain(raw string) (string, error) {
	domain, err := validation.NormalizeDomain(raw)
	if err != nil {
		verr := apperrors.NewValidationError("Invalid request")
		verr.Add("domain", "Invalid domain")
		verr.Cause = err
		return "", verr
	}
	return domain, nil
}
