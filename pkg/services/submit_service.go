package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/discovery"
	"github.com/dock-ai/registry/pkg/entitycard"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/repositories"
	"github.com/dock-ai/registry/pkg/validation"
)

// SubmittedEntity summarizes the first entity of an indexed card.
type SubmittedEntity struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	VerificationLevel int       `json:"verification_level"`
}

// SubmitResult is the outcome of indexing a domain's Entity Card.
type SubmitResult struct {
	Domain    string
	Entity    SubmittedEntity
	MCPsCount int
	// Reindexed is set when the domain was already indexed.
	Reindexed bool
}

// SubmitService indexes Entity Cards submitted by domain owners.
type SubmitService interface {
	// Submit fetches the card of domain bypassing the cache, validates it and
	// indexes it. Unavailable, invalid or mismatched cards are returned as
	// errors and nothing is stored.
	Submit(ctx context.Context, domain string) (*SubmitResult, error)
}

// cardIndexer stores a validated card and refreshes the pending providers
// detected on the domain's homepage. Detection failures are logged only.
type cardIndexer struct {
	scope    database.ScopeFunc
	cards    repositories.EntityCardRepository
	pending  repositories.PendingProviderRepository
	detector discovery.Detector
	logger   *zap.Logger
	now      func() time.Time
}

func (ix *cardIndexer) index(ctx context.Context, domain string, card *models.EntityCard) (bool, error) {
	var hints []models.PendingProvider
	detected := false
	if ix.detector != nil {
		found, err := ix.detector.Detect(ctx, domain)
		if err != nil {
			ix.logger.Warn("Pending provider detection failed", zap.String("domain", domain), zap.Error(err))
		} else {
			hints, detected = found, true
		}
	}

	ctx, cleanup, err := ix.scope(ctx, "")
	if err != nil {
		return false, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	existed, err := ix.cards.Upsert(ctx, &models.IndexedCard{
		Domain:    domain,
		Card:      card,
		FetchedAt: ix.now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to index entity card: %w", err)
	}
	if detected {
		if err := ix.pending.Replace(ctx, domain, hints); err != nil {
			return existed, fmt.Errorf("failed to store pending providers: %w", err)
		}
	}
	return existed, nil
}

type submitService struct {
	indexer  *cardIndexer
	source   entitycard.Source
	entities repositories.ProviderEntityRepository
	logger   *zap.Logger
}

// NewSubmitService creates a SubmitService. detector may be nil to disable
// pending provider detection.
func NewSubmitService(
	scope database.ScopeFunc,
	cards repositories.EntityCardRepository,
	pending repositories.PendingProviderRepository,
	entities repositories.ProviderEntityRepository,
	source entitycard.Source,
	detector discovery.Detector,
	logger *zap.Logger,
) SubmitService {
	named := logger.Named("submit")
	return &submitService{
		indexer: &cardIndexer{
			scope:    scope,
			cards:    cards,
			pending:  pending,
			detector: detector,
			logger:   named,
			now:      time.Now,
		},
		source:   source,
		entities: entities,
		logger:   named,
	}
}

var _ SubmitService = (*submitService)(nil)

func (s *submitService) Submit(ctx context.Context, rawDomain string) (*SubmitResult, error) {
	domain, err := validation.CheckSubmitRequest(rawDomain)
	if err != nil {
		return nil, err
	}

	card, err := s.source.FetchFresh(ctx, domain)
	if err != nil {
		s.logger.Info("Entity card rejected", zap.String("domain", domain), zap.Error(err))
		return nil, err
	}

	existed, err := s.indexer.index(ctx, domain, card)
	if err != nil {
		return nil, err
	}

	regs, err := s.registrations(ctx, domain)
	if err != nil {
		return nil, err
	}
	merged := MergeDomain(domain, card, regs, nil)

	result := &SubmitResult{Domain: domain, Reindexed: existed}
	for i := range merged {
		result.MCPsCount += len(merged[i].MCPs)
	}
	if len(merged) > 0 {
		first := merged[0]
		result.Entity = SubmittedEntity{ID: first.ID, Name: first.Name, VerificationLevel: first.VerificationLevel}
	}

	s.logger.Info("Entity card indexed",
		zap.String("domain", domain),
		zap.Bool("reindexed", existed),
		zap.Int("entities", len(card.Entities)),
		zap.Int("mcps", result.MCPsCount))
	return result, nil
}

func (s *submitService) registrations(ctx context.Context, domain string) ([]*models.Registration, error) {
	ctx, cleanup, err := s.indexer.scope(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	regs, err := s.entities.ListRegistrationsByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}
	return regs, nil
}
