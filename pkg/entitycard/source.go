package entitycard

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dock-ai/registry/pkg/models"
)

// Source gives the resolution and submission paths access to Entity Cards.
type Source interface {
	// Lookup returns the card of domain, or nil when none is available. Fetch
	// failures, timeouts and invalid cards all degrade to nil.
	Lookup(ctx context.Context, domain string) *models.EntityCard

	// FetchFresh bypasses the cache and reports why a card is unusable.
	// A successful fetch refreshes the cache.
	FetchFresh(ctx context.Context, domain string) (*models.EntityCard, error)

	// Invalidate drops the cached outcome for domain.
	Invalidate(ctx context.Context, domain string)
}

// CachedSource is a Source backed by a Fetcher and a Cache. Concurrent
// lookups of one domain share a single outbound fetch.
type CachedSource struct {
	fetcher     Fetcher
	cache       Cache
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
	logger      *zap.Logger
	now         func() time.Time
}

// NewCachedSource creates a CachedSource. Successful fetches are cached for
// ttl and failures for negativeTTL.
func NewCachedSource(fetcher Fetcher, cache Cache, ttl, negativeTTL time.Duration, logger *zap.Logger) *CachedSource {
	return &CachedSource{
		fetcher:     fetcher,
		cache:       cache,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		logger:      logger.Named("entitycard-source"),
		now:         time.Now,
	}
}

func (s *CachedSource) Lookup(ctx context.Context, domain string) *models.EntityCard {
	entry, ok, err := s.cache.Get(ctx, domain)
	if err != nil {
		s.logger.Warn("Entity card cache read failed", zap.String("domain", domain), zap.Error(err))
	}
	if ok {
		return entry.Card
	}

	v, _, _ := s.group.Do(domain, func() (any, error) {
		// One caller's cancellation must not fail the fetch shared with others;
		// the HTTP client timeout still bounds it.
		fetchCtx := context.WithoutCancel(ctx)

		// A flight that finished between our cache read and Do already stored it.
		if entry, ok, _ := s.cache.Get(fetchCtx, domain); ok {
			return entry.Card, nil
		}

		card, err := s.fetcher.Fetch(fetchCtx, domain)
		entry := &CacheEntry{Card: card, FetchedAt: s.now()}
		ttl := s.ttl
		if err != nil {
			s.logger.Warn("Entity card unavailable, resolving without it",
				zap.String("domain", domain),
				zap.Error(err))
			entry = &CacheEntry{Failure: err.Error(), FetchedAt: s.now()}
			ttl = s.negativeTTL
		}
		if ttl > 0 {
			if err := s.cache.Set(fetchCtx, domain, entry, ttl); err != nil {
				s.logger.Warn("Entity card cache write failed", zap.String("domain", domain), zap.Error(err))
			}
		}
		return entry.Card, nil
	})

	card, _ := v.(*models.EntityCard)
	return card
}

func (s *CachedSource) FetchFresh(ctx context.Context, domain string) (*models.EntityCard, error) {
	card, err := s.fetcher.Fetch(ctx, domain)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, domain, &CacheEntry{Card: card, FetchedAt: s.now()}, s.ttl); err != nil {
		s.logger.Warn("Entity card cache write failed", zap.String("domain", domain), zap.Error(err))
	}
	return card, nil
}

func (s *CachedSource) Invalidate(ctx context.Context, domain string) {
	if err := s.cache.Delete(ctx, domain); err != nil {
		s.logger.Warn("Entity card cache delete failed", zap.String("domain", domain), zap.Error(err))
	}
}

var _ Source = (*CachedSource)(nil)
