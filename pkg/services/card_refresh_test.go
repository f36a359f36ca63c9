package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

func TestCardRefresher_RunOnce(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	cards := newMockEntityCardRepository()
	pending := newMockPendingProviderRepository()
	source := newMockSource()

	index := func(domain string, age time.Duration) {
		cards.cards[domain] = &models.IndexedCard{Domain: domain, Card: &models.EntityCard{Domain: domain}, FetchedAt: now.Add(-age)}
	}
	index("fresh.com", time.Hour)
	index("valid.com", 48*time.Hour)
	index("moved.com", 72*time.Hour)
	index("broken.com", 96*time.Hour)
	index("down.com", 120*time.Hour)

	source.cards["valid.com"] = &models.EntityCard{Domain: "valid.com"}
	source.errs["moved.com"] = &apperrors.DomainMismatchError{Declared: "elsewhere.com", HostedOn: "moved.com"}
	source.errs["broken.com"] = &apperrors.InvalidCardError{Reason: "missing entities"}
	// down.com has no card: the fetch reports it unavailable.

	r := NewCardRefresher(database.NoopScopeFunc, cards, pending, source, nil,
		config.RefreshConfig{Schedule: "@every 1h", BatchSize: 10}, 24*time.Hour, zap.NewNop())
	r.indexer.now = func() time.Time { return now }

	stats, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RefreshStats{Checked: 4, Refreshed: 1, Removed: 2, Failed: 1}, stats)

	assert.Contains(t, cards.cards, "fresh.com")
	assert.Contains(t, cards.cards, "down.com", "unreachable cards stay indexed")
	assert.Equal(t, now, cards.cards["valid.com"].FetchedAt)
	assert.ElementsMatch(t, []string{"moved.com", "broken.com"}, cards.deleted)
	assert.ElementsMatch(t, []string{"moved.com", "broken.com"}, source.invalidated)
	assert.Zero(t, pending.replaced, "no detector configured")
}

func TestCardRefresher_BatchSizeTakesStalestFirst(t *testing.T) {
	now := time.Now()
	cards := newMockEntityCardRepository()
	source := newMockSource()
	for i, d := range []string{"a.com", "b.com", "c.com"} {
		cards.cards[d] = &models.IndexedCard{Domain: d, FetchedAt: now.Add(-time.Duration(48+i) * time.Hour)}
		source.cards[d] = &models.EntityCard{Domain: d}
	}

	r := NewCardRefresher(database.NoopScopeFunc, cards, newMockPendingProviderRepository(), source, nil,
		config.RefreshConfig{Schedule: "@every 1h", BatchSize: 2}, 24*time.Hour, zap.NewNop())

	stats, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Refreshed)
	assert.True(t, cards.cards["a.com"].FetchedAt.Before(now), "the least stale card waits for the next run")
}

func TestCardRefresher_StartRejectsBadSchedule(t *testing.T) {
	r := NewCardRefresher(database.NoopScopeFunc, newMockEntityCardRepository(), newMockPendingProviderRepository(),
		newMockSource(), nil, config.RefreshConfig{Schedule: "every now and then", BatchSize: 1}, time.Hour, zap.NewNop())
	require.Error(t, r.Start())

	r = NewCardRefresher(database.NoopScopeFunc, newMockEntityCardRepository(), newMockPendingProviderRepository(),
		newMockSource(), nil, config.RefreshConfig{Schedule: "@every 1h", BatchSize: 1}, time.Hour, zap.NewNop())
	require.NoError(t, r.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}
