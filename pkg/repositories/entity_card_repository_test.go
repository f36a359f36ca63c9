//go:build integration

package repositories

import (
	"errors"
	"testing"
	"time"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/models"
)

func testIndexedCard(domain string, fetchedAt time.Time) *models.IndexedCard {
	prio := 10
	return &models.IndexedCard{
		Domain:    domain,
		FetchedAt: fetchedAt,
		Card: &models.EntityCard{
			SchemaVersion: models.EntityCardSchemaVersion,
			Domain:        domain,
			Entities: []models.CardEntity{{
				Name: "Venue",
				Path: "/",
				MCPs: []models.CardMCP{{Provider: "sevenrooms", Endpoint: "https://mcp.sevenrooms.com/mcp", Priority: &prio}},
			}},
		},
	}
}

func TestEntityCardRepository_UpsertAndGet(t *testing.T) {
	tc := setupRegistryTest(t)
	ctx, cleanup := tc.unscoped()
	defer cleanup()

	fetched := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	existed, err := tc.cards.Upsert(ctx, testIndexedCard("a.com", fetched))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if existed {
		t.Error("first upsert must report a new card")
	}

	existed, err = tc.cards.Upsert(ctx, testIndexedCard("a.com", time.Now()))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !existed {
		t.Error("second upsert must report an existing card")
	}

	got, err := tc.cards.Get(ctx, "a.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Card.Entities[0].MCPs[0].PriorityValue() != 10 {
		t.Errorf("card not round-tripped: %+v", got.Card)
	}
	if !got.UpdatedAt.After(got.IndexedAt) && !got.UpdatedAt.Equal(got.IndexedAt) {
		t.Errorf("updated_at %v before indexed_at %v", got.UpdatedAt, got.IndexedAt)
	}

	ok, err := tc.cards.Exists(ctx, "a.com")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true", ok, err)
	}
	ok, err = tc.cards.Exists(ctx, "b.com")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v; want false", ok, err)
	}

	if _, err := tc.cards.Get(ctx, "b.com"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEntityCardRepository_ListStale(t *testing.T) {
	tc := setupRegistryTest(t)
	ctx, cleanup := tc.unscoped()
	defer cleanup()

	now := time.Now()
	for domain, age := range map[string]time.Duration{"old.com": 3 * time.Hour, "older.com": 5 * time.Hour, "fresh.com": time.Minute} {
		if _, err := tc.cards.Upsert(ctx, testIndexedCard(domain, now.Add(-age))); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	stale, err := tc.cards.ListStale(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListStale failed: %v", err)
	}
	if len(stale) != 2 || stale[0] != "older.com" || stale[1] != "old.com" {
		t.Errorf("expected [older.com old.com], got %v", stale)
	}

	if err := tc.cards.Delete(ctx, "old.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := tc.cards.Delete(ctx, "old.com"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
