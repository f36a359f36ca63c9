//go:build integration

package repositories

import (
	"errors"
	"testing"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/models"
)

func TestProviderRepository_CreateAndGet(t *testing.T) {
	tc := setupRegistryTest(t)
	tc.createProvider("sevenrooms", true)

	ctx, cleanup := tc.unscoped()
	defer cleanup()

	p, err := tc.providers.GetByID(ctx, "sevenrooms")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !p.Trusted || !p.Verified {
		t.Errorf("expected trusted and verified, got trusted=%v verified=%v", p.Trusted, p.Verified)
	}
	if len(p.Capabilities) != 1 || p.Capabilities[0] != "reservations" {
		t.Errorf("unexpected capabilities %v", p.Capabilities)
	}

	byKey, err := tc.providers.GetByAPIKeyHash(ctx, "hash-sevenrooms")
	if err != nil {
		t.Fatalf("GetByAPIKeyHash failed: %v", err)
	}
	if byKey.ID != "sevenrooms" {
		t.Errorf("expected sevenrooms, got %q", byKey.ID)
	}

	if _, err := tc.providers.GetByAPIKeyHash(ctx, "nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProviderRepository_CreateDuplicate(t *testing.T) {
	tc := setupRegistryTest(t)
	tc.createProvider("thefork", false)

	ctx, cleanup := tc.unscoped()
	defer cleanup()

	err := tc.providers.Create(ctx, &models.Provider{ID: "thefork", Name: "again", Endpoint: "https://x.com"})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestProviderRepository_FlagsAndKeyRotation(t *testing.T) {
	tc := setupRegistryTest(t)
	tc.createProvider("resy", false)

	ctx, cleanup := tc.unscoped()
	defer cleanup()

	trusted := true
	if err := tc.providers.SetFlags(ctx, "resy", &trusted, nil); err != nil {
		t.Fatalf("SetFlags failed: %v", err)
	}
	if err := tc.providers.SetAPIKeyHash(ctx, "resy", "new-hash"); err != nil {
		t.Fatalf("SetAPIKeyHash failed: %v", err)
	}

	p, err := tc.providers.GetByID(ctx, "resy")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !p.Trusted || !p.Verified {
		t.Errorf("expected trusted set and verified untouched, got %+v", p)
	}
	if _, err := tc.providers.GetByAPIKeyHash(ctx, "hash-resy"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("old key must be revoked, got %v", err)
	}

	if err := tc.providers.SetFlags(ctx, "missing", &trusted, nil); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := tc.providers.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 provider, got %d", len(all))
	}
}
