//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/testhelpers"
)

// registryTestContext holds test dependencies for repository tests.
type registryTestContext struct {
	t         *testing.T
	db        *testhelpers.RegistryDB
	providers ProviderRepository
	entities  ProviderEntityRepository
	cards     EntityCardRepository
	pending   PendingProviderRepository
	jobs      SyncJobRepository
}

// setupRegistryTest initializes the test context with the shared container
// and empty tables.
func setupRegistryTest(t *testing.T) *registryTestContext {
	db := testhelpers.GetRegistryDB(t)
	db.Truncate(t)
	return &registryTestContext{
		t:         t,
		db:        db,
		providers: NewProviderRepository(),
		entities:  NewProviderEntityRepository(),
		cards:     NewEntityCardRepository(),
		pending:   NewPendingProviderRepository(),
		jobs:      NewSyncJobRepository(),
	}
}

// unscoped returns a context with a read-all database scope.
func (tc *registryTestContext) unscoped() (context.Context, func()) {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.db.DB.WithoutProvider(ctx)
	if err != nil {
		tc.t.Fatalf("failed to create scope: %v", err)
	}
	return database.SetScope(ctx, scope), scope.Close
}

// scoped returns a context whose connection is bound to providerID.
func (tc *registryTestContext) scoped(providerID string) (context.Context, func()) {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.db.DB.WithProvider(ctx, providerID)
	if err != nil {
		tc.t.Fatalf("failed to create provider scope: %v", err)
	}
	return database.SetScope(ctx, scope), scope.Close
}

// createProvider inserts a verified provider.
func (tc *registryTestContext) createProvider(id string, trusted bool) *models.Provider {
	tc.t.Helper()
	ctx, cleanup := tc.unscoped()
	defer cleanup()

	p := &models.Provider{
		ID:           id,
		Name:         id,
		Endpoint:     "https://mcp." + id + ".com/mcp",
		Capabilities: []string{"reservations"},
		Trusted:      trusted,
		Verified:     true,
		APIKeyHash:   "hash-" + id,
	}
	if err := tc.providers.Create(ctx, p); err != nil {
		tc.t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

// replaceWith plans a changeset that upserts rows unconditionally.
func replaceWith(rows ...*models.ProviderEntity) models.PlanFunc {
	return func(current []*models.ProviderEntity) (*models.Changeset, error) {
		return &models.Changeset{Upserts: rows}, nil
	}
}
