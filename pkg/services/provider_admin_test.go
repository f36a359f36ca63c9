package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/auth"
	"github.com/dock-ai/registry/pkg/database"
)

func TestProviderAdmin_CreateStoresOnlyKeyHash(t *testing.T) {
	repo := newMockProviderRepository()
	svc := NewProviderAdminService(database.NoopScopeFunc, repo, zap.NewNop())

	p, key, err := svc.Create(context.Background(), NewProviderInput{
		ID:             "sevenrooms",
		Name:           "SevenRooms",
		Endpoint:       "HTTPS://MCP.SevenRooms.com/mcp/",
		ProviderDomain: "SevenRooms.com",
		Capabilities:   []string{"reservations", "availability", "reservations"},
		Trusted:        true,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, auth.APIKeyPrefix))
	assert.Equal(t, "https://mcp.sevenrooms.com/mcp", p.Endpoint)
	assert.Equal(t, "sevenrooms.com", p.ProviderDomain)
	assert.Equal(t, []string{"reservations", "availability"}, p.Capabilities)

	stored, err := repo.GetByAPIKeyHash(context.Background(), auth.HashAPIKey(key))
	require.NoError(t, err)
	assert.Equal(t, "sevenrooms", stored.ID)
	assert.NotEqual(t, key, stored.APIKeyHash)

	_, _, err = svc.Create(context.Background(), NewProviderInput{ID: "sevenrooms", Name: "Again", Endpoint: "https://x.com"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestProviderAdmin_CreateValidates(t *testing.T) {
	svc := NewProviderAdminService(database.NoopScopeFunc, newMockProviderRepository(), zap.NewNop())

	_, _, err := svc.Create(context.Background(), NewProviderInput{
		ID:           "Seven Rooms",
		Endpoint:     "ftp://mcp.example.com",
		Capabilities: []string{"Bad Cap"},
	})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"id", "name", "endpoint", "capabilities"} {
		assert.Contains(t, verr.Details, field)
	}
}

func TestProviderAdmin_FlagsAndRotation(t *testing.T) {
	repo := newMockProviderRepository()
	svc := NewProviderAdminService(database.NoopScopeFunc, repo, zap.NewNop())
	ctx := context.Background()

	_, oldKey, err := svc.Create(ctx, NewProviderInput{ID: "zenchef", Name: "Zenchef", Endpoint: "https://mcp.zenchef.com"})
	require.NoError(t, err)

	require.NoError(t, svc.SetTrusted(ctx, "zenchef", true))
	require.NoError(t, svc.SetVerified(ctx, "zenchef", true))
	p, err := repo.GetByID(ctx, "zenchef")
	require.NoError(t, err)
	assert.True(t, p.Trusted)
	assert.True(t, p.Verified)

	newKey, err := svc.RotateKey(ctx, "zenchef")
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)
	_, err = repo.GetByAPIKeyHash(ctx, auth.HashAPIKey(oldKey))
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "the old key stops working")

	assert.ErrorIs(t, svc.SetTrusted(ctx, "missing", true), apperrors.ErrNotFound)
	_, err = svc.RotateKey(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
