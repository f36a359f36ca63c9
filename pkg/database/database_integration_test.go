//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/testhelpers"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	rdb := testhelpers.GetRegistryDB(t)

	sqlDB := stdlib.OpenDBFromPool(rdb.Admin)
	defer sqlDB.Close()

	require.NoError(t, database.RunMigrations(sqlDB, testhelpers.MigrationsPath(), zaptest.NewLogger(t)))
}

func TestNewScopeFunc_SetsProviderContext(t *testing.T) {
	rdb := testhelpers.GetRegistryDB(t)
	scopeFunc := database.NewScopeFunc(rdb.DB)

	ctx, cleanup, err := scopeFunc(context.Background(), "sevenrooms")
	require.NoError(t, err)
	defer cleanup()

	scope, ok := database.GetScope(ctx)
	require.True(t, ok)
	assert.Equal(t, "sevenrooms", scope.ProviderID)

	var current string
	err = scope.Conn.QueryRow(ctx, "SELECT current_setting('app.current_provider_id', true)").Scan(&current)
	require.NoError(t, err)
	assert.Equal(t, "sevenrooms", current)
}

func TestNewScopeFunc_Unscoped(t *testing.T) {
	rdb := testhelpers.GetRegistryDB(t)
	scopeFunc := database.NewScopeFunc(rdb.DB)

	ctx, cleanup, err := scopeFunc(context.Background(), "")
	require.NoError(t, err)
	defer cleanup()

	scope, ok := database.GetScope(ctx)
	require.True(t, ok)
	assert.Empty(t, scope.ProviderID)

	var current string
	err = scope.Conn.QueryRow(ctx, "SELECT coalesce(current_setting('app.current_provider_id', true), '')").Scan(&current)
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestWithProvider_RequiresID(t *testing.T) {
	rdb := testhelpers.GetRegistryDB(t)

	_, err := rdb.DB.WithProvider(context.Background(), "")
	assert.Error(t, err)
}
