package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/database"
)

const (
	// PostgresImage is the PostgreSQL image integration tests run against.
	PostgresImage = "postgres:16-alpine"
	// RedisImage is the Redis image used by cache integration tests.
	RedisImage = "redis:7-alpine"

	superUser     = "dockai"
	superPassword = "test_password"
	testDatabase  = "dockai_registry_test"

	// AppRole is the unprivileged role the registry connects as in tests, so
	// row level security applies exactly as in production.
	AppRole     = "registry_app"
	appPassword = "app_password"
)

// RegistryDB holds a migrated registry database. DB connects as AppRole and
// is subject to row level security; Admin connects as the owner and is meant
// for fixtures and cleanup.
type RegistryDB struct {
	Container testcontainers.Container
	DB        *database.DB
	Admin     *pgxpool.Pool
	ConnStr   string
}

var (
	sharedRegistryDB     *RegistryDB
	sharedRegistryDBOnce sync.Once
	sharedRegistryDBErr  error
)

// GetRegistryDB returns a shared PostgreSQL container with migrations applied.
// The container is created once and reused across all tests in the run.
func GetRegistryDB(t *testing.T) *RegistryDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRegistryDBOnce.Do(func() {
		sharedRegistryDB, sharedRegistryDBErr = setupRegistryDB()
	})

	if sharedRegistryDBErr != nil {
		t.Fatalf("Failed to setup registry database: %v", sharedRegistryDBErr)
	}

	return sharedRegistryDB
}

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func setupRegistryDB() (*RegistryDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     superUser,
			"POSTGRES_PASSWORD": superPassword,
		},
		// The entrypoint restarts postgres once after init scripts.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	adminConnStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		superUser, superPassword, host, port.Port(), testDatabase)

	admin, err := database.NewConnection(ctx, &database.Config{URL: adminConnStr, MaxConnections: 5})
	if err != nil {
		return nil, fmt.Errorf("failed to connect as owner: %w", err)
	}

	sqlDB := admin.SQLDB()
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, MigrationsPath(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	grants := []string{
		fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'", AppRole, appPassword),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO %s", AppRole),
		fmt.Sprintf("GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO %s", AppRole),
	}
	for _, stmt := range grants {
		if _, err := admin.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to prepare app role: %w", err)
		}
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		AppRole, appPassword, host, port.Port(), testDatabase)

	db, err := database.NewConnection(ctx, &database.Config{URL: connStr, MaxConnections: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to connect as app role: %w", err)
	}

	return &RegistryDB{
		Container: container,
		DB:        db,
		Admin:     admin.Pool,
		ConnStr:   connStr,
	}, nil
}

// Truncate empties every registry table.
func (r *RegistryDB) Truncate(t *testing.T) {
	t.Helper()
	_, err := r.Admin.Exec(context.Background(), `
		TRUNCATE providers, provider_entities, entity_cards, pending_providers,
		         sync_jobs, sync_job_payloads
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate registry tables: %v", err)
	}
}

var (
	sharedRedis     *redis.Client
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

// GetRedis returns a client for a shared Redis container.
func GetRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRedisOnce.Do(func() {
		sharedRedis, sharedRedisErr = setupRedis()
	})

	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup redis: %v", sharedRedisErr)
	}

	return sharedRedis
}

func setupRedis() (*redis.Client, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        RedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
