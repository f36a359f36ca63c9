package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

// ProviderRepository defines data access for providers.
type ProviderRepository interface {
	Create(ctx context.Context, provider *models.Provider) error
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Provider, error)
	List(ctx context.Context) ([]*models.Provider, error)
	SetFlags(ctx context.Context, id string, trusted, verified *bool) error
	SetAPIKeyHash(ctx context.Context, id, hash string) error
}

type providerRepository struct{}

// NewProviderRepository creates a new provider repository.
func NewProviderRepository() ProviderRepository {
	return &providerRepository{}
}

const providerColumns = `id, name, endpoint, COALESCE(provider_domain, ''), capabilities,
	trusted, verified, COALESCE(api_key_hash, ''), created_at, updated_at`

func (r *providerRepository) Create(ctx context.Context, provider *models.Provider) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	now := time.Now()
	provider.CreatedAt = now
	provider.UpdatedAt = now
	if provider.Capabilities == nil {
		provider.Capabilities = []string{}
	}

	query := `
		INSERT INTO providers (id, name, endpoint, provider_domain, capabilities, trusted, verified, api_key_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	_, err := scope.Conn.Exec(ctx, query,
		provider.ID,
		provider.Name,
		provider.Endpoint,
		nullableString(provider.ProviderDomain),
		provider.Capabilities,
		provider.Trusted,
		provider.Verified,
		nullableString(provider.APIKeyHash),
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("provider %q: %w", provider.ID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

func (r *providerRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	return scanProvider(row)
}

func (r *providerRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Provider, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE api_key_hash = $1`, hash)
	return scanProvider(row)
}

func (r *providerRepository) List(ctx context.Context) ([]*models.Provider, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate providers: %w", err)
	}
	return providers, nil
}

// SetFlags updates the trusted and verified flags. Nil leaves a flag unchanged.
func (r *providerRepository) SetFlags(ctx context.Context, id string, trusted, verified *bool) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE providers
		SET trusted = COALESCE($2, trusted),
		    verified = COALESCE($3, verified),
		    updated_at = now()
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query, id, trusted, verified)
	if err != nil {
		return fmt.Errorf("failed to update provider flags: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetAPIKeyHash replaces the provider's API key hash, revoking the old key.
func (r *providerRepository) SetAPIKeyHash(ctx context.Context, id, hash string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE providers SET api_key_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to rotate api key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanProvider(row pgx.Row) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(
		&p.ID, &p.Name, &p.Endpoint, &p.ProviderDomain, &p.Capabilities,
		&p.Trusted, &p.Verified, &p.APIKeyHash, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan provider: %w", err)
	}
	return &p, nil
}

var _ ProviderRepository = (*providerRepository)(nil)
