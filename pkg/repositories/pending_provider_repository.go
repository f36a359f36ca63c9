package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

// PendingProviderRepository stores providers detected on a domain's website.
type PendingProviderRepository interface {
	// Replace swaps the detected providers of domain for hints.
	Replace(ctx context.Context, domain string, hints []models.PendingProvider) error
	ListByDomain(ctx context.Context, domain string) ([]models.PendingProvider, error)
}

type pendingProviderRepository struct{}

// NewPendingProviderRepository creates a new pending provider repository.
func NewPendingProviderRepository() PendingProviderRepository {
	return &pendingProviderRepository{}
}

func (r *pendingProviderRepository) Replace(ctx context.Context, domain string, hints []models.PendingProvider) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx, `DELETE FROM pending_providers WHERE domain = $1`, domain); err != nil {
		return fmt.Errorf("failed to clear pending providers: %w", err)
	}

	now := time.Now()
	for i, h := range hints {
		_, err := tx.Exec(ctx, `
			INSERT INTO pending_providers (domain, provider, provider_domain, capabilities, position, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (domain, provider) DO NOTHING`,
			domain, h.Provider, h.ProviderDomain, nonNilStrings(h.Capabilities), i, now)
		if err != nil {
			return fmt.Errorf("failed to insert pending provider %q: %w", h.Provider, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *pendingProviderRepository) ListByDomain(ctx context.Context, domain string) ([]models.PendingProvider, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT provider_domain, provider, capabilities
		FROM pending_providers
		WHERE domain = $1
		ORDER BY position`, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending providers: %w", err)
	}
	defer rows.Close()

	var hints []models.PendingProvider
	for rows.Next() {
		var h models.PendingProvider
		if err := rows.Scan(&h.ProviderDomain, &h.Provider, &h.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to scan pending provider: %w", err)
		}
		hints = append(hints, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending providers: %w", err)
	}
	return hints, nil
}

var _ PendingProviderRepository = (*pendingProviderRepository)(nil)
