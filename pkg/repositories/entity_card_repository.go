package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

// EntityCardRepository defines data access for indexed Entity Cards.
type EntityCardRepository interface {
	// Upsert stores the card and reports whether the domain was already indexed.
	Upsert(ctx context.Context, card *models.IndexedCard) (existed bool, err error)
	Get(ctx context.Context, domain string) (*models.IndexedCard, error)
	Exists(ctx context.Context, domain string) (bool, error)
	// ListStale returns up to limit domains last fetched before olderThan,
	// oldest first.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	Delete(ctx context.Context, domain string) error
}

type entityCardRepository struct{}

// NewEntityCardRepository creates a new Entity Card repository.
func NewEntityCardRepository() EntityCardRepository {
	return &entityCardRepository{}
}

func (r *entityCardRepository) Upsert(ctx context.Context, card *models.IndexedCard) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	doc, err := json.Marshal(card.Card)
	if err != nil {
		return false, fmt.Errorf("failed to marshal entity card: %w", err)
	}

	// xmax = 0 only for freshly inserted rows.
	query := `
		INSERT INTO entity_cards (domain, card, fetched_at, indexed_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (domain) DO UPDATE
		SET card = EXCLUDED.card,
		    fetched_at = EXCLUDED.fetched_at,
		    updated_at = now()
		RETURNING indexed_at, updated_at, (xmax <> 0)`

	var existed bool
	err = scope.Conn.QueryRow(ctx, query, card.Domain, doc, card.FetchedAt).
		Scan(&card.IndexedAt, &card.UpdatedAt, &existed)
	if err != nil {
		return false, fmt.Errorf("failed to upsert entity card: %w", err)
	}
	return existed, nil
}

func (r *entityCardRepository) Get(ctx context.Context, domain string) (*models.IndexedCard, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	var c models.IndexedCard
	var doc []byte
	err := scope.Conn.QueryRow(ctx, `
		SELECT domain, card, fetched_at, indexed_at, updated_at
		FROM entity_cards
		WHERE domain = $1`, domain).
		Scan(&c.Domain, &doc, &c.FetchedAt, &c.IndexedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity card: %w", err)
	}

	c.Card = &models.EntityCard{}
	if err := json.Unmarshal(doc, c.Card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity card: %w", err)
	}
	return &c, nil
}

func (r *entityCardRepository) Exists(ctx context.Context, domain string) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entity_cards WHERE domain = $1)`, domain).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entity card: %w", err)
	}
	return exists, nil
}

func (r *entityCardRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT domain
		FROM entity_cards
		WHERE fetched_at < $1
		ORDER BY fetched_at
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale entity cards: %w", err)
	}

	domains, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale entity cards: %w", err)
	}
	return domains, nil
}

func (r *entityCardRepository) Delete(ctx context.Context, domain string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM entity_cards WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("failed to delete entity card: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ EntityCardRepository = (*entityCardRepository)(nil)
