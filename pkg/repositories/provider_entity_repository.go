package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

// ProviderEntityRepository defines data access for provider-owned entity rows.
type ProviderEntityRepository interface {
	// ListByProvider returns the provider's slice in seq order.
	ListByProvider(ctx context.Context, providerID string) ([]*models.ProviderEntity, error)

	// ListRegistrationsByDomain returns every registration linked to domain,
	// joined with its provider, in seq order. It is a single statement, so
	// the result is one consistent snapshot.
	ListRegistrationsByDomain(ctx context.Context, domain string) ([]*models.Registration, error)

	// UpdateSlice locks the provider's slice, reads it, lets plan compute a
	// changeset against it and applies that changeset, all in one
	// transaction. Readers observe either the old or the new slice.
	UpdateSlice(ctx context.Context, providerID string, plan models.PlanFunc) (*models.Changeset, error)

	// CountByProvider returns the number of rows the provider owns.
	CountByProvider(ctx context.Context, providerID string) (int, error)
}

type providerEntityRepository struct{}

// NewProviderEntityRepository creates a new provider entity repository.
func NewProviderEntityRepository() ProviderEntityRepository {
	return &providerEntityRepository{}
}

const providerEntityColumns = `pe.provider_id, pe.entity_id, COALESCE(pe.domain, ''), COALESCE(pe.path, ''),
	pe.name, COALESCE(pe.category, ''), pe.location, pe.capabilities, pe.seq, pe.created_at, pe.updated_at`

func (r *providerEntityRepository) ListByProvider(ctx context.Context, providerID string) ([]*models.ProviderEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	return listByProvider(ctx, scope.Conn, providerID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listByProvider(ctx context.Context, q querier, providerID string) ([]*models.ProviderEntity, error) {
	query := `SELECT ` + providerEntityColumns + `
		FROM provider_entities pe
		WHERE pe.provider_id = $1
		ORDER BY pe.seq`

	rows, err := q.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.ProviderEntity
	for rows.Next() {
		var e models.ProviderEntity
		if err := scanProviderEntity(rows, &e); err != nil {
			return nil, err
		}
		entities = append(entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider entities: %w", err)
	}
	return entities, nil
}

func (r *providerEntityRepository) ListRegistrationsByDomain(ctx context.Context, domain string) ([]*models.Registration, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + providerEntityColumns + `, p.endpoint, p.capabilities, p.trusted
		FROM provider_entities pe
		JOIN providers p ON p.id = pe.provider_id
		WHERE pe.domain = $1
		ORDER BY pe.seq`

	rows, err := scope.Conn.Query(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var regs []*models.Registration
	for rows.Next() {
		var reg models.Registration
		var locationJSON []byte
		err := rows.Scan(
			&reg.ProviderID, &reg.EntityID, &reg.Domain, &reg.Path,
			&reg.Name, &reg.Category, &locationJSON, &reg.Capabilities, &reg.Seq,
			&reg.CreatedAt, &reg.UpdatedAt,
			&reg.Endpoint, &reg.ProviderCapabilities, &reg.Trusted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		if reg.Location, err = unmarshalLocation(locationJSON); err != nil {
			return nil, err
		}
		regs = append(regs, &reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}

func (r *providerEntityRepository) UpdateSlice(ctx context.Context, providerID string, plan models.PlanFunc) (*models.Changeset, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Serializes writers of one provider across registry instances.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, providerID); err != nil {
		return nil, fmt.Errorf("failed to lock provider slice: %w", err)
	}

	current, err := listByProvider(ctx, tx, providerID)
	if err != nil {
		return nil, err
	}

	cs, err := plan(current)
	if err != nil {
		return nil, err
	}
	if cs.IsEmpty() {
		return cs, nil
	}

	if len(cs.Deletes) > 0 {
		_, err := tx.Exec(ctx,
			`DELETE FROM provider_entities WHERE provider_id = $1 AND entity_id = ANY($2)`,
			providerID, cs.Deletes)
		if err != nil {
			return nil, fmt.Errorf("failed to delete provider entities: %w", err)
		}
	}

	if len(cs.Upserts) > 0 {
		if err := upsertProviderEntities(ctx, tx, providerID, cs.Upserts); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return cs, nil
}

func upsertProviderEntities(ctx context.Context, tx pgx.Tx, providerID string, entities []*models.ProviderEntity) error {
	query := `
		INSERT INTO provider_entities (provider_id, entity_id, domain, path, name, category, location, capabilities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id, entity_id) DO UPDATE
		SET domain = EXCLUDED.domain,
		    path = EXCLUDED.path,
		    name = EXCLUDED.name,
		    category = EXCLUDED.category,
		    location = EXCLUDED.location,
		    capabilities = EXCLUDED.capabilities,
		    updated_at = now()`

	batch := &pgx.Batch{}
	for _, e := range entities {
		if e.ProviderID != providerID {
			return fmt.Errorf("entity %q belongs to provider %q, not %q", e.EntityID, e.ProviderID, providerID)
		}
		loc, err := marshalLocation(e.Location)
		if err != nil {
			return err
		}
		batch.Queue(query,
			providerID,
			e.EntityID,
			nullableString(e.Domain),
			nullableString(e.Path),
			e.Name,
			nullableString(e.Category),
			loc,
			nonNilStrings(e.Capabilities),
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for _, e := range entities {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert entity %q: %w", e.EntityID, err)
		}
	}
	return results.Close()
}

func (r *providerEntityRepository) CountByProvider(ctx context.Context, providerID string) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var n int
	err := scope.Conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM provider_entities WHERE provider_id = $1`, providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count provider entities: %w", err)
	}
	return n, nil
}

func scanProviderEntity(row pgx.Row, e *models.ProviderEntity) error {
	var locationJSON []byte
	err := row.Scan(
		&e.ProviderID, &e.EntityID, &e.Domain, &e.Path,
		&e.Name, &e.Category, &locationJSON, &e.Capabilities, &e.Seq,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to scan provider entity: %w", err)
	}
	e.Location, err = unmarshalLocation(locationJSON)
	return err
}

var _ ProviderEntityRepository = (*providerEntityRepository)(nil)
