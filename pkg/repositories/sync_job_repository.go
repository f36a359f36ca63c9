package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
)

// SyncJobRepository persists async sync jobs and their payloads.
type SyncJobRepository interface {
	// Create stores a pending job together with the submitted entities.
	Create(ctx context.Context, job *models.SyncJob, entities []models.EntityInput) error
	Get(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)
	// UpdateProgress persists the running counters of a processing job.
	UpdateProgress(ctx context.Context, job *models.SyncJob) error
	// Transition persists job (already moved to its new status in memory)
	// only if the stored status is still from. Otherwise it fails with
	// apperrors.ErrInvalidTransition.
	Transition(ctx context.Context, job *models.SyncJob, from models.SyncJobStatus) error
	// ListUnfinished returns pending and processing jobs, oldest first.
	ListUnfinished(ctx context.Context) ([]*models.SyncJob, error)
	LoadPayload(ctx context.Context, id uuid.UUID) ([]models.EntityInput, error)
	DeletePayload(ctx context.Context, id uuid.UUID) error
}

type syncJobRepository struct{}

// NewSyncJobRepository creates a new sync job repository.
func NewSyncJobRepository() SyncJobRepository {
	return &syncJobRepository{}
}

const syncJobColumns = `id, provider_id, status, total_entities, processed_entities,
	created, updated, deleted, unchanged, errors, error_details, COALESCE(failure_reason, ''),
	created_at, updated_at, started_at, completed_at`

func (r *syncJobRepository) Create(ctx context.Context, job *models.SyncJob, entities []models.EntityInput) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	payload, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to marshal sync payload: %w", err)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	_, err = tx.Exec(ctx, `
		INSERT INTO sync_jobs (id, provider_id, status, total_entities, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.ProviderID, job.Status, job.TotalEntities, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO sync_job_payloads (job_id, entities) VALUES ($1, $2)`, job.ID, payload)
	if err != nil {
		return fmt.Errorf("failed to store sync payload: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *syncJobRepository) Get(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+syncJobColumns+` FROM sync_jobs WHERE id = $1`, id)
	job, err := scanSyncJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *syncJobRepository) UpdateProgress(ctx context.Context, job *models.SyncJob) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE sync_jobs
		SET processed_entities = $2, created = $3, updated = $4, deleted = $5,
		    unchanged = $6, errors = $7, updated_at = $8
		WHERE id = $1 AND status = 'processing'`,
		job.ID, job.ProcessedEntities, job.Created, job.Updated, job.Deleted,
		job.Unchanged, job.Errors, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update sync job progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not processing", apperrors.ErrInvalidTransition, job.ID)
	}
	return nil
}

func (r *syncJobRepository) Transition(ctx context.Context, job *models.SyncJob, from models.SyncJobStatus) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	details, err := json.Marshal(nonNilErrors(job.ErrorDetails))
	if err != nil {
		return fmt.Errorf("failed to marshal error details: %w", err)
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE sync_jobs
		SET status = $3, processed_entities = $4, created = $5, updated = $6, deleted = $7,
		    unchanged = $8, errors = $9, error_details = $10, failure_reason = $11,
		    updated_at = $12, started_at = $13, completed_at = $14
		WHERE id = $1 AND status = $2`,
		job.ID, from, job.Status, job.ProcessedEntities, job.Created, job.Updated, job.Deleted,
		job.Unchanged, job.Errors, details, nullableString(job.FailureReason),
		job.UpdatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to transition sync job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is no longer %s", apperrors.ErrInvalidTransition, job.ID, from)
	}
	return nil
}

func (r *syncJobRepository) ListUnfinished(ctx context.Context) ([]*models.SyncJob, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `SELECT `+syncJobColumns+`
		FROM sync_jobs
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync jobs: %w", err)
	}
	return jobs, nil
}

func (r *syncJobRepository) LoadPayload(ctx context.Context, id uuid.UUID) ([]models.EntityInput, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	var raw []byte
	err := scope.Conn.QueryRow(ctx, `SELECT entities FROM sync_job_payloads WHERE job_id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load sync payload: %w", err)
	}

	var entities []models.EntityInput
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync payload: %w", err)
	}
	return entities, nil
}

func (r *syncJobRepository) DeletePayload(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if _, err := scope.Conn.Exec(ctx, `DELETE FROM sync_job_payloads WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete sync payload: %w", err)
	}
	return nil
}

func scanSyncJob(row pgx.Row) (*models.SyncJob, error) {
	var job models.SyncJob
	var details []byte
	err := row.Scan(
		&job.ID, &job.ProviderID, &job.Status, &job.TotalEntities, &job.ProcessedEntities,
		&job.Created, &job.Updated, &job.Deleted, &job.Unchanged, &job.Errors, &details, &job.FailureReason,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &job.ErrorDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error details: %w", err)
		}
	}
	return &job, nil
}

func nonNilErrors(errs []models.EntityError) []models.EntityError {
	if errs == nil {
		return []models.EntityError{}
	}
	return errs
}

var _ SyncJobRepository = (*syncJobRepository)(nil)
