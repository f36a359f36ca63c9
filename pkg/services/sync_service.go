package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/repositories"
	"github.com/dock-ai/registry/pkg/retry"
	"github.com/dock-ai/registry/pkg/services/workqueue"
	"github.com/dock-ai/registry/pkg/validation"
)

// SyncOutcome is the result of a full sync or operations call. Async
// outcomes carry the created job instead of counters.
type SyncOutcome struct {
	Async  bool
	Result models.SyncResult
	Errors []models.EntityError
	Job    *models.SyncJob
}

// Success reports whether every entity was accepted.
func (o *SyncOutcome) Success() bool {
	return o.Result.Errors == 0
}

// SyncService implements provider bulk ingestion.
type SyncService interface {
	// Sync replaces the provider's slice with entities. Payloads above the
	// async threshold are persisted as a job and processed in the background.
	Sync(ctx context.Context, providerID string, entities []models.EntityInput) (*SyncOutcome, error)

	// Register applies explicit upsert and delete operations. Entities the
	// operations do not name are left untouched.
	Register(ctx context.Context, providerID string, ops []models.Operation) (*SyncOutcome, error)

	// GetJob returns a job owned by providerID.
	GetJob(ctx context.Context, providerID string, jobID uuid.UUID) (*models.SyncJob, error)

	// ResumeUnfinished re-enqueues pending and processing jobs left by a
	// previous process and returns how many were enqueued.
	ResumeUnfinished(ctx context.Context) (int, error)
}

// Enqueuer accepts background tasks.
type Enqueuer interface {
	Enqueue(task workqueue.Task)
}

type syncService struct {
	scope    database.ScopeFunc
	entities repositories.ProviderEntityRepository
	jobs     repositories.SyncJobRepository
	queue    Enqueuer
	locks    *ProviderLocks
	cfg      config.SyncConfig
	retryCfg *retry.Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewSyncService creates a SyncService. Async jobs are executed on queue.
func NewSyncService(
	scope database.ScopeFunc,
	entities repositories.ProviderEntityRepository,
	jobs repositories.SyncJobRepository,
	queue Enqueuer,
	locks *ProviderLocks,
	cfg config.SyncConfig,
	logger *zap.Logger,
) SyncService {
	if locks == nil {
		locks = NewProviderLocks()
	}
	return &syncService{
		scope:    scope,
		entities: entities,
		jobs:     jobs,
		queue:    queue,
		locks:    locks,
		cfg:      cfg,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("sync"),
		now:      time.Now,
	}
}

var _ SyncService = (*syncService)(nil)

func (s *syncService) Sync(ctx context.Context, providerID string, entities []models.EntityInput) (*SyncOutcome, error) {
	if err := validation.CheckSyncRequest(entities); err != nil {
		return nil, err
	}

	if len(entities) > s.cfg.AsyncThreshold {
		return s.startJob(ctx, providerID, entities)
	}

	cs, err := s.apply(ctx, providerID, func(current []*models.ProviderEntity) (*models.Changeset, error) {
		return PlanFullSync(providerID, current, entities), nil
	})
	if err != nil {
		return nil, fmt.Errorf("full sync for %s: %w", providerID, err)
	}

	s.logger.Info("Full sync applied",
		zap.String("provider_id", providerID),
		zap.Int("total", cs.Result.Total),
		zap.Int("created", cs.Result.Created),
		zap.Int("updated", cs.Result.Updated),
		zap.Int("deleted", cs.Result.Deleted),
		zap.Int("unchanged", cs.Result.Unchanged),
		zap.Int("errors", cs.Result.Errors))

	return &SyncOutcome{Result: cs.Result, Errors: cs.Errors}, nil
}

func (s *syncService) Register(ctx context.Context, providerID string, ops []models.Operation) (*SyncOutcome, error) {
	if err := validation.CheckOperations(ops, s.cfg.MaxOperations); err != nil {
		return nil, err
	}

	cs, err := s.apply(ctx, providerID, func(current []*models.ProviderEntity) (*models.Changeset, error) {
		return PlanOperations(providerID, current, ops), nil
	})
	if err != nil {
		return nil, fmt.Errorf("register for %s: %w", providerID, err)
	}

	s.logger.Info("Operations applied",
		zap.String("provider_id", providerID),
		zap.Int("operations", cs.Result.Total),
		zap.Int("created", cs.Result.Created),
		zap.Int("updated", cs.Result.Updated),
		zap.Int("deleted", cs.Result.Deleted),
		zap.Int("errors", cs.Result.Errors))

	return &SyncOutcome{Result: cs.Result, Errors: cs.Errors}, nil
}

// apply runs plan against the provider's slice under the provider lock, in
// one transaction. Transient storage errors are retried.
func (s *syncService) apply(ctx context.Context, providerID string, plan models.PlanFunc) (*models.Changeset, error) {
	unlock, err := s.locks.Lock(ctx, providerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scoped, cleanup, err := s.scope(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire provider scope: %w", err)
	}
	defer cleanup()

	var cs *models.Changeset
	err = retry.DoIfRetryable(scoped, s.retryCfg, func() error {
		var err error
		cs, err = s.entities.UpdateSlice(scoped, providerID, plan)
		return err
	})
	return cs, err
}

func (s *syncService) startJob(ctx context.Context, providerID string, entities []models.EntityInput) (*SyncOutcome, error) {
	job := models.NewSyncJob(providerID, len(entities), s.now())

	jobCtx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	if err := s.jobs.Create(jobCtx, job, entities); err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	s.queue.Enqueue(s.newJobTask(job))

	s.logger.Info("Sync job created",
		zap.String("provider_id", providerID),
		zap.String("job_id", job.ID.String()),
		zap.Int("total_entities", job.TotalEntities))

	return &SyncOutcome{Async: true, Job: job}, nil
}

func (s *syncService) GetJob(ctx context.Context, providerID string, jobID uuid.UUID) (*models.SyncJob, error) {
	ctx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	// Another provider's job is reported as missing.
	if job.ProviderID != providerID {
		return nil, fmt.Errorf("sync job %s: %w", jobID, apperrors.ErrNotFound)
	}
	return job, nil
}

func (s *syncService) ResumeUnfinished(ctx context.Context) (int, error) {
	ctx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	jobs, err := s.jobs.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished sync jobs: %w", err)
	}
	for _, job := range jobs {
		s.queue.Enqueue(s.newJobTask(job))
	}
	if len(jobs) > 0 {
		s.logger.Info("Resumed unfinished sync jobs", zap.Int("count", len(jobs)))
	}
	return len(jobs), nil
}
