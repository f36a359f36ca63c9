package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/services/workqueue"
)

// jobFailureReason is the only failure detail exposed to providers.
const jobFailureReason = "Sync job failed due to an internal error"

// syncJobTask processes one async full sync. Tasks of the same provider share
// a queue key and never run concurrently.
type syncJobTask struct {
	workqueue.BaseTask
	jobID      uuid.UUID
	providerID string
	svc        *syncService
}

func (s *syncService) newJobTask(job *models.SyncJob) *syncJobTask {
	return &syncJobTask{
		BaseTask:   workqueue.NewBaseTask("sync-job "+job.ID.String(), job.ProviderID),
		jobID:      job.ID,
		providerID: job.ProviderID,
		svc:        s,
	}
}

var (
	_ workqueue.Task           = (*syncJobTask)(nil)
	_ workqueue.FailureHandler = (*syncJobTask)(nil)
)

// Execute moves the job to processing, plans the payload chunk by chunk with
// progress persisted after each chunk, applies the plan atomically and
// completes the job. A job found in processing (resumed after a restart or a
// retry) is planned again from the start.
func (t *syncJobTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	s := t.svc

	jobCtx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	job, err := s.jobs.Get(jobCtx, t.jobID)
	if err != nil {
		return fmt.Errorf("failed to load sync job: %w", err)
	}
	if job.Status.IsTerminal() {
		s.logger.Info("Sync job already finished", zap.String("job_id", t.jobID.String()), zap.String("status", string(job.Status)))
		return nil
	}

	if job.Status == models.SyncJobPending {
		if err := t.transition(jobCtx, job, models.SyncJobProcessing); err != nil {
			return err
		}
	}

	entities, err := s.jobs.LoadPayload(jobCtx, t.jobID)
	if err != nil {
		return fmt.Errorf("failed to load sync job payload: %w", err)
	}

	chunk := s.cfg.ChunkSize
	if chunk <= 0 {
		chunk = len(entities)
	}

	plan := func(current []*models.ProviderEntity) (*models.Changeset, error) {
		p := newFullSyncPlanner(t.providerID, current)
		for start := 0; start < len(entities); start += chunk {
			end := min(start+chunk, len(entities))
			p.Add(entities[start:end])

			job.ProcessedEntities = end
			job.SetCounters(p.Result())
			if err := s.jobs.UpdateProgress(jobCtx, job); err != nil {
				return nil, fmt.Errorf("failed to record progress: %w", err)
			}
		}
		return p.Finish(), nil
	}

	cs, err := s.apply(ctx, t.providerID, plan)
	if err != nil {
		return fmt.Errorf("failed to apply sync job: %w", err)
	}

	job.ProcessedEntities = len(entities)
	job.SetCounters(cs.Result)
	job.ErrorDetails = cs.Errors
	if err := t.transition(jobCtx, job, models.SyncJobCompleted); err != nil {
		return err
	}

	if err := s.jobs.DeletePayload(jobCtx, t.jobID); err != nil {
		s.logger.Warn("Failed to delete sync job payload", zap.String("job_id", t.jobID.String()), zap.Error(err))
	}

	s.logger.Info("Sync job completed",
		zap.String("provider_id", t.providerID),
		zap.String("job_id", t.jobID.String()),
		zap.Int("created", job.Created),
		zap.Int("updated", job.Updated),
		zap.Int("deleted", job.Deleted),
		zap.Int("unchanged", job.Unchanged),
		zap.Int("errors", job.Errors))
	return nil
}

// OnFailed marks the job failed once the queue gives up on it.
func (t *syncJobTask) OnFailed(ctx context.Context, cause error) {
	s := t.svc
	logger := s.logger.With(zap.String("job_id", t.jobID.String()), zap.String("provider_id", t.providerID))
	logger.Error("Sync job failed", zap.Error(cause))

	jobCtx, cleanup, err := s.scope(ctx, "")
	if err != nil {
		logger.Error("Failed to acquire database scope to fail sync job", zap.Error(err))
		return
	}
	defer cleanup()

	job, err := s.jobs.Get(jobCtx, t.jobID)
	if err != nil {
		logger.Error("Failed to load sync job to fail it", zap.Error(err))
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	job.FailureReason = jobFailureReason
	if err := t.transition(jobCtx, job, models.SyncJobFailed); err != nil {
		logger.Error("Failed to mark sync job failed", zap.Error(err))
		return
	}
	if err := s.jobs.DeletePayload(jobCtx, t.jobID); err != nil {
		logger.Warn("Failed to delete sync job payload", zap.Error(err))
	}
}

// transition moves job to next in memory and in the store.
func (t *syncJobTask) transition(ctx context.Context, job *models.SyncJob, next models.SyncJobStatus) error {
	from := job.Status
	if err := job.Transition(next, t.svc.now()); err != nil {
		return err
	}
	if err := t.svc.jobs.Transition(ctx, job, from); err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			return fmt.Errorf("sync job %s changed concurrently: %w", job.ID, err)
		}
		return fmt.Errorf("failed to persist sync job status: %w", err)
	}
	return nil
}
