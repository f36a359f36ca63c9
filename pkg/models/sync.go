package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dock-ai/registry/pkg/apperrors"
)

// SyncAction is the action of one operations API entry.
type SyncAction string

const (
	SyncActionUpsert SyncAction = "upsert"
	SyncActionDelete SyncAction = "delete"
)

// Operation is one entry of an operations API request.
type Operation struct {
	Action   SyncAction   `json:"action"`
	Entity   *EntityInput `json:"entity,omitempty"`
	EntityID string       `json:"entity_id,omitempty"`
}

// TargetEntityID returns the entity_id the operation applies to.
func (op *Operation) TargetEntityID() string {
	if op.Action == SyncActionUpsert && op.Entity != nil {
		return op.Entity.EntityID
	}
	if op.EntityID == "" && op.Entity != nil {
		return op.Entity.EntityID
	}
	return op.EntityID
}

// SyncResult holds the counters of a sync or register call.
type SyncResult struct {
	Total     int `json:"total"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}

// Add accumulates another result into r.
func (r *SyncResult) Add(o SyncResult) {
	r.Total += o.Total
	r.Created += o.Created
	r.Updated += o.Updated
	r.Deleted += o.Deleted
	r.Unchanged += o.Unchanged
	r.Errors += o.Errors
}

// EntityError reports one rejected entity of a batch.
type EntityError struct {
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// SyncJobStatus is the state of an async sync job.
type SyncJobStatus string

const (
	SyncJobPending    SyncJobStatus = "pending"
	SyncJobProcessing SyncJobStatus = "processing"
	SyncJobCompleted  SyncJobStatus = "completed"
	SyncJobFailed     SyncJobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s SyncJobStatus) IsTerminal() bool {
	return s == SyncJobCompleted || s == SyncJobFailed
}

// CanTransitionTo reports whether next is a legal forward transition from s.
func (s SyncJobStatus) CanTransitionTo(next SyncJobStatus) bool {
	switch s {
	case SyncJobPending:
		return next == SyncJobProcessing || next == SyncJobFailed
	case SyncJobProcessing:
		return next == SyncJobCompleted || next == SyncJobFailed
	default:
		return false
	}
}

// SyncJob tracks a full sync that exceeded the synchronous threshold.
type SyncJob struct {
	ID                uuid.UUID     `json:"job_id"`
	ProviderID        string        `json:"provider_id"`
	Status            SyncJobStatus `json:"status"`
	TotalEntities     int           `json:"total_entities"`
	ProcessedEntities int           `json:"processed_entities"`
	Created           int           `json:"created"`
	Updated           int           `json:"updated"`
	Deleted           int           `json:"deleted"`
	Unchanged         int           `json:"unchanged"`
	Errors            int           `json:"errors"`
	ErrorDetails      []EntityError `json:"error_details,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// NewSyncJob creates a pending job for a provider.
func NewSyncJob(providerID string, total int, now time.Time) *SyncJob {
	return &SyncJob{
		ID:            uuid.New(),
		ProviderID:    providerID,
		Status:        SyncJobPending,
		TotalEntities: total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Transition moves the job to next, stamping timestamps. Backward or repeated
// transitions fail with apperrors.ErrInvalidTransition.
func (j *SyncJob) Transition(next SyncJobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = now
	switch next {
	case SyncJobProcessing:
		j.StartedAt = &now
	case SyncJobCompleted, SyncJobFailed:
		j.CompletedAt = &now
	}
	return nil
}

// Result returns the job counters as a SyncResult.
func (j *SyncJob) Result() SyncResult {
	return SyncResult{
		Total:     j.TotalEntities,
		Created:   j.Created,
		Updated:   j.Updated,
		Deleted:   j.Deleted,
		Unchanged: j.Unchanged,
		Errors:    j.Errors,
	}
}

// SetCounters copies the counters of r onto the job.
func (j *SyncJob) SetCounters(r SyncResult) {
	j.Created = r.Created
	j.Updated = r.Updated
	j.Deleted = r.Deleted
	j.Unchanged = r.Unchanged
	j.Errors = r.Errors
}

// Changeset is the planned change to one provider's slice: rows to insert or
// update, entity_ids to delete, and the counters and per-entity errors the
// caller reports back.
type Changeset struct {
	Upserts []*ProviderEntity
	Deletes []string
	Result  SyncResult
	Errors  []EntityError
}

// IsEmpty reports whether applying the changeset would write nothing.
func (c *Changeset) IsEmpty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0
}

// PlanFunc computes a changeset against the provider's current slice.
type PlanFunc func(current []*ProviderEntity) (*Changeset, error)
