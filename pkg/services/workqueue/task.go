package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is the interface that all work queue tasks must implement.
type Task interface {
	// ID returns a unique identifier for this task.
	ID() string

	// Name returns a human-readable name for logs.
	Name() string

	// Key groups tasks that must not run concurrently, such as work on one
	// provider's data. An empty key never conflicts.
	Key() string

	// Execute runs the task. ctx is cancelled when the queue shuts down;
	// enqueuer allows follow-up tasks.
	Execute(ctx context.Context, enqueuer TaskEnqueuer) error
}

// FailureHandler is implemented by tasks that need to record a terminal
// failure (non-retryable error or retries exhausted). It is not called when
// the task is cancelled by a queue shutdown.
type FailureHandler interface {
	OnFailed(ctx context.Context, err error)
}

// TaskEnqueuer allows tasks to enqueue follow-up tasks.
type TaskEnqueuer interface {
	Enqueue(task Task)
}

// TaskState holds the runtime state of a task.
type TaskState struct {
	Task        Task
	Status      TaskStatus
	RetryCount  int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       error

	mu sync.RWMutex
}

// NewTaskState creates a new TaskState wrapping a task.
func NewTaskState(task Task) *TaskState {
	return &TaskState{
		Task:   task,
		Status: TaskStatusPending,
	}
}

// GetStatus returns the current status.
func (ts *TaskState) GetStatus() TaskStatus {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.Status
}

// SetStatus updates the status and timestamps.
func (ts *TaskState) SetStatus(status TaskStatus) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.Status = status
	now := time.Now()

	switch status {
	case TaskStatusRunning:
		ts.StartedAt = &now
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		ts.CompletedAt = &now
	}
}

// IncrementRetryCount bumps and returns the retry count.
func (ts *TaskState) IncrementRetryCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.RetryCount++
	return ts.RetryCount
}

// GetRetryCount returns the retry count.
func (ts *TaskState) GetRetryCount() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.RetryCount
}

// SetError sets the terminal error.
func (ts *TaskState) SetError(err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.Error = err
}

// GetError returns the terminal error.
func (ts *TaskState) GetError() error {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.Error
}

// BaseTask provides common task functionality.
// Embed this in concrete task implementations.
type BaseTask struct {
	id   string
	name string
	key  string
}

// NewBaseTask creates a new base task.
func NewBaseTask(name, key string) BaseTask {
	return BaseTask{
		id:   uuid.New().String(),
		name: name,
		key:  key,
	}
}

// ID returns the task ID.
func (t BaseTask) ID() string { return t.id }

// Name returns the task name.
func (t BaseTask) Name() string { return t.name }

// Key returns the exclusivity key.
func (t BaseTask) Key() string { return t.key }
