package workqueue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/retry"
)

// RetryConfig configures retry behavior for failed tasks.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration (cap)
	BackoffFactor  float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns the retry defaults for background jobs.
// Backoff schedule: 2s, 4s, 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// DefaultHistoryLimit is how many finished tasks the queue keeps for inspection.
const DefaultHistoryLimit = 100

// Queue runs background tasks with bounded concurrency and retries transient
// failures. A queue lives for the whole process; finished tasks beyond the
// history limit are dropped.
type Queue struct {
	mu        sync.Mutex
	tasks     []*TaskState
	cancelled bool

	strategy     ConcurrencyStrategy
	retryConfig  RetryConfig
	historyLimit int

	// done is closed when no task is pending or running
	done chan struct{}
	wg   sync.WaitGroup

	// ctx is cancelled on shutdown; running tasks observe it
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithStrategy sets the concurrency strategy.
func WithStrategy(strategy ConcurrencyStrategy) QueueOption {
	return func(q *Queue) {
		if strategy != nil {
			q.strategy = strategy
		}
	}
}

// WithWorkers bounds the number of concurrently running tasks.
func WithWorkers(n int) QueueOption {
	return WithStrategy(NewBoundedStrategy(n))
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(config RetryConfig) QueueOption {
	return func(q *Queue) {
		q.retryConfig = config
	}
}

// WithHistoryLimit sets how many finished tasks are retained.
func WithHistoryLimit(n int) QueueOption {
	return func(q *Queue) {
		if n >= 0 {
			q.historyLimit = n
		}
	}
}

// New creates a new work queue with the given options. Without options tasks
// run one at a time.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:        make([]*TaskState, 0),
		strategy:     NewBoundedStrategy(1),
		retryConfig:  DefaultRetryConfig(),
		historyLimit: DefaultHistoryLimit,
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.Named("workqueue"),
	}

	for _, opt := range opts {
		opt(q)
	}

	// An empty queue is idle.
	close(q.done)
	return q
}

// Enqueue adds a task to the queue and attempts to start eligible tasks.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		q.logger.Warn("queue stopped, ignoring enqueue",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return
	}

	q.resetDoneLocked()

	state := NewTaskState(task)
	q.tasks = append(q.tasks, state)

	q.logger.Info("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()),
		zap.String("task_key", task.Key()))

	q.tryStartTasksLocked()
}

// tryStartTasksLocked starts pending tasks in FIFO order as far as the
// strategy allows. A task blocked on its key does not block later tasks.
// Must be called with lock held.
func (q *Queue) tryStartTasksLocked() {
	if q.cancelled {
		return
	}

	for _, ts := range q.tasks {
		if ts.GetStatus() != TaskStatusPending {
			continue
		}
		if !q.strategy.CanStart(ts.Task) {
			continue
		}

		q.strategy.OnStart(ts.Task)
		ts.SetStatus(TaskStatusRunning)

		q.logger.Info("starting task",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))

		q.wg.Add(1)
		go q.runTask(ts)
	}
}

// runTask executes a task with retry logic for transient errors.
func (q *Queue) runTask(ts *TaskState) {
	defer q.wg.Done()

	var lastErr error

	for attempt := 0; attempt <= q.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := q.calculateBackoff(attempt)
			q.logger.Info("retrying task after backoff",
				zap.String("task_id", ts.Task.ID()),
				zap.String("task_name", ts.Task.Name()),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", q.retryConfig.MaxRetries),
				zap.Duration("backoff", backoff))

			timer := time.NewTimer(backoff)
			select {
			case <-q.ctx.Done():
				timer.Stop()
				q.completeTask(ts, q.ctx.Err())
				return
			case <-timer.C:
			}
		}

		err := ts.Task.Execute(q.ctx, q)
		if err == nil {
			q.completeTask(ts, nil)
			return
		}

		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}

		if !retry.IsRetryable(err) {
			q.logger.Warn("non-retryable error, failing task immediately",
				zap.String("task_id", ts.Task.ID()),
				zap.String("task_name", ts.Task.Name()),
				zap.Error(err))
			break
		}

		retryCount := ts.IncrementRetryCount()

		if attempt >= q.retryConfig.MaxRetries {
			q.logger.Error("task failed after max retries",
				zap.String("task_id", ts.Task.ID()),
				zap.String("task_name", ts.Task.Name()),
				zap.Int("retry_count", retryCount),
				zap.Error(err))
			break
		}

		q.logger.Warn("retryable error encountered",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", q.retryConfig.MaxRetries),
			zap.Error(err))
	}

	if !errors.Is(lastErr, context.Canceled) {
		if h, ok := ts.Task.(FailureHandler); ok {
			h.OnFailed(context.WithoutCancel(q.ctx), lastErr)
		}
	}
	q.completeTask(ts, lastErr)
}

// calculateBackoff computes the backoff duration for a retry attempt.
// Uses exponential backoff with jitter.
func (q *Queue) calculateBackoff(attempt int) time.Duration {
	backoff := float64(q.retryConfig.InitialBackoff) *
		math.Pow(q.retryConfig.BackoffFactor, float64(attempt-1))

	if backoff > float64(q.retryConfig.MaxBackoff) {
		backoff = float64(q.retryConfig.MaxBackoff)
	}

	// ±10% jitter
	jitter := backoff * 0.1 * (rand.Float64()*2 - 1)

	return time.Duration(backoff + jitter)
}

// completeTask records the outcome of a finished task. A nil err is success;
// context cancellation means the queue was stopped.
func (q *Queue) completeTask(ts *TaskState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.strategy.OnComplete(ts.Task)

	switch {
	case err == nil:
		ts.SetStatus(TaskStatusCompleted)
		q.logger.Info("task completed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Int("retry_count", ts.GetRetryCount()))
	case errors.Is(err, context.Canceled):
		ts.SetStatus(TaskStatusCancelled)
		q.logger.Info("task cancelled",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))
	default:
		ts.SetError(err)
		ts.SetStatus(TaskStatusFailed)
		q.logger.Error("task failed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Int("retry_count", ts.GetRetryCount()),
			zap.Error(err))
	}

	q.pruneLocked()

	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
		return
	}

	q.tryStartTasksLocked()
}

// pruneLocked drops the oldest finished tasks beyond the history limit.
// Must be called with lock held.
func (q *Queue) pruneLocked() {
	finished := 0
	for _, ts := range q.tasks {
		if isTerminal(ts.GetStatus()) {
			finished++
		}
	}
	excess := finished - q.historyLimit
	if excess <= 0 {
		return
	}
	kept := q.tasks[:0]
	for _, ts := range q.tasks {
		if excess > 0 && isTerminal(ts.GetStatus()) {
			excess--
			continue
		}
		kept = append(kept, ts)
	}
	clear(q.tasks[len(kept):])
	q.tasks = kept
}

func isTerminal(s TaskStatus) bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// allTasksDoneLocked returns true if no task is pending or running.
// Must be called with lock held.
func (q *Queue) allTasksDoneLocked() bool {
	for _, ts := range q.tasks {
		if !isTerminal(ts.GetStatus()) {
			return false
		}
	}
	return true
}

// closeDoneLocked safely closes the done channel.
// Must be called with lock held.
func (q *Queue) closeDoneLocked() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// resetDoneLocked recreates the done channel if it was closed.
// Must be called with lock held.
func (q *Queue) resetDoneLocked() {
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}
}

// Wait blocks until the queue is idle or ctx is done. It returns the error of
// the most recent failed task still retained, if any.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		q.mu.Lock()
		defer q.mu.Unlock()
		for i := len(q.tasks) - 1; i >= 0; i-- {
			if q.tasks[i].GetStatus() == TaskStatusFailed {
				return q.tasks[i].GetError()
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the queue: running tasks see their context cancelled, pending
// tasks are marked cancelled and further enqueues are ignored.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		return
	}

	q.cancelled = true
	q.logger.Info("queue stopping, signaling running tasks")

	q.cancel()

	for _, ts := range q.tasks {
		if ts.GetStatus() == TaskStatusPending {
			ts.SetStatus(TaskStatusCancelled)
		}
	}


	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
	}
}

// Shutdown cancels the queue and waits for running tasks to return, or for
// ctx to expire.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Cancel()

	stopped := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsStopped reports whether Cancel or Shutdown has been called.
func (q *Queue) IsStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled
}

// Progress returns a summary of retained tasks.
func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := Progress{Total: len(q.tasks)}
	for _, ts := range q.tasks {
		switch ts.GetStatus() {
		case TaskStatusPending:
			p.Pending++
		case TaskStatusRunning:
			p.Running++
		case TaskStatusCompleted:
			p.Completed++
		case TaskStatusFailed:
			p.Failed++
		case TaskStatusCancelled:
			p.Cancelled++
		}
	}
	return p
}

// Progress holds queue statistics.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Busy reports whether any task is pending or running.
func (p Progress) Busy() bool {
	return p.Pending+p.Running > 0
}
