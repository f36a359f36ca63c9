package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy tracks running tasks and decides whether another can start.
type ConcurrencyStrategy interface {
	CanStart(task Task) bool
	OnStart(task Task)
	OnComplete(task Task)
}

// BoundedStrategy runs up to maxConcurrent tasks at once and never two tasks
// with the same non-empty key.
type BoundedStrategy struct {
	mu            sync.Mutex
	maxConcurrent int
	running       int
	keys          map[string]struct{}
}

// NewBoundedStrategy creates a strategy allowing maxConcurrent tasks (at least 1).
func NewBoundedStrategy(maxConcurrent int) *BoundedStrategy {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BoundedStrategy{
		maxConcurrent: maxConcurrent,
		keys:          make(map[string]struct{}),
	}
}

func (s *BoundedStrategy) CanStart(task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running >= s.maxConcurrent {
		return false
	}
	if k := task.Key(); k != "" {
		if _, busy := s.keys[k]; busy {
			return false
		}
	}
	return true
}

func (s *BoundedStrategy) OnStart(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running++
	if k := task.Key(); k != "" {
		s.keys[k] = struct{}{}
	}
}

func (s *BoundedStrategy) OnComplete(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running > 0 {
		s.running--
	}
	delete(s.keys, task.Key())
}

// Running returns the number of tasks currently running.
func (s *BoundedStrategy) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
