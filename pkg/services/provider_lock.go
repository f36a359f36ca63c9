package services

import (
	"context"
	"sync"
)

// ProviderLocks serializes writes to one provider's slice within this
// process. Cross-instance exclusion comes from the advisory lock taken by
// ProviderEntityRepository.UpdateSlice.
type ProviderLocks struct {
	mu    sync.Mutex
	locks map[string]*providerLock
}

type providerLock struct {
	sem  chan struct{}
	refs int
}

// NewProviderLocks creates an empty lock set.
func NewProviderLocks() *ProviderLocks {
	return &ProviderLocks{locks: make(map[string]*providerLock)}
}

// Lock blocks until the provider's lock is held or ctx is done. The returned
// function releases it and must be called exactly once.
func (l *ProviderLocks) Lock(ctx context.Context, providerID string) (func(), error) {
	l.mu.Lock()
	pl, ok := l.locks[providerID]
	if !ok {
		pl = &providerLock{sem: make(chan struct{}, 1)}
		l.locks[providerID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.sem <- struct{}{}:
		return func() {
			<-pl.sem
			l.release(providerID, pl)
		}, nil
	case <-ctx.Done():
		l.release(providerID, pl)
		return nil, ctx.Err()
	}
}

func (l *ProviderLocks) release(providerID string, pl *providerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, providerID)
	}
}

// Len returns the number of providers with a held or awaited lock.
func (l *ProviderLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
