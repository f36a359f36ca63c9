// Package ratelimit enforces per-client request budgets with token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Window is the period a limit is expressed over.
const Window = time.Minute

// DefaultIdleTTL is how long a key's bucket survives without requests.
const DefaultIdleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter allows up to a fixed number of requests per minute per key. Each key
// has its own token bucket whose burst equals the per-minute limit. Idle keys
// are dropped by a background janitor.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithIdleTTL sets how long an unused key is remembered.
func WithIdleTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

// New creates a Limiter allowing perMinute requests per key and starts its
// janitor. Call Stop to release it.
func New(perMinute int, opts ...Option) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	l := &Limiter{
		limit:     rate.Every(Window / time.Duration(perMinute)),
		burst:     perMinute,
		idleTTL:   DefaultIdleTTL,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.janitor()
	return l
}

// Allow consumes one token for key and reports whether the request may
// proceed.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Burst returns the per-minute budget of each key.
func (l *Limiter) Burst() int {
	return l.burst
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) janitor() {
	defer close(l.stoppedCh)

	ticker := time.NewTicker(l.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop stops the janitor. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.stoppedCh
}
