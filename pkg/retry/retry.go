// Package retry runs storage and network operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- share of the delay
	MaxSameErrorType int     // after N consecutive same-type errors, give up (0 disables)
}

// DefaultConfig returns the defaults used for database operations:
// 3 retries from 100ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// backoff waits out one retry delay and returns the next one. It returns
// ctx.Err() if the context ends first.
func (c *Config) backoff(ctx context.Context, delay time.Duration) (time.Duration, error) {
	timer := time.NewTimer(applyJitter(delay, c.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return delay, ctx.Err()
	}

	next := time.Duration(float64(delay) * c.Multiplier)
	if next > c.MaxDelay {
		next = c.MaxDelay
	}
	return next, nil
}

// Do executes fn with exponential backoff until it succeeds or retries are
// exhausted, returning the last error.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value, such as opening a
// connection pool. The last result is returned even on error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var (
		result  T
		lastErr error
	)
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt < cfg.MaxRetries {
			if delay, err = cfg.backoff(ctx, delay); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// Postgres SQLSTATE codes worth retrying.
var retryableSQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"55P03": {}, // lock_not_available
	"57P01": {}, // admin_shutdown
	"57P03": {}, // cannot_connect_now
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"too many requests",
	"service unavailable",
}

// IsRetryable reports whether err is transient. Errors implementing
// RetryableError decide for themselves; Postgres errors are classified by
// SQLSTATE; anything else is matched against known transient messages.
// Context cancellation is never retryable. A deadline is: it usually comes
// from a per-attempt timeout, and the retry loop itself stops once the
// caller's context is done.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryableSQLStates[pgErr.Code]
		return ok
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated failures of one kind can be
// detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "sqlstate_" + pgErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(msg, "deadlock"):
		return "deadlock"
	case strings.Contains(msg, "too many"):
		return "overload"
	}
	return "unknown"
}

// DoIfRetryable retries fn only while it fails with transient errors.
// Permanent errors return immediately, and so does the Nth consecutive error
// of one type when MaxSameErrorType is set.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var (
		lastErr       error
		lastErrorType string
		sameCount     int
	)
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		errType := classifyErrorType(err)
		if errType == lastErrorType {
			sameCount++
			if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, errType, err)
			}
		} else {
			sameCount = 1
			lastErrorType = errType
		}

		if attempt < cfg.MaxRetries {
			if delay, err = cfg.backoff(ctx, delay); err != nil {
				return err
			}
		}
	}

	return lastErr
}
