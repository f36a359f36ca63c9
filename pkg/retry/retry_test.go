package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 || cfg.InitialDelay != 100*time.Millisecond || cfg.MaxDelay != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	want := errors.New("still failing")
	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Errorf("expected prompt return after cancellation, took %v", time.Since(start))
	}
}

func TestDo_MaxDelayRespected(t *testing.T) {
	cfg := &Config{MaxRetries: 4, InitialDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond, Multiplier: 10}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error { return errors.New("x") })

	// 10 + 15 + 15 + 15 with no jitter.
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("delays not capped, took %v", elapsed)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), nil, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || v != 42 || calls != 1 {
		t.Errorf("got %d, %v after %d calls", v, err, calls)
	}

	v, err = DoWithResult(context.Background(), fastConfig(1), func() (int, error) {
		return 7, errors.New("nope")
	})
	if err == nil || v != 7 {
		t.Errorf("expected last result with error, got %d, %v", v, err)
	}
}

type declared struct{ retry bool }

func (d declared) Error() string     { return "declared" }
func (d declared) IsRetryable() bool { return d.retry }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"uppercase", errors.New("Connection Reset by peer"), true},
		{"i/o timeout", errors.New("read: i/o timeout"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("load slice: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("query: %w", context.Canceled), false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("apply: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"rls violation", &pgconn.PgError{Code: "42501", Message: "new row violates row-level security policy"}, false},
		{"declared retryable", declared{retry: true}, true},
		{"declared permanent", fmt.Errorf("wrapped: %w", declared{retry: false}), false},
		{"syntax error", errors.New("syntax error at position 10"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDoIfRetryable_NonRetryableReturnsImmediately(t *testing.T) {
	want := &pgconn.PgError{Code: "23505"}
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoIfRetryable_RetriesTransient(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoIfRetryable_EscalatesRepeatedErrors(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 3 {
		t.Errorf("expected escalation after 3 calls, got %d", calls)
	}
}

func TestDoIfRetryable_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := DoIfRetryable(ctx, cfg, func() error { return errors.New("connection timeout") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoIfRetryable_StatementDeadlineRetriedUntilCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	cfg := &Config{MaxRetries: 100, InitialDelay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 1}

	calls := 0
	err := DoIfRetryable(ctx, cfg, func() error {
		calls++
		return fmt.Errorf("query: %w", context.DeadlineExceeded)
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls < 2 {
		t.Errorf("expected the statement timeout to be retried, got %d calls", calls)
	}
	if calls > 50 {
		t.Errorf("expected retries to stop at the caller deadline, got %d calls", calls)
	}
}
