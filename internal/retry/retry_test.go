package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRun_SucceedsAfterFailures(t *testing.T) {
	cfg := Config{MaxRetries: 5, RetryDelay: time.Millisecond, MaxRetryDelay: 4 * time.Millisecond}
	var state State

	calls := 0
	err := Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("device busy")
		}
		return nil
	}, cfg, &state)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if state.CurrentRetries != 0 || state.Total.Load() != 2 {
		t.Errorf("state = current %d total %d", state.CurrentRetries, state.Total.Load())
	}
}

func TestRun_MaxRetries(t *testing.T) {
	cfg := Config{MaxRetries: 2, RetryDelay: time.Millisecond, MaxRetryDelay: time.Millisecond}
	var state State
	openErr := errors.New("no such device")

	calls := 0
	err := Run(context.Background(), func(ctx context.Context) error {
		calls++
		return openErr
	}, cfg, &state)

	if !errors.Is(err, ErrMaxRetries) || !errors.Is(err, openErr) {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (first attempt + 2 retries)", calls)
	}
}

func TestRun_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := Config{MaxRetries: 5, RetryDelay: time.Hour, MaxRetryDelay: time.Hour}
	var state State

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Run(ctx, func(ctx context.Context) error { return errors.New("fail") }, cfg, &state)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
}
