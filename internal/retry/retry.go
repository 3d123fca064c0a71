// Package retry reopens a capture device with exponential backoff.
//
// The pipeline itself never reconnects: end-of-stream is sticky. Callers that
// want to survive an unplugged or aborted device close the pipeline and open a
// new one through Run.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrMaxRetries is returned when every attempt failed
var ErrMaxRetries = errors.New("retry: max retries exceeded")

// Config contains configuration for exponential backoff
type Config struct {
	MaxRetries    int           // Maximum number of retries after the first attempt (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultConfig returns default backoff configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks retries across calls to Run
type State struct {
	CurrentRetries int
	Total          atomic.Uint32 // total failed attempts, for stats
}

// OpenFunc attempts to open the device. Returns an error if it fails.
type OpenFunc func(ctx context.Context) error

// Run calls openFn until it succeeds, waiting with exponential backoff between
// failures.
//
// Backoff schedule with the default config:
//   - Retry 1: 1 second
//   - Retry 2: 2 seconds
//   - Retry 3: 4 seconds
//   - Retry 4: 8 seconds
//   - Retry 5: 16 seconds
//   - After 5 retries: ErrMaxRetries wrapping the last error
//
// Returns ctx.Err() if the context ends first.
func Run(ctx context.Context, openFn OpenFunc, cfg Config, state *State) error {
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("retry: context cancelled, giving up")
			return err
		}

		err := openFn(ctx)
		if err == nil {
			if state.CurrentRetries > 0 {
				slog.Info("retry: device opened", "after_retries", state.CurrentRetries)
			}
			state.CurrentRetries = 0
			return nil
		}

		slog.Error("retry: open failed", "error", err)

		state.CurrentRetries++
		state.Total.Add(1)

		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("%w (%d attempts): %w", ErrMaxRetries, cfg.MaxRetries, err)
		}

		delay := Backoff(state.CurrentRetries, cfg)

		slog.Warn("retry: retrying open",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Info("retry: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// Backoff returns the delay before retry number attempt (1-based).
//
// Formula: delay = RetryDelay * 2^(attempt-1), capped at MaxRetryDelay
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return cfg.MaxRetryDelay
	}

	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
