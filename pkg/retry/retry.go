// Package retry provides exponential backoff retry logic used by
// network-facing components, primarily the ingest relay and capture
// source reconnect loops.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Unlimited as MaxAttempts retries until the context is cancelled.
const Unlimited = -1

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (Unlimited = retry until cancelled)
	InitialDelay time.Duration // Initial delay between attempts
	MaxDelay     time.Duration // Maximum delay between attempts
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	AddJitter    bool          // Add randomness to prevent thundering herd
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

func (cfg *Config) normalize() error {
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 {
		return errors.New("retry: delays cannot be negative")
	}
	if cfg.Multiplier < 0 {
		return errors.New("retry: Multiplier cannot be negative")
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	switch {
	case cfg.Multiplier == 0:
		cfg.Multiplier = 2.0
	case cfg.Multiplier > 1000:
		// Clamp absurd multipliers so the delay math cannot overflow
		cfg.Multiplier = 1000
	}
	if cfg.MaxAttempts != Unlimited && cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return nil
}

// next advances delay one backoff step, capped at MaxDelay.
func (cfg Config) next(delay time.Duration) time.Duration {
	scaled := float64(delay) * cfg.Multiplier
	if scaled > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(scaled)
}

// sleep waits out one backoff delay, with up to 25% jitter, honoring ctx.
func (cfg Config) sleep(ctx context.Context, delay time.Duration) error {
	if cfg.AddJitter && delay >= 4 {
		randMu.Lock()
		delay += time.Duration(randSource.Int63n(int64(delay / 4)))
		randMu.Unlock()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes fn with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.normalize(); err != nil {
		return err
	}

	unlimited := cfg.MaxAttempts == Unlimited
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; unlimited || attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}
		if !unlimited && attempt == cfg.MaxAttempts {
			break
		}

		if err := cfg.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, err)
		}
		delay = cfg.next(delay)
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
