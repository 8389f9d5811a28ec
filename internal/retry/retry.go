// Package retry implements bounded exponential backoff. It is used by the
// embedding providers; vector-store and page-store calls are made without it.
//
// LLM rewrite, BM25, context expansion and grounding are enhancements and
// never go through a retryer: their failure is absorbed by the caller and
// the pipeline degrades instead (see internal/pipeline).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config configures retry behavior for one critical-path collaborator.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (default: 3).
	MaxRetries int

	// BaseDelay is the initial delay between retries (default: 250ms).
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries (default: 5s).
	MaxDelay time.Duration

	// JitterFactor adds randomness to delays (0.0-1.0, default: 0.1).
	JitterFactor float64

	// RetryableErrors are error substrings that indicate a transient failure.
	RetryableErrors []string
}

// DefaultConfig returns sensible defaults for query-path retries.
//
// Query-path timeouts are much tighter than ingest-side ones (spec.md §5:
// vector search 30s, context fetch 10s overall), so the base delay here is
// shorter than the ingest Retryer's 1s default.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseDelay:    250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		JitterFactor: 0.1,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"rate limit",
			"429",
			"500",
			"502",
			"503",
			"504",
			"temporarily unavailable",
			"too many requests",
			"ECONNREFUSED",
			"ETIMEDOUT",
			"ECONNRESET",
		},
	}
}

// Retryer executes operations with exponential backoff and jitter.
type Retryer struct {
	config Config
}

// New creates a Retryer, filling in defaults for any zero-valued field.
func New(cfg Config) *Retryer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.JitterFactor <= 0 {
		cfg.JitterFactor = 0.1
	}
	return &Retryer{config: cfg}
}

// Do executes fn, retrying transient failures with exponential backoff.
func (r *Retryer) Do(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			return err
		}

		if attempt >= r.config.MaxRetries {
			slog.Warn("retry budget exhausted",
				"operation", operation,
				"attempts", attempt+1,
				"error", err)
			return &ExhaustedError{Operation: operation, Attempts: attempt + 1, LastError: err}
		}

		delay := r.calculateDelay(attempt)
		slog.Debug("retrying operation",
			"operation", operation,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// DoWithResult is Do for operations that return a value alongside the error.
func DoWithResult[T any](ctx context.Context, r *Retryer, operation string, fn func() (T, error)) (T, error) {
	var zero T
	wrapped := func() (T, error) {
		v, err := fn()
		if err != nil {
			return zero, err
		}
		return v, nil
	}

	var result T
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		v, err := wrapped()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			return zero, err
		}
		if attempt >= r.config.MaxRetries {
			return zero, &ExhaustedError{Operation: operation, Attempts: attempt + 1, LastError: err}
		}

		delay := r.calculateDelay(attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return result, lastErr
}

func (r *Retryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range r.config.RetryableErrors {
		if strings.Contains(errStr, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * r.config.BaseDelay

	jitter := time.Duration(rand.Float64() * float64(delay) * r.config.JitterFactor)
	if rand.Float64() < 0.5 {
		delay -= jitter
	} else {
		delay += jitter
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

// ExhaustedError is returned when every retry attempt has failed.
type ExhaustedError struct {
	Operation string
	Attempts  int
	LastError error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.LastError)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastError
}

// IsExhausted reports whether err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
