package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how many attempts an operation gets and how long
// to wait between them. The wait grows by BackoffFactor after each
// failure, capped at MaxBackoff, with Jitter spreading it +/- that
// fraction so synchronized clients do not retry in lockstep.
type RetryConfig struct {
	// MaxAttempts counts the first try too, so 3 means 2 retries.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Jitter is a fraction of the backoff, 0.1 means +/- 10%.
	Jitter float64

	// RetryableFunc overrides IsRetryable when set.
	RetryableFunc func(error) bool
}

// DefaultRetry suits chat-completion calls against a rate-limited API.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// AggressiveRetry tries more often with shorter waits, for cheap
// idempotent calls where latency matters more than load.
var AggressiveRetry = RetryConfig{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  1.5,
	Jitter:         0.2,
}

// NoRetry runs the operation exactly once.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult reports the outcome of a retried operation: the value on
// success, a CategorizedError on failure, and how many attempts and how
// much wall time were spent either way.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// WithRetry runs fn with retry and no cancellation.
func WithRetry[T any](cfg RetryConfig, fn func() (T, error)) RetryResult[T] {
	return WithRetryContext(context.Background(), cfg, func(context.Context) (T, error) {
		return fn()
	})
}

// WithRetryContext runs fn up to cfg.MaxAttempts times, backing off
// between failures. Non-retryable errors stop the loop at once, as does
// context cancellation, whether it fires before an attempt or during a
// backoff wait. The final error is always a CategorizedError.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()

	retryable := cfg.RetryableFunc
	if retryable == nil {
		retryable = IsRetryable
	}

	wait := cfg.InitialBackoff
	var finalErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult[T]{
				Err:      Permanent(err, "context cancelled"),
				Attempts: attempt - 1,
				Duration: time.Since(start),
			}
		}

		value, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{
				Value:    value,
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}
		finalErr = err

		if !retryable(err) {
			return RetryResult[T]{
				Err:      &CategorizedError{Err: err, Category: Categorize(err), Retries: attempt},
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return RetryResult[T]{
				Err:      Permanent(ctx.Err(), "context cancelled during backoff"),
				Attempts: attempt,
				Duration: time.Since(start),
			}
		case <-time.After(withJitter(wait, cfg.Jitter)):
		}

		wait = min(time.Duration(float64(wait)*cfg.BackoffFactor), cfg.MaxBackoff)
	}

	return RetryResult[T]{
		Err: &CategorizedError{
			Err:      finalErr,
			Category: Categorize(finalErr),
			Retries:  cfg.MaxAttempts,
			Context:  "max retries exceeded",
		},
		Attempts: cfg.MaxAttempts,
		Duration: time.Since(start),
	}
}

// withJitter spreads base by +/- base*jitter.
func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	spread := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + spread)
}

// RetryOption adjusts a RetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the attempt limit, first try included.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

// WithInitialBackoff sets the wait after the first failure.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialBackoff = d }
}

// WithMaxBackoff caps the wait between attempts.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxBackoff = d }
}

// WithBackoffFactor sets the growth multiplier applied after each failure.
func WithBackoffFactor(f float64) RetryOption {
	return func(c *RetryConfig) { c.BackoffFactor = f }
}

// WithJitter sets the random spread as a fraction of the backoff.
func WithJitter(j float64) RetryOption {
	return func(c *RetryConfig) { c.Jitter = j }
}

// WithRetryableFunc replaces the default retryability check.
func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.RetryableFunc = fn }
}

// NewRetryConfig starts from DefaultRetry and applies opts.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
