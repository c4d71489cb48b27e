package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how often and how patiently a failing store call is
// retried.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below one mean one.
	MaxAttempts int

	// InitialBackoff is the pause before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the pause. Zero means uncapped.
	MaxBackoff time.Duration

	// BackoffFactor grows the pause after each retry. Values below one keep
	// it constant.
	BackoffFactor float64

	// Jitter spreads each pause by up to this fraction in either direction.
	Jitter float64

	// OnRetry, if set, runs before each pause.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetry is tuned for SQLite lock contention: the driver already waits
// out its busy timeout, so the extra attempts are short.
var DefaultRetry = RetryConfig{
	MaxAttempts:    5,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
	BackoffFactor:  2.0,
	Jitter:         0.25,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{MaxAttempts: 1}

// RetryOption adjusts a RetryConfig built by NewRetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the attempt limit.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

// WithInitialBackoff sets the first pause.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialBackoff = d }
}

// WithMaxBackoff caps the pause.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxBackoff = d }
}

// NewRetryConfig starts from DefaultRetry and applies opts in order.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	c := DefaultRetry
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c RetryConfig) attempts() int {
	return max(c.MaxAttempts, 1)
}

// backoff returns the pause after the given failed attempt (1-based).
func (c RetryConfig) backoff(attempt int) time.Duration {
	factor := max(c.BackoffFactor, 1)
	d := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= factor
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			d = float64(c.MaxBackoff)
			break
		}
	}
	return jitter(time.Duration(d), c.Jitter)
}

// jitter moves d by a random amount within +/- d*frac.
func jitter(d time.Duration, frac float64) time.Duration {
	if d <= 0 || frac <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*frac*(2*rand.Float64()-1))
}

// RetryResult is the outcome of a retried call.
type RetryResult[T any] struct {
	// Value is fn's result from the successful attempt.
	Value T
	// Err is nil on success.
	Err error
	// Attempts is how many times fn ran.
	Attempts int
	// Duration is the wall time spent, pauses included.
	Duration time.Duration
}

// WithRetry is WithRetryContext without cancellation.
func WithRetry[T any](cfg RetryConfig, fn func() (T, error)) RetryResult[T] {
	return WithRetryContext(context.Background(), cfg, func(context.Context) (T, error) {
		return fn()
	})
}

// WithRetryContext calls fn until it succeeds, fails permanently, runs out
// of attempts or ctx ends.
//
// A permanent error is returned exactly as fn produced it so callers can
// match it with errors.Is. Exhausted retries and cancellation come back as a
// *CategorizedError wrapping the cause.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	var res RetryResult[T]
	done := func(err error) RetryResult[T] {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	limit := cfg.attempts()
	for {
		if err := ctx.Err(); err != nil {
			return done(gaveUp(err, CategoryPermanent, res.Attempts, "context cancelled"))
		}

		res.Attempts++
		v, err := fn(ctx)
		switch {
		case err == nil:
			res.Value = v
			return done(nil)
		case !IsRetryable(err):
			return done(err)
		case res.Attempts >= limit:
			return done(gaveUp(err, CategoryTransient, res.Attempts, "max retries exceeded"))
		}

		wait := cfg.backoff(res.Attempts)
		if cfg.OnRetry != nil {
			cfg.OnRetry(res.Attempts, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return done(gaveUp(ctx.Err(), CategoryPermanent, res.Attempts, "context cancelled during backoff"))
		case <-timer.C:
		}
	}
}

func gaveUp(err error, cat Category, attempts int, why string) *CategorizedError {
	return &CategorizedError{Err: err, Category: cat, Retries: attempts, Context: why}
}
