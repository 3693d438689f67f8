package browser

import (
	"context"
	"time"
)

// Policy is a bounded retry schedule with exponential backoff. The zero
// value is unusable; construct with DefaultPolicy and override fields.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Classify decides whether a failed attempt is retried. Only
	// ClassTransient errors are.
	Classify func(error) Class
}

// DefaultPolicy returns the standard navigation retry schedule:
// 3 attempts, delays 1s then 2s, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Classify:    Classify,
	}
}

// delay returns the backoff before retry number n (n starts at 1).
func (p Policy) delay(n int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Retry runs op up to p.MaxAttempts times, sleeping between attempts.
// Non-transient errors abort on first occurrence and are returned verbatim.
// Context cancellation during backoff aborts with the context error.
func Retry[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(p.delay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if p.Classify(err) != ClassTransient {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
