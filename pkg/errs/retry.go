package errs

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is exponential backoff with jitter, bounded by a retry
// budget local to the failing call; it never restarts a whole branch.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy is a handful of attempts with capped backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 2 * time.Second
	}
	return p
}

// Delay returns the backoff duration before retry attempt n (0-based),
// exponential with full jitter, capped at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	p = p.withDefaults()
	ceiling := float64(p.MaxDelay)
	base := float64(p.BaseDelay) * math.Pow(2, float64(n))
	if base > ceiling {
		base = ceiling
	}
	jittered := rand.Float64() * base
	return time.Duration(jittered)
}

// Do runs fn, retrying while its error is Retryable up to MaxRetries
// times with Delay backoff between attempts. It stops early if ctx is
// done or fn returns a non-retryable error.
func Do(ctx context.Context, policy RetryPolicy, fn func() error) error {
	_, err := Attempts(ctx, policy, fn)
	return err
}

// Attempts is Do, additionally reporting how many attempts ran so callers
// can count retries (the attempt count minus one).
func Attempts(ctx context.Context, policy RetryPolicy, fn func() error) (int, error) {
	policy = policy.withDefaults()
	attempts := 0
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attempts++
		lastErr = fn()
		if lastErr == nil {
			return attempts, nil
		}
		if !KindOf(lastErr).Retryable() {
			return attempts, lastErr
		}
		if attempt == policy.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}
	}
	return attempts, lastErr
}
