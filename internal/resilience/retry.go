// Package resilience retries upstream fetches with exponential backoff.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Backoff controls retry attempts and delays.
type Backoff struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Jitter spreads each delay by ±Jitter of its value.
	Jitter float64
	// Retryable overrides IsTransient when set.
	Retryable func(error) bool
}

// DefaultBackoff returns the policy used for backend API calls.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  250 * time.Millisecond,
		Max:      5 * time.Second,
		Jitter:   0.2,
	}
}

// WithAttempts returns b with Attempts set when n is positive.
func (b Backoff) WithAttempts(n int) Backoff {
	if n > 0 {
		b.Attempts = n
	}
	return b
}

// Delay returns the sleep before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(2, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. op names the operation in logs and errors.
func Retry[T any](ctx context.Context, b Backoff, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	retryable := b.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return zero, err
		}
		if attempt == b.Attempts-1 {
			break
		}

		delay := b.Delay(attempt)
		zap.L().Warn("resilience: retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, eris.Wrapf(lastErr, "resilience: %s failed after %d attempts", op, b.Attempts)
}
