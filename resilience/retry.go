package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the pause before retry n (1-based):
// Base * Multiplier^(n-1), capped at Max, plus up to 25% jitter.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64 // 1 keeps the delay constant; values below 1 mean 2
	Jitter     bool
}

// Delay returns the pause before retry n.
func (b Backoff) Delay(n int) time.Duration {
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	if n < 1 {
		n = 1
	}

	d := time.Duration(float64(b.Base) * math.Pow(mult, float64(n-1)))
	if b.Max > 0 && (d > b.Max || d < 0) {
		d = b.Max
	}
	if b.Jitter && d >= 4 {
		// #nosec G404 -- timing variance only.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// RetryPolicy retries transient failures, such as a remote cache that is
// still starting when the process comes up.
type RetryPolicy struct {
	// Attempts is the total number of tries, the first included. Default: 3
	Attempts int

	// Backoff spaces the tries. Default: 100ms doubling up to 30s, with jitter.
	Backoff Backoff

	// RetryIf reports whether err is worth another try.
	// Default: any error except an open circuit or a context error.
	RetryIf func(err error) bool

	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the documented defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff == (Backoff{}) {
		p.Backoff = Backoff{Base: 100 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2, Jitter: true}
	}
	if p.RetryIf == nil {
		p.RetryIf = retryable
	}
	return p
}

func retryable(err error) bool {
	return !errors.Is(err, ErrCircuitOpen) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Retry runs op under policy p. A non-retryable error is returned as is;
// when every attempt fails, the last error is returned wrapped with
// ErrMaxRetriesExceeded. Cancelling ctx during a pause returns ctx.Err().
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !p.RetryIf(err) {
			return zero, err
		}
		if attempt >= p.Attempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, attempt, err)
		}

		delay := p.Backoff.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// Do is Retry for operations without a result.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
