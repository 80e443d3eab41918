package resilience

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout applies when a non-positive timeout is given.
const DefaultTimeout = 30 * time.Second

// Do runs op with the given timeout and returns its value.
//
// The call returns as soon as the deadline passes, even if op ignores
// cancellation; op then keeps running in the background and its late result
// is discarded. A deadline expiry is reported as ErrTimeout, a cancellation
// of ctx as ctx.Err().
func Do[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

// ExecuteWithTimeout is Do for operations without a result.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	_, err := Do(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
