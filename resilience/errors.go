package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when max retry attempts are exhausted.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// OpenError is returned when a breaker rejects a call. The guarded operation
// was not attempted. It matches ErrCircuitOpen.
type OpenError struct {
	ResourceID string
	// RetryAfter is the remaining cool-down; zero when a half-open trial is already running.
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.ResourceID == "" {
		return ErrCircuitOpen.Error()
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", ErrCircuitOpen, e.ResourceID, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", ErrCircuitOpen, e.ResourceID)
}

// Unwrap returns ErrCircuitOpen.
func (e *OpenError) Unwrap() error {
	return ErrCircuitOpen
}

// IsRetryable reports whether err signals a transient rejection the caller
// may retry later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrBulkheadFull) || errors.Is(err, ErrTimeout)
}
