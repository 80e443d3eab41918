package health

import (
	"context"
	"fmt"
	"maps"
	"time"
)

// Status orders component health from best to worst.
type Status int

const (
	StatusHealthy Status = iota
	// StatusDegraded still serves: a local fallback cache or an open circuit.
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < StatusHealthy || s > StatusUnhealthy {
		return "unknown"
	}
	return statusNames[s]
}

// Worse returns the worse of s and other.
func (s Status) Worse(other Status) Status {
	return max(s, other)
}

// MarshalText encodes s by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("health: unknown status %q", b)
}

// Result is what a Checker observed. Duration is filled in by the Aggregator.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func result(s Status, msg string, err error) Result {
	return Result{Status: s, Message: msg, Error: err, Timestamp: time.Now()}
}

func Healthy(message string) Result { return result(StatusHealthy, message, nil) }

func Degraded(message string) Result { return result(StatusDegraded, message, nil) }

func Unhealthy(message string, err error) Result { return result(StatusUnhealthy, message, err) }

// WithDetails returns a copy of r carrying details.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// WithDetail returns a copy of r with one more detail. r is not modified.
func (r Result) WithDetail(key string, value any) Result {
	d := make(map[string]any, len(r.Details)+1)
	maps.Copy(d, r.Details)
	d[key] = value
	r.Details = d
	return r
}

// Checker reports the health of one component.
//
// Check may be called concurrently and should return soon after ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type funcChecker struct {
	name string
	fn   func(context.Context) Result
}

func (f funcChecker) Name() string { return f.name }

func (f funcChecker) Check(ctx context.Context) Result { return f.fn(ctx) }

// NewCheckerFunc returns a Checker named name that calls fn.
func NewCheckerFunc(name string, fn func(context.Context) Result) Checker {
	return funcChecker{name: name, fn: fn}
}
