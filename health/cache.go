package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/fetchguard/cache"
	"github.com/jonwraymond/fetchguard/reliable"
	"github.com/jonwraymond/fetchguard/resilience"
)

// DefaultProbeTimeout bounds a backend probe when none is given.
const DefaultProbeTimeout = time.Second

// BackendChecker probes a cache backend.
//
// A failed probe is unhealthy. A backend that replaced an unreachable
// remote store is degraded; a local backend chosen because no remote store
// was configured is healthy.
type BackendChecker struct {
	backend cache.Backend
	meta    cache.Metadata
	timeout time.Duration
}

// NewBackendChecker creates a checker for backend as described by meta.
func NewBackendChecker(backend cache.Backend, meta cache.Metadata, timeout time.Duration) *BackendChecker {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &BackendChecker{backend: backend, meta: meta, timeout: timeout}
}

// Name returns "cache".
func (c *BackendChecker) Name() string { return "cache" }

// Check probes the backend.
func (c *BackendChecker) Check(ctx context.Context) Result {
	details := map[string]any{
		"backend":  string(c.backend.Kind()),
		"fallback": c.meta.FallbackUsed,
	}
	if c.meta.Reason != "" {
		details["reason"] = c.meta.Reason
	}

	if !c.backend.HealthCheck(ctx, c.timeout) {
		return Unhealthy("cache backend probe failed", ErrBackendUnhealthy).WithDetails(details)
	}
	if c.meta.FallbackUsed && c.meta.Reason != cache.ReasonNoRemoteURL {
		msg := "serving from local fallback"
		if c.meta.FallbackDisabled {
			msg = "remote cache unavailable, fallback disabled by config"
		}
		return Degraded(msg).WithDetails(details)
	}
	return Healthy("cache backend reachable").WithDetails(details)
}

// BreakerChecker reports circuits that are not closed.
// Any open or half-open circuit makes the result degraded.
type BreakerChecker struct {
	breakers *resilience.Registry
}

// NewBreakerChecker creates a checker over every breaker in the registry.
func NewBreakerChecker(breakers *resilience.Registry) *BreakerChecker {
	return &BreakerChecker{breakers: breakers}
}

// Name returns "breakers".
func (c *BreakerChecker) Name() string { return "breakers" }

// Check inspects a snapshot of the registry.
func (c *BreakerChecker) Check(context.Context) Result {
	snap := c.breakers.Snapshot()

	open := []string{}
	halfOpen := []string{}
	for _, m := range snap {
		switch m.State {
		case resilience.StateOpen:
			open = append(open, m.ResourceID)
		case resilience.StateHalfOpen:
			halfOpen = append(halfOpen, m.ResourceID)
		}
	}
	details := map[string]any{
		"tracked":   len(snap),
		"open":      open,
		"half_open": halfOpen,
	}

	if n := len(open) + len(halfOpen); n > 0 {
		return Degraded(fmt.Sprintf("%d of %d circuits not closed", n, len(snap))).WithDetails(details)
	}
	return Healthy("all circuits closed").WithDetails(details)
}

// RegisterCache registers the backend and breaker checkers of rc on agg.
func RegisterCache(agg *Aggregator, rc *reliable.Cache, probeTimeout time.Duration) {
	backend := NewBackendChecker(rc.Backend(), rc.Metadata(), probeTimeout)
	breakers := NewBreakerChecker(rc.Breakers())
	agg.Register(backend.Name(), backend)
	agg.Register(breakers.Name(), breakers)
}
