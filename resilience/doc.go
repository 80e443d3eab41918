// Package resilience guards calls to unreliable resources.
//
// The central piece is CircuitBreaker, a Closed/Open/HalfOpen state machine
// per resource, and Registry, which keeps one breaker per resource id:
//
//	reg := resilience.NewRegistry(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    OpenDuration:     30 * time.Second,
//	}, resilience.WithTransitionEvents(events))
//
//	page, err := resilience.Run(ctx, reg, "render:example.com", render)
//	if errors.Is(err, resilience.ErrCircuitOpen) {
//	    // not attempted; back off or take another path
//	}
//
// Smaller helpers compose with it: Retry with exponential Backoff, Bulkhead
// for concurrency caps, and Do for a hard deadline on a single call.
package resilience
