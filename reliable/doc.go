// Package reliable serves expensive, failure-prone computations from a cache.
//
// A Cache ties together three pieces:
//   - a cache.Backend, normally chosen by cache.CreateWithFallback
//   - a resilience.Registry holding one circuit breaker per resource id
//   - an in-flight table so that concurrent misses for one key share a
//     single computation
//
// GetOrCompute looks the key up first. On a miss it either joins the
// computation already running for the key or starts one through the
// breaker for the given resource. A successful result is written with the
// policy TTL and handed to every waiter; a failure is handed to every
// waiter and never written.
//
// Waiters are independent: a caller whose context ends returns at once,
// while the computation continues for the others. It is cancelled only when
// the last waiter has gone or the compute timeout elapses.
//
// When a breaker is open GetOrCompute fails fast with an error matching
// resilience.ErrCircuitOpen, and the computation is not attempted:
//
//	body, err := rc.GetOrCompute(ctx, key, "render:example.com", fetch)
//	if errors.Is(err, resilience.ErrCircuitOpen) {
//		// back off or serve a degraded response
//	}
//
// Init and Default provide one process-wide Cache built from configuration.
// Tests should construct their own with New.
package reliable
