// Package health reports whether a fetchguard deployment can serve requests.
//
// A Checker reports one component as healthy, degraded or unhealthy.
// BackendChecker probes the cache backend and reports a local fallback as
// degraded; BreakerChecker reports open or half-open circuits as degraded.
// RegisterCache wires both for a reliable.Cache:
//
//	agg := health.NewAggregator()
//	health.RegisterCache(agg, rc, time.Second)
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// Degraded components keep the service ready; only an unhealthy result
// turns /readyz and /health into 503.
package health
