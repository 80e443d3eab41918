// Package observe provides the logging, metrics, and tracing primitives used by
// the cache and circuit breaker.
//
// It is a pure instrumentation library: structured loggers (JSON or zap), an
// Events sink for backend-fallback and breaker-transition events, an operation
// tracer, and a Middleware that instruments guarded computations. Observer wires
// them to OpenTelemetry exporters.
package observe
