package observe

import (
	"context"
	"time"
)

// ComputeFunc is the signature of a guarded computation producing cacheable bytes.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Middleware wraps guarded computations with tracing, events, and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ComputeFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer Tracer
	events Events
	logger Logger
}

// NewMiddleware creates a new Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, events Events, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if events == nil {
		events = NopEvents()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer: tracer,
		events: events,
		logger: logger,
	}
}

// Wrap instruments fn for the operation described by meta.
func (m *Middleware) Wrap(meta OpMeta, fn ComputeFunc) ComputeFunc {
	return func(ctx context.Context) ([]byte, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		result, err := fn(ctx)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.events.ComputeDone(ctx, meta, duration, err)

		fields := append(meta.Fields(), F("duration_ms", float64(duration.Milliseconds())))
		if err != nil {
			fields = append(fields, F("error", err))
			m.logger.Warn(ctx, "computation failed", fields...)
		} else {
			m.logger.Debug(ctx, "computation completed", fields...)
		}

		return result, err
	}
}
