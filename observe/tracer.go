package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OpMeta describes a guarded operation for telemetry purposes.
type OpMeta struct {
	Name       string // operation name, e.g. "get_or_compute" (required)
	ResourceID string // circuit-breaker resource id (optional)
	Namespace  string // cache namespace (optional)
	Key        string // cache key (optional)
}

// SpanName returns the deterministic span name for this operation.
// Format: fetchguard.<name>
func (m OpMeta) SpanName() string {
	return "fetchguard." + m.Name
}

// Attributes returns the otel attributes describing the operation.
func (m OpMeta) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("op.name", m.Name)}
	if m.ResourceID != "" {
		attrs = append(attrs, attribute.String("breaker.resource", m.ResourceID))
	}
	if m.Namespace != "" {
		attrs = append(attrs, attribute.String("cache.namespace", m.Namespace))
	}
	if m.Key != "" {
		attrs = append(attrs, attribute.String("cache.key", m.Key))
	}
	return attrs
}

// Fields returns the log fields describing the operation.
func (m OpMeta) Fields() []Field {
	fields := []Field{F("op.name", m.Name)}
	if m.ResourceID != "" {
		fields = append(fields, F("breaker.resource", m.ResourceID))
	}
	if m.Namespace != "" {
		fields = append(fields, F("cache.namespace", m.Namespace))
	}
	if m.Key != "" {
		fields = append(fields, F("cache.key", m.Key))
	}
	return fields
}

// Tracer wraps OpenTelemetry tracing with operation-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a guarded operation.
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer. A nil tracer yields a no-op Tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	attrs := append(meta.Attributes(), attribute.Bool("op.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("op.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a Tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
