package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// FallbackEvent describes the cache factory substituting the local backend.
type FallbackEvent struct {
	BackendKind      string
	Reason           string
	Remote           string // remote endpoint with credentials stripped
	FallbackDisabled bool
}

// TransitionEvent describes a circuit-breaker state change.
type TransitionEvent struct {
	ResourceID          string
	From                string
	To                  string
	ConsecutiveFailures int
	OpenDuration        time.Duration
}

// Events receives the structured events emitted by the cache and breaker.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; never blocks the caller on export.
// - Errors: implementations must not panic.
type Events interface {
	// BackendFallback records that the remote store was replaced by the local one.
	BackendFallback(ctx context.Context, ev FallbackEvent)

	// BreakerTransition records a circuit-breaker state change.
	BreakerTransition(ctx context.Context, ev TransitionEvent)

	// CacheLookup records a backend read outcome.
	CacheLookup(ctx context.Context, namespace string, hit bool)

	// ComputeDone records a completed guarded computation.
	ComputeDone(ctx context.Context, meta OpMeta, duration time.Duration, err error)
}

type eventsImpl struct {
	logger       Logger
	fallbacks    metric.Int64Counter
	transitions  metric.Int64Counter
	lookups      metric.Int64Counter
	computeErrs  metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewEvents creates an Events sink that logs through logger and counts through meter.
// Nil arguments fall back to no-op implementations.
func NewEvents(meter metric.Meter, logger Logger) (Events, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}
	if logger == nil {
		logger = NopLogger()
	}

	fallbacks, err := meter.Int64Counter(
		"fetchguard.backend.fallback",
		metric.WithDescription("Number of times the local backend replaced the remote store"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"fetchguard.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	lookups, err := meter.Int64Counter(
		"fetchguard.cache.lookups",
		metric.WithDescription("Cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	computeErrs, err := meter.Int64Counter(
		"fetchguard.compute.errors",
		metric.WithDescription("Failed guarded computations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"fetchguard.compute.duration_ms",
		metric.WithDescription("Guarded computation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &eventsImpl{
		logger:       logger,
		fallbacks:    fallbacks,
		transitions:  transitions,
		lookups:      lookups,
		computeErrs:  computeErrs,
		durationHist: durationHist,
	}, nil
}

func (e *eventsImpl) BackendFallback(ctx context.Context, ev FallbackEvent) {
	e.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend.kind", ev.BackendKind),
		attribute.Bool("fallback.disabled", ev.FallbackDisabled),
	))

	fields := []Field{
		F("event", "backend_fallback"),
		F("backend.kind", ev.BackendKind),
		F("reason", ev.Reason),
	}
	if ev.Remote != "" {
		fields = append(fields, F("remote", ev.Remote))
	}
	if ev.FallbackDisabled {
		// Remote-only was requested, so this is an operator-visible error.
		e.logger.Error(ctx, "remote cache unavailable and fallback disabled, using local backend", fields...)
		return
	}
	e.logger.Warn(ctx, "remote cache unavailable, using local backend", fields...)
}

func (e *eventsImpl) BreakerTransition(ctx context.Context, ev TransitionEvent) {
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.resource", ev.ResourceID),
		attribute.String("breaker.from", ev.From),
		attribute.String("breaker.to", ev.To),
	))

	fields := []Field{
		F("event", "breaker_transition"),
		F("breaker.resource", ev.ResourceID),
		F("breaker.from", ev.From),
		F("breaker.to", ev.To),
		F("breaker.consecutive_failures", ev.ConsecutiveFailures),
	}
	if ev.OpenDuration > 0 {
		fields = append(fields, F("breaker.open_duration_ms", ev.OpenDuration.Milliseconds()))
	}
	if ev.To == "open" {
		e.logger.Warn(ctx, "circuit breaker opened", fields...)
		return
	}
	e.logger.Info(ctx, "circuit breaker state changed", fields...)
}

func (e *eventsImpl) CacheLookup(ctx context.Context, namespace string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	attrs := []attribute.KeyValue{attribute.String("cache.outcome", outcome)}
	if namespace != "" {
		attrs = append(attrs, attribute.String("cache.namespace", namespace))
	}
	e.lookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (e *eventsImpl) ComputeDone(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.Attributes()...)
	if err != nil {
		e.computeErrs.Add(ctx, 1, opt)
	}
	e.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

type noopEvents struct{}

// NopEvents returns an Events sink that drops everything.
func NopEvents() Events { return noopEvents{} }

func (noopEvents) BackendFallback(context.Context, FallbackEvent)            {}
func (noopEvents) BreakerTransition(context.Context, TransitionEvent)        {}
func (noopEvents) CacheLookup(context.Context, string, bool)                 {}
func (noopEvents) ComputeDone(context.Context, OpMeta, time.Duration, error) {}
