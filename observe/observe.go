package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/fetchguard/observe/exporters"
)

// Observer owns the telemetry providers built from a Config and the
// instrumentation derived from them.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: Shutdown honors the deadline of ctx while flushing.
//   - Errors: Shutdown joins provider errors; calling it twice is harmless.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Events is the fallback/transition/lookup sink wired to Meter and Logger.
	Events() Events

	// Middleware instruments computations with Tracer, Events and Logger.
	Middleware() *Middleware

	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer     trace.Tracer
	meter      metric.Meter
	logger     Logger
	events     Events
	middleware *Middleware

	mu      sync.Mutex
	closers []func(context.Context) error
}

// NewObserver validates cfg and builds its providers. Enabled tracing and
// metrics providers are also installed as the otel globals.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
		meter:  noop.NewMeterProvider().Meter("noop"),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing, res)
		if err != nil {
			return nil, fmt.Errorf("observe: tracing: %w", err)
		}
		otel.SetTracerProvider(tp)
		o.tracer = tp.Tracer(cfg.ServiceName)
		o.closers = append(o.closers, tp.Shutdown)
	}

	if cfg.Metrics.Enabled {
		mp, err := newMeterProvider(ctx, cfg.Metrics, res)
		if err != nil {
			o.close(ctx)
			return nil, fmt.Errorf("observe: metrics: %w", err)
		}
		otel.SetMeterProvider(mp)
		o.meter = mp.Meter(cfg.ServiceName)
		o.closers = append(o.closers, mp.Shutdown)
	}

	if cfg.Logging.Enabled {
		if err := o.setupLogging(cfg.Logging); err != nil {
			o.close(ctx)
			return nil, err
		}
	}

	events, err := NewEvents(o.meter, o.logger)
	if err != nil {
		o.close(ctx)
		return nil, fmt.Errorf("observe: events: %w", err)
	}
	o.events = events
	o.middleware = NewMiddleware(NewTracer(o.tracer), events, o.logger)
	return o, nil
}

func (o *observer) setupLogging(cfg LoggingConfig) error {
	if cfg.Backend != BackendZap {
		o.logger = NewLogger(cfg.Level)
		return nil
	}
	zl, err := NewProductionZapLogger(cfg.Level)
	if err != nil {
		return fmt.Errorf("observe: zap: %w", err)
	}
	o.logger = zl
	o.closers = append(o.closers, func(context.Context) error {
		// Sync on a terminal stderr fails with EINVAL or ENOTTY.
		_ = zl.Sync()
		return nil
	})
	return nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(cfg.SamplePct))),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func samplerFor(pct float64) sdktrace.Sampler {
	switch {
	case pct >= MaxSamplePct:
		return sdktrace.AlwaysSample()
	case pct <= MinSamplePct:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(pct)
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }

func (o *observer) Meter() metric.Meter { return o.meter }

func (o *observer) Logger() Logger { return o.logger }

func (o *observer) Events() Events { return o.events }

func (o *observer) Middleware() *Middleware { return o.middleware }

func (o *observer) Shutdown(ctx context.Context) error { return o.close(ctx) }

// close runs the closers in reverse order of setup.
func (o *observer) close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}
