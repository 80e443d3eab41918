package reliable

import (
	"time"

	"github.com/jonwraymond/fetchguard/cache"
	"github.com/jonwraymond/fetchguard/observe"
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger         observe.Logger
	events         observe.Events
	tracer         observe.Tracer
	middleware     *observe.Middleware
	policy         cache.Policy
	computeTimeout time.Duration
	maxConcurrent  int
	meta           cache.Metadata
	observed       bool
}

func defaultOptions() options {
	return options{
		logger:         observe.NopLogger(),
		events:         observe.NopEvents(),
		tracer:         observe.NopTracer(),
		policy:         cache.DefaultPolicy(),
		computeTimeout: DefaultComputeTimeout,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.middleware == nil {
		o.middleware = observe.NewMiddleware(o.tracer, o.events, o.logger)
	}
	return o
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEvents sets the event sink for lookups, computations, fallbacks and
// breaker transitions. Default: no-op.
func WithEvents(e observe.Events) Option {
	return func(o *options) {
		if e != nil {
			o.events = e
		}
	}
}

// WithTracer sets the tracer used for get_or_compute spans. Default: no-op.
func WithTracer(t observe.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithObserver takes the logger, events and tracer from obs. Options given
// after it still override individual components. NewFromConfig builds an
// Observer from the observe section unless one is supplied.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) {
		if obs == nil {
			return
		}
		o.logger = obs.Logger()
		o.events = obs.Events()
		o.tracer = observe.NewTracer(obs.Tracer())
		o.middleware = nil
		o.observed = true
	}
}

// WithMiddleware replaces the middleware wrapped around every computation.
// By default one is built from the configured tracer, events and logger.
func WithMiddleware(m *observe.Middleware) Option {
	return func(o *options) {
		o.middleware = m
	}
}

// WithPolicy sets the lifetime policy for computed values.
// Default: cache.DefaultPolicy().
func WithPolicy(p cache.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithComputeTimeout bounds every computation, whoever is waiting for it.
// Non-positive values use DefaultComputeTimeout.
func WithComputeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.computeTimeout = d
		}
	}
}

// WithMaxConcurrentComputes caps computations running at once across all
// keys. Excess computations fail with resilience.ErrBulkheadFull.
// Zero means unlimited.
func WithMaxConcurrentComputes(n int) Option {
	return func(o *options) {
		o.maxConcurrent = n
	}
}

func withMetadata(m cache.Metadata) Option {
	return func(o *options) {
		o.meta = m
	}
}

// CallOption configures a single GetOrCompute call.
type CallOption func(*callOptions)

type callOptions struct {
	ttl time.Duration
}

// WithTTL overrides the policy's default TTL for the value written by this
// call. It is still clamped by the policy's MaxTTL.
func WithTTL(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.ttl = d
	}
}
