package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/fetchguard/observe"
	"github.com/jonwraymond/fetchguard/resilience"
)

// Local engines selectable through Config.LocalEngine.
const (
	EngineLRU       = "lru"
	EngineRistretto = "ristretto"
)

// Fallback reasons recorded in Metadata.
const (
	ReasonNoRemoteURL = "remote_url not configured"
)

// Config is the cache section of the service configuration.
type Config struct {
	RemoteURL            string `mapstructure:"remote_url"`
	DefaultTTLSeconds    int    `mapstructure:"default_ttl_seconds"`
	MaxTTLSeconds        int    `mapstructure:"max_ttl_seconds"`
	FallbackEnabled      bool   `mapstructure:"fallback_enabled"`
	HealthCheckTimeoutMS int    `mapstructure:"health_check_timeout_ms"`
	OperationTimeoutMS   int    `mapstructure:"operation_timeout_ms"`
	ConnectAttempts      int    `mapstructure:"connect_attempts"`
	LocalMaxEntries      int    `mapstructure:"local_max_entries"`
	LocalEngine          string `mapstructure:"local_engine"`
}

// DefaultConfig returns a configuration with no remote store and a one hour TTL.
func DefaultConfig() Config {
	return Config{
		DefaultTTLSeconds:    3600,
		FallbackEnabled:      true,
		HealthCheckTimeoutMS: 1000,
		OperationTimeoutMS:   int(DefaultOperationTimeout / time.Millisecond),
		ConnectAttempts:      1,
		LocalMaxEntries:      DefaultLocalMaxEntries,
		LocalEngine:          EngineLRU,
	}
}

// Validate checks value ranges. Errors match ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.DefaultTTLSeconds < 0:
		return fmt.Errorf("%w: default_ttl_seconds must be >= 0", ErrInvalidConfig)
	case c.MaxTTLSeconds < 0:
		return fmt.Errorf("%w: max_ttl_seconds must be >= 0", ErrInvalidConfig)
	case c.HealthCheckTimeoutMS < 0:
		return fmt.Errorf("%w: health_check_timeout_ms must be >= 0", ErrInvalidConfig)
	case c.OperationTimeoutMS < 0:
		return fmt.Errorf("%w: operation_timeout_ms must be >= 0", ErrInvalidConfig)
	case c.ConnectAttempts < 0:
		return fmt.Errorf("%w: connect_attempts must be >= 0", ErrInvalidConfig)
	case c.LocalMaxEntries < 0:
		return fmt.Errorf("%w: local_max_entries must be >= 0", ErrInvalidConfig)
	}
	switch c.LocalEngine {
	case "", EngineLRU, EngineRistretto:
	default:
		return fmt.Errorf("%w: unknown local_engine %q", ErrInvalidConfig, c.LocalEngine)
	}
	return nil
}

// Policy returns the lifetime policy described by the config.
func (c Config) Policy() Policy {
	return Policy{
		DefaultTTL: time.Duration(c.DefaultTTLSeconds) * time.Second,
		MaxTTL:     time.Duration(c.MaxTTLSeconds) * time.Second,
	}
}

// HealthCheckTimeout returns the construction-time probe bound.
func (c Config) HealthCheckTimeout() time.Duration {
	return time.Duration(c.HealthCheckTimeoutMS) * time.Millisecond
}

// OperationTimeout returns the per-call remote bound.
func (c Config) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutMS) * time.Millisecond
}

// Metadata describes which backend a factory call produced.
type Metadata struct {
	BackendKind      Kind
	FallbackUsed     bool
	FallbackDisabled bool
	Reason           string
}

// FactoryOption configures CreateWithFallback and Memory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger observe.Logger
	events observe.Events
}

// WithLogger sets the logger handed to the backends.
func WithLogger(l observe.Logger) FactoryOption {
	return func(o *factoryOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEvents sets the sink for fallback events.
func WithEvents(e observe.Events) FactoryOption {
	return func(o *factoryOptions) {
		if e != nil {
			o.events = e
		}
	}
}

func applyFactoryOptions(opts []FactoryOption) factoryOptions {
	o := factoryOptions{logger: observe.NopLogger(), events: observe.NopEvents()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CreateWithFallback builds the remote backend when one is configured and
// reachable, and the local backend otherwise. It never fails: every problem
// with the remote store is recorded in Metadata and reported as an event.
//
// With FallbackEnabled=false a remote failure still yields the local backend,
// but Metadata.FallbackDisabled is set and the event is logged at error level.
func CreateWithFallback(ctx context.Context, cfg Config, opts ...FactoryOption) (Backend, Metadata) {
	o := applyFactoryOptions(opts)

	if cfg.RemoteURL == "" {
		local := newLocal(cfg, o)
		return local, Metadata{
			BackendKind:  local.Kind(),
			FallbackUsed: cfg.FallbackEnabled,
			Reason:       ReasonNoRemoteURL,
		}
	}

	remote, err := connectRemote(ctx, cfg, o)
	if err == nil {
		o.logger.Info(ctx, "cache backend ready",
			observe.F("cache.backend", string(KindRemote)),
			observe.F("cache.endpoint", remote.Endpoint()),
		)
		return remote, Metadata{BackendKind: KindRemote}
	}

	local := newLocal(cfg, o)
	meta := Metadata{
		BackendKind:      local.Kind(),
		FallbackUsed:     true,
		FallbackDisabled: !cfg.FallbackEnabled,
		Reason:           err.Error(),
	}
	o.events.BackendFallback(ctx, observe.FallbackEvent{
		BackendKind:      string(meta.BackendKind),
		Reason:           meta.Reason,
		Remote:           redactURL(cfg.RemoteURL),
		FallbackDisabled: meta.FallbackDisabled,
	})
	return local, meta
}

// Memory builds the local backend without attempting the remote store.
func Memory(cfg Config, opts ...FactoryOption) (Backend, Metadata) {
	local := newLocal(cfg, applyFactoryOptions(opts))
	return local, Metadata{BackendKind: local.Kind()}
}

func connectRemote(ctx context.Context, cfg Config, o factoryOptions) (*RemoteBackend, error) {
	remote, err := NewRemoteBackend(cfg.RemoteURL,
		WithOperationTimeout(cfg.OperationTimeout()),
		WithRemoteLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	policy := resilience.RetryPolicy{
		Attempts: attempts,
		Backoff:  resilience.Backoff{Base: 50 * time.Millisecond, Max: time.Second, Jitter: true},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			o.logger.Debug(ctx, "remote cache health check retry",
				observe.F("attempt", attempt),
				observe.F("delay_ms", delay.Milliseconds()),
				observe.F("error", err),
			)
		},
	}
	err = policy.Do(ctx, func(ctx context.Context) error {
		if !remote.HealthCheck(ctx, cfg.HealthCheckTimeout()) {
			return ErrBackendUnavailable
		}
		return nil
	})
	if err != nil {
		_ = remote.Close()
		return nil, fmt.Errorf("%w: health check failed for %s", ErrBackendUnavailable, remote.Endpoint())
	}
	return remote, nil
}

func newLocal(cfg Config, o factoryOptions) Backend {
	if cfg.LocalEngine == EngineRistretto {
		rb, err := NewRistrettoBackend(cfg.LocalMaxEntries)
		if err == nil {
			return rb
		}
		o.logger.Warn(context.Background(), "ristretto unavailable, using lru",
			observe.F("error", err),
		)
	}
	return NewLocalBackend(cfg.LocalMaxEntries)
}
