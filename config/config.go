package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/fetchguard/cache"
	"github.com/jonwraymond/fetchguard/observe"
	"github.com/jonwraymond/fetchguard/resilience"
)

// EnvPrefix prefixes every environment override, e.g. FETCHGUARD_CACHE_REMOTE_URL.
const EnvPrefix = "FETCHGUARD"

var (
	// ErrInvalidValue matches range and enum violations reported by Validate.
	ErrInvalidValue = errors.New("config: invalid value")

	// ErrMissingEnv matches ${VAR} references to unset environment variables.
	ErrMissingEnv = errors.New("config: missing environment variable")
)

// ConfigError reports the offending key of an invalid configuration.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config is the complete service configuration.
type Config struct {
	Cache   cache.Config   `mapstructure:"cache"`
	Breaker BreakerConfig  `mapstructure:"breaker"`
	Compute ComputeConfig  `mapstructure:"compute"`
	Observe observe.Config `mapstructure:"observe"`
}

// BreakerConfig is the circuit breaker section shared by every resource.
type BreakerConfig struct {
	FailureThreshold  int     `mapstructure:"failure_threshold"`
	OpenDurationMS    int     `mapstructure:"open_duration_ms"`
	HalfOpenMaxTrials int     `mapstructure:"half_open_max_trials"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	MaxOpenDurationMS int     `mapstructure:"max_open_duration_ms"`
}

// ComputeConfig bounds guarded computations.
type ComputeConfig struct {
	TimeoutMS     int `mapstructure:"timeout_ms"`
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// Timeout returns the global compute bound.
func (c ComputeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	breaker := resilience.DefaultCircuitBreakerConfig()
	return Config{
		Cache: cache.DefaultConfig(),
		Breaker: BreakerConfig{
			FailureThreshold:  breaker.FailureThreshold,
			OpenDurationMS:    int(breaker.OpenDuration / time.Millisecond),
			HalfOpenMaxTrials: breaker.HalfOpenMaxTrials,
			BackoffMultiplier: 1,
		},
		Compute: ComputeConfig{
			TimeoutMS: int(resilience.DefaultTimeout / time.Millisecond),
		},
		Observe: observe.Config{
			ServiceName: "fetchguard",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 1},
			Metrics:     observe.MetricsConfig{Exporter: "none"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info", Backend: "zap"},
		},
	}
}

// Load reads configuration from path (optional, YAML/JSON/TOML by
// extension), then FETCHGUARD_* environment variables, on top of Default.
// ${VAR} references in cache.remote_url are expanded strictly. The result
// is validated; any problem is returned as a *ConfigError.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &ConfigError{Key: "file", Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &ConfigError{Key: "decode", Err: err}
	}

	url, err := ExpandEnvStrict(cfg.Cache.RemoteURL)
	if err != nil {
		return Config{}, &ConfigError{Key: "cache.remote_url", Err: err}
	}
	cfg.Cache.RemoteURL = url

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("cache.remote_url", d.Cache.RemoteURL)
	v.SetDefault("cache.default_ttl_seconds", d.Cache.DefaultTTLSeconds)
	v.SetDefault("cache.max_ttl_seconds", d.Cache.MaxTTLSeconds)
	v.SetDefault("cache.fallback_enabled", d.Cache.FallbackEnabled)
	v.SetDefault("cache.health_check_timeout_ms", d.Cache.HealthCheckTimeoutMS)
	v.SetDefault("cache.operation_timeout_ms", d.Cache.OperationTimeoutMS)
	v.SetDefault("cache.connect_attempts", d.Cache.ConnectAttempts)
	v.SetDefault("cache.local_max_entries", d.Cache.LocalMaxEntries)
	v.SetDefault("cache.local_engine", d.Cache.LocalEngine)

	v.SetDefault("breaker.failure_threshold", d.Breaker.FailureThreshold)
	v.SetDefault("breaker.open_duration_ms", d.Breaker.OpenDurationMS)
	v.SetDefault("breaker.half_open_max_trials", d.Breaker.HalfOpenMaxTrials)
	v.SetDefault("breaker.backoff_multiplier", d.Breaker.BackoffMultiplier)
	v.SetDefault("breaker.max_open_duration_ms", d.Breaker.MaxOpenDurationMS)

	v.SetDefault("compute.timeout_ms", d.Compute.TimeoutMS)
	v.SetDefault("compute.max_concurrent", d.Compute.MaxConcurrent)

	v.SetDefault("observe.service_name", d.Observe.ServiceName)
	v.SetDefault("observe.version", d.Observe.Version)
	v.SetDefault("observe.tracing.enabled", d.Observe.Tracing.Enabled)
	v.SetDefault("observe.tracing.exporter", d.Observe.Tracing.Exporter)
	v.SetDefault("observe.tracing.sample_pct", d.Observe.Tracing.SamplePct)
	v.SetDefault("observe.metrics.enabled", d.Observe.Metrics.Enabled)
	v.SetDefault("observe.metrics.exporter", d.Observe.Metrics.Exporter)
	v.SetDefault("observe.logging.enabled", d.Observe.Logging.Enabled)
	v.SetDefault("observe.logging.level", d.Observe.Logging.Level)
	v.SetDefault("observe.logging.backend", d.Observe.Logging.Backend)
}

// Validate checks every section. The first problem is returned as a *ConfigError.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return &ConfigError{Key: "cache", Err: err}
	}

	b := c.Breaker
	switch {
	case b.FailureThreshold < 1:
		return invalid("breaker.failure_threshold", "must be >= 1, got %d", b.FailureThreshold)
	case b.OpenDurationMS < 0:
		return invalid("breaker.open_duration_ms", "must be >= 0, got %d", b.OpenDurationMS)
	case b.HalfOpenMaxTrials < 1:
		return invalid("breaker.half_open_max_trials", "must be >= 1, got %d", b.HalfOpenMaxTrials)
	case b.BackoffMultiplier != 0 && b.BackoffMultiplier < 1:
		return invalid("breaker.backoff_multiplier", "must be >= 1, got %g", b.BackoffMultiplier)
	case b.MaxOpenDurationMS < 0:
		return invalid("breaker.max_open_duration_ms", "must be >= 0, got %d", b.MaxOpenDurationMS)
	}

	if c.Compute.TimeoutMS < 0 {
		return invalid("compute.timeout_ms", "must be >= 0, got %d", c.Compute.TimeoutMS)
	}
	if c.Compute.MaxConcurrent < 0 {
		return invalid("compute.max_concurrent", "must be >= 0, got %d", c.Compute.MaxConcurrent)
	}

	if err := c.Observe.Validate(); err != nil {
		return &ConfigError{Key: "observe", Err: err}
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return &ConfigError{Key: key, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidValue}, args...)...)}
}

// CacheConfig returns the cache factory section.
func (c Config) CacheConfig() cache.Config {
	return c.Cache
}

// BreakerConfig converts the breaker section for resilience.NewRegistry.
func (c Config) BreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold:  c.Breaker.FailureThreshold,
		OpenDuration:      time.Duration(c.Breaker.OpenDurationMS) * time.Millisecond,
		HalfOpenMaxTrials: c.Breaker.HalfOpenMaxTrials,
		BackoffMultiplier: c.Breaker.BackoffMultiplier,
		MaxOpenDuration:   time.Duration(c.Breaker.MaxOpenDurationMS) * time.Millisecond,
	}
}
