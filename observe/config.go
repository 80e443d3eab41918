package observe

import (
	"fmt"
	"slices"

	"github.com/jonwraymond/fetchguard/observe/exporters"
)

// Config selects the telemetry backends built by NewObserver.
type Config struct {
	ServiceName string        `mapstructure:"service_name"`
	Version     string        `mapstructure:"version"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// TracingConfig selects the span exporter and the fraction of traces kept.
type TracingConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Exporter  string  `mapstructure:"exporter"`
	SamplePct float64 `mapstructure:"sample_pct"`
}

// MetricsConfig selects the metrics reader.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// LoggingConfig selects the log backend and threshold.
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
	Backend string `mapstructure:"backend"`
}

// Log backends.
const (
	BackendJSON = "json"
	BackendZap  = "zap"
)

var (
	tracingExporters = []string{"", exporters.None, exporters.Stdout, exporters.OTLP, exporters.Jaeger}
	metricsExporters = []string{"", exporters.None, exporters.Stdout, exporters.OTLP, exporters.Prometheus}
	logLevels        = []string{"", "debug", "info", "warn", "error"}
	logBackends      = []string{"", BackendJSON, BackendZap}
)

// Validate reports the first invalid setting. Disabled sections are skipped.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}
	if t := c.Tracing; t.Enabled {
		if err := oneOf(ErrInvalidTracingExporter, t.Exporter, tracingExporters); err != nil {
			return err
		}
		if t.SamplePct < MinSamplePct || t.SamplePct > MaxSamplePct {
			return fmt.Errorf("%w: got %g", ErrInvalidSamplePct, t.SamplePct)
		}
	}
	if m := c.Metrics; m.Enabled {
		if err := oneOf(ErrInvalidMetricsExporter, m.Exporter, metricsExporters); err != nil {
			return err
		}
	}
	if l := c.Logging; l.Enabled {
		if err := oneOf(ErrInvalidLogLevel, l.Level, logLevels); err != nil {
			return err
		}
		if err := oneOf(ErrInvalidLogBackend, l.Backend, logBackends); err != nil {
			return err
		}
	}
	return nil
}

func oneOf(sentinel error, got string, allowed []string) error {
	if slices.Contains(allowed, got) {
		return nil
	}
	return fmt.Errorf("%w: %q (want one of %q)", sentinel, got, allowed[1:])
}
