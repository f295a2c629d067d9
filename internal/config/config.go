// Package config holds the environment-driven configuration for the
// logging and telemetry pipelines.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete telemetry configuration.
type Config struct {
	// ServiceName identifies this service in logs and resources.
	ServiceName string `env:"SERVICE_NAME" envDefault:"unknown"`

	// Version is the application version, included in logs and resources.
	Version string `env:"SERVICE_VERSION"`

	// Level is the minimum log level: debug, info, warn, error.
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Development enables caller info, stack traces and pretty output.
	Development bool `env:"LOG_DEVELOPMENT"`

	Console ConsoleConfig
	File    FileConfig
	OTEL    OTELConfig

	// Exporters lists every telemetry backend that may receive data.
	Exporters Exporters

	// Vendor configures the vendor-native tracer mode.
	Vendor VendorConfig

	// Sampler: "always", "never" or "ratio:<float>".
	Sampler string `env:"OTEL_SAMPLER" envDefault:"always"`
}

// ConsoleConfig configures console (stdout/stderr) output.
type ConsoleConfig struct {
	Enabled bool `env:"LOG_CONSOLE" envDefault:"true"`

	// Format: "json", "pretty" or "systemd". Empty picks by Development.
	Format string `env:"LOG_FORMAT"`

	Color bool `env:"LOG_COLOR" envDefault:"true"`

	// ErrorsToStderr sends warn and above to stderr.
	ErrorsToStderr bool `env:"LOG_ERRORS_TO_STDERR" envDefault:"true"`

	// Level overrides the global level for this sink.
	Level string `env:"LOG_CONSOLE_LEVEL"`
}

// FileConfig configures file output with rotation.
type FileConfig struct {
	Enabled    bool   `env:"LOG_FILE_ENABLED"`
	Path       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`
	MaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"7"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`
	Compress   bool   `env:"LOG_FILE_COMPRESS" envDefault:"true"`
	Level      string `env:"LOG_FILE_LEVEL"`
}

// OTELConfig configures the bridge from the structured logger into
// OpenTelemetry log records.
type OTELConfig struct {
	// Enabled controls whether structured logs are bridged to the log
	// pipelines. The bridge is a no-op when no log pipeline exists.
	Enabled bool `env:"LOG_OTEL_ENABLED" envDefault:"true"`

	// Level overrides the global level for bridged records.
	Level string `env:"LOG_OTEL_LEVEL"`

	// Attributes are additional resource attributes.
	Attributes map[string]string `env:"OTEL_RESOURCE_ATTRIBUTES" envKeyValSeparator:"="`
}

// VendorConfig selects the vendor-native Datadog tracer instead of the
// OTLP pipelines.
type VendorConfig struct {
	// Trace turns vendor mode on when it is exactly "true". Any other
	// value leaves it off.
	Trace     string `env:"DD_TRACE_ENABLED"`
	AgentHost string `env:"DD_AGENT_HOST" envDefault:"localhost"`
	AgentPort string `env:"DD_TRACE_AGENT_PORT" envDefault:"8126"`
}

// Enabled reports whether vendor mode is requested.
func (v VendorConfig) Enabled() bool {
	return strings.TrimSpace(v.Trace) == "true"
}

// AgentAddr returns host:port of the trace agent.
func (v VendorConfig) AgentAddr() string {
	return v.AgentHost + ":" + v.AgentPort
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

var validLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true, "fatal": true,
}

// Validate reports configuration values that cannot be used.
func (c Config) Validate() error {
	var errs []error
	for name, lvl := range map[string]string{
		"LOG_LEVEL":         c.Level,
		"LOG_CONSOLE_LEVEL": c.Console.Level,
		"LOG_FILE_LEVEL":    c.File.Level,
		"LOG_OTEL_LEVEL":    c.OTEL.Level,
	} {
		if !validLevels[strings.ToLower(lvl)] {
			errs = append(errs, fmt.Errorf("%s: unknown level %q", name, lvl))
		}
	}
	switch c.Exporters.Collector.Protocol {
	case "", "http", "grpc":
	default:
		errs = append(errs, fmt.Errorf("COLLECTOR_OTLP_PROTOCOL: unsupported protocol %q", c.Exporters.Collector.Protocol))
	}
	if c.Exporters.Batch.MaxExportBatchSize > c.Exporters.Batch.MaxQueueSize && c.Exporters.Batch.MaxQueueSize > 0 {
		errs = append(errs, errors.New("batch size must not exceed queue size"))
	}
	return errors.Join(errs...)
}

// Exporters holds per-backend endpoint and credential pairs. A backend
// whose required variables are missing is simply disabled.
type Exporters struct {
	Honeycomb  HoneycombConfig
	Grafana    GrafanaConfig
	Sentry     SentryConfig
	Datadog    DatadogConfig
	ClickStack ClickStackConfig
	Collector  CollectorConfig

	// Console enables stdout span and log exporters when set to any
	// value other than "", "0" or "false".
	Console string `env:"OTEL_EXPORTER_CONSOLE"`

	Batch BatchConfig

	// Timeout bounds a single export call.
	Timeout time.Duration `env:"OTEL_EXPORTER_TIMEOUT" envDefault:"10s"`
}

// ConsoleEnabled reports whether the console exporters are requested.
func (e Exporters) ConsoleEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(e.Console)) {
	case "", "0", "false":
		return false
	}
	return true
}

// HoneycombConfig authenticates with the x-honeycomb-team header.
type HoneycombConfig struct {
	Endpoint string `env:"HONEYCOMB_ENDPOINT"`
	APIKey   string `env:"HONEYCOMB_API_KEY"`
}

// GrafanaConfig authenticates with a prebuilt Authorization value.
type GrafanaConfig struct {
	Endpoint string `env:"GRAFANA_OTLP_ENDPOINT"`
	Auth     string `env:"GRAFANA_OTLP_AUTH"`
}

// SentryConfig authenticates with the x-sentry-auth header.
type SentryConfig struct {
	Endpoint string `env:"SENTRY_OTLP_ENDPOINT"`
	Auth     string `env:"SENTRY_AUTH"`
}

// DatadogConfig points at an agent OTLP intake, which needs no credential.
type DatadogConfig struct {
	Endpoint string `env:"DATADOG_OTLP_ENDPOINT"`
}

// ClickStackConfig has an optional API key.
type ClickStackConfig struct {
	Endpoint string `env:"CLICKSTACK_OTLP_ENDPOINT"`
	APIKey   string `env:"CLICKSTACK_API_KEY"`
}

// CollectorConfig is a generic OTLP collector, reachable over HTTP or gRPC.
type CollectorConfig struct {
	// Endpoint accepts host:port, http://host[:port] or https://host[:port].
	Endpoint string `env:"COLLECTOR_OTLP_ENDPOINT"`

	Protocol string            `env:"COLLECTOR_OTLP_PROTOCOL" envDefault:"http"`
	Insecure bool              `env:"COLLECTOR_OTLP_INSECURE"`
	Headers  map[string]string `env:"COLLECTOR_OTLP_HEADERS"`

	// Username and Password become a Basic Authorization header.
	Username string `env:"COLLECTOR_OTLP_USERNAME"`
	Password string `env:"COLLECTOR_OTLP_PASSWORD"`
}

// BatchConfig bounds export payload sizes. The defaults are lower than the
// SDK defaults so a single batch stays under backend payload limits.
type BatchConfig struct {
	MaxExportBatchSize int           `env:"OBS_EXPORT_BATCH_SIZE" envDefault:"50"`
	MaxQueueSize       int           `env:"OBS_EXPORT_QUEUE_SIZE" envDefault:"500"`
	ScheduledDelay     time.Duration `env:"OBS_EXPORT_DELAY" envDefault:"5s"`
	MetricInterval     time.Duration `env:"OBS_METRIC_INTERVAL" envDefault:"60s"`
}

// DefaultBatch returns the batch limits used when none are configured.
func DefaultBatch() BatchConfig {
	return BatchConfig{
		MaxExportBatchSize: 50,
		MaxQueueSize:       500,
		ScheduledDelay:     5 * time.Second,
		MetricInterval:     60 * time.Second,
	}
}

// Default returns the configuration an empty environment produces.
func Default() Config {
	cfg, _ := LoadFrom(map[string]string{})
	return cfg
}

// Development returns the defaults tuned for local work: debug level,
// pretty console output and caller information.
func Development() Config {
	cfg := Default()
	cfg.Level = "debug"
	cfg.Development = true
	cfg.Console.Format = "pretty"
	return cfg
}

// WithLevel returns a copy of the config with the specified level.
func (c Config) WithLevel(level string) Config {
	c.Level = level
	return c
}

// WithService returns a copy of the config with the specified service name.
func (c Config) WithService(name string) Config {
	c.ServiceName = name
	return c
}

// WithVersion returns a copy of the config with the specified version.
func (c Config) WithVersion(version string) Config {
	c.Version = version
	return c
}

// WithFile returns a copy of the config with file logging enabled.
func (c Config) WithFile(path string) Config {
	c.File.Enabled = true
	c.File.Path = path
	return c
}

// WithCollector returns a copy of the config exporting to a generic OTLP
// collector over protocol ("http" or "grpc").
func (c Config) WithCollector(endpoint, protocol string) Config {
	c.Exporters.Collector.Endpoint = endpoint
	c.Exporters.Collector.Protocol = protocol
	return c
}

// WithConsoleExporter returns a copy of the config with the stdout span
// and log exporters enabled.
func (c Config) WithConsoleExporter() Config {
	c.Exporters.Console = "true"
	return c
}

// WithVendorTracer returns a copy of the config in vendor-native tracer
// mode, reporting to the agent at host:port.
func (c Config) WithVendorTracer(host, port string) Config {
	c.Vendor.Trace = "true"
	c.Vendor.AgentHost = host
	c.Vendor.AgentPort = port
	return c
}
