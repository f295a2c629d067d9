package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/eli0shin/obs-playground/internal/config"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	insecurecreds "google.golang.org/grpc/credentials/insecure"
)

// Signal is a bit set of telemetry signals a backend accepts.
type Signal uint8

const (
	SignalTraces Signal = 1 << iota
	SignalLogs
	SignalMetrics

	allSignals = SignalTraces | SignalLogs | SignalMetrics
)

// Backend is one configured telemetry destination.
type Backend struct {
	Name     string
	Protocol string

	// Endpoint is a base URL for HTTP backends and host:port for gRPC.
	Endpoint string
	Insecure bool
	Headers  map[string]string
	Signals  Signal
}

// Supports reports whether the backend accepts the signal.
func (b Backend) Supports(s Signal) bool { return b.Signals&s != 0 }

// SpanPipeline is a span processor bound to its backend.
type SpanPipeline struct {
	Backend   string
	Processor sdktrace.SpanProcessor
}

// LogPipeline is a log record processor bound to its backend.
type LogPipeline struct {
	Backend   string
	Processor sdklog.Processor
}

// MetricPipeline is a metric reader bound to its backend.
type MetricPipeline struct {
	Backend string
	Reader  sdkmetric.Reader
}

// BuildOption configures pipeline construction.
type BuildOption interface {
	apply(*buildOptions)
}

type buildOptions struct {
	consoleWriter io.Writer
	onStateChange StateChangeFunc
}

type consoleWriterOption struct{ w io.Writer }

func (o consoleWriterOption) apply(b *buildOptions) { b.consoleWriter = o.w }

// WithConsoleWriter redirects the console exporters. Default: os.Stdout.
func WithConsoleWriter(w io.Writer) BuildOption { return consoleWriterOption{w: w} }

type stateChangeOption StateChangeFunc

func (o stateChangeOption) apply(b *buildOptions) { b.onStateChange = StateChangeFunc(o) }

// WithBreakerStateChange observes backend circuit breaker transitions.
func WithBreakerStateChange(fn StateChangeFunc) BuildOption { return stateChangeOption(fn) }

func newBuildOptions(opts []BuildOption) *buildOptions {
	o := &buildOptions{consoleWriter: os.Stdout}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

// Backends lists every backend whose required variables are present, in a
// fixed order. Missing configuration is not an error.
func Backends(cfg config.Exporters) ([]Backend, error) {
	var (
		backends []Backend
		errs     []error
	)

	if cfg.Honeycomb.Endpoint != "" && cfg.Honeycomb.APIKey != "" {
		backends = append(backends, Backend{
			Name:     BackendHoneycomb,
			Protocol: ProtocolHTTP,
			Endpoint: cfg.Honeycomb.Endpoint,
			Headers:  map[string]string{"x-honeycomb-team": cfg.Honeycomb.APIKey},
			Signals:  allSignals,
		})
	}

	if cfg.Grafana.Endpoint != "" && cfg.Grafana.Auth != "" {
		backends = append(backends, Backend{
			Name:     BackendGrafana,
			Protocol: ProtocolHTTP,
			Endpoint: cfg.Grafana.Endpoint,
			Headers:  map[string]string{"Authorization": cfg.Grafana.Auth},
			Signals:  allSignals,
		})
	}

	// Sentry has no OTLP metrics intake.
	if cfg.Sentry.Endpoint != "" && cfg.Sentry.Auth != "" {
		backends = append(backends, Backend{
			Name:     BackendSentry,
			Protocol: ProtocolHTTP,
			Endpoint: cfg.Sentry.Endpoint,
			Headers:  map[string]string{"x-sentry-auth": cfg.Sentry.Auth},
			Signals:  SignalTraces | SignalLogs,
		})
	}

	if cfg.Datadog.Endpoint != "" {
		backends = append(backends, Backend{
			Name:     BackendDatadog,
			Protocol: ProtocolHTTP,
			Endpoint: cfg.Datadog.Endpoint,
			Signals:  allSignals,
		})
	}

	if cfg.ClickStack.Endpoint != "" {
		b := Backend{
			Name:     BackendClickStack,
			Protocol: ProtocolHTTP,
			Endpoint: cfg.ClickStack.Endpoint,
			Signals:  allSignals,
		}
		if cfg.ClickStack.APIKey != "" {
			b.Headers = map[string]string{"authorization": cfg.ClickStack.APIKey}
		}
		backends = append(backends, b)
	}

	if cfg.Collector.Endpoint != "" {
		b, err := collectorBackend(cfg.Collector)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", BackendCollector, err))
		} else {
			backends = append(backends, b)
		}
	}

	if cfg.ConsoleEnabled() {
		backends = append(backends, Backend{
			Name:     BackendConsole,
			Protocol: ProtocolConsole,
			Signals:  SignalTraces | SignalLogs,
		})
	}

	return backends, errors.Join(errs...)
}

func collectorBackend(c config.CollectorConfig) (Backend, error) {
	protocol := c.Protocol
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	b := Backend{
		Name:     BackendCollector,
		Protocol: protocol,
		Headers:  injectBasicAuth(c.Headers, c.Username, c.Password),
		Signals:  allSignals,
	}

	hostport, insecure, err := processEndpoint(c.Endpoint, c.Insecure)
	if err != nil {
		return Backend{}, err
	}
	b.Insecure = insecure

	switch protocol {
	case ProtocolGRPC:
		b.Endpoint = hostport
	case ProtocolHTTP:
		if strings.Contains(c.Endpoint, "://") {
			b.Endpoint = c.Endpoint
		} else if insecure {
			b.Endpoint = "http://" + hostport
		} else {
			b.Endpoint = "https://" + hostport
		}
	default:
		return Backend{}, fmt.Errorf("unsupported protocol %q", protocol)
	}
	return b, nil
}

// BuildSpanProcessors returns one batching span processor per backend that
// accepts traces. A backend whose exporter cannot be built is skipped and
// its error joined into the result; the remaining pipelines are returned.
func BuildSpanProcessors(ctx context.Context, cfg config.Exporters, opts ...BuildOption) ([]SpanPipeline, error) {
	o := newBuildOptions(opts)
	backends, err := Backends(cfg)
	errs := []error{err}
	batch := batchOrDefault(cfg.Batch)

	var pipelines []SpanPipeline
	for _, b := range backends {
		if !b.Supports(SignalTraces) {
			continue
		}
		exp, err := newSpanExporter(ctx, b, cfg.Timeout, o)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s traces: %w", b.Name, err))
			continue
		}
		exp = &breakerSpanExporter{SpanExporter: exp, cb: newBreaker(b.Name+"/traces", o.onStateChange)}

		bspOpts := []sdktrace.BatchSpanProcessorOption{
			sdktrace.WithMaxExportBatchSize(batch.MaxExportBatchSize),
			sdktrace.WithMaxQueueSize(batch.MaxQueueSize),
			sdktrace.WithBatchTimeout(batch.ScheduledDelay),
		}
		if cfg.Timeout > 0 {
			bspOpts = append(bspOpts, sdktrace.WithExportTimeout(cfg.Timeout))
		}
		pipelines = append(pipelines, SpanPipeline{
			Backend:   b.Name,
			Processor: sdktrace.NewBatchSpanProcessor(exp, bspOpts...),
		})
	}
	return pipelines, errors.Join(errs...)
}

// BuildLogProcessors returns one batching log processor per backend that
// accepts logs, with the same batching ceilings as spans.
func BuildLogProcessors(ctx context.Context, cfg config.Exporters, opts ...BuildOption) ([]LogPipeline, error) {
	o := newBuildOptions(opts)
	backends, err := Backends(cfg)
	errs := []error{err}
	batch := batchOrDefault(cfg.Batch)

	var pipelines []LogPipeline
	for _, b := range backends {
		if !b.Supports(SignalLogs) {
			continue
		}
		exp, err := newLogExporter(ctx, b, cfg.Timeout, o)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s logs: %w", b.Name, err))
			continue
		}
		exp = &breakerLogExporter{Exporter: exp, cb: newBreaker(b.Name+"/logs", o.onStateChange)}

		bpOpts := []sdklog.BatchProcessorOption{
			sdklog.WithExportMaxBatchSize(batch.MaxExportBatchSize),
			sdklog.WithMaxQueueSize(batch.MaxQueueSize),
			sdklog.WithExportInterval(batch.ScheduledDelay),
		}
		if cfg.Timeout > 0 {
			bpOpts = append(bpOpts, sdklog.WithExportTimeout(cfg.Timeout))
		}
		pipelines = append(pipelines, LogPipeline{
			Backend:   b.Name,
			Processor: sdklog.NewBatchProcessor(exp, bpOpts...),
		})
	}
	return pipelines, errors.Join(errs...)
}

// BuildMetricReaders returns one periodic reader per backend that accepts
// metrics.
func BuildMetricReaders(ctx context.Context, cfg config.Exporters, opts ...BuildOption) ([]MetricPipeline, error) {
	o := newBuildOptions(opts)
	backends, err := Backends(cfg)
	errs := []error{err}
	batch := batchOrDefault(cfg.Batch)

	var pipelines []MetricPipeline
	for _, b := range backends {
		if !b.Supports(SignalMetrics) {
			continue
		}
		exp, err := newMetricExporter(ctx, b, cfg.Timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s metrics: %w", b.Name, err))
			continue
		}
		exp = &breakerMetricExporter{Exporter: exp, cb: newBreaker(b.Name+"/metrics", o.onStateChange)}

		readerOpts := []sdkmetric.PeriodicReaderOption{sdkmetric.WithInterval(batch.MetricInterval)}
		if cfg.Timeout > 0 {
			readerOpts = append(readerOpts, sdkmetric.WithTimeout(cfg.Timeout))
		}
		pipelines = append(pipelines, MetricPipeline{
			Backend: b.Name,
			Reader:  sdkmetric.NewPeriodicReader(exp, readerOpts...),
		})
	}
	return pipelines, errors.Join(errs...)
}

func batchOrDefault(b config.BatchConfig) config.BatchConfig {
	def := config.DefaultBatch()
	if b.MaxExportBatchSize <= 0 {
		b.MaxExportBatchSize = def.MaxExportBatchSize
	}
	if b.MaxQueueSize <= 0 {
		b.MaxQueueSize = def.MaxQueueSize
	}
	if b.ScheduledDelay <= 0 {
		b.ScheduledDelay = def.ScheduledDelay
	}
	if b.MetricInterval <= 0 {
		b.MetricInterval = def.MetricInterval
	}
	return b
}

// --- Exporter constructors ---

func newSpanExporter(ctx context.Context, b Backend, timeout time.Duration, o *buildOptions) (sdktrace.SpanExporter, error) {
	switch b.Protocol {
	case ProtocolConsole:
		return stdouttrace.New(stdouttrace.WithWriter(o.consoleWriter), stdouttrace.WithPrettyPrint())
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(b.Endpoint)}
		if b.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecurecreds.NewCredentials())),
			)
		}
		if len(b.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(b.Headers))
		}
		if timeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(timeout))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(signalURL(b.Endpoint, "/v1/traces"))}
		if len(b.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(b.Headers))
		}
		if timeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(timeout))
		}
		return otlptracehttp.New(ctx, opts...)
	}
}

func newLogExporter(ctx context.Context, b Backend, timeout time.Duration, o *buildOptions) (sdklog.Exporter, error) {
	switch b.Protocol {
	case ProtocolConsole:
		return stdoutlog.New(stdoutlog.WithWriter(o.consoleWriter), stdoutlog.WithPrettyPrint())
	case ProtocolGRPC:
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(b.Endpoint)}
		if b.Insecure {
			opts = append(opts,
				otlploggrpc.WithInsecure(),
				otlploggrpc.WithDialOption(grpc.WithTransportCredentials(insecurecreds.NewCredentials())),
			)
		}
		if len(b.Headers) > 0 {
			opts = append(opts, otlploggrpc.WithHeaders(b.Headers))
		}
		if timeout > 0 {
			opts = append(opts, otlploggrpc.WithTimeout(timeout))
		}
		return otlploggrpc.New(ctx, opts...)
	default:
		opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(signalURL(b.Endpoint, "/v1/logs"))}
		if len(b.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(b.Headers))
		}
		if timeout > 0 {
			opts = append(opts, otlploghttp.WithTimeout(timeout))
		}
		return otlploghttp.New(ctx, opts...)
	}
}

func newMetricExporter(ctx context.Context, b Backend, timeout time.Duration) (sdkmetric.Exporter, error) {
	switch b.Protocol {
	case ProtocolConsole:
		return nil, errors.New("console backend does not export metrics")
	case ProtocolGRPC:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(b.Endpoint)}
		if b.Insecure {
			opts = append(opts,
				otlpmetricgrpc.WithInsecure(),
				otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecurecreds.NewCredentials())),
			)
		}
		if len(b.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(b.Headers))
		}
		if timeout > 0 {
			opts = append(opts, otlpmetricgrpc.WithTimeout(timeout))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(signalURL(b.Endpoint, "/v1/metrics"))}
		if len(b.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(b.Headers))
		}
		if timeout > 0 {
			opts = append(opts, otlpmetrichttp.WithTimeout(timeout))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
}
