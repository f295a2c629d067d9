package obs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/eli0shin/obs-playground/console"
	"github.com/eli0shin/obs-playground/internal/config"
	"github.com/eli0shin/obs-playground/internal/core"
)

// Mode is the tracing mode a process runs in. The modes are mutually
// exclusive for the lifetime of the process.
type Mode int

const (
	// ModeOTel exports every signal over the OTLP pipelines.
	ModeOTel Mode = iota
	// ModeVendor traces with the vendor-native tracer and builds no OTLP
	// pipelines.
	ModeVendor
)

func (m Mode) String() string {
	if m == ModeVendor {
		return "vendor"
	}
	return "otel"
}

// BackendCustom names pipelines added with WithSpanProcessor,
// WithLogProcessor or WithMetricReader.
const BackendCustom = "custom"

// resourceTimeout bounds resource detection.
const resourceTimeout = 30 * time.Second

// ErrAlreadyInitialized is reported when Init runs more than once.
var ErrAlreadyInitialized = errors.New("obs: already initialized")

// Warning represents a non-fatal initialization issue.
// obs returns warnings instead of failing when optional components
// (one backend, resource detection) cannot be initialized.
type Warning struct {
	Component string // "exporters", "resource", "init"
	Err       error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Component, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Obs is the process-wide telemetry instance: the structured logger, the
// tracer, logger and meter providers, the console bridge and the enabled
// instrumentations. It implements Logger.
//
//	app, warnings, err := obs.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown(context.Background())
//
//	app.Info(ctx, "message", obs.F("key", "value"))
type Obs struct {
	logger      *zapLogger
	console     *console.Console
	mode        Mode
	serviceName string
	backends    []string
	instr       Instrumentations

	tracerProvider trace.TracerProvider
	loggerProvider otellog.LoggerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator

	shutdowns    []shutdownSlot
	shutdownOnce sync.Once
	shutdownErr  error
}

type shutdownSlot struct {
	name string
	fn   func(context.Context) error
}

// --- Options ---

type options struct {
	instrumentations Instrumentations
	spanProcessors   []sdktrace.SpanProcessor
	logProcessors    []sdklog.Processor
	metricReaders    []sdkmetric.Reader
	consoleWriter    io.Writer
	consoleOpts      []console.Option
}

// Option configures New and Init.
type Option func(*options)

// WithInstrumentations overrides the default instrumentation switches per key.
func WithInstrumentations(overrides Instrumentations) Option {
	return func(o *options) {
		if o.instrumentations == nil {
			o.instrumentations = Instrumentations{}
		}
		for k, v := range overrides {
			o.instrumentations[k] = v
		}
	}
}

// WithSpanProcessor registers an additional span processor, such as a
// tracetest.SpanRecorder.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessors = append(o.spanProcessors, sp) }
}

// WithLogProcessor registers an additional log record processor.
func WithLogProcessor(p sdklog.Processor) Option {
	return func(o *options) { o.logProcessors = append(o.logProcessors, p) }
}

// WithMetricReader registers an additional metric reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReaders = append(o.metricReaders, r) }
}

// WithConsoleWriter redirects the console span and log exporters enabled by
// OTEL_EXPORTER_CONSOLE. Default: os.Stdout.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *options) { o.consoleWriter = w }
}

// WithConsoleOptions configures the console bridge returned by Obs.Console.
func WithConsoleOptions(opts ...console.Option) Option {
	return func(o *options) { o.consoleOpts = append(o.consoleOpts, opts...) }
}

// vendorTracer is the part of core.VendorTracer New depends on.
type vendorTracer interface {
	TracerProvider() trace.TracerProvider
	Shutdown(ctx context.Context) error
}

var startVendor = func(cfg config.VendorConfig, serviceName, version string) vendorTracer {
	return core.StartVendorTracer(cfg, serviceName, version)
}

// New creates an Obs instance from cfg and installs its providers as the
// OpenTelemetry globals.
//
// Returns:
//   - *Obs: always a working instance when err is nil (may use fallbacks)
//   - []Warning: non-fatal issues, such as a backend whose exporter failed
//   - error: invalid configuration
func New(cfg Config, opts ...Option) (*Obs, []Warning, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	app := &Obs{
		serviceName: cfg.ServiceName,
		instr:       mergeInstrumentations(o.instrumentations),
		propagator:  core.NewPropagator(),
	}

	var warnings []Warning
	if cfg.Vendor.Enabled() {
		app.startVendorMode(cfg)
	} else {
		warnings = app.startOTelMode(cfg, o)
	}

	var sinks []console.Sink
	if app.loggerProvider != nil {
		sinks = append(sinks, console.NewOTelSink(app.loggerProvider, cfg.ServiceName))
	}
	app.console = console.New(append([]console.Option{console.WithSinks(sinks...)}, o.consoleOpts...)...)

	app.logger.Info(context.Background(), "telemetry initialized",
		String("mode", app.mode.String()),
		Any("backends", app.backends),
	)
	return app, warnings, nil
}

func (app *Obs) startVendorMode(cfg Config) {
	vt := startVendor(cfg.Vendor, cfg.ServiceName, cfg.Version)
	app.mode = ModeVendor
	app.tracerProvider = vt.TracerProvider()
	app.meterProvider = metricnoop.NewMeterProvider()

	otel.SetTracerProvider(app.tracerProvider)
	otel.SetTextMapPropagator(app.propagator)

	app.logger = newLogger(cfg, nil)
	app.shutdowns = append(app.shutdowns, shutdownSlot{name: "vendor tracer", fn: vt.Shutdown})
}

func (app *Obs) startOTelMode(cfg Config, o *options) []Warning {
	var warnings []Warning
	app.mode = ModeOTel

	resCtx, cancel := context.WithTimeout(context.Background(), resourceTimeout)
	res, err := core.NewResource(resCtx, cfg.ServiceName, cfg.Version, cfg.OTEL.Attributes)
	cancel()
	if err != nil {
		warnings = append(warnings, Warning{Component: "resource", Err: err})
		res = resource.Default()
	}

	// Breakers trip long after New returns, once the logger exists.
	var lg atomic.Pointer[zapLogger]
	buildOpts := []core.BuildOption{
		core.WithBreakerStateChange(func(name string, from, to gobreaker.State) {
			if l := lg.Load(); l != nil {
				l.Warn(context.Background(), "exporter circuit breaker changed state",
					String("breaker", name),
					String("from", from.String()),
					String("to", to.String()),
				)
			}
		}),
	}
	if o.consoleWriter != nil {
		buildOpts = append(buildOpts, core.WithConsoleWriter(o.consoleWriter))
	}

	ctx := context.Background()
	spans, err := core.BuildSpanProcessors(ctx, cfg.Exporters, buildOpts...)
	if err != nil {
		warnings = append(warnings, Warning{Component: "exporters", Err: err})
	}
	logs, err := core.BuildLogProcessors(ctx, cfg.Exporters, buildOpts...)
	if err != nil {
		warnings = append(warnings, Warning{Component: "exporters", Err: err})
	}
	metrics, err := core.BuildMetricReaders(ctx, cfg.Exporters, buildOpts...)
	if err != nil {
		warnings = append(warnings, Warning{Component: "exporters", Err: err})
	}

	for _, sp := range o.spanProcessors {
		spans = append(spans, core.SpanPipeline{Backend: BackendCustom, Processor: sp})
	}
	for _, p := range o.logProcessors {
		logs = append(logs, core.LogPipeline{Backend: BackendCustom, Processor: p})
	}
	for _, r := range o.metricReaders {
		metrics = append(metrics, core.MetricPipeline{Backend: BackendCustom, Reader: r})
	}
	app.backends = pipelineBackends(spans, logs, metrics)

	tp := core.NewTracerProvider(res, cfg.Sampler, spans)
	lp := core.NewLoggerProvider(res, logs)
	mp := core.NewMeterProvider(res, metrics)
	core.InstallGlobals(tp, lp, mp)

	app.tracerProvider = tp
	app.loggerProvider = lp
	app.meterProvider = mp
	app.shutdowns = append(app.shutdowns,
		shutdownSlot{name: "tracer provider", fn: tp.Shutdown},
		shutdownSlot{name: "logger provider", fn: lp.Shutdown},
		shutdownSlot{name: "meter provider", fn: mp.Shutdown},
	)

	app.logger = newLogger(cfg, lp)
	lg.Store(app.logger)

	for _, w := range warnings {
		app.logger.Warn(context.Background(), "telemetry component degraded",
			String("component", w.Component), Err(w.Err))
	}
	return warnings
}

// pipelineBackends lists backend names in registry order, each once.
func pipelineBackends(spans []core.SpanPipeline, logs []core.LogPipeline, metrics []core.MetricPipeline) []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, p := range spans {
		add(p.Backend)
	}
	for _, p := range logs {
		add(p.Backend)
	}
	for _, p := range metrics {
		add(p.Backend)
	}
	return names
}

var (
	initMu      sync.Mutex
	initialized *Obs
)

// Init loads the configuration from the environment, creates the instance
// and makes it the global one. serviceName, when non-empty, overrides
// SERVICE_NAME. overrides replace the default instrumentation switches per
// key; nil keeps the defaults.
//
// Init is idempotent: later calls return the first instance together with
// a Warning wrapping ErrAlreadyInitialized.
func Init(serviceName string, overrides Instrumentations, opts ...Option) (*Obs, []Warning, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized != nil {
		return initialized, []Warning{{Component: "init", Err: ErrAlreadyInitialized}}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	app, warnings, err := New(cfg, append(opts, WithInstrumentations(overrides))...)
	if err != nil {
		return nil, nil, err
	}
	SetGlobal(app)
	initialized = app
	return app, warnings, nil
}

// --- Logger interface implementation ---

func (app *Obs) Debug(ctx context.Context, msg string, fields ...Field) {
	app.logger.Debug(ctx, msg, fields...)
}

func (app *Obs) Info(ctx context.Context, msg string, fields ...Field) {
	app.logger.Info(ctx, msg, fields...)
}

func (app *Obs) Warn(ctx context.Context, msg string, fields ...Field) {
	app.logger.Warn(ctx, msg, fields...)
}

func (app *Obs) Error(ctx context.Context, msg string, err error, fields ...Field) {
	app.logger.Error(ctx, msg, err, fields...)
}

func (app *Obs) Critical(ctx context.Context, msg string, err error, fields ...Field) {
	app.logger.Critical(ctx, msg, err, fields...)
}

func (app *Obs) With(fields ...Field) Logger {
	return app.logger.With(fields...)
}

func (app *Obs) Named(name string) Logger {
	return app.logger.Named(name)
}

func (app *Obs) Sync() error {
	return app.logger.Sync()
}

func (app *Obs) SetLevel(level string) {
	app.logger.SetLevel(level)
}

func (app *Obs) GetLevel() string {
	return app.logger.GetLevel()
}

// --- Accessors ---

// Mode reports the tracing mode.
func (app *Obs) Mode() Mode { return app.mode }

// ServiceName returns the configured service name.
func (app *Obs) ServiceName() string { return app.serviceName }

// Backends lists the backends with at least one pipeline, in registry
// order. Vendor mode has none.
func (app *Obs) Backends() []string {
	return append([]string(nil), app.backends...)
}

// Console returns the console bridge. Its telemetry sink emits to the
// log pipelines.
func (app *Obs) Console() *console.Console { return app.console }

// Tracer returns a named tracer for creating spans.
func (app *Obs) Tracer(name string) Tracer {
	return newTracer(app.tracerProvider, name)
}

// TracerProvider returns the provider behind Tracer.
func (app *Obs) TracerProvider() trace.TracerProvider { return app.tracerProvider }

// LoggerProvider returns the OTel logger provider, or nil in vendor mode.
func (app *Obs) LoggerProvider() otellog.LoggerProvider { return app.loggerProvider }

// Meter returns a named meter. Vendor mode returns a no-op meter.
func (app *Obs) Meter(name string) metric.Meter {
	return app.meterProvider.Meter(name)
}

// --- Lifecycle ---

// Shutdown flushes and stops every provider concurrently, then syncs the
// logger. Errors are joined. Later calls return the first result.
func (app *Obs) Shutdown(ctx context.Context) error {
	app.shutdownOnce.Do(func() {
		var (
			mu   sync.Mutex
			errs []error
			g    errgroup.Group
		)
		for _, slot := range app.shutdowns {
			g.Go(func() error {
				if err := slot.fn(ctx); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", slot.name, err))
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := app.logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("logger: %w", err))
		}
		app.shutdownErr = errors.Join(errs...)
	})
	return app.shutdownErr
}
