package obs

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/eli0shin/obs-playground/obsctx"
)

// Link is an alias for trace.Link to avoid importing otel/trace.
type Link = trace.Link

// LinkFromContext extracts a link from the current context to connect spans.
func LinkFromContext(ctx context.Context) Link {
	return trace.LinkFromContext(ctx)
}

// Tracer creates spans for distributed tracing.
type Tracer interface {
	// Start creates a new span, a child of the span on ctx.
	Start(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, Span)

	// StartOperation creates a new span and also stores it as the
	// operation span of the returned context.
	StartOperation(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, Span)
}

// Span represents a unit of work in a trace.
type Span interface {
	// End marks the span as complete.
	End()
	// SetStatus sets the span status.
	SetStatus(code codes.Code, description string)
	// RecordError records an error as an event.
	RecordError(err error)
	// SetAttributes sets attributes on the span.
	SetAttributes(attrs ...Attr)
	// AddEvent adds an event to the span.
	AddEvent(name string, attrs ...Attr)
	// SpanContext returns the identifiers of the span.
	SpanContext() trace.SpanContext
}

// SpanOption configures span creation.
type SpanOption interface {
	apply(*spanOptions)
}

type spanOptions struct {
	kind       trace.SpanKind
	attributes []Attr
	links      []trace.Link
	otelOpts   []trace.SpanStartOption
}

type kindOption trace.SpanKind

func (k kindOption) apply(o *spanOptions) { o.kind = trace.SpanKind(k) }

// WithSpanKind sets the span kind (client, server, etc).
func WithSpanKind(kind trace.SpanKind) SpanOption { return kindOption(kind) }

type attrOption []Attr

func (a attrOption) apply(o *spanOptions) { o.attributes = append(o.attributes, a...) }

// WithAttributes adds attributes to the span.
func WithAttributes(attrs ...Attr) SpanOption { return attrOption(attrs) }

type linkOption []trace.Link

func (l linkOption) apply(o *spanOptions) { o.links = append(o.links, l...) }

// WithLinks adds links to the span.
func WithLinks(links ...trace.Link) SpanOption { return linkOption(links) }

type otelOption []trace.SpanStartOption

func (t otelOption) apply(o *spanOptions) { o.otelOpts = append(o.otelOpts, t...) }

// WithOTELOptions passes raw OpenTelemetry options through.
func WithOTELOptions(opts ...trace.SpanStartOption) SpanOption { return otelOption(opts) }

// --- OTel Tracer Implementation ---

type otelTracer struct {
	tracer trace.Tracer
}

func newTracer(tp trace.TracerProvider, name string) Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &otelTracer{tracer: tp.Tracer(name)}
}

func (t *otelTracer) Start(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, Span) {
	ctx, span := t.start(ctx, spanName, opts)
	return ctx, &otelSpan{span: span}
}

func (t *otelTracer) StartOperation(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, Span) {
	ctx, span := t.start(ctx, spanName, opts)
	return obsctx.WithOperationSpan(ctx, span), &otelSpan{span: span}
}

func (t *otelTracer) start(ctx context.Context, spanName string, opts []SpanOption) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := &spanOptions{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt.apply(o)
	}

	traceOpts := []trace.SpanStartOption{trace.WithSpanKind(o.kind)}
	if len(o.attributes) > 0 {
		traceOpts = append(traceOpts, trace.WithAttributes(o.attributes...))
	}
	if len(o.links) > 0 {
		traceOpts = append(traceOpts, trace.WithLinks(o.links...))
	}
	if len(o.otelOpts) > 0 {
		traceOpts = append(traceOpts, o.otelOpts...)
	}

	return t.tracer.Start(ctx, spanName, traceOpts...)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End()                                   { s.span.End() }
func (s *otelSpan) SetStatus(code codes.Code, desc string) { s.span.SetStatus(code, desc) }
func (s *otelSpan) RecordError(err error)                  { s.span.RecordError(err) }
func (s *otelSpan) SetAttributes(attrs ...Attr)            { s.span.SetAttributes(attrs...) }
func (s *otelSpan) SpanContext() trace.SpanContext         { return s.span.SpanContext() }
func (s *otelSpan) AddEvent(name string, attrs ...Attr) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}
