package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
)

// Span size caps applied to every span.
const (
	AttributeValueLengthLimit = 1024
	AttributeCountLimit       = 64
)

// NewResource describes this process for every signal.
func NewResource(ctx context.Context, serviceName, version string, extra map[string]string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}
	for k, v := range extra {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
		resource.WithAttributes(attrs...),
	)
	// A detector that could not read everything still yields a usable resource.
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("failed to create OTEL resource: %w", err)
	}
	return res, nil
}

// SpanLimits returns the SDK span limits with the value length and
// attribute count caps applied.
func SpanLimits() sdktrace.SpanLimits {
	limits := sdktrace.NewSpanLimits()
	limits.AttributeValueLengthLimit = AttributeValueLengthLimit
	limits.AttributeCountLimit = AttributeCountLimit
	return limits
}

// NewTracerProvider registers every span pipeline on a single provider.
// With no pipelines the provider still records spans in-process, so
// context propagation and log correlation keep working.
func NewTracerProvider(res *resource.Resource, sampler string, pipelines []SpanPipeline, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(parseSampler(sampler))),
		sdktrace.WithRawSpanLimits(SpanLimits()),
	}
	for _, p := range pipelines {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p.Processor))
	}
	tpOpts = append(tpOpts, opts...)
	return sdktrace.NewTracerProvider(tpOpts...)
}

// NewLoggerProvider registers every log pipeline on a single provider.
func NewLoggerProvider(res *resource.Resource, pipelines []LogPipeline, opts ...sdklog.LoggerProviderOption) *sdklog.LoggerProvider {
	lpOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, p := range pipelines {
		lpOpts = append(lpOpts, sdklog.WithProcessor(p.Processor))
	}
	lpOpts = append(lpOpts, opts...)
	return sdklog.NewLoggerProvider(lpOpts...)
}

// NewMeterProvider registers every metric reader on a single provider.
func NewMeterProvider(res *resource.Resource, pipelines []MetricPipeline, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, p := range pipelines {
		mpOpts = append(mpOpts, sdkmetric.WithReader(p.Reader))
	}
	mpOpts = append(mpOpts, opts...)
	return sdkmetric.NewMeterProvider(mpOpts...)
}

// NewPropagator understands W3C trace-context and baggage headers.
func NewPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// InstallGlobals makes the providers reachable through the otel globals.
// Nil providers are skipped.
func InstallGlobals(tp *sdktrace.TracerProvider, lp *sdklog.LoggerProvider, mp *sdkmetric.MeterProvider) {
	if tp != nil {
		otel.SetTracerProvider(tp)
	}
	if lp != nil {
		global.SetLoggerProvider(lp)
	}
	if mp != nil {
		otel.SetMeterProvider(mp)
	}
	otel.SetTextMapPropagator(NewPropagator())
}

func parseSampler(s string) sdktrace.Sampler {
	switch {
	case s == "" || s == "always":
		return sdktrace.AlwaysSample()
	case s == "never":
		return sdktrace.NeverSample()
	case strings.HasPrefix(s, "ratio:"):
		ratio, err := strconv.ParseFloat(strings.TrimPrefix(s, "ratio:"), 64)
		if err != nil {
			return sdktrace.AlwaysSample()
		}
		return sdktrace.TraceIDRatioBased(ratio)
	default:
		return sdktrace.AlwaysSample()
	}
}
