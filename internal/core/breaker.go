package core

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Breaker defaults. A backend that fails breakerTripCount exports in a row
// is skipped for breakerOpenTimeout before a single trial export is let through.
const (
	breakerTripCount   = 5
	breakerOpenTimeout = 30 * time.Second
)

// StateChangeFunc is notified whenever a backend breaker changes state.
type StateChangeFunc func(name string, from, to gobreaker.State)

func newBreaker(name string, onChange StateChangeFunc) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripCount
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	})
}

// breakerSpanExporter drops span batches while its backend breaker is open.
type breakerSpanExporter struct {
	sdktrace.SpanExporter
	cb *gobreaker.CircuitBreaker
}

func (e *breakerSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	_, err := e.cb.Execute(func() (interface{}, error) {
		return nil, e.SpanExporter.ExportSpans(ctx, spans)
	})
	return err
}

type breakerLogExporter struct {
	sdklog.Exporter
	cb *gobreaker.CircuitBreaker
}

func (e *breakerLogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	_, err := e.cb.Execute(func() (interface{}, error) {
		return nil, e.Exporter.Export(ctx, records)
	})
	return err
}

type breakerMetricExporter struct {
	sdkmetric.Exporter
	cb *gobreaker.CircuitBreaker
}

func (e *breakerMetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	_, err := e.cb.Execute(func() (interface{}, error) {
		return nil, e.Exporter.Export(ctx, rm)
	})
	return err
}
