// Package obsctx stores request-scoped telemetry values on context.Context.
//
// A context is immutable and every derivation forks it, so a value stored
// on a request context is visible to everything called with that context
// or a context derived from it, including goroutines started with it, and
// to nothing else. Sibling goroutines never observe each other's values.
package obsctx

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// SpanKey names a span slot on a context.
type SpanKey string

// OperationSpanKey is the slot holding the span of the enclosing logical
// operation (for example one GraphQL execution). Instrumentation that
// starts the operation stores the span under this key and any code running
// inside the operation reads it back.
const OperationSpanKey SpanKey = "graphql.operation.span"

type spanSlot struct{ key SpanKey }

type valueKey int

const (
	requestIDKey valueKey = iota
	userIDKey
	traceIDKey
	spanIDKey
)

// ContextWithSpan returns a copy of ctx carrying span under key.
func ContextWithSpan(ctx context.Context, key SpanKey, span trace.Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanSlot{key: key}, span)
}

// SpanFromContext returns the span stored under key. It reports false when
// nothing was stored, including for a nil ctx.
func SpanFromContext(ctx context.Context, key SpanKey) (trace.Span, bool) {
	if ctx == nil {
		return nil, false
	}
	span, ok := ctx.Value(spanSlot{key: key}).(trace.Span)
	if !ok || span == nil {
		return nil, false
	}
	return span, true
}

// WithOperationSpan stores span as the operation span.
func WithOperationSpan(ctx context.Context, span trace.Span) context.Context {
	return ContextWithSpan(ctx, OperationSpanKey, span)
}

// OperationSpan returns the operation span, if one was stored.
func OperationSpan(ctx context.Context) (trace.Span, bool) {
	return SpanFromContext(ctx, OperationSpanKey)
}

// ActiveSpan prefers the operation span and falls back to the span
// OpenTelemetry tracks on ctx. The fallback may be a non-recording span.
func ActiveSpan(ctx context.Context) trace.Span {
	if span, ok := OperationSpan(ctx); ok {
		return span
	}
	if ctx == nil {
		return trace.SpanFromContext(context.Background())
	}
	return trace.SpanFromContext(ctx)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from ctx.
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithUserID adds a user ID to the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the user ID from ctx.
func UserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// WithTraceID sets a trace ID for code paths without an OpenTelemetry span.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// WithSpanID sets a span ID for code paths without an OpenTelemetry span.
func WithSpanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, spanIDKey, id)
}

// TraceID returns the manually set trace ID.
func TraceID(ctx context.Context) string { return stringValue(ctx, traceIDKey) }

// SpanID returns the manually set span ID.
func SpanID(ctx context.Context) string { return stringValue(ctx, spanIDKey) }

func stringValue(ctx context.Context, key valueKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
