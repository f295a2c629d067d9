// Context helpers propagate the operation span and the trace, request and
// user IDs through context.Context. These values are extracted
// automatically and included in log entries.
//
// For OTel tracing, trace_id and span_id come from the span on the context,
// or from the operation span when the context carries none. For code paths
// without a span, use WithTraceID to set them manually.
package obs

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/eli0shin/obs-playground/obsctx"
)

// SpanKey names a span slot on a context.
type SpanKey = obsctx.SpanKey

// OperationSpanKey is the slot holding the span of the enclosing logical
// operation, such as one GraphQL execution.
const OperationSpanKey = obsctx.OperationSpanKey

// ContextWithSpan returns a copy of ctx carrying span under key.
func ContextWithSpan(ctx context.Context, key SpanKey, span trace.Span) context.Context {
	return obsctx.ContextWithSpan(ctx, key, span)
}

// SpanFromContextKey returns the span stored under key.
func SpanFromContextKey(ctx context.Context, key SpanKey) (trace.Span, bool) {
	return obsctx.SpanFromContext(ctx, key)
}

// WithOperationSpan stores span as the operation span.
func WithOperationSpan(ctx context.Context, span trace.Span) context.Context {
	return obsctx.WithOperationSpan(ctx, span)
}

// OperationSpan returns the operation span. It reports false when none was
// stored, including for a nil ctx.
func OperationSpan(ctx context.Context) (trace.Span, bool) {
	return obsctx.OperationSpan(ctx)
}

// ActiveSpan returns the operation span, else the span on ctx. The result
// is never nil but may be non-recording.
func ActiveSpan(ctx context.Context) trace.Span {
	return obsctx.ActiveSpan(ctx)
}

// WithRequestID adds a request ID to the context.
// This ID will be automatically included in logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return obsctx.WithRequestID(ctx, requestID)
}

// WithUserID adds a user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return obsctx.WithUserID(ctx, userID)
}

// WithTraceID adds a trace ID to the context (for non-OTel scenarios).
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return obsctx.WithTraceID(ctx, traceID)
}

// WithSpanID adds a span ID to the context (for non-OTel scenarios).
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return obsctx.WithSpanID(ctx, spanID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return obsctx.RequestID(ctx)
}

// UserIDFromContext extracts the user ID from context.
func UserIDFromContext(ctx context.Context) string {
	return obsctx.UserID(ctx)
}

// correlatedSpanContext returns the span context logs should carry.
func correlatedSpanContext(ctx context.Context) trace.SpanContext {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc
	}
	if span, ok := obsctx.OperationSpan(ctx); ok {
		return span.SpanContext()
	}
	return trace.SpanContext{}
}

// bridgeContext returns the ctx handed to the OTel log bridge. When only an
// operation span is present it is made current so the record is correlated.
func bridgeContext(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	if span, ok := obsctx.OperationSpan(ctx); ok && span.SpanContext().IsValid() {
		return trace.ContextWithSpan(ctx, span)
	}
	return ctx
}

// extractContextZapFields pulls trace/span IDs and custom values from context.
// Lazily allocates the slice only when fields are found.
func extractContextZapFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}

	var fields []zap.Field

	if sc := correlatedSpanContext(ctx); sc.IsValid() {
		fields = make([]zap.Field, 0, 4)
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	} else {
		if traceID := obsctx.TraceID(ctx); traceID != "" {
			fields = make([]zap.Field, 0, 4)
			fields = append(fields, zap.String("trace_id", traceID))
		}
		if spanID := obsctx.SpanID(ctx); spanID != "" {
			if fields == nil {
				fields = make([]zap.Field, 0, 4)
			}
			fields = append(fields, zap.String("span_id", spanID))
		}
	}

	if reqID := obsctx.RequestID(ctx); reqID != "" {
		if fields == nil {
			fields = make([]zap.Field, 0, 4)
		}
		fields = append(fields, zap.String("request_id", reqID))
	}

	if userID := obsctx.UserID(ctx); userID != "" {
		if fields == nil {
			fields = make([]zap.Field, 0, 4)
		}
		fields = append(fields, zap.String("user_id", userID))
	}

	return fields
}
