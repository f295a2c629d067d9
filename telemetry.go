package obs

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eli0shin/obs-playground/obsctx"
)

// SetOperationAttributes sets attributes on the operation span of ctx.
// It is a no-op when ctx carries no operation span.
func SetOperationAttributes(ctx context.Context, attrs ...Attr) {
	if span, ok := obsctx.OperationSpan(ctx); ok {
		span.SetAttributes(attrs...)
	}
}

// SetActiveAttributes sets attributes on the active span: the operation
// span, else the span on ctx.
func SetActiveAttributes(ctx context.Context, attrs ...Attr) {
	obsctx.ActiveSpan(ctx).SetAttributes(attrs...)
}

// RecordError records err as an exception on the active span and marks
// the span as failed. A nil err is ignored.
func RecordError(ctx context.Context, err error, attrs ...Attr) {
	if err == nil {
		return
	}
	span := obsctx.ActiveSpan(ctx)
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds an event to the active span.
func AddEvent(ctx context.Context, name string, attrs ...Attr) {
	obsctx.ActiveSpan(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
