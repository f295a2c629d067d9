package console

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"

	"github.com/eli0shin/obs-playground/obsctx"
)

// ScopeVersion is the instrumentation scope version of console records.
const ScopeVersion = "1.0.0"

// OTelSink emits entries as OpenTelemetry log records.
type OTelSink struct {
	logger otellog.Logger
}

// NewOTelSink creates a sink whose logger is scoped to service. A nil
// provider uses the global one.
func NewOTelSink(lp otellog.LoggerProvider, service string) *OTelSink {
	if lp == nil {
		lp = global.GetLoggerProvider()
	}
	return &OTelSink{
		logger: lp.Logger(service, otellog.WithInstrumentationVersion(ScopeVersion)),
	}
}

// Emit sends e with its severity and body. When ctx carries a valid span,
// either the operation span or the active one, the record gets trace_id
// and span_id attributes and is correlated with that span.
func (s *OTelSink) Emit(ctx context.Context, e Entry) error {
	var r otellog.Record
	r.SetTimestamp(e.Time)
	r.SetObservedTimestamp(time.Now())
	r.SetSeverity(e.Level.Severity())
	r.SetSeverityText(e.Level.String())
	r.SetBody(otellog.StringValue(e.Body))

	span := obsctx.ActiveSpan(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		r.AddAttributes(
			otellog.String("trace_id", sc.TraceID().String()),
			otellog.String("span_id", sc.SpanID().String()),
		)
		ctx = trace.ContextWithSpan(ctx, span)
	}

	s.logger.Emit(ctx, r)
	return nil
}
