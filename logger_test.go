package obs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"

	"github.com/eli0shin/obs-playground/internal/core"
)

func TestLogger_ContextFields(t *testing.T) {
	ta := newTestApp(t, Default())

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithUserID(ctx, "user-456")
	ta.Info(ctx, "context message", String("recipe", "bread"))

	line := ta.line(t, "context message")
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "user-456", line["user_id"])
	assert.Equal(t, "bread", line["recipe"])
	assert.NotContains(t, line, core.SentinelKey)
	assert.NotContains(t, line, "trace_id")
}

func TestLogger_TraceCorrelation(t *testing.T) {
	ta := newTestApp(t, Default())

	ctx, span := ta.Tracer("test").Start(context.Background(), "GetRecipeCost")
	ta.Info(ctx, "costing recipe")
	span.End()

	sc := span.SpanContext()
	line := ta.line(t, "costing recipe")
	assert.Equal(t, sc.TraceID().String(), line["trace_id"])
	assert.Equal(t, sc.SpanID().String(), line["span_id"])

	rec, ok := ta.logs.byBody("costing recipe")
	require.True(t, ok)
	assert.Equal(t, sc.TraceID(), rec.TraceID())
	assert.Equal(t, sc.SpanID(), rec.SpanID())
}

func TestLogger_OperationSpanCorrelation(t *testing.T) {
	ta := newTestApp(t, Default())

	_, op := ta.TracerProvider().Tracer("test").Start(context.Background(), "graphql.execute")
	defer op.End()
	ctx := WithOperationSpan(context.Background(), op)
	require.False(t, trace.SpanContextFromContext(ctx).IsValid())

	ta.Info(ctx, "resolving")

	line := ta.line(t, "resolving")
	assert.Equal(t, op.SpanContext().TraceID().String(), line["trace_id"])

	rec, ok := ta.logs.byBody("resolving")
	require.True(t, ok)
	assert.Equal(t, op.SpanContext().TraceID(), rec.TraceID(), "bridged record uses the operation span")
}

func TestLogger_ManualTraceIDs(t *testing.T) {
	ta := newTestApp(t, Default())

	ctx := WithTraceID(context.Background(), "manual-trace")
	ctx = WithSpanID(ctx, "manual-span")
	ta.Warn(ctx, "legacy path")

	line := ta.line(t, "legacy path")
	assert.Equal(t, "manual-trace", line["trace_id"])
	assert.Equal(t, "manual-span", line["span_id"])
	assert.Equal(t, "warn", line["level"])
}

func TestLogger_Levels(t *testing.T) {
	ta := newTestApp(t, Default())
	ctx := context.Background()

	assert.Equal(t, "info", ta.GetLevel())
	ta.Debug(ctx, "hidden debug")

	ta.SetLevel("debug")
	assert.Equal(t, "debug", ta.GetLevel())
	ta.Debug(ctx, "shown debug")

	ta.SetLevel("warn")
	ta.Info(ctx, "hidden info")

	ta.SetLevel("bogus")
	assert.Equal(t, "warn", ta.GetLevel(), "unknown levels are ignored")

	var msgs []any
	for _, l := range ta.lines(t) {
		msgs = append(msgs, l["msg"])
	}
	assert.Contains(t, msgs, "shown debug")
	assert.NotContains(t, msgs, "hidden debug")
	assert.NotContains(t, msgs, "hidden info")
}

func TestLogger_ErrorAndCritical(t *testing.T) {
	ta := newTestApp(t, Default())
	ctx := context.Background()

	ta.Error(ctx, "price lookup failed", errors.New("no flour"), String("op", "price"))
	ta.Critical(ctx, "store unreachable", errors.New("dial tcp"))
	ta.Error(ctx, "nil error", nil)

	line := ta.line(t, "price lookup failed")
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "no flour", line["error"])
	assert.Equal(t, "price", line["op"])

	line = ta.line(t, "store unreachable")
	assert.Equal(t, "fatal", line["level"], "Critical logs at fatal level and returns")

	line = ta.line(t, "nil error")
	assert.NotContains(t, line, "error")
}

func TestLogger_WithAndNamed(t *testing.T) {
	ta := newTestApp(t, Default())
	ctx := context.Background()

	ta.With(String("component", "pricing")).Info(ctx, "with message")
	ta.Named("recipes").Info(ctx, "named message")

	assert.Equal(t, "pricing", ta.line(t, "with message")["component"])
	assert.Equal(t, "recipes", ta.line(t, "named message")["logger"])
}

type recipeID string

func (r recipeID) String() string { return "recipe/" + string(r) }

func TestConvertField(t *testing.T) {
	err := errors.New("boom")
	tests := []struct {
		field Field
		typ   zapcore.FieldType
	}{
		{String("k", "v"), zapcore.StringType},
		{Int("k", 1), zapcore.Int64Type},
		{Int64("k", 1), zapcore.Int64Type},
		{Uint64("k", 1), zapcore.Uint64Type},
		{Float64("k", 1.5), zapcore.Float64Type},
		{Bool("k", true), zapcore.BoolType},
		{Duration("k", time.Second), zapcore.DurationType},
		{Err(err), zapcore.ErrorType},
		{Stringer("k", recipeID("bread")), zapcore.StringerType},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.field.Type), func(t *testing.T) {
			assert.Equal(t, tt.typ, convertField(tt.field).Type)
		})
	}
}

func TestF(t *testing.T) {
	assert.Equal(t, StringType, F("k", "v").Type)
	assert.Equal(t, Int64Type, F("k", 3).Type)
	assert.Equal(t, Uint64Type, F("k", uint64(3)).Type)
	assert.Equal(t, BoolType, F("k", true).Type)
	assert.Equal(t, DurationType, F("k", time.Millisecond).Type)
	assert.Equal(t, ErrorType, F("k", errors.New("x")).Type)
	assert.Equal(t, StringerType, F("k", recipeID("x")).Type)
	assert.Equal(t, AnyType, F("k", []int{1}).Type)
	assert.Equal(t, AnyType, Err(nil).Type)
}

func TestIgnoreSyncErr(t *testing.T) {
	assert.NoError(t, ignoreSyncErr(nil))
	assert.ErrorIs(t, ignoreSyncErr(assert.AnError), assert.AnError)
}
