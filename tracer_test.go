package obs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

func TestTracer_Start(t *testing.T) {
	ta := newTestApp(t, Default())
	tracer := ta.Tracer("recipes")

	ctx, parent := tracer.Start(context.Background(), "GetRecipe",
		WithSpanKind(trace.SpanKindServer),
		WithAttributes(attribute.String("recipe.id", "bread")),
	)
	_, child := tracer.Start(ctx, "GetIngredientPrice", WithLinks(LinkFromContext(ctx)))
	child.End()
	parent.End()

	ended := ta.spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "GetIngredientPrice", ended[0].Name())
	assert.Equal(t, parent.SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Len(t, ended[0].Links(), 1)
	assert.Equal(t, trace.SpanKindServer, ended[1].SpanKind())
	assert.Contains(t, ended[1].Attributes(), attribute.String("recipe.id", "bread"))
}

func TestTracer_StartOperation(t *testing.T) {
	ta := newTestApp(t, Default())

	ctx, op := ta.Tracer("graphql").StartOperation(context.Background(), "graphql.execute GetRecipe")
	got, ok := OperationSpan(ctx)
	require.True(t, ok)
	assert.Equal(t, op.SpanContext(), got.SpanContext())

	// Goroutines started with the ctx see the operation span.
	var g errgroup.Group
	for _, id := range []string{"flour", "water"} {
		g.Go(func() error {
			inner, span := ta.Tracer("pricing").Start(ctx, "price "+id)
			defer span.End()
			AddEvent(inner, "ingredient.priced", attribute.String("ingredient.id", id))
			SetOperationAttributes(inner, attribute.Bool("priced."+id, true))
			return nil
		})
	}
	require.NoError(t, g.Wait())
	op.End()

	ended := ta.spans.Ended()
	opSpan := ended[len(ended)-1]
	assert.Equal(t, "graphql.execute GetRecipe", opSpan.Name())
	assert.Len(t, opSpan.Events(), 2, "AddEvent targets the operation span")
	assert.Contains(t, opSpan.Attributes(), attribute.Bool("priced.flour", true))
	assert.Contains(t, opSpan.Attributes(), attribute.Bool("priced.water", true))
}

func TestTelemetry_NoSpanIsNoop(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		SetOperationAttributes(ctx, attribute.String("k", "v"))
		SetActiveAttributes(ctx, attribute.String("k", "v"))
		RecordError(ctx, errors.New("x"))
		AddEvent(ctx, "e")
		//nolint:staticcheck // nil context must not panic
		SetOperationAttributes(nil, attribute.String("k", "v"))
	})
	_, ok := OperationSpan(nil) //nolint:staticcheck
	assert.False(t, ok)
}

func TestTelemetry_RecordError(t *testing.T) {
	ta := newTestApp(t, Default())

	ctx, span := ta.Tracer("test").Start(context.Background(), "GetIngredientPrice")
	RecordError(ctx, errors.New("Ingredient not found"), attribute.String("ingredient.id", "x"))
	RecordError(ctx, nil)
	SetActiveAttributes(ctx, attribute.Int("http.status_code", 404))
	span.End()

	ended := ta.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "Ingredient not found", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
	assert.Contains(t, ended[0].Attributes(), attribute.Int("http.status_code", 404))
}

func TestContextWithSpan_CustomKey(t *testing.T) {
	ta := newTestApp(t, Default())
	const key SpanKey = "db.transaction.span"

	_, span := ta.TracerProvider().Tracer("test").Start(context.Background(), "tx")
	defer span.End()

	ctx := ContextWithSpan(context.Background(), key, span)
	got, ok := SpanFromContextKey(ctx, key)
	require.True(t, ok)
	assert.Equal(t, span, got)

	_, ok = OperationSpan(ctx)
	assert.False(t, ok, "keys do not collide")
}

func TestGlobal(t *testing.T) {
	SetGlobal(nil)
	assert.Panics(t, func() { L() })
	assert.NotPanics(t, func() {
		Info(context.Background(), "fallback logger")
		_, span := GetTracer("noop").Start(context.Background(), "x")
		span.End()
	})
	assert.NoError(t, Sync())

	ta := newTestApp(t, Default())
	SetGlobal(ta.Obs)
	t.Cleanup(func() { SetGlobal(nil) })

	Warn(context.Background(), "global warn")
	Named("pricing").Info(context.Background(), "global named")
	assert.Equal(t, "warn", ta.line(t, "global warn")["level"])
	assert.Equal(t, "pricing", ta.line(t, "global named")["logger"])
}
