package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	obs "github.com/eli0shin/obs-playground"
	"github.com/eli0shin/obs-playground/console"
	"github.com/eli0shin/obs-playground/middleware/obshttp"
)

type recordingProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (p *recordingProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r.Clone())
	return nil
}
func (p *recordingProcessor) Shutdown(context.Context) error   { return nil }
func (p *recordingProcessor) ForceFlush(context.Context) error { return nil }
func (p *recordingProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool {
	return true
}

// withPrefix returns the first record whose body starts with prefix.
func (p *recordingProcessor) withPrefix(prefix string) (sdklog.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.records {
		if strings.HasPrefix(r.Body().AsString(), prefix) {
			return r, true
		}
	}
	return sdklog.Record{}, false
}

func recordAttr(r sdklog.Record, key string) string {
	var out string
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == key {
			out = kv.Value.AsString()
			return false
		}
		return true
	})
	return out
}

type harness struct {
	handler http.Handler
	spans   *tracetest.SpanRecorder
	metrics *sdkmetric.ManualReader
	logs    *recordingProcessor
	console bytes.Buffer
	audit   bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, NewStore())
}

func newHarnessWithStore(t *testing.T, store *Store) *harness {
	t.Helper()
	cfg := obs.Default().WithService(ServiceName)
	cfg.Console.Enabled = false

	h := &harness{
		spans:   tracetest.NewSpanRecorder(),
		metrics: sdkmetric.NewManualReader(),
		logs:    &recordingProcessor{},
	}
	app, warnings, err := obs.New(cfg,
		obs.WithSpanProcessor(h.spans),
		obs.WithMetricReader(h.metrics),
		obs.WithLogProcessor(h.logs),
		obs.WithConsoleOptions(console.WithOriginal(console.NewWriterSink(&h.console, nil))),
	)
	require.NoError(t, err)
	require.Empty(t, warnings)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	srv, err := NewServer(app, store, WithAuditOutput(&h.audit))
	require.NoError(t, err)
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) span(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range h.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

func (h *harness) spansNamed(name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range h.spans.Ended() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

func (h *harness) lookups(t *testing.T) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.metrics.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "pricing.lookups" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func exceptions(s sdktrace.ReadOnlySpan) []string {
	var msgs []string
	for _, ev := range s.Events() {
		if ev.Name != "exception" {
			continue
		}
		for _, kv := range ev.Attributes {
			if kv.Key == "exception.message" {
				msgs = append(msgs, kv.Value.AsString())
			}
		}
	}
	return msgs
}

func countEvents(s sdktrace.ReadOnlySpan, name string) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(obshttp.RequestIDHeader))

	rec = h.do(http.MethodGet, "/", "")
	assert.JSONEq(t, `{"message":"Express API server is running!"}`, rec.Body.String())
}

func TestPrice(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/ingredients/flour/price", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ingredientId":"flour","price":2.5}`, rec.Body.String())

	span := h.span(t, ServiceName)
	a := attrs(span)
	assert.Equal(t, "flour", a["ingredient.id"].AsString())
	assert.Equal(t, 2.5, a["pricing.price"].AsFloat64())
	assert.Equal(t, "/ingredients/{id}/price", a["http.route"].AsString())
	assert.Equal(t, int64(1), h.lookups(t))
}

func TestPrice_NotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/ingredients/saffron/price", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Ingredient not found"}`, rec.Body.String())

	span := h.span(t, ServiceName)
	assert.Equal(t, []string{"Ingredient not found"}, exceptions(span))
	assert.Equal(t, codes.Error, span.Status().Code)

	assert.Equal(t, "price lookup missed {\"ingredient.id\":\"saffron\"}\n", h.console.String())
	r, ok := h.logs.withPrefix("price lookup missed")
	require.True(t, ok, "console line mirrored as a log record")
	assert.Equal(t, span.SpanContext().TraceID().String(), recordAttr(r, "trace_id"))
}

func TestBatchPrices(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/ingredients/prices?ids=flour,salt,saffron", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"flour":2.5,"salt":0.3}`, rec.Body.String())

	a := attrs(h.span(t, ServiceName))
	assert.Equal(t, int64(3), a["batch.ingredient_ids_requested"].AsInt64())
	assert.Equal(t, []string{"flour", "salt"}, a["batch.ingredient_ids_found"].AsStringSlice())
	assert.Equal(t, int64(1), a["batch.ingredient_ids_missing_count"].AsInt64())
	assert.Equal(t, 0.3, a["batch.price_range_min"].AsFloat64())
	assert.Equal(t, 2.5, a["batch.price_range_max"].AsFloat64())
	assert.Equal(t, int64(3), h.lookups(t))
}

func TestBatchPrices_All(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/ingredients/prices", "")
	assert.JSONEq(t, `{"flour":2.5,"water":0.01,"salt":0.3}`, rec.Body.String())
	assert.Equal(t, int64(3), attrs(h.span(t, ServiceName))["batch.ingredient_count"].AsInt64())
}

func TestUpdatePrices(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/ingredients/prices", `{"salt":0.45,"yeast":"1.10"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"updated":["salt","yeast"]}`, rec.Body.String())

	assert.Contains(t, h.audit.String(), `"msg":"prices updated"`)
	r, ok := h.logs.withPrefix("prices updated")
	require.True(t, ok, "audit entry mirrored as a log record")
	assert.Equal(t, `prices updated {"count":2,"ingredient_ids":["salt","yeast"]}`, r.Body().AsString())
	assert.Equal(t, h.span(t, ServiceName).SpanContext().TraceID().String(), recordAttr(r, "trace_id"))

	rec = h.do(http.MethodGet, "/ingredients/yeast/price", "")
	assert.JSONEq(t, `{"ingredientId":"yeast","price":1.1}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/ingredients/prices", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid price update"}`, rec.Body.String())
}

func TestRecipeCost(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/recipes/bread/cost", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cost RecipeCost
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cost))
	assert.Equal(t, "bread", cost.RecipeID)
	assert.Equal(t, json.Number("1.26"), cost.TotalCost)
	require.Len(t, cost.Ingredients, 3)
	assert.Equal(t, IngredientCost{
		ID:        "flour",
		Quantity:  "0.5",
		UnitPrice: "2.5",
		Cost:      "1.25",
	}, cost.Ingredients[0])

	server := h.span(t, ServiceName)
	lookups := h.spansNamed("pricing.lookup")
	require.Len(t, lookups, 3)
	for _, l := range lookups {
		assert.Equal(t, server.SpanContext().SpanID(), l.Parent().SpanID())
		assert.Equal(t, 1, countEvents(l, "ingredient.priced"), "without an operation span events land on the lookup span")
	}
	assert.Equal(t, "1.26", attrs(server)["recipe.total_cost"].AsString())
	assert.Equal(t, int64(3), h.lookups(t))
}

func TestRecipeCost_NotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/recipes/cake/cost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Recipe not found"}`, rec.Body.String())
	assert.Equal(t, []string{"Recipe not found"}, exceptions(h.span(t, ServiceName)))
}

func TestRecipeCost_MissingPrice(t *testing.T) {
	store := NewStore()
	store.recipes["toast"] = Recipe{ID: "toast", Ingredients: []Ingredient{
		{ID: "flour", Quantity: decimal.RequireFromString("0.1")},
		{ID: "butter", Quantity: decimal.RequireFromString("0.2")},
	}}
	h := newHarnessWithStore(t, store)

	rec := h.do(http.MethodGet, "/recipes/toast/cost", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"price missing: butter"}`, rec.Body.String())

	var failed []string
	for _, l := range h.spansNamed("pricing.lookup") {
		if l.Status().Code == codes.Error {
			failed = append(failed, l.Status().Description)
		}
	}
	assert.Equal(t, []string{"price missing: butter"}, failed)
	assert.Equal(t, []string{"price missing: butter"}, exceptions(h.span(t, ServiceName)))
}

func TestErrorRoutes(t *testing.T) {
	tests := []struct {
		path       string
		status     int
		exceptions []string
		details    int
	}{
		{"/api/error/test", http.StatusInternalServerError, []string{"Intentional test error from Express"}, 0},
		{"/api/error/not-found", http.StatusNotFound, []string{"This endpoint intentionally returns 404"}, 0},
		{"/api/error/validation", http.StatusBadRequest, []string{"This endpoint intentionally returns validation errors"}, 3},
		{"/api/error/server", http.StatusInternalServerError, []string{"This endpoint intentionally returns 500"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			h := newHarness(t)

			rec := h.do(http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, rec.Code)

			span := h.span(t, ServiceName)
			assert.Equal(t, tt.exceptions, exceptions(span))
			assert.Equal(t, codes.Error, span.Status().Code)
			assert.Equal(t, tt.details, countEvents(span, obshttp.ErrorDetailsEvent))
		})
	}
}

func TestGraphQL_Recipe(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/graphql",
		`{"query":"query GetRecipe($id: ID!) { recipe(id: $id) { id name totalCost } }","operationName":"GetRecipe","variables":{"id":"bread"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"recipe":{"id":"bread","name":"Plain Bread","totalCost":1.26}}}`, rec.Body.String())

	op := h.span(t, "graphql.execute GetRecipe")
	a := attrs(op)
	assert.Equal(t, "bread", a["recipe.id"].AsString())
	assert.Equal(t, "1.26", a["recipe.total_cost"].AsString())
	assert.Equal(t, 3, countEvents(op, "ingredient.priced"), "pricing goroutines enrich the operation span")
	assert.Equal(t, codes.Unset, op.Status().Code)

	for _, l := range h.spansNamed("pricing.lookup") {
		assert.Equal(t, op.SpanContext().SpanID(), l.Parent().SpanID())
		assert.Zero(t, countEvents(l, "ingredient.priced"))
	}
}

func TestGraphQL_NotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/graphql",
		`{"query":"query GetRecipe($id: ID!) { recipe(id: $id) { id } }","operationName":"GetRecipe","variables":{"id":"cake"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp graphqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "NOT_FOUND", resp.Errors[0].Extensions["code"])

	op := h.span(t, "graphql.execute GetRecipe")
	assert.Equal(t, codes.Error, op.Status().Code)
	assert.Equal(t, []string{"Recipe not found"}, exceptions(op))
}

func TestGraphQL_UnknownField(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/graphql", `{"query":"{ shoppingList { id } }"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "GRAPHQL_VALIDATION_FAILED")
}
