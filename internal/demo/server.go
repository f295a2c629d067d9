package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	obs "github.com/eli0shin/obs-playground"
	"github.com/eli0shin/obs-playground/console"
	"github.com/eli0shin/obs-playground/fields"
	"github.com/eli0shin/obs-playground/middleware/obshttp"
)

// ServiceName is the operation name of the server spans.
const ServiceName = "express-server"

const instrumentationName = "github.com/eli0shin/obs-playground/internal/demo"

// ErrPriceMissing is returned when a recipe uses an unpriced ingredient.
var ErrPriceMissing = errors.New("price missing")

// Server serves the pricing API.
type Server struct {
	app     *obs.Obs
	store   *Store
	log     obs.Logger
	audit   *logrus.Logger
	tracer  obs.Tracer
	lookups metric.Int64Counter
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	auditOut io.Writer
}

// WithAuditOutput sets where the price audit log is written. Default:
// stderr.
func WithAuditOutput(w io.Writer) Option {
	return func(o *serverOptions) { o.auditOut = w }
}

// NewServer builds a server over store, instrumented by app. Price changes
// go to a logrus audit log that is mirrored into the telemetry log
// pipeline through the console bridge.
func NewServer(app *obs.Obs, store *Store, opts ...Option) (*Server, error) {
	o := &serverOptions{auditOut: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	lookups, err := app.Meter(instrumentationName).Int64Counter("pricing.lookups",
		metric.WithDescription("Ingredient price lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("pricing.lookups counter: %w", err)
	}

	audit := logrus.New()
	audit.SetOutput(o.auditOut)
	audit.SetFormatter(&logrus.JSONFormatter{})
	audit.AddHook(console.NewLogrusHook(app.Console()))

	return &Server{
		app:     app,
		store:   store,
		log:     app.Named("demo"),
		audit:   audit,
		tracer:  app.Tracer(instrumentationName),
		lookups: lookups,
	}, nil
}

// Handler returns the routed and instrumented API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/", s.root).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	r.HandleFunc("/ingredients/prices", s.batchPrices).Methods(http.MethodGet)
	r.HandleFunc("/ingredients/prices", s.updatePrices).Methods(http.MethodPost)
	r.HandleFunc("/ingredients/{id}/price", s.price).Methods(http.MethodGet)
	r.HandleFunc("/recipes/{id}/cost", s.recipeCost).Methods(http.MethodGet)

	r.HandleFunc("/api/error/test", s.panicTest).Methods(http.MethodGet)
	r.HandleFunc("/api/error/not-found", s.notFound).Methods(http.MethodGet)
	r.HandleFunc("/api/error/validation", s.validation).Methods(http.MethodGet)
	r.HandleFunc("/api/error/server", s.serverError).Methods(http.MethodGet)

	r.Handle("/graphql", s.app.GraphQLHandler(http.HandlerFunc(s.graphql))).Methods(http.MethodPost)

	return s.app.HTTPHandler(r, ServiceName)
}

// logRequests tags the server span with the route template and logs each
// completed request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		obs.SetActiveAttributes(r.Context(), attribute.String("http.route", route))

		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Info(r.Context(), "request handled",
			fields.Method(r.Method),
			fields.Route(route),
			fields.StatusCode(m.Code),
			fields.DurationMs(float64(m.Duration.Microseconds())/1000),
		)
	})
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Express API server is running!"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// lookup reads one price and counts the lookup.
func (s *Server) lookup(ctx context.Context, id string) (decimal.Decimal, bool) {
	price, ok := s.store.Price(id)
	s.lookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("pricing.found", ok)))
	return price, ok
}

func (s *Server) price(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	price, ok := s.lookup(ctx, id)
	obs.SetActiveAttributes(ctx, attribute.String("ingredient.id", id))
	if !ok {
		s.log.Warn(ctx, "ingredient not found", fields.IngredientID(id))
		s.app.Console().Warn(ctx, "price lookup missed", map[string]string{"ingredient.id": id})
		obshttp.WriteError(w, http.StatusNotFound, "Ingredient not found")
		return
	}
	obs.SetActiveAttributes(ctx, attribute.Float64("pricing.price", price.InexactFloat64()))

	writeJSON(w, http.StatusOK, map[string]any{"ingredientId": id, "price": number(price)})
}

func (s *Server) batchPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("ids")

	if raw == "" {
		all := s.store.AllPrices()
		obs.SetActiveAttributes(ctx, attribute.Int("batch.ingredient_count", len(all)))
		setRange(ctx, "batch", all)
		writeJSON(w, http.StatusOK, numbers(all))
		return
	}

	ids := strings.Split(raw, ",")
	prices := s.store.Prices(ids)

	found := make([]string, 0, len(prices))
	for _, id := range ids {
		_, ok := prices[id]
		s.lookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("pricing.found", ok)))
		if ok {
			found = append(found, id)
		}
	}
	obs.SetActiveAttributes(ctx,
		attribute.Int("batch.ingredient_ids_requested", len(ids)),
		attribute.StringSlice("batch.ingredient_ids_found", found),
		attribute.Int("batch.ingredient_ids_missing_count", len(ids)-len(prices)),
	)
	setRange(ctx, "batch", prices)

	writeJSON(w, http.StatusOK, numbers(prices))
}

func (s *Server) updatePrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var updates map[string]decimal.Decimal
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		obs.RecordError(ctx, err)
		obshttp.WriteError(w, http.StatusBadRequest, "Invalid price update")
		return
	}

	ids := s.store.SetPrices(updates)
	obs.SetActiveAttributes(ctx,
		attribute.Int("pricing.updated_count", len(ids)),
		attribute.String("pricing.updated_ids", strings.Join(ids, ",")),
	)
	setRange(ctx, "pricing", updates)
	s.audit.WithContext(ctx).WithFields(logrus.Fields{
		"ingredient_ids": ids,
		"count":          len(ids),
	}).Info("prices updated")

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": ids})
}

// RecipeCost is the priced breakdown of a recipe.
type RecipeCost struct {
	RecipeID    string           `json:"recipeId"`
	Name        string           `json:"name"`
	TotalCost   json.Number      `json:"totalCost"`
	Ingredients []IngredientCost `json:"ingredients"`
}

// IngredientCost is one priced line of a recipe.
type IngredientCost struct {
	ID        string      `json:"id"`
	Quantity  json.Number `json:"quantity"`
	UnitPrice json.Number `json:"unitPrice"`
	Cost      json.Number `json:"cost"`
}

// Cost prices every ingredient of recipe concurrently, one child span per
// lookup, and sums quantity times unit price rounded to cents.
func (s *Server) Cost(ctx context.Context, recipe Recipe) (RecipeCost, error) {
	lines := make([]IngredientCost, len(recipe.Ingredients))
	costs := make([]decimal.Decimal, len(recipe.Ingredients))

	g, gctx := errgroup.WithContext(ctx)
	for i, ing := range recipe.Ingredients {
		g.Go(func() error {
			ctx, span := s.tracer.Start(gctx, "pricing.lookup",
				obs.WithAttributes(attribute.String("ingredient.id", ing.ID)))
			defer span.End()

			price, ok := s.lookup(ctx, ing.ID)
			if !ok {
				err := fmt.Errorf("%w: %s", ErrPriceMissing, ing.ID)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			costs[i] = price.Mul(ing.Quantity)
			lines[i] = IngredientCost{
				ID:        ing.ID,
				Quantity:  number(ing.Quantity),
				UnitPrice: number(price),
				Cost:      number(costs[i]),
			}
			obs.AddEvent(ctx, "ingredient.priced",
				attribute.String("ingredient.id", ing.ID),
				attribute.Float64("ingredient.cost", costs[i].InexactFloat64()),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RecipeCost{}, err
	}

	total := decimal.Sum(decimal.Zero, costs...).Round(2)
	return RecipeCost{
		RecipeID:    recipe.ID,
		Name:        recipe.Name,
		TotalCost:   number(total),
		Ingredients: lines,
	}, nil
}

func (s *Server) recipeCost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	obs.SetActiveAttributes(ctx, attribute.String("recipe.id", id))

	recipe, ok := s.store.Recipe(id)
	if !ok {
		obshttp.WriteError(w, http.StatusNotFound, "Recipe not found")
		return
	}

	cost, err := s.Cost(ctx, recipe)
	if err != nil {
		s.log.Error(ctx, "recipe cost failed", err, fields.RecipeID(id))
		obshttp.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	obs.SetActiveAttributes(ctx,
		attribute.Int("recipe.ingredient_count", len(recipe.Ingredients)),
		attribute.String("recipe.total_cost", cost.TotalCost.String()),
	)
	s.log.Info(ctx, "recipe priced",
		fields.RecipeID(id),
		fields.IngredientCount(len(recipe.Ingredients)),
		obs.String("total_cost", cost.TotalCost.String()),
	)

	writeJSON(w, http.StatusOK, cost)
}

// --- Error routes ---

func (s *Server) panicTest(http.ResponseWriter, *http.Request) {
	panic("Intentional test error from Express")
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":   "Resource not found",
		"message": "This endpoint intentionally returns 404",
	})
}

func (s *Server) validation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "Validation failed",
		"message": "This endpoint intentionally returns validation errors",
		"errors": []map[string]string{
			{"field": "name", "message": "Name is required"},
			{"field": "email", "message": "Email is invalid"},
			{"field": "age", "message": "Age must be greater than 0"},
		},
	})
}

func (s *Server) serverError(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   "Internal server error",
		"message": "This endpoint intentionally returns 500",
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// number renders d as a JSON number literal.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func numbers(m map[string]decimal.Decimal) map[string]json.Number {
	out := make(map[string]json.Number, len(m))
	for k, v := range m {
		out[k] = number(v)
	}
	return out
}

// setRange sets <prefix>.price_range_min/max/avg on the active span.
func setRange(ctx context.Context, prefix string, prices map[string]decimal.Decimal) {
	if len(prices) == 0 {
		return
	}
	values := make([]decimal.Decimal, 0, len(prices))
	for _, p := range prices {
		values = append(values, p)
	}
	obs.SetActiveAttributes(ctx,
		attribute.Float64(prefix+".price_range_min", decimal.Min(values[0], values[1:]...).InexactFloat64()),
		attribute.Float64(prefix+".price_range_max", decimal.Max(values[0], values[1:]...).InexactFloat64()),
		attribute.Float64(prefix+".price_range_avg", decimal.Avg(values[0], values[1:]...).InexactFloat64()),
	)
}
