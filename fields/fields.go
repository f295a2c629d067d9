// Package fields provides logging field helpers for the pricing service.
//
// These helpers create structured fields with consistent naming for
// HTTP, recipe and pricing data, so the same key is used for the same
// value across every log line.
//
// Usage:
//
//	import "github.com/eli0shin/obs-playground/fields"
//
//	logger.Info(ctx, "ingredient priced",
//	    fields.IngredientID("flour"),
//	    fields.Price(price),
//	    fields.DurationMs(12.5),
//	)
package fields

import (
	"time"

	"github.com/shopspring/decimal"

	obs "github.com/eli0shin/obs-playground"
)

// --- HTTP Fields ---

// Method creates an HTTP method field.
func Method(method string) obs.Field {
	return obs.String("http.method", method)
}

// Route creates a route template field, such as "/recipes/{id}/cost".
func Route(route string) obs.Field {
	return obs.String("http.route", route)
}

// StatusCode creates an HTTP status code field.
func StatusCode(code int) obs.Field {
	return obs.Int("http.status_code", code)
}

// --- Recipe and Pricing Fields ---

// IngredientID creates an ingredient ID field.
func IngredientID(id string) obs.Field {
	return obs.String("ingredient.id", id)
}

// IngredientCount creates a field for the number of ingredients involved.
func IngredientCount(n int) obs.Field {
	return obs.Int("ingredient.count", n)
}

// RecipeID creates a recipe ID field.
func RecipeID(id string) obs.Field {
	return obs.String("recipe.id", id)
}

// Price creates a price field. The decimal is logged as its exact string.
func Price(p decimal.Decimal) obs.Field {
	return obs.String("price", p.StringFixed(2))
}

// Quantity creates a quantity field.
func Quantity(q decimal.Decimal) obs.Field {
	return obs.String("quantity", q.String())
}

// --- Timing Fields ---

// DurationMs creates a duration field in milliseconds.
func DurationMs(ms float64) obs.Field {
	return obs.Float64("duration_ms", ms)
}

// Elapsed creates a duration_ms field from a start time.
func Elapsed(start time.Time) obs.Field {
	return DurationMs(float64(time.Since(start).Microseconds()) / 1000)
}

// --- Component Fields ---

// Component creates a component name field.
func Component(name string) obs.Field {
	return obs.String("component", name)
}

// Operation creates an operation name field.
func Operation(name string) obs.Field {
	return obs.String("operation", name)
}

// Reason creates a reason field, for rejections and fallbacks.
func Reason(reason string) obs.Field {
	return obs.String("reason", reason)
}

// Backend creates a telemetry backend name field.
func Backend(name string) obs.Field {
	return obs.String("backend", name)
}
