package demo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	obs "github.com/eli0shin/obs-playground"
	"github.com/eli0shin/obs-playground/fields"
)

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphqlError struct {
	Message    string         `json:"message"`
	Path       []string       `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type graphqlResponse struct {
	Data   map[string]any `json:"data"`
	Errors []graphqlError `json:"errors,omitempty"`
}

type recipeResult struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	TotalCost json.Number `json:"totalCost"`
}

// graphql resolves the single recipe(id) field. It runs inside the
// GraphQL operation span, which it enriches from the resolver and from
// the pricing goroutines.
func (s *Server) graphql(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, graphqlResponse{Errors: []graphqlError{{
			Message:    "Invalid GraphQL request",
			Extensions: map[string]any{"code": "BAD_REQUEST"},
		}}})
		return
	}
	if !strings.Contains(req.Query, "recipe") {
		writeJSON(w, http.StatusBadRequest, graphqlResponse{Errors: []graphqlError{{
			Message:    "Cannot query field on type \"Query\"",
			Extensions: map[string]any{"code": "GRAPHQL_VALIDATION_FAILED"},
		}}})
		return
	}

	id, _ := req.Variables["id"].(string)
	obs.SetOperationAttributes(ctx, attribute.String("recipe.id", id))

	recipe, ok := s.store.Recipe(id)
	if !ok {
		s.log.Warn(ctx, "recipe not found", fields.RecipeID(id), fields.Operation(req.OperationName))
		writeJSON(w, http.StatusOK, graphqlResponse{
			Data: map[string]any{"recipe": nil},
			Errors: []graphqlError{{
				Message:    "Recipe not found",
				Path:       []string{"recipe"},
				Extensions: map[string]any{"code": "NOT_FOUND", "recipeId": id},
			}},
		})
		return
	}

	cost, err := s.Cost(ctx, recipe)
	if err != nil {
		code := "INTERNAL_SERVER_ERROR"
		if errors.Is(err, ErrPriceMissing) {
			code = "PRICE_MISSING"
		}
		s.log.Error(ctx, "recipe cost failed", err, fields.RecipeID(id))
		writeJSON(w, http.StatusOK, graphqlResponse{
			Data: map[string]any{"recipe": nil},
			Errors: []graphqlError{{
				Message:    err.Error(),
				Path:       []string{"recipe"},
				Extensions: map[string]any{"code": code},
			}},
		})
		return
	}

	obs.SetOperationAttributes(ctx,
		attribute.Int("recipe.ingredient_count", len(recipe.Ingredients)),
		attribute.String("recipe.total_cost", cost.TotalCost.String()),
	)
	writeJSON(w, http.StatusOK, graphqlResponse{Data: map[string]any{
		"recipe": recipeResult{ID: recipe.ID, Name: recipe.Name, TotalCost: cost.TotalCost},
	}})
}
