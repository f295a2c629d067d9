// Package demo is a small recipe pricing service used to exercise the
// observability layer end to end.
package demo

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Ingredient is one line of a recipe.
type Ingredient struct {
	ID       string
	Quantity decimal.Decimal
}

// Recipe is a named list of ingredients.
type Recipe struct {
	ID          string
	Name        string
	Ingredients []Ingredient
}

// Store holds unit prices and recipes in memory.
type Store struct {
	mu      sync.RWMutex
	prices  map[string]decimal.Decimal
	recipes map[string]Recipe
}

// NewStore returns a store seeded with the bread recipe and its prices.
func NewStore() *Store {
	return &Store{
		prices: map[string]decimal.Decimal{
			"flour": decimal.RequireFromString("2.50"),
			"water": decimal.RequireFromString("0.01"),
			"salt":  decimal.RequireFromString("0.30"),
		},
		recipes: map[string]Recipe{
			"bread": {
				ID:   "bread",
				Name: "Plain Bread",
				Ingredients: []Ingredient{
					{ID: "flour", Quantity: decimal.RequireFromString("0.5")},
					{ID: "water", Quantity: decimal.RequireFromString("0.35")},
					{ID: "salt", Quantity: decimal.RequireFromString("0.01")},
				},
			},
		},
	}
}

// Price returns the unit price of an ingredient.
func (s *Store) Price(id string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[id]
	return p, ok
}

// Prices returns the known prices among ids. Unknown ids are skipped.
func (s *Store) Prices(ids []string) map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out[id] = p
		}
	}
	return out
}

// AllPrices returns a copy of every price.
func (s *Store) AllPrices() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.prices))
	for id, p := range s.prices {
		out[id] = p
	}
	return out
}

// SetPrices replaces the prices of the given ingredients and returns the
// updated ids in sorted order.
func (s *Store) SetPrices(updates map[string]decimal.Decimal) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(updates))
	for id, p := range updates {
		s.prices[id] = p
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Recipe looks up a recipe by id.
func (s *Store) Recipe(id string) (Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[id]
	return r, ok
}
