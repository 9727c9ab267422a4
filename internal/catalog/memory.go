package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/shopspring/decimal"
)

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewMemoryStore(items ...Item) *MemoryStore {
	s := &MemoryStore{items: make(map[string]Item, len(items))}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *MemoryStore) Put(it Item) {
	s.mu.Lock()
	s.items[it.ID] = it
	s.mu.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, apperr.NotFound("catalog item %s not found", id)
	}
	return it, nil
}

// List orders by category then name, like the menu board.
func (s *MemoryStore) List(_ context.Context) ([]Item, error) {
	s.mu.RLock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SeedItems is the default menu used by the memory backend and local demos.
func SeedItems() []Item {
	p := decimal.RequireFromString
	return []Item{
		{ID: "hamburger", Name: "Hamburger", Category: CategoryEntree, BasePrice: p("8.99")},
		{ID: "cheeseburger", Name: "Cheeseburger", Category: CategoryEntree, BasePrice: p("9.99")},
		{ID: "hot-dog", Name: "Hot Dog", Category: CategoryEntree, BasePrice: p("6.99")},
		{ID: "fries-regular", Name: "Fries (Regular)", Category: CategorySide, BasePrice: p("3.99")},
		{ID: "fries-xl", Name: "Fries (Extra Large)", Category: CategorySide, BasePrice: p("5.99")},
		{ID: "poutine", Name: "Poutine", Category: CategorySide, BasePrice: p("7.99")},
		{ID: "ice-cream", Name: "Ice Cream", Category: CategoryDessert, BasePrice: p("4.99")},
		{ID: "milkshake", Name: "Milkshake", Category: CategoryDessert, BasePrice: p("4.99")},
		{ID: "fountain-drink", Name: "Fountain Drink", Category: CategoryDrink, BasePrice: p("2.99")},
		{ID: "extra-patty", Name: "Extra Patty", Category: CategoryTopping, BasePrice: p("3.00"), IsTopping: true},
		{ID: "extra-dog", Name: "Extra Dog", Category: CategoryTopping, BasePrice: p("2.50"), IsTopping: true},
		{ID: "mayo", Name: "Mayo", Category: CategoryTopping, BasePrice: p("0.25"), IsTopping: true},
		{ID: "ketchup", Name: "Ketchup", Category: CategoryTopping, BasePrice: p("0.25"), IsTopping: true},
		{ID: "mustard", Name: "Mustard", Category: CategoryTopping, BasePrice: p("0.25"), IsTopping: true},
		{ID: "lettuce", Name: "Lettuce", Category: CategoryTopping, BasePrice: p("0.50"), IsTopping: true},
		{ID: "pickles", Name: "Pickles", Category: CategoryTopping, BasePrice: p("0.50"), IsTopping: true},
		{ID: "tomatoes", Name: "Tomatoes", Category: CategoryTopping, BasePrice: p("0.75"), IsTopping: true},
		{ID: "grilled-onions", Name: "Grilled Onions", Category: CategoryTopping, BasePrice: p("0.75"), IsTopping: true},
		{ID: "bacon", Name: "Bacon", Category: CategoryTopping, BasePrice: p("2.00"), IsTopping: true},
		{ID: "extra-cheese", Name: "Extra Cheese", Category: CategoryTopping, BasePrice: p("1.00"), IsTopping: true},
		{ID: "jalapenos", Name: "Jalapeño Peppers", Category: CategoryTopping, BasePrice: p("0.75"), IsTopping: true},
		{ID: "bbq-sauce", Name: "Bar-B-Q Sauce", Category: CategoryTopping, BasePrice: p("0.25"), IsTopping: true},
		{ID: "hot-sauce", Name: "Hot Sauce", Category: CategoryTopping, BasePrice: p("0.25"), IsTopping: true},
	}
}
