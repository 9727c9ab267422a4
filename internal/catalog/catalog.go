// Package catalog resolves menu items and toppings. The catalog itself is owned by
// another system; this service only reads prices from it.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryEntree  Category = "ENTREE"
	CategorySide    Category = "SIDE"
	CategoryDessert Category = "DESSERT"
	CategoryDrink   Category = "DRINK"
	CategoryTopping Category = "TOPPING"
)

type Item struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  Category        `json:"category"`
	BasePrice decimal.Decimal `json:"basePrice"`
	IsTopping bool            `json:"isTopping"`
}

// Store looks catalog items up by id. Get returns an apperr NotFound for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (Item, error)
	List(ctx context.Context) ([]Item, error)
}
