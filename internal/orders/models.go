package orders

import (
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/payment"
	"github.com/ariefcatur/go-pos-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

type Order struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Status        Status          `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod payment.Method  `json:"paymentMethod,omitempty"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	ID            string             `json:"id"`
	OrderID       string             `json:"orderId"`
	CatalogItemID string             `json:"catalogItemId"`
	Size          string             `json:"size,omitempty"`
	Flavor        string             `json:"flavor,omitempty"`
	Quantity      int                `json:"quantity"`
	BasePrice     decimal.Decimal    `json:"basePrice"`
	LineTotal     decimal.Decimal    `json:"lineTotal"`
	Toppings      []OrderItemTopping `json:"toppings"`
}

type OrderItemTopping struct {
	ID            string          `json:"id"`
	OrderItemID   string          `json:"orderItemId"`
	CatalogItemID string          `json:"catalogItemId"`
	PriceDelta    decimal.Decimal `json:"priceDelta"`
}

// Clone deep-copies the aggregate so stores never share slices with callers.
func (o Order) Clone() Order {
	cp := o
	cp.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		cp.Items[i] = it
		cp.Items[i].Toppings = append([]OrderItemTopping(nil), it.Toppings...)
	}
	return cp
}

func (it OrderItem) toppingDeltas() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(it.Toppings))
	for _, tp := range it.Toppings {
		out = append(out, tp.PriceDelta)
	}
	return out
}

// recompute derives every line total from captured prices, then the order totals.
func (o *Order) recompute(e pricing.Engine) {
	lines := make([]decimal.Decimal, 0, len(o.Items))
	for i := range o.Items {
		it := &o.Items[i]
		it.LineTotal = pricing.ComputeLineTotal(it.BasePrice, it.toppingDeltas(), it.Quantity)
		lines = append(lines, it.LineTotal)
	}
	t := e.RecomputeTotals(lines)
	o.Subtotal, o.Tax, o.Total = t.Subtotal, t.Tax, t.Total
}

func (o *Order) itemIndex(itemID string) int {
	for i, it := range o.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// Filter narrows order listings. Zero values mean "any".
type Filter struct {
	Status Status
	From   time.Time
	To     time.Time
}

func (f Filter) Match(o Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.CreatedAt.After(f.To) {
		return false
	}
	return true
}
