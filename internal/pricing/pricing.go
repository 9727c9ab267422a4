// Package pricing computes line and order totals in exact decimal arithmetic.
package pricing

import "github.com/shopspring/decimal"

// DefaultTaxRate is applied when TAX_RATE is not configured.
var DefaultTaxRate = decimal.RequireFromString("0.07")

// Totals is the derived money state of an order.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeLineTotal returns (basePrice + Σ toppingDeltas) × quantity.
func ComputeLineTotal(basePrice decimal.Decimal, toppingDeltas []decimal.Decimal, quantity int) decimal.Decimal {
	unit := basePrice
	for _, d := range toppingDeltas {
		unit = unit.Add(d)
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity)))
}

// Engine recomputes order totals for a fixed tax rate.
type Engine struct {
	TaxRate decimal.Decimal
}

func NewEngine(taxRate decimal.Decimal) Engine {
	return Engine{TaxRate: taxRate}
}

// RecomputeTotals sums the line totals and rounds tax to cents (half away from zero).
func (e Engine) RecomputeTotals(lineTotals []decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, lt := range lineTotals {
		subtotal = subtotal.Add(lt)
	}
	tax := subtotal.Mul(e.TaxRate).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}
