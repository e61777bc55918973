package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// TotalsPolicy holds the shipping and tax constants used by CalculateTotals.
type TotalsPolicy struct {
	// FreeShippingThreshold is exclusive: shipping is free only when the
	// subtotal is strictly greater than it.
	FreeShippingThreshold decimal.Decimal
	FlatShipping          decimal.Decimal
	// TaxRate applies to the subtotal only; shipping is never taxed.
	TaxRate decimal.Decimal
}

// DefaultTotalsPolicy returns the storefront's standing rules: free shipping
// above 599, otherwise a flat 50, and 5% tax.
func DefaultTotalsPolicy() TotalsPolicy {
	return TotalsPolicy{
		FreeShippingThreshold: decimal.NewFromInt(599),
		FlatShipping:          decimal.NewFromInt(50),
		TaxRate:               decimal.RequireFromString("0.05"),
	}
}

// OrderTotals is the derived totals breakdown for a cart.
type OrderTotals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// MarshalJSON writes every amount as a JSON number.
func (t OrderTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Subtotal json.Number `json:"subtotal"`
		Shipping json.Number `json:"shipping"`
		Tax      json.Number `json:"tax"`
		Total    json.Number `json:"total"`
	}{
		Subtotal: json.Number(t.Subtotal.String()),
		Shipping: json.Number(t.Shipping.String()),
		Tax:      json.Number(t.Tax.String()),
		Total:    json.Number(t.Total.String()),
	})
}

// Subtotal returns the sum of UnitPrice * Quantity over lines.
func Subtotal(lines []CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// CalculateTotals computes the totals breakdown for lines under policy p.
func CalculateTotals(lines []CartLine, p TotalsPolicy) OrderTotals {
	subtotal := Subtotal(lines)

	shipping := p.FlatShipping
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := subtotal.Mul(p.TaxRate)

	return OrderTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}
