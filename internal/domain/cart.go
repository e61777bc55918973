package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DefaultWeight is the package variant assumed when a product is added
// without an explicit weight label.
const DefaultWeight = "200 Gms"

// MaxLineQuantity caps the quantity of a single line.
const MaxLineQuantity = 9999

// CartLine is one purchasable line in the cart. Lines are identified by the
// (Name, Weight) pair.
type CartLine struct {
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"price" validate:"gte=0,lte=10000000"`
	Image     string          `json:"image"`
	Weight    string          `json:"weight"`
	Quantity  int             `json:"quantity" validate:"gte=1,lte=9999"`
}

// lineJSON is the persisted shape of a CartLine. The price is written as a
// JSON number rather than decimal's default quoted string.
type lineJSON struct {
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Image    string      `json:"image"`
	Weight   string      `json:"weight"`
	Quantity int         `json:"quantity"`
}

// MarshalJSON writes the line with a numeric price.
func (l CartLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineJSON{
		Name:     l.Name,
		Price:    json.Number(l.UnitPrice.String()),
		Image:    l.Image,
		Weight:   l.Weight,
		Quantity: l.Quantity,
	})
}

// LineTotal returns UnitPrice * Quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SameVariant reports whether l is the line for the given name and weight.
func (l CartLine) SameVariant(name, weight string) bool {
	return l.Name == name && l.Weight == weight
}

// ItemCount returns the sum of all line quantities.
func ItemCount(lines []CartLine) int {
	var count int
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}

// FindLine returns the index of the line matching name and weight, or -1.
func FindLine(lines []CartLine, name, weight string) int {
	for i := range lines {
		if lines[i].SameVariant(name, weight) {
			return i
		}
	}
	return -1
}

// CloneLines returns a copy of lines that never aliases the input. A nil or
// empty input yields an empty, non-nil slice.
func CloneLines(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}

// AddQuantity returns a+b capped at MaxLineQuantity. Both must be positive.
func AddQuantity(a, b int) int {
	if b > MaxLineQuantity-a {
		return MaxLineQuantity
	}
	return a + b
}

// NormalizeLines prepares an externally supplied line list for use as a cart:
// lines without a name or with an out-of-range price are dropped, a missing
// weight gets DefaultWeight, negative prices become zero, quantities are
// clamped to [1, MaxLineQuantity], and lines sharing a (name, weight) pair
// are merged into the first occurrence.
func NormalizeLines(lines []CartLine) []CartLine {
	out := make([]CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Name == "" {
			continue
		}
		if l.Weight == "" {
			l.Weight = DefaultWeight
		}
		if l.UnitPrice.IsNegative() {
			l.UnitPrice = decimal.Zero
		}
		if CheckPrice(l.UnitPrice) != nil {
			continue
		}
		l.Quantity = min(max(l.Quantity, 1), MaxLineQuantity)
		if i := FindLine(out, l.Name, l.Weight); i >= 0 {
			out[i].Quantity = AddQuantity(out[i].Quantity, l.Quantity)
			continue
		}
		out = append(out, l)
	}
	return out
}
