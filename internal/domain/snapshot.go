package domain

import (
	"encoding/json"
	"fmt"

	"github.com/utafrali/storefront/pkg/validator"
)

// EncodeLines serializes lines into the persisted cart snapshot: a JSON array
// of {name, price, image, weight, quantity}.
func EncodeLines(lines []CartLine) ([]byte, error) {
	if lines == nil {
		lines = []CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return data, nil
}

// DecodeLines parses a persisted cart snapshot. A snapshot containing a line
// that violates the cart invariants is rejected as a whole. Lines written
// before weights existed get DefaultWeight, and lines repeating a (name,
// weight) pair are merged into the first one.
func DecodeLines(data []byte) ([]CartLine, error) {
	var lines []CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}

	out := make([]CartLine, 0, len(lines))
	for i, l := range lines {
		if l.Weight == "" {
			l.Weight = DefaultWeight
		}
		if err := CheckPrice(l.UnitPrice); err != nil {
			return nil, fmt.Errorf("cart snapshot line %d: %w", i, err)
		}
		if err := validator.Validate(l); err != nil {
			return nil, fmt.Errorf("cart snapshot line %d: %w", i, err)
		}
		if j := FindLine(out, l.Name, l.Weight); j >= 0 {
			out[j].Quantity = AddQuantity(out[j].Quantity, l.Quantity)
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
