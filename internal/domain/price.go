package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice is returned when display price text cannot be turned into a
// non-negative amount.
var ErrInvalidPrice = errors.New("invalid price")

// MaxUnitPrice is the largest unit price a line may carry.
var MaxUnitPrice = decimal.NewFromInt(10_000_000)

const (
	// MaxPriceScale is the largest number of fractional digits a price may
	// be written with.
	MaxPriceScale = 4

	// maxPriceIntDigits is the number of integer digits in MaxUnitPrice.
	maxPriceIntDigits = 8
)

// currencyPrefixes are stripped from display prices. "Rs." must precede "Rs".
var currencyPrefixes = []string{"Rs.", "Rs", "₹", "INR"}

// ParsePrice converts display price text such as "Rs. 1,299" or "₹50" into a
// decimal amount in major units. Plain numeric text is accepted as is.
func ParsePrice(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	for _, prefix := range currencyPrefixes {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")

	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %q has no amount", ErrInvalidPrice, text)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrInvalidPrice, text, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidPrice, text)
	}
	if err := CheckPrice(d); err != nil {
		return decimal.Zero, fmt.Errorf("%w (%q)", err, text)
	}
	return d, nil
}

// CheckPrice reports whether d is a usable unit price: non-negative, at most
// MaxUnitPrice and written with at most MaxPriceScale fractional digits. The
// exponent is inspected before any arithmetic, so amounts such as "1e100000000"
// are rejected without being expanded.
func CheckPrice(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidPrice)
	}
	if d.Exponent() < -MaxPriceScale {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidPrice, MaxPriceScale)
	}
	if int64(d.NumDigits())+int64(d.Exponent()) > maxPriceIntDigits || d.GreaterThan(MaxUnitPrice) {
		return fmt.Errorf("%w: above %s", ErrInvalidPrice, MaxUnitPrice)
	}
	return nil
}
