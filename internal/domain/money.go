package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MonetaryPrecision is the number of decimal places kept for prices.
const MonetaryPrecision int32 = 2

// NormalizeAmount rounds a bid amount to MonetaryPrecision so that the
// ledger never compares values that differ only by float noise.
func NormalizeAmount(amount float64) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: amount is not a finite number", ErrInvalidBid)
	}
	rounded, _ := decimal.NewFromFloat(amount).Round(MonetaryPrecision).Float64()
	if rounded <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidBid)
	}
	return rounded, nil
}

// FormatAmount renders a price the way the ledger stores it.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(MonetaryPrecision)
}

// ParseAmount parses a stored price.
func ParseAmount(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}
