// Package money provides fixed-point monetary arithmetic.
//
// All monetary values in the engine are decimal.Decimal, never floats.
// Rounding happens once per line at the currency's minor unit using
// half-up; document totals are exact sums of already-rounded values.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var hundred = decimal.NewFromInt(100)

// Scale returns the number of minor-unit digits for an ISO 4217 code.
func Scale(code string) (int32, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("money: invalid currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}

// Round rounds d half-up to the currency's minor unit.
// Amounts handled by the engine are non-negative, for which
// decimal.Round (half away from zero) is exactly half-up.
func Round(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// Percent returns base × pct/100, unrounded.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// Sum returns the exact sum of already-rounded values. No re-rounding
// is applied, so the sum of parts always equals the whole.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// IsNegative reports whether d < 0.
func IsNegative(d decimal.Decimal) bool {
	return d.Sign() < 0
}
