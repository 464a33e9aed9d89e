// Package pricing computes per-line discount/tax arithmetic and
// document aggregation for quotations, sales orders, and invoices.
// Calculation is pure and deterministic; totals supplied by callers
// are never trusted and always recomputed here.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var maxDiscount = decimal.NewFromInt(100)

// LineInput is one validated line supplied by the submission boundary.
// Header lines carry only a description and contribute zero to totals.
type LineInput struct {
	LineOrder   int
	IsHeader    bool
	ItemID      *int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
}

// Line is a calculated line. Subtotal is the rounded gross amount,
// and Total = Subtotal − DiscountAmount + TaxAmount.
type Line struct {
	LineInput
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// DocumentTotals aggregates non-header line amounts. Each field is the
// exact sum of the already-rounded per-line values.
type DocumentTotals struct {
	Currency       string
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// Calculate computes every line and the document sums. Lines keep
// their input order; section headers retain position but are excluded
// from all sums.
func Calculate(currency string, inputs []LineInput) (DocumentTotals, []Line, error) {
	scale, err := money.Scale(currency)
	if err != nil {
		return DocumentTotals{}, nil, shared.NewValidationError("currency", err.Error())
	}

	totals := DocumentTotals{
		Currency:       currency,
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		Total:          decimal.Zero,
	}
	lines := make([]Line, 0, len(inputs))

	for i, in := range inputs {
		if in.LineOrder == 0 {
			in.LineOrder = i + 1
		}
		line, err := calculateLine(in, scale)
		if err != nil {
			return DocumentTotals{}, nil, fmt.Errorf("line %d: %w", in.LineOrder, err)
		}
		lines = append(lines, line)
		if in.IsHeader {
			continue
		}
		totals.Subtotal = totals.Subtotal.Add(line.Subtotal)
		totals.DiscountAmount = totals.DiscountAmount.Add(line.DiscountAmount)
		totals.TaxAmount = totals.TaxAmount.Add(line.TaxAmount)
		totals.Total = totals.Total.Add(line.Total)
	}

	return totals, lines, nil
}

// calculateLine rounds once per component at the currency minor unit.
// Tax applies to the post-discount amount, never the gross amount. The
// tax base is the unrounded gross minus the rounded discount, so a
// sub-minor-unit price never inflates the tax through early rounding.
func calculateLine(in LineInput, scale int32) (Line, error) {
	if in.IsHeader {
		return Line{
			LineInput:      in,
			Subtotal:       decimal.Zero,
			DiscountAmount: decimal.Zero,
			TaxAmount:      decimal.Zero,
			Total:          decimal.Zero,
		}, nil
	}

	if err := validateLine(in); err != nil {
		return Line{}, err
	}

	gross := in.Quantity.Mul(in.UnitPrice)
	subtotal := money.Round(gross, scale)
	discount := money.Round(money.Percent(gross, in.DiscountPct), scale)
	tax := money.Round(money.Percent(gross.Sub(discount), in.TaxPct), scale)

	return Line{
		LineInput:      in,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		Total:          subtotal.Sub(discount).Add(tax),
	}, nil
}

func validateLine(in LineInput) error {
	if money.IsNegative(in.Quantity) {
		return shared.NewValidationError("quantity", "must not be negative")
	}
	if money.IsNegative(in.UnitPrice) {
		return shared.NewValidationError("unit_price", "must not be negative")
	}
	if money.IsNegative(in.DiscountPct) || in.DiscountPct.GreaterThan(maxDiscount) {
		return shared.NewValidationError("discount_percent", "must be between 0 and 100")
	}
	if money.IsNegative(in.TaxPct) {
		return shared.NewValidationError("tax_percent", "must not be negative")
	}
	return nil
}
