package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineRequest is one submitted line. Client-side totals are never
// accepted; the engine recomputes every amount.
type LineRequest struct {
	LineOrder   int             `json:"line_order"`
	IsHeader    bool            `json:"is_header"`
	ItemID      *int64          `json:"item_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_percent"`
	TaxPct      decimal.Decimal `json:"tax_percent"`
}

// CreateQuotationRequest creates a new DRAFT quotation.
type CreateQuotationRequest struct {
	SalesCaseID int64         `json:"sales_case_id" validate:"required"`
	CustomerID  int64         `json:"customer_id" validate:"required"`
	QuoteDate   time.Time     `json:"quote_date" validate:"required"`
	ValidUntil  time.Time     `json:"valid_until" validate:"required"`
	Currency    string        `json:"currency" validate:"required,len=3"`
	Notes       *string       `json:"notes"`
	Lines       []LineRequest `json:"lines" validate:"min=1"`
}

// UpdateQuotationRequest edits a DRAFT quotation. Nil fields keep
// their current value; a non-nil Lines replaces all lines.
type UpdateQuotationRequest struct {
	QuoteDate  *time.Time     `json:"quote_date"`
	ValidUntil *time.Time     `json:"valid_until"`
	Notes      *string        `json:"notes"`
	Lines      *[]LineRequest `json:"lines"`
}

// ListQuotationsRequest filters quotation listings.
type ListQuotationsRequest struct {
	SalesCaseID *int64           `json:"sales_case_id"`
	CustomerID  *int64           `json:"customer_id"`
	Status      *QuotationStatus `json:"status"`
	Limit       int              `json:"limit"`
	Offset      int              `json:"offset"`
}
