package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotationStatus enumerates stored quotation states.
type QuotationStatus string

const (
	QuotationStatusDraft      QuotationStatus = "DRAFT"
	QuotationStatusSent       QuotationStatus = "SENT"
	QuotationStatusAccepted   QuotationStatus = "ACCEPTED"
	QuotationStatusRejected   QuotationStatus = "REJECTED"
	QuotationStatusSuperseded QuotationStatus = "SUPERSEDED"

	// QuotationStatusExpired is derived, never stored. A quotation that
	// is neither accepted nor rejected reads as EXPIRED once its
	// valid-until date passes.
	QuotationStatusExpired QuotationStatus = "EXPIRED"
)

// Quotation is the first document in the order-to-cash chain. Totals
// are caches of the line sums and are recomputed on every mutation.
// Version stamps the row for compare-and-swap status transitions;
// Revision tracks the clone lineage within a sales case.
type Quotation struct {
	ID             int64           `json:"id" db:"id"`
	DocNumber      string          `json:"doc_number" db:"doc_number"`
	SalesCaseID    int64           `json:"sales_case_id" db:"sales_case_id"`
	CustomerID     int64           `json:"customer_id" db:"customer_id"`
	Revision       int             `json:"revision" db:"revision"`
	Version        int64           `json:"version" db:"version"`
	QuoteDate      time.Time       `json:"quote_date" db:"quote_date"`
	ValidUntil     time.Time       `json:"valid_until" db:"valid_until"`
	Status         QuotationStatus `json:"status" db:"status"`
	Currency       string          `json:"currency" db:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	Notes          *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	Lines          []QuotationLine `json:"lines,omitempty" db:"-"`
}

// QuotationLine is one ordered line. Header lines carry only a
// description and contribute zero to every document total.
type QuotationLine struct {
	ID             int64           `json:"id" db:"id"`
	QuotationID    int64           `json:"quotation_id" db:"quotation_id"`
	LineOrder      int             `json:"line_order" db:"line_order"`
	IsHeader       bool            `json:"is_header" db:"is_header"`
	ItemID         *int64          `json:"item_id,omitempty" db:"item_id"`
	Description    string          `json:"description" db:"description"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPct    decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TaxPct         decimal.Decimal `json:"tax_percent" db:"tax_percent"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total" db:"line_total"`
}

// EffectiveStatus derives the read-time state. EXPIRED is computed
// lazily from validUntil instead of being flipped by a background job.
func (q *Quotation) EffectiveStatus(now time.Time) QuotationStatus {
	switch q.Status {
	case QuotationStatusDraft, QuotationStatusSent:
		if now.After(q.ValidUntil) {
			return QuotationStatusExpired
		}
	}
	return q.Status
}
