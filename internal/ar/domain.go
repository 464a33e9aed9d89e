package ar

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates stored invoice states. An invoice is born
// SENT because it is generated from a delivered order.
type InvoiceStatus string

const (
	InvoiceStatusSent    InvoiceStatus = "SENT"
	InvoiceStatusPartial InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid    InvoiceStatus = "PAID"

	// InvoiceStatusOverdue is derived at read time: an unpaid balance
	// past the due date. It is never stored; full payment always lands
	// on PAID no matter how overdue the invoice was.
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// AgingBucket classifies an open balance by days past due.
type AgingBucket string

const (
	AgingCurrent AgingBucket = "current"
	Aging1To30   AgingBucket = "1-30"
	Aging31To60  AgingBucket = "31-60"
	Aging61To90  AgingBucket = "61-90"
	Aging90Plus  AgingBucket = "90+"
)

// Invoice is the final document in the order-to-cash chain.
// BalanceAmount always equals TotalAmount − PaidAmount, and
// PaidAmount never exceeds TotalAmount.
type Invoice struct {
	ID             int64           `json:"id" db:"id"`
	DocNumber      string          `json:"doc_number" db:"doc_number"`
	SalesCaseID    int64           `json:"sales_case_id" db:"sales_case_id"`
	SalesOrderID   int64           `json:"sales_order_id" db:"sales_order_id"`
	CustomerID     int64           `json:"customer_id" db:"customer_id"`
	Version        int64           `json:"version" db:"version"`
	InvoiceDate    time.Time       `json:"invoice_date" db:"invoice_date"`
	DueAt          time.Time       `json:"due_at" db:"due_at"`
	Status         InvoiceStatus   `json:"status" db:"status"`
	Currency       string          `json:"currency" db:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	BalanceAmount  decimal.Decimal `json:"balance_amount" db:"balance_amount"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	Lines          []InvoiceLine   `json:"lines,omitempty" db:"-"`
}

// InvoiceLine is a snapshot copy of a sales order line.
type InvoiceLine struct {
	ID             int64           `json:"id" db:"id"`
	InvoiceID      int64           `json:"invoice_id" db:"invoice_id"`
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

// Payment is immutable once created. Corrections are new payments or
// explicit reversal records, never edits.
type Payment struct {
	ID        int64           `json:"id" db:"id"`
	InvoiceID int64           `json:"invoice_id" db:"invoice_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	PaidAt    time.Time       `json:"paid_at" db:"paid_at"`
	Method    string          `json:"method" db:"method"`
	Reference string          `json:"reference" db:"reference"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// EffectiveStatus derives the read-time state: OVERDUE when an unpaid
// balance is past due, otherwise the stored status.
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status != InvoiceStatusPaid && i.BalanceAmount.Sign() > 0 && now.After(i.DueAt) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// Age classifies the invoice's open balance as of a point in time.
func (i *Invoice) Age(asOf time.Time) AgingBucket {
	days := int(asOf.Sub(i.DueAt).Hours() / 24)
	switch {
	case days <= 0:
		return AgingCurrent
	case days <= 30:
		return Aging1To30
	case days <= 60:
		return Aging31To60
	case days <= 90:
		return Aging61To90
	default:
		return Aging90Plus
	}
}

// AgingReport summarises open balances by bucket.
type AgingReport struct {
	AsOf     time.Time       `json:"as_of"`
	Current  decimal.Decimal `json:"current"`
	Days30   decimal.Decimal `json:"days_1_30"`
	Days60   decimal.Decimal `json:"days_31_60"`
	Days90   decimal.Decimal `json:"days_61_90"`
	Days90Up decimal.Decimal `json:"days_90_plus"`
}
