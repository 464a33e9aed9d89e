package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesOrderStatus enumerates sales order states.
type SalesOrderStatus string

const (
	SalesOrderStatusPending   SalesOrderStatus = "PENDING"
	SalesOrderStatusApproved  SalesOrderStatus = "APPROVED"
	SalesOrderStatusDelivered SalesOrderStatus = "DELIVERED"
	SalesOrderStatusCancelled SalesOrderStatus = "CANCELLED"
)

// SalesOrder is created from an ACCEPTED quotation; its lines are a
// snapshot taken at creation and do not follow later quotation edits.
// CostAmount is the FIFO cost basis attached at delivery.
type SalesOrder struct {
	ID             int64            `json:"id" db:"id"`
	DocNumber      string           `json:"doc_number" db:"doc_number"`
	SalesCaseID    int64            `json:"sales_case_id" db:"sales_case_id"`
	QuotationID    int64            `json:"quotation_id" db:"quotation_id"`
	CustomerID     int64            `json:"customer_id" db:"customer_id"`
	Version        int64            `json:"version" db:"version"`
	OrderDate      time.Time        `json:"order_date" db:"order_date"`
	Status         SalesOrderStatus `json:"status" db:"status"`
	Currency       string           `json:"currency" db:"currency"`
	Subtotal       decimal.Decimal  `json:"subtotal" db:"subtotal"`
	DiscountAmount decimal.Decimal  `json:"discount_amount" db:"discount_amount"`
	TaxAmount      decimal.Decimal  `json:"tax_amount" db:"tax_amount"`
	TotalAmount    decimal.Decimal  `json:"total_amount" db:"total_amount"`
	CostAmount     decimal.Decimal  `json:"cost_amount" db:"cost_amount"`
	DeliveredAt    *time.Time       `json:"delivered_at,omitempty" db:"delivered_at"`
	Notes          *string          `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
	Lines          []SalesOrderLine `json:"lines,omitempty" db:"-"`
}

// SalesOrderLine is a snapshot copy of a quotation line.
type SalesOrderLine struct {
	ID             int64           `json:"id" db:"id"`
	SalesOrderID   int64           `json:"sales_order_id" db:"sales_order_id"`
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
