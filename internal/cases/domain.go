package cases

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SalesCase aggregates one customer's opportunity: its quotations,
// the orders and invoices spawned from the accepted quotation, and
// its expenses. Cost and margin are never stored as authoritative;
// they are recomputed by the profitability aggregation on every read.
type SalesCase struct {
	ID             int64           `json:"id" db:"id"`
	CaseNumber     string          `json:"case_number" db:"case_number"`
	CustomerID     int64           `json:"customer_id" db:"customer_id"`
	Title          string          `json:"title" db:"title"`
	EstimatedValue decimal.Decimal `json:"estimated_value" db:"estimated_value"`
	ActualValue    decimal.Decimal `json:"actual_value" db:"actual_value"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// CaseExpense is a cost booked against a sales case. Approval is
// decided by an external workflow; only approved expenses, or ones
// not requiring approval, count toward profitability.
type CaseExpense struct {
	ID             int64                 `json:"id" db:"id"`
	SalesCaseID    int64                 `json:"sales_case_id" db:"sales_case_id"`
	Description    string                `json:"description" db:"description"`
	Category       string                `json:"category" db:"category"`
	Amount         decimal.Decimal       `json:"amount" db:"amount"`
	NeedsApproval  bool                  `json:"needs_approval" db:"needs_approval"`
	ApprovalStatus shared.ApprovalStatus `json:"approval_status" db:"approval_status"`
	CreatedAt      time.Time             `json:"created_at" db:"created_at"`
}

// Countable reports whether the expense participates in profitability.
func (e *CaseExpense) Countable() bool {
	return !e.NeedsApproval || e.ApprovalStatus == shared.ApprovalApproved
}

// Profitability is the derived margin picture for one sales case.
// Revenue is recognized at invoice issuance, not at payment; cost is
// the FIFO basis of every consumption movement under the case plus
// countable expenses.
type Profitability struct {
	SalesCaseID      int64           `json:"sales_case_id"`
	QuotationCount   int             `json:"quotation_count"`
	OrderCount       int             `json:"order_count"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	FIFOCost         decimal.Decimal `json:"fifo_cost"`
	ApprovedExpenses decimal.Decimal `json:"approved_expenses"`
	Revenue          decimal.Decimal `json:"revenue"`
	ActualProfit     decimal.Decimal `json:"actual_profit"`
	ProfitMargin     decimal.Decimal `json:"profit_margin"`
	ComputedAt       time.Time       `json:"computed_at"`
}
