package ar

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/sales/orders"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// OrderSource is the slice of the sales order repository AR reads.
type OrderSource interface {
	Get(ctx context.Context, id int64) (*orders.SalesOrder, error)
}

// Service handles invoice issuance and payment allocation. Payments
// against one invoice are applied as a strict sequence: the balance
// check always runs against the post-previous-payment balance under a
// row lock.
type Service struct {
	repo      Repository
	orderRepo OrderSource
	numbers   shared.NumberSource
	audit     shared.AuditRecorder
}

// NewService builds Service. audit may be nil.
func NewService(repo Repository, orderRepo OrderSource, numbers shared.NumberSource, audit shared.AuditRecorder) *Service {
	return &Service{
		repo:      repo,
		orderRepo: orderRepo,
		numbers:   numbers,
		audit:     audit,
	}
}

// CreateFromOrder issues an invoice for an APPROVED or DELIVERED
// sales order, snapshotting its lines. An order converts to at most
// one invoice; a lost race on conversion surfaces as a retryable
// conflict.
func (s *Service) CreateFromOrder(ctx context.Context, orderID int64, dueAt time.Time) (*Invoice, error) {
	order, err := s.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status != orders.SalesOrderStatusApproved && order.Status != orders.SalesOrderStatusDelivered {
		return nil, &shared.InvalidStateError{
			Entity:   "sales_order",
			ID:       orderID,
			Current:  string(order.Status),
			Required: string(orders.SalesOrderStatusApproved) + " or " + string(orders.SalesOrderStatusDelivered),
		}
	}

	existing, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &shared.InvalidStateError{
			Entity:   "sales_order",
			ID:       orderID,
			Current:  "already invoiced",
			Required: "an order converts to exactly one invoice",
		}
	}

	docNumber, err := s.numbers.Next(ctx, "invoice")
	if err != nil {
		return nil, fmt.Errorf("generate doc number: %w", err)
	}

	invoice := Invoice{
		DocNumber:      docNumber,
		SalesCaseID:    order.SalesCaseID,
		SalesOrderID:   order.ID,
		CustomerID:     order.CustomerID,
		InvoiceDate:    time.Now().UTC(),
		DueAt:          dueAt,
		Status:         InvoiceStatusSent,
		Currency:       order.Currency,
		Subtotal:       order.Subtotal,
		DiscountAmount: order.DiscountAmount,
		TaxAmount:      order.TaxAmount,
		TotalAmount:    order.TotalAmount,
		PaidAmount:     decimal.Zero,
		BalanceAmount:  order.TotalAmount,
	}

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, invoice)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id

		for _, ol := range order.Lines {
			line := InvoiceLine{
				InvoiceID:      invoiceID,
				LineOrder:      ol.LineOrder,
				IsHeader:       ol.IsHeader,
				ItemID:         ol.ItemID,
				Description:    ol.Description,
				Quantity:       ol.Quantity,
				UnitPrice:      ol.UnitPrice,
				DiscountPct:    ol.DiscountPct,
				DiscountAmount: ol.DiscountAmount,
				TaxPct:         ol.TaxPct,
				TaxAmount:      ol.TaxAmount,
				LineTotal:      ol.LineTotal,
			}
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("snapshot invoice line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, invoiceID)
}

// ApplyPaymentInput describes one settlement event.
type ApplyPaymentInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	PaidAt    time.Time
	Method    string
	Reference string
	ActorID   int64
}

// ApplyPayment records an immutable payment and rolls it into the
// invoice balance. Overpayment is rejected, never clamped: the
// invoice is left untouched and the excess must go through a credit
// mechanism outside this engine.
func (s *Service) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*Payment, error) {
	if input.Amount.Sign() <= 0 {
		return nil, shared.NewValidationError("amount", "must be positive")
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		invoice, err := repo.GetForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return fmt.Errorf("get invoice: %w", err)
		}
		if input.Amount.GreaterThan(invoice.BalanceAmount) {
			return shared.NewValidationError("amount",
				fmt.Sprintf("exceeds open balance %s", invoice.BalanceAmount.String()))
		}

		payment = Payment{
			InvoiceID: invoice.ID,
			Amount:    input.Amount,
			PaidAt:    paidAt,
			Method:    input.Method,
			Reference: input.Reference,
		}
		id, err := repo.InsertPayment(ctx, payment)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		payment.ID = id

		newPaid := invoice.PaidAmount.Add(input.Amount)
		newBalance := invoice.TotalAmount.Sub(newPaid)
		status := InvoiceStatusPartial
		if newBalance.Sign() == 0 {
			status = InvoiceStatusPaid
		}

		return repo.SetBalance(ctx, invoice.ID, newPaid, newBalance, status, invoice.Version)
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "ar:payment",
			Entity:   "invoice",
			EntityID: fmt.Sprintf("%d", input.InvoiceID),
			Meta: map[string]any{
				"amount":    input.Amount.String(),
				"method":    input.Method,
				"reference": input.Reference,
			},
		})
	}
	return &payment, nil
}

// Get returns one invoice with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// ListPayments returns an invoice's payments in application order.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// Aging buckets every open balance by days past due as of asOf. The
// report is recomputed per query and never cached.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return AgingReport{}, err
	}

	report := AgingReport{
		AsOf:     asOf,
		Current:  decimal.Zero,
		Days30:   decimal.Zero,
		Days60:   decimal.Zero,
		Days90:   decimal.Zero,
		Days90Up: decimal.Zero,
	}
	for _, inv := range open {
		switch inv.Age(asOf) {
		case AgingCurrent:
			report.Current = report.Current.Add(inv.BalanceAmount)
		case Aging1To30:
			report.Days30 = report.Days30.Add(inv.BalanceAmount)
		case Aging31To60:
			report.Days60 = report.Days60.Add(inv.BalanceAmount)
		case Aging61To90:
			report.Days90 = report.Days90.Add(inv.BalanceAmount)
		default:
			report.Days90Up = report.Days90Up.Add(inv.BalanceAmount)
		}
	}
	return report, nil
}
