package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/sales/quotations"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RefType tags stock reservations and movements made for sales orders.
const RefType = "SALES_ORDER"

// StockLedger is the slice of the inventory service orders depend on.
type StockLedger interface {
	Reserve(ctx context.Context, input inventory.ReserveInput) error
	Release(ctx context.Context, refType string, refID int64) error
	Consume(ctx context.Context, input inventory.ConsumeInput) (inventory.Consumption, error)
}

// Service owns the sales order lifecycle: PENDING → APPROVED →
// DELIVERED. Approval earmarks stock; delivery consumes it FIFO and
// attaches the cost basis to the order.
type Service struct {
	repo      Repository
	quoteRepo quotations.Repository
	stock     StockLedger
	numbers   shared.NumberSource
}

// NewService builds Service.
func NewService(repo Repository, quoteRepo quotations.Repository, stock StockLedger, numbers shared.NumberSource) *Service {
	return &Service{
		repo:      repo,
		quoteRepo: quoteRepo,
		stock:     stock,
		numbers:   numbers,
	}
}

// CreateFromQuotation converts an ACCEPTED quotation into a PENDING
// sales order, snapshotting every line.
func (s *Service) CreateFromQuotation(ctx context.Context, quotationID int64) (*SalesOrder, error) {
	quote, err := s.quoteRepo.Get(ctx, quotationID)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if quote.Status != quotations.QuotationStatusAccepted {
		return nil, &shared.InvalidStateError{
			Entity:   "quotation",
			ID:       quotationID,
			Current:  string(quote.EffectiveStatus(time.Now())),
			Required: string(quotations.QuotationStatusAccepted),
		}
	}

	docNumber, err := s.numbers.Next(ctx, "sales_order")
	if err != nil {
		return nil, fmt.Errorf("generate doc number: %w", err)
	}

	order := SalesOrder{
		DocNumber:      docNumber,
		SalesCaseID:    quote.SalesCaseID,
		QuotationID:    quote.ID,
		CustomerID:     quote.CustomerID,
		OrderDate:      time.Now().UTC(),
		Status:         SalesOrderStatusPending,
		Currency:       quote.Currency,
		Subtotal:       quote.Subtotal,
		DiscountAmount: quote.DiscountAmount,
		TaxAmount:      quote.TaxAmount,
		TotalAmount:    quote.TotalAmount,
		CostAmount:     decimal.Zero,
		Notes:          quote.Notes,
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		orderID = id

		for _, ql := range quote.Lines {
			line := SalesOrderLine{
				SalesOrderID:   orderID,
				LineOrder:      ql.LineOrder,
				IsHeader:       ql.IsHeader,
				ItemID:         ql.ItemID,
				Description:    ql.Description,
				Quantity:       ql.Quantity,
				UnitPrice:      ql.UnitPrice,
				DiscountPct:    ql.DiscountPct,
				DiscountAmount: ql.DiscountAmount,
				TaxPct:         ql.TaxPct,
				TaxAmount:      ql.TaxAmount,
				LineTotal:      ql.LineTotal,
			}
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("snapshot order line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, orderID)
}

// Approve transitions PENDING → APPROVED and reserves stock for every
// item line, all in one transaction.
func (s *Service) Approve(ctx context.Context, id int64) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing.Status != SalesOrderStatusPending {
		return nil, &shared.InvalidStateError{
			Entity:   "sales_order",
			ID:       id,
			Current:  string(existing.Status),
			Required: string(SalesOrderStatusPending),
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateStatus(ctx, id, SalesOrderStatusPending, SalesOrderStatusApproved, existing.Version); err != nil {
			return err
		}
		for _, line := range existing.Lines {
			if line.IsHeader || line.ItemID == nil || line.Quantity.Sign() == 0 {
				continue
			}
			err := s.stock.Reserve(ctx, inventory.ReserveInput{
				ItemID:   *line.ItemID,
				Quantity: line.Quantity,
				RefType:  RefType,
				RefID:    id,
			})
			if err != nil {
				return fmt.Errorf("reserve item %d: %w", *line.ItemID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, id)
}

// Deliver transitions APPROVED → DELIVERED, consumes FIFO stock for
// every item line, and attaches the weighted cost basis to the order.
// Status change, consumption, and cost write commit together or not
// at all.
func (s *Service) Deliver(ctx context.Context, id int64) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing.Status != SalesOrderStatusApproved {
		return nil, &shared.InvalidStateError{
			Entity:   "sales_order",
			ID:       id,
			Current:  string(existing.Status),
			Required: string(SalesOrderStatusApproved),
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateStatus(ctx, id, SalesOrderStatusApproved, SalesOrderStatusDelivered, existing.Version); err != nil {
			return err
		}

		cost := decimal.Zero
		for _, line := range existing.Lines {
			if line.IsHeader || line.ItemID == nil || line.Quantity.Sign() == 0 {
				continue
			}
			consumption, err := s.stock.Consume(ctx, inventory.ConsumeInput{
				ItemID:   *line.ItemID,
				Quantity: line.Quantity,
				RefType:  RefType,
				RefID:    id,
				Note:     existing.DocNumber,
			})
			if err != nil {
				return fmt.Errorf("consume item %d: %w", *line.ItemID, err)
			}
			cost = cost.Add(consumption.TotalCost)
		}

		return repo.SetDelivered(ctx, id, cost, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, id)
}

// Cancel voids a PENDING or APPROVED order. Reservations taken at
// approval are released in the same transaction. Delivered orders
// cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id int64) (*SalesOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing.Status != SalesOrderStatusPending && existing.Status != SalesOrderStatusApproved {
		return nil, &shared.InvalidStateError{
			Entity:   "sales_order",
			ID:       id,
			Current:  string(existing.Status),
			Required: string(SalesOrderStatusPending),
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateStatus(ctx, id, existing.Status, SalesOrderStatusCancelled, existing.Version); err != nil {
			return err
		}
		if existing.Status == SalesOrderStatusApproved {
			if err := s.stock.Release(ctx, RefType, id); err != nil {
				return fmt.Errorf("release reservations: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, id)
}

// Get returns one sales order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns sales orders matching the filter.
func (s *Service) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	return s.repo.List(ctx, req)
}
