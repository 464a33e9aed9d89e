package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (*StockLot, error)
	ListLots(ctx context.Context, itemID int64) ([]StockLot, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
}

// TxRepository exposes the transactional operations the ledger needs:
// lot rows are locked in FIFO order so two concurrent consumes cannot
// allocate overlapping quantity.
type TxRepository interface {
	InsertLot(ctx context.Context, lot StockLot) (int64, error)
	ListOpenLotsForUpdate(ctx context.Context, itemID int64) ([]StockLot, error)
	GetLotForUpdate(ctx context.Context, lotID int64) (*StockLot, error)
	SetLotAvailable(ctx context.Context, lotID int64, available decimal.Decimal) error
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
	InsertReservation(ctx context.Context, res Reservation) (int64, error)
	ReservedQty(ctx context.Context, itemID int64) (decimal.Decimal, error)
	DeleteReservations(ctx context.Context, refType string, refID int64) error
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ItemID  int64
	LotID   int64
	Type    MovementType
	RefType string
	RefID   int64
	Limit   int
}

// Service is the FIFO stock ledger. Lots are consumed oldest first by
// received date, ties broken by lot creation order.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// Receive creates a lot and its RECEIPT movement.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (*StockLot, error) {
	if input.ItemID == 0 {
		return nil, shared.NewValidationError("item_id", "required")
	}
	if input.Quantity.Sign() <= 0 {
		return nil, shared.NewValidationError("quantity", "must be positive")
	}
	if input.UnitCost.Sign() < 0 {
		return nil, shared.NewValidationError("unit_cost", "must not be negative")
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	lot := StockLot{
		ItemID:       input.ItemID,
		ReceivedAt:   receivedAt,
		ReceivedQty:  input.Quantity,
		AvailableQty: input.Quantity,
		UnitCost:     input.UnitCost,
		TotalCost:    input.Quantity.Mul(input.UnitCost),
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return fmt.Errorf("insert lot: %w", err)
		}
		lot.ID = id

		movement := StockMovement{
			LotID:     id,
			ItemID:    input.ItemID,
			Type:      MovementReceipt,
			Quantity:  input.Quantity,
			UnitCost:  input.UnitCost,
			RefType:   input.RefType,
			RefID:     input.RefID,
			Reference: uuid.NewString(),
			Note:      input.Note,
			PostedAt:  receivedAt,
		}
		if _, err := tx.InsertMovement(ctx, movement); err != nil {
			return fmt.Errorf("insert receipt movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, input.ActorID, "inventory:receive", lot.ID, map[string]any{
		"item_id": input.ItemID,
		"qty":     input.Quantity.String(),
	})
	return &lot, nil
}

// Reserve earmarks quantity against available-to-promise. It creates
// no movement and bears no cost.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) error {
	if input.ItemID == 0 {
		return shared.NewValidationError("item_id", "required")
	}
	if input.Quantity.Sign() <= 0 {
		return shared.NewValidationError("quantity", "must be positive")
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lots, err := tx.ListOpenLotsForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}
		available := decimal.Zero
		for _, lot := range lots {
			available = available.Add(lot.AvailableQty)
		}
		reserved, err := tx.ReservedQty(ctx, input.ItemID)
		if err != nil {
			return err
		}
		promisable := available.Sub(reserved)
		if promisable.LessThan(input.Quantity) {
			return &shared.InsufficientStockError{
				ItemID:    input.ItemID,
				Requested: input.Quantity.String(),
				Available: promisable.String(),
			}
		}
		_, err = tx.InsertReservation(ctx, Reservation{
			ItemID:   input.ItemID,
			Quantity: input.Quantity,
			RefType:  input.RefType,
			RefID:    input.RefID,
		})
		return err
	})
}

// Release drops every reservation held by a document, e.g. when an
// order is cancelled or has been fulfilled.
func (s *Service) Release(ctx context.Context, refType string, refID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteReservations(ctx, refType, refID)
	})
}

// Consume allocates available lots oldest first until the requested
// quantity is satisfied, posting one SALE movement per touched lot.
// If the item's total availability falls short the whole operation
// fails and nothing is applied. Reservations held by the same
// document are released in the same transaction.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (Consumption, error) {
	if input.ItemID == 0 {
		return Consumption{}, shared.NewValidationError("item_id", "required")
	}
	if input.Quantity.Sign() <= 0 {
		return Consumption{}, shared.NewValidationError("quantity", "must be positive")
	}

	var result Consumption
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lots, err := tx.ListOpenLotsForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}

		available := decimal.Zero
		for _, lot := range lots {
			available = available.Add(lot.AvailableQty)
		}
		if available.LessThan(input.Quantity) {
			return &shared.InsufficientStockError{
				ItemID:    input.ItemID,
				Requested: input.Quantity.String(),
				Available: available.String(),
			}
		}

		now := time.Now().UTC()
		reference := uuid.NewString()
		remaining := input.Quantity
		totalCost := decimal.Zero
		var movements []StockMovement

		for _, lot := range lots {
			if remaining.Sign() == 0 {
				break
			}
			take := decimal.Min(remaining, lot.AvailableQty)
			if take.Sign() == 0 {
				continue
			}

			if err := tx.SetLotAvailable(ctx, lot.ID, lot.AvailableQty.Sub(take)); err != nil {
				return err
			}

			movement := StockMovement{
				LotID:     lot.ID,
				ItemID:    input.ItemID,
				Type:      MovementSale,
				Quantity:  take.Neg(),
				UnitCost:  lot.UnitCost,
				RefType:   input.RefType,
				RefID:     input.RefID,
				Reference: reference,
				Note:      input.Note,
				PostedAt:  now,
			}
			id, err := tx.InsertMovement(ctx, movement)
			if err != nil {
				return err
			}
			movement.ID = id
			movements = append(movements, movement)

			totalCost = totalCost.Add(take.Mul(lot.UnitCost))
			remaining = remaining.Sub(take)
		}

		if err := tx.DeleteReservations(ctx, input.RefType, input.RefID); err != nil {
			return err
		}

		result = Consumption{Movements: movements, TotalCost: totalCost}
		return nil
	})
	if err != nil {
		return Consumption{}, err
	}

	s.recordAudit(ctx, input.ActorID, "inventory:consume", input.RefID, map[string]any{
		"item_id": input.ItemID,
		"qty":     input.Quantity.String(),
		"cost":    result.TotalCost.String(),
	})
	return result, nil
}

// Adjust posts a correction movement against a known lot, bypassing
// FIFO ordering. The lot's availability may never go negative nor
// exceed its received quantity.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (*StockMovement, error) {
	if input.LotID == 0 {
		return nil, shared.NewValidationError("lot_id", "required")
	}
	if input.Quantity.Sign() == 0 {
		return nil, shared.NewValidationError("quantity", "must be non zero")
	}

	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, input.LotID)
		if err != nil {
			return err
		}

		newAvailable := lot.AvailableQty.Add(input.Quantity)
		if newAvailable.Sign() < 0 {
			return &shared.InsufficientStockError{
				ItemID:    lot.ItemID,
				Requested: input.Quantity.Abs().String(),
				Available: lot.AvailableQty.String(),
			}
		}
		if newAvailable.GreaterThan(lot.ReceivedQty) {
			return shared.NewValidationError("quantity", "adjustment exceeds lot received quantity")
		}

		if err := tx.SetLotAvailable(ctx, lot.ID, newAvailable); err != nil {
			return err
		}

		movement = StockMovement{
			LotID:     lot.ID,
			ItemID:    lot.ItemID,
			Type:      MovementAdjustment,
			Quantity:  input.Quantity,
			UnitCost:  lot.UnitCost,
			RefType:   input.RefType,
			RefID:     input.RefID,
			Reference: uuid.NewString(),
			Note:      input.Note,
			PostedAt:  time.Now().UTC(),
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, input.ActorID, "inventory:adjust", input.LotID, map[string]any{
		"qty":  input.Quantity.String(),
		"note": input.Note,
	})
	return &movement, nil
}

// AvailableToPromise returns on-hand quantity minus open reservations.
func (s *Service) AvailableToPromise(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	if itemID == 0 {
		return decimal.Zero, shared.NewValidationError("item_id", "required")
	}
	var atp decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lots, err := tx.ListOpenLotsForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		available := decimal.Zero
		for _, lot := range lots {
			available = available.Add(lot.AvailableQty)
		}
		reserved, err := tx.ReservedQty(ctx, itemID)
		if err != nil {
			return err
		}
		atp = available.Sub(reserved)
		return nil
	})
	return atp, err
}

// Lots lists every lot for an item in FIFO order.
func (s *Service) Lots(ctx context.Context, itemID int64) ([]StockLot, error) {
	return s.repo.ListLots(ctx, itemID)
}

// Movements lists ledger entries matching the filter.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
