package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates stock ledger entry types.
type MovementType string

const (
	// MovementReceipt records an inbound lot creation.
	MovementReceipt MovementType = "RECEIPT"
	// MovementSale records FIFO consumption for a sales document.
	MovementSale MovementType = "SALE"
	// MovementAdjustment records a correction or write-off against a
	// specific lot, bypassing FIFO ordering.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementTransfer tags entries posted by the external warehouse
	// transfer flow. The engine itself never originates them.
	MovementTransfer MovementType = "TRANSFER"
)

// StockLot is one inventory receipt for one item. AvailableQty is a
// cached value equal to the sum of the lot's movement deltas; the
// movements are the source of truth.
type StockLot struct {
	ID           int64           `json:"id" db:"id"`
	ItemID       int64           `json:"item_id" db:"item_id"`
	ReceivedAt   time.Time       `json:"received_at" db:"received_at"`
	ReceivedQty  decimal.Decimal `json:"received_qty" db:"received_qty"`
	AvailableQty decimal.Decimal `json:"available_qty" db:"available_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	TotalCost    decimal.Decimal `json:"total_cost" db:"total_cost"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// StockMovement is an immutable ledger entry: one signed quantity
// delta against one lot, tagged with the triggering document.
type StockMovement struct {
	ID        int64           `json:"id" db:"id"`
	LotID     int64           `json:"lot_id" db:"lot_id"`
	ItemID    int64           `json:"item_id" db:"item_id"`
	Type      MovementType    `json:"type" db:"type"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	RefType   string          `json:"ref_type" db:"ref_type"`
	RefID     int64           `json:"ref_id" db:"ref_id"`
	Reference string          `json:"reference" db:"reference"`
	Note      string          `json:"note" db:"note"`
	PostedAt  time.Time       `json:"posted_at" db:"posted_at"`
}

// Reservation earmarks quantity for an unfulfilled order. It reduces
// available-to-promise without creating a cost-bearing movement.
type Reservation struct {
	ID        int64           `json:"id" db:"id"`
	ItemID    int64           `json:"item_id" db:"item_id"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	RefType   string          `json:"ref_type" db:"ref_type"`
	RefID     int64           `json:"ref_id" db:"ref_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ReceiveInput creates a new lot from a purchase, opening balance, or
// production receipt.
type ReceiveInput struct {
	ItemID     int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	ReceivedAt time.Time
	RefType    string
	RefID      int64
	Note       string
	ActorID    int64
}

// ConsumeInput requests FIFO consumption for a document.
type ConsumeInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	RefType  string
	RefID    int64
	Note     string
	ActorID  int64
}

// ReserveInput earmarks quantity for a document.
type ReserveInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	RefType  string
	RefID    int64
}

// AdjustInput posts a correction against one known lot. Quantity is a
// signed delta; negative writes stock off, positive restores it up to
// the lot's received quantity.
type AdjustInput struct {
	LotID    int64
	Quantity decimal.Decimal
	RefType  string
	RefID    int64
	Note     string
	ActorID  int64
}

// Consumption reports the outcome of one FIFO consume call: one
// movement per touched lot and the weighted cost basis
// Σ movement qty × lot unit cost.
type Consumption struct {
	Movements []StockMovement
	TotalCost decimal.Decimal
}
