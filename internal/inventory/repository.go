package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
// Lot rows touched by the callback stay locked until commit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const lotColumns = `id, item_id, received_at, received_qty, available_qty, unit_cost, total_cost, created_at`

func scanLot(row pgx.Row) (*StockLot, error) {
	var lot StockLot
	err := row.Scan(
		&lot.ID, &lot.ItemID, &lot.ReceivedAt, &lot.ReceivedQty,
		&lot.AvailableQty, &lot.UnitCost, &lot.TotalCost, &lot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// GetLot returns one lot.
func (r *Repository) GetLot(ctx context.Context, id int64) (*StockLot, error) {
	return scanLot(r.pool.QueryRow(ctx,
		`SELECT `+lotColumns+` FROM stock_lots WHERE id = $1`, id))
}

// ListLots lists an item's lots in FIFO order.
func (r *Repository) ListLots(ctx context.Context, itemID int64) ([]StockLot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM stock_lots WHERE item_id = $1 ORDER BY received_at, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// ListMovements lists ledger entries matching the filter, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	add := func(cond string, val interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, val)
		argPos++
	}
	if filter.ItemID != 0 {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.LotID != 0 {
		add("lot_id = $%d", filter.LotID)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.RefType != "" {
		add("ref_type = $%d", filter.RefType)
	}
	if filter.RefID != 0 {
		add("ref_id = $%d", filter.RefID)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, lot_id, item_id, type, quantity, unit_cost, ref_type, ref_id, reference, note, posted_at
		FROM stock_movements%s ORDER BY posted_at DESC, id DESC LIMIT $%d`, where, argPos), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(
			&m.ID, &m.LotID, &m.ItemID, &m.Type, &m.Quantity, &m.UnitCost,
			&m.RefType, &m.RefID, &m.Reference, &m.Note, &m.PostedAt,
		); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) InsertLot(ctx context.Context, lot StockLot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_lots (item_id, received_at, received_qty, available_qty, unit_cost, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id`,
		lot.ItemID, lot.ReceivedAt, lot.ReceivedQty, lot.AvailableQty, lot.UnitCost, lot.TotalCost,
	).Scan(&id)
	return id, err
}

// ListOpenLotsForUpdate locks the item's open lots in FIFO order:
// ascending received date, ties broken by lot id. Locking only the
// candidate rows keeps concurrent consumes of other items unblocked.
func (r *txRepo) ListOpenLotsForUpdate(ctx context.Context, itemID int64) ([]StockLot, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+lotColumns+`
		FROM stock_lots
		WHERE item_id = $1 AND available_qty > 0
		ORDER BY received_at, id
		FOR UPDATE`, itemID)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return nil, &shared.ConcurrentModificationError{Entity: "stock_lot", ID: itemID}
		}
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

func (r *txRepo) GetLotForUpdate(ctx context.Context, lotID int64) (*StockLot, error) {
	lot, err := scanLot(r.tx.QueryRow(ctx,
		`SELECT `+lotColumns+` FROM stock_lots WHERE id = $1 FOR UPDATE`, lotID))
	if err != nil {
		if db.IsSerializationFailure(err) {
			return nil, &shared.ConcurrentModificationError{Entity: "stock_lot", ID: lotID}
		}
		return nil, err
	}
	return lot, nil
}

func (r *txRepo) SetLotAvailable(ctx context.Context, lotID int64, available decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE stock_lots SET available_qty = $1 WHERE id = $2`, available, lotID)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return &shared.ConcurrentModificationError{Entity: "stock_lot", ID: lotID}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (lot_id, item_id, type, quantity, unit_cost, ref_type, ref_id, reference, note, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		m.LotID, m.ItemID, m.Type, m.Quantity, m.UnitCost,
		m.RefType, m.RefID, m.Reference, m.Note, m.PostedAt,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_reservations (item_id, quantity, ref_type, ref_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id`,
		res.ItemID, res.Quantity, res.RefType, res.RefID,
	).Scan(&id)
	return id, err
}

func (r *txRepo) ReservedQty(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var reserved decimal.Decimal
	err := r.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations WHERE item_id = $1`,
		itemID).Scan(&reserved)
	return reserved, err
}

func (r *txRepo) DeleteReservations(ctx context.Context, refType string, refID int64) error {
	_, err := r.tx.Exec(ctx,
		`DELETE FROM stock_reservations WHERE ref_type = $1 AND ref_id = $2`, refType, refID)
	return err
}

func collectLots(rows pgx.Rows) ([]StockLot, error) {
	var lots []StockLot
	for rows.Next() {
		var lot StockLot
		if err := rows.Scan(
			&lot.ID, &lot.ItemID, &lot.ReceivedAt, &lot.ReceivedQty,
			&lot.AvailableQty, &lot.UnitCost, &lot.TotalCost, &lot.CreatedAt,
		); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}
