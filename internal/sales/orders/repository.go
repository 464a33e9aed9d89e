package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository defines data access for sales orders.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	Create(ctx context.Context, order SalesOrder) (int64, error)
	InsertLine(ctx context.Context, line SalesOrderLine) (int64, error)
	UpdateStatus(ctx context.Context, id int64, from, to SalesOrderStatus, version int64) error
	SetDelivered(ctx context.Context, id int64, cost decimal.Decimal, at time.Time) error
	List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const orderColumns = `id, doc_number, sales_case_id, quotation_id, customer_id, version,
	order_date, status, currency, subtotal, discount_amount, tax_amount, total_amount,
	cost_amount, delivered_at, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(
		&o.ID, &o.DocNumber, &o.SalesCaseID, &o.QuotationID, &o.CustomerID, &o.Version,
		&o.OrderDate, &o.Status, &o.Currency, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount,
		&o.TotalAmount, &o.CostAmount, &o.DeliveredAt, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, sales_order_id, line_order, is_header, item_id, description,
			quantity, unit_price, discount_percent, discount_amount,
			tax_percent, tax_amount, line_total
		FROM sales_order_lines WHERE sales_order_id = $1 ORDER BY line_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l SalesOrderLine
		if err := rows.Scan(
			&l.ID, &l.SalesOrderID, &l.LineOrder, &l.IsHeader, &l.ItemID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.DiscountAmount,
			&l.TaxPct, &l.TaxAmount, &l.LineTotal,
		); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (r *repository) Create(ctx context.Context, o SalesOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_orders (
			doc_number, sales_case_id, quotation_id, customer_id, version, order_date,
			status, currency, subtotal, discount_amount, tax_amount, total_amount,
			cost_amount, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id`,
		o.DocNumber, o.SalesCaseID, o.QuotationID, o.CustomerID, o.OrderDate,
		o.Status, o.Currency, o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount,
		o.CostAmount, o.Notes,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertLine(ctx context.Context, line SalesOrderLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_order_lines (
			sales_order_id, line_order, is_header, item_id, description, quantity,
			unit_price, discount_percent, discount_amount, tax_percent, tax_amount, line_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		line.SalesOrderID, line.LineOrder, line.IsHeader, line.ItemID, line.Description,
		line.Quantity, line.UnitPrice, line.DiscountPct, line.DiscountAmount,
		line.TaxPct, line.TaxAmount, line.LineTotal,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to SalesOrderStatus, version int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_orders
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND version = $4`,
		to, id, from, version)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return &shared.ConcurrentModificationError{Entity: "sales_order", ID: id}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.ConcurrentModificationError{Entity: "sales_order", ID: id}
	}
	return nil
}

func (r *repository) SetDelivered(ctx context.Context, id int64, cost decimal.Decimal, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_orders SET cost_amount = $1, delivered_at = $2, updated_at = NOW()
		WHERE id = $3`,
		cost, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.SalesCaseID != nil {
		conditions = append(conditions, fmt.Sprintf("sales_case_id = $%d", argPos))
		args = append(args, *req.SalesCaseID)
		argPos++
	}
	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM sales_orders%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []SalesOrder
	for rows.Next() {
		var o SalesOrder
		if err := rows.Scan(
			&o.ID, &o.DocNumber, &o.SalesCaseID, &o.QuotationID, &o.CustomerID, &o.Version,
			&o.OrderDate, &o.Status, &o.Currency, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount,
			&o.TotalAmount, &o.CostAmount, &o.DeliveredAt, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, o)
	}
	return result, total, rows.Err()
}
