package ar

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository defines data access for AR invoices and payments.
// GetForUpdate locks the invoice row so concurrent payments against
// the same invoice serialize.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetForUpdate(ctx context.Context, id int64) (*Invoice, error)
	FindByOrder(ctx context.Context, orderID int64) (*Invoice, error)
	Create(ctx context.Context, invoice Invoice) (int64, error)
	InsertLine(ctx context.Context, line InvoiceLine) (int64, error)
	InsertPayment(ctx context.Context, payment Payment) (int64, error)
	SetBalance(ctx context.Context, id int64, paid, balance decimal.Decimal, status InvoiceStatus, version int64) error
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	ListOpen(ctx context.Context) ([]Invoice, error)
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

const invoiceColumns = `id, doc_number, sales_case_id, sales_order_id, customer_id, version,
	invoice_date, due_at, status, currency, subtotal, discount_amount, tax_amount,
	total_amount, paid_amount, balance_amount, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.DocNumber, &inv.SalesCaseID, &inv.SalesOrderID, &inv.CustomerID, &inv.Version,
		&inv.InvoiceDate, &inv.DueAt, &inv.Status, &inv.Currency, &inv.Subtotal, &inv.DiscountAmount,
		&inv.TaxAmount, &inv.TotalAmount, &inv.PaidAmount, &inv.BalanceAmount, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM ar_invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, line_order, is_header, item_id, description,
			quantity, unit_price, discount_percent, discount_amount,
			tax_percent, tax_amount, line_total
		FROM ar_invoice_lines WHERE invoice_id = $1 ORDER BY line_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(
			&l.ID, &l.InvoiceID, &l.LineOrder, &l.IsHeader, &l.ItemID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.DiscountAmount,
			&l.TaxPct, &l.TaxAmount, &l.LineTotal,
		); err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM ar_invoices WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) FindByOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM ar_invoices WHERE sales_order_id = $1`, orderID))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return inv, err
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO ar_invoices (
			doc_number, sales_case_id, sales_order_id, customer_id, version, invoice_date,
			due_at, status, currency, subtotal, discount_amount, tax_amount,
			total_amount, paid_amount, balance_amount, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id`,
		inv.DocNumber, inv.SalesCaseID, inv.SalesOrderID, inv.CustomerID, inv.InvoiceDate,
		inv.DueAt, inv.Status, inv.Currency, inv.Subtotal, inv.DiscountAmount, inv.TaxAmount,
		inv.TotalAmount, inv.PaidAmount, inv.BalanceAmount,
	).Scan(&id)
	if err != nil {
		// ar_invoices.sales_order_id is unique: a lost conversion race
		// surfaces as a retryable conflict.
		if db.IsUniqueViolation(err) {
			return 0, &shared.ConcurrentModificationError{Entity: "sales_order", ID: inv.SalesOrderID}
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertLine(ctx context.Context, line InvoiceLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO ar_invoice_lines (
			invoice_id, line_order, is_header, item_id, description, quantity,
			unit_price, discount_percent, discount_amount, tax_percent, tax_amount, line_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		line.InvoiceID, line.LineOrder, line.IsHeader, line.ItemID, line.Description,
		line.Quantity, line.UnitPrice, line.DiscountPct, line.DiscountAmount,
		line.TaxPct, line.TaxAmount, line.LineTotal,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO ar_payments (invoice_id, amount, paid_at, method, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		p.InvoiceID, p.Amount, p.PaidAt, p.Method, p.Reference,
	).Scan(&id)
	return id, err
}

func (r *repository) SetBalance(ctx context.Context, id int64, paid, balance decimal.Decimal, status InvoiceStatus, version int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE ar_invoices
		SET paid_amount = $1, balance_amount = $2, status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5`,
		paid, balance, status, id, version)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return &shared.ConcurrentModificationError{Entity: "invoice", ID: id}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.ConcurrentModificationError{Entity: "invoice", ID: id}
	}
	return nil
}

func (r *repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, amount, paid_at, method, reference, created_at
		FROM ar_payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaidAt, &p.Method, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) ListOpen(ctx context.Context) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM ar_invoices WHERE balance_amount > 0 ORDER BY due_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.DocNumber, &inv.SalesCaseID, &inv.SalesOrderID, &inv.CustomerID, &inv.Version,
			&inv.InvoiceDate, &inv.DueAt, &inv.Status, &inv.Currency, &inv.Subtotal, &inv.DiscountAmount,
			&inv.TaxAmount, &inv.TotalAmount, &inv.PaidAmount, &inv.BalanceAmount, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
