package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository defines data access for quotations. UpdateStatus is a
// compare-and-swap conditioned on both the expected status and the
// version stamp read by the caller.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	Create(ctx context.Context, quotation Quotation) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	UpdateStatus(ctx context.Context, id int64, from, to QuotationStatus, version int64) error
	InsertLine(ctx context.Context, line QuotationLine) (int64, error)
	DeleteLines(ctx context.Context, quotationID int64) error
	FindAcceptedByCase(ctx context.Context, caseID int64) (*Quotation, error)
	MaxRevision(ctx context.Context, caseID int64) (int, error)
	List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error)
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

const quotationColumns = `id, doc_number, sales_case_id, customer_id, revision, version,
	quote_date, valid_until, status, currency, subtotal, discount_amount, tax_amount,
	total_amount, notes, created_at, updated_at`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(
		&q.ID, &q.DocNumber, &q.SalesCaseID, &q.CustomerID, &q.Revision, &q.Version,
		&q.QuoteDate, &q.ValidUntil, &q.Status, &q.Currency, &q.Subtotal, &q.DiscountAmount,
		&q.TaxAmount, &q.TotalAmount, &q.Notes, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx,
		`SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.getLines(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Lines = lines
	return q, nil
}

func (r *repository) getLines(ctx context.Context, quotationID int64) ([]QuotationLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, line_order, is_header, item_id, description,
			quantity, unit_price, discount_percent, discount_amount,
			tax_percent, tax_amount, line_total
		FROM quotation_lines WHERE quotation_id = $1 ORDER BY line_order`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []QuotationLine
	for rows.Next() {
		var l QuotationLine
		if err := rows.Scan(
			&l.ID, &l.QuotationID, &l.LineOrder, &l.IsHeader, &l.ItemID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.DiscountAmount,
			&l.TaxPct, &l.TaxAmount, &l.LineTotal,
		); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotations (
			doc_number, sales_case_id, customer_id, revision, version, quote_date,
			valid_until, status, currency, subtotal, discount_amount, tax_amount,
			total_amount, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id`,
		q.DocNumber, q.SalesCaseID, q.CustomerID, q.Revision, q.QuoteDate,
		q.ValidUntil, q.Status, q.Currency, q.Subtotal, q.DiscountAmount,
		q.TaxAmount, q.TotalAmount, q.Notes,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(updates)+1)
	args := make([]interface{}, 0, len(updates)+1)
	argPos := 1
	for col, val := range updates {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, argPos))
		args = append(args, val)
		argPos++
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE quotations SET %s WHERE id = $%d`,
		strings.Join(setClauses, ", "), argPos)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to QuotationStatus, version int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND version = $4`,
		to, id, from, version)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return &shared.ConcurrentModificationError{Entity: "quotation", ID: id}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.ConcurrentModificationError{Entity: "quotation", ID: id}
	}
	return nil
}

func (r *repository) InsertLine(ctx context.Context, line QuotationLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotation_lines (
			quotation_id, line_order, is_header, item_id, description, quantity,
			unit_price, discount_percent, discount_amount, tax_percent, tax_amount, line_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		line.QuotationID, line.LineOrder, line.IsHeader, line.ItemID, line.Description,
		line.Quantity, line.UnitPrice, line.DiscountPct, line.DiscountAmount,
		line.TaxPct, line.TaxAmount, line.LineTotal,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) DeleteLines(ctx context.Context, quotationID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM quotation_lines WHERE quotation_id = $1`, quotationID)
	return err
}

func (r *repository) FindAcceptedByCase(ctx context.Context, caseID int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx,
		`SELECT `+quotationColumns+` FROM quotations WHERE sales_case_id = $1 AND status = $2`,
		caseID, QuotationStatusAccepted))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return q, err
}

func (r *repository) MaxRevision(ctx context.Context, caseID int64) (int, error) {
	var revision int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(revision), 0) FROM quotations WHERE sales_case_id = $1`,
		caseID).Scan(&revision)
	return revision, err
}

func (r *repository) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
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
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM quotations%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Quotation
	for rows.Next() {
		var q Quotation
		if err := rows.Scan(
			&q.ID, &q.DocNumber, &q.SalesCaseID, &q.CustomerID, &q.Revision, &q.Version,
			&q.QuoteDate, &q.ValidUntil, &q.Status, &q.Currency, &q.Subtotal, &q.DiscountAmount,
			&q.TaxAmount, &q.TotalAmount, &q.Notes, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, q)
	}
	return result, total, rows.Err()
}
