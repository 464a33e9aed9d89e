package cases

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const caseColumns = `id, case_number, customer_id, title, estimated_value, actual_value, created_at, updated_at`

func (r *repository) GetCase(ctx context.Context, id int64) (*SalesCase, error) {
	var c SalesCase
	err := r.pool.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM sales_cases WHERE id = $1`, id,
	).Scan(&c.ID, &c.CaseNumber, &c.CustomerID, &c.Title,
		&c.EstimatedValue, &c.ActualValue, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) CreateCase(ctx context.Context, c SalesCase) (int64, error) {
	var id int64
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sales_cases (case_number, customer_id, title, estimated_value, actual_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`,
		c.CaseNumber, c.CustomerID, c.Title, c.EstimatedValue, c.ActualValue, now,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertExpense(ctx context.Context, e CaseExpense) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO case_expenses (sales_case_id, description, category, amount, needs_approval, approval_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.SalesCaseID, e.Description, e.Category, e.Amount,
		e.NeedsApproval, e.ApprovalStatus, time.Now().UTC(),
	).Scan(&id)
	return id, err
}

func (r *repository) SetExpenseStatus(ctx context.Context, expenseID int64, status shared.ApprovalStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE case_expenses SET approval_status = $1 WHERE id = $2`,
		status, expenseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListExpenses(ctx context.Context, caseID int64) ([]CaseExpense, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sales_case_id, description, category, amount, needs_approval, approval_status, created_at
		FROM case_expenses WHERE sales_case_id = $1 ORDER BY id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []CaseExpense
	for rows.Next() {
		var e CaseExpense
		if err := rows.Scan(&e.ID, &e.SalesCaseID, &e.Description, &e.Category,
			&e.Amount, &e.NeedsApproval, &e.ApprovalStatus, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *repository) CountQuotations(ctx context.Context, caseID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quotations WHERE sales_case_id = $1`, caseID).Scan(&n)
	return n, err
}

func (r *repository) CountOrders(ctx context.Context, caseID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sales_orders WHERE sales_case_id = $1`, caseID).Scan(&n)
	return n, err
}

func (r *repository) SumInvoiced(ctx context.Context, caseID int64) (decimal.Decimal, error) {
	return r.sum(ctx,
		`SELECT COALESCE(SUM(total_amount), 0) FROM ar_invoices WHERE sales_case_id = $1`, caseID)
}

func (r *repository) SumPaid(ctx context.Context, caseID int64) (decimal.Decimal, error) {
	return r.sum(ctx,
		`SELECT COALESCE(SUM(paid_amount), 0) FROM ar_invoices WHERE sales_case_id = $1`, caseID)
}

// SumConsumptionCost totals the FIFO basis of every SALE movement
// referencing an order under the case. SALE quantities are negative,
// so the sign flips to yield a positive cost.
func (r *repository) SumConsumptionCost(ctx context.Context, caseID int64) (decimal.Decimal, error) {
	return r.sum(ctx, `
		SELECT COALESCE(SUM(-m.quantity * m.unit_cost), 0)
		FROM stock_movements m
		JOIN sales_orders o ON o.id = m.ref_id
		WHERE m.ref_type = 'SALES_ORDER' AND m.type = 'SALE' AND o.sales_case_id = $1`, caseID)
}

func (r *repository) SumCountableExpenses(ctx context.Context, caseID int64) (decimal.Decimal, error) {
	return r.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM case_expenses
		WHERE sales_case_id = $1
		  AND (needs_approval = FALSE OR approval_status = 'APPROVED')`, caseID)
}

func (r *repository) sum(ctx context.Context, query string, caseID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, caseID).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
