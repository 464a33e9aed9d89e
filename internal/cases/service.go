package cases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// Repository defines data access for sales cases and the aggregate
// reads profitability needs.
type Repository interface {
	GetCase(ctx context.Context, id int64) (*SalesCase, error)
	CreateCase(ctx context.Context, c SalesCase) (int64, error)
	InsertExpense(ctx context.Context, e CaseExpense) (int64, error)
	SetExpenseStatus(ctx context.Context, expenseID int64, status shared.ApprovalStatus) error
	ListExpenses(ctx context.Context, caseID int64) ([]CaseExpense, error)
	CountQuotations(ctx context.Context, caseID int64) (int, error)
	CountOrders(ctx context.Context, caseID int64) (int, error)
	SumInvoiced(ctx context.Context, caseID int64) (decimal.Decimal, error)
	SumPaid(ctx context.Context, caseID int64) (decimal.Decimal, error)
	SumConsumptionCost(ctx context.Context, caseID int64) (decimal.Decimal, error)
	SumCountableExpenses(ctx context.Context, caseID int64) (decimal.Decimal, error)
}

// SnapshotCache holds short-lived profitability snapshots. Aggregation
// tolerates slightly stale reads, so a miss or error just means a
// recompute.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// CreateCaseRequest opens a new sales case.
type CreateCaseRequest struct {
	CustomerID     int64           `json:"customer_id" validate:"required"`
	Title          string          `json:"title" validate:"required"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
}

// AddExpenseRequest books an expense against a case.
type AddExpenseRequest struct {
	SalesCaseID   int64           `json:"sales_case_id" validate:"required"`
	Description   string          `json:"description" validate:"required"`
	Category      string          `json:"category" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	NeedsApproval bool            `json:"needs_approval"`
}

// Service manages sales cases and derives case profitability.
type Service struct {
	repo     Repository
	numbers  shared.NumberSource
	cache    SnapshotCache
	cacheTTL time.Duration
	validate *validator.Validate
}

// NewService builds Service. cache may be nil to disable snapshots.
func NewService(repo Repository, numbers shared.NumberSource, cache SnapshotCache, cacheTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		numbers:  numbers,
		cache:    cache,
		cacheTTL: cacheTTL,
		validate: validator.New(),
	}
}

// CreateCase opens a new sales case.
func (s *Service) CreateCase(ctx context.Context, req CreateCaseRequest) (*SalesCase, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("", err.Error())
	}
	if req.EstimatedValue.Sign() < 0 {
		return nil, shared.NewValidationError("estimated_value", "must not be negative")
	}

	number, err := s.numbers.Next(ctx, "sales_case")
	if err != nil {
		return nil, fmt.Errorf("generate case number: %w", err)
	}

	c := SalesCase{
		CaseNumber:     number,
		CustomerID:     req.CustomerID,
		Title:          req.Title,
		EstimatedValue: req.EstimatedValue,
		ActualValue:    decimal.Zero,
	}
	id, err := s.repo.CreateCase(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	return s.repo.GetCase(ctx, id)
}

// AddExpense books an expense. Expenses flagged for approval start
// PENDING and stay out of profitability until the external workflow
// approves them.
func (s *Service) AddExpense(ctx context.Context, req AddExpenseRequest) (*CaseExpense, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("", err.Error())
	}
	if req.Amount.Sign() <= 0 {
		return nil, shared.NewValidationError("amount", "must be positive")
	}
	if _, err := s.repo.GetCase(ctx, req.SalesCaseID); err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}

	status := shared.ApprovalApproved
	if req.NeedsApproval {
		status = shared.ApprovalPending
	}
	expense := CaseExpense{
		SalesCaseID:    req.SalesCaseID,
		Description:    req.Description,
		Category:       req.Category,
		Amount:         req.Amount,
		NeedsApproval:  req.NeedsApproval,
		ApprovalStatus: status,
	}
	id, err := s.repo.InsertExpense(ctx, expense)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}
	expense.ID = id
	return &expense, nil
}

// RecordExpenseDecision applies the outcome of the external approval
// workflow to an expense.
func (s *Service) RecordExpenseDecision(ctx context.Context, expenseID int64, status shared.ApprovalStatus) error {
	if !status.Valid() || status == shared.ApprovalPending {
		return shared.NewValidationError("status", "must be APPROVED or REJECTED")
	}
	return s.repo.SetExpenseStatus(ctx, expenseID, status)
}

// GetCase returns one sales case.
func (s *Service) GetCase(ctx context.Context, id int64) (*SalesCase, error) {
	return s.repo.GetCase(ctx, id)
}

// ListExpenses returns every expense booked against a case.
func (s *Service) ListExpenses(ctx context.Context, caseID int64) ([]CaseExpense, error) {
	return s.repo.ListExpenses(ctx, caseID)
}

// ComputeProfitability derives the margin picture for one case. It is
// a pure read: a case with zero activity yields all-zero metrics and
// no error. A short-lived cached snapshot may be returned when a
// cache is configured.
func (s *Service) ComputeProfitability(ctx context.Context, caseID int64) (*Profitability, error) {
	if _, err := s.repo.GetCase(ctx, caseID); err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}

	cacheKey := fmt.Sprintf("profit:case:%d", caseID)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, cacheKey); ok {
			var cached Profitability
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	p := Profitability{SalesCaseID: caseID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		p.QuotationCount, err = s.repo.CountQuotations(gctx, caseID)
		return
	})
	g.Go(func() (err error) {
		p.OrderCount, err = s.repo.CountOrders(gctx, caseID)
		return
	})
	g.Go(func() (err error) {
		p.TotalInvoiced, err = s.repo.SumInvoiced(gctx, caseID)
		return
	})
	g.Go(func() (err error) {
		p.TotalPaid, err = s.repo.SumPaid(gctx, caseID)
		return
	})
	g.Go(func() (err error) {
		p.FIFOCost, err = s.repo.SumConsumptionCost(gctx, caseID)
		return
	})
	g.Go(func() (err error) {
		p.ApprovedExpenses, err = s.repo.SumCountableExpenses(gctx, caseID)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate case %d: %w", caseID, err)
	}

	p.Revenue = p.TotalInvoiced
	p.ActualProfit = p.Revenue.Sub(p.FIFOCost.Add(p.ApprovedExpenses))
	if p.Revenue.Sign() != 0 {
		p.ProfitMargin = p.ActualProfit.Div(p.Revenue).Mul(hundred).Round(2)
	} else {
		p.ProfitMargin = decimal.Zero
	}
	p.ComputedAt = time.Now().UTC()

	if s.cache != nil && s.cacheTTL > 0 {
		if raw, err := json.Marshal(p); err == nil {
			s.cache.Set(ctx, cacheKey, raw, s.cacheTTL)
		}
	}
	return &p, nil
}
