package cases

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryCaseRepo struct {
	mu            sync.Mutex
	nextID        int64
	cases         map[int64]*SalesCase
	expenses      map[int64][]CaseExpense
	quotations    map[int64]int
	orders        map[int64]int
	invoiced      map[int64]decimal.Decimal
	paid          map[int64]decimal.Decimal
	consumption   map[int64]decimal.Decimal
	aggregateErrs map[string]error
}

func newMemoryCaseRepo() *memoryCaseRepo {
	return &memoryCaseRepo{
		cases:         make(map[int64]*SalesCase),
		expenses:      make(map[int64][]CaseExpense),
		quotations:    make(map[int64]int),
		orders:        make(map[int64]int),
		invoiced:      make(map[int64]decimal.Decimal),
		paid:          make(map[int64]decimal.Decimal),
		consumption:   make(map[int64]decimal.Decimal),
		aggregateErrs: make(map[string]error),
	}
}

func (m *memoryCaseRepo) GetCase(_ context.Context, id int64) (*SalesCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCaseRepo) CreateCase(_ context.Context, c SalesCase) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.cases[c.ID] = &c
	return c.ID, nil
}

func (m *memoryCaseRepo) InsertExpense(_ context.Context, e CaseExpense) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now()
	m.expenses[e.SalesCaseID] = append(m.expenses[e.SalesCaseID], e)
	return e.ID, nil
}

func (m *memoryCaseRepo) SetExpenseStatus(_ context.Context, expenseID int64, status shared.ApprovalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for caseID, list := range m.expenses {
		for i := range list {
			if list[i].ID == expenseID {
				m.expenses[caseID][i].ApprovalStatus = status
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (m *memoryCaseRepo) ListExpenses(_ context.Context, caseID int64) ([]CaseExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CaseExpense(nil), m.expenses[caseID]...), nil
}

func (m *memoryCaseRepo) CountQuotations(_ context.Context, caseID int64) (int, error) {
	if err := m.aggregateErrs["quotations"]; err != nil {
		return 0, err
	}
	return m.quotations[caseID], nil
}

func (m *memoryCaseRepo) CountOrders(_ context.Context, caseID int64) (int, error) {
	return m.orders[caseID], nil
}

func (m *memoryCaseRepo) SumInvoiced(_ context.Context, caseID int64) (decimal.Decimal, error) {
	return m.invoiced[caseID], nil
}

func (m *memoryCaseRepo) SumPaid(_ context.Context, caseID int64) (decimal.Decimal, error) {
	return m.paid[caseID], nil
}

func (m *memoryCaseRepo) SumConsumptionCost(_ context.Context, caseID int64) (decimal.Decimal, error) {
	return m.consumption[caseID], nil
}

func (m *memoryCaseRepo) SumCountableExpenses(_ context.Context, caseID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, e := range m.expenses[caseID] {
		if e.Countable() {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

type seqNumbers struct{ n int }

func (s *seqNumbers) Next(context.Context, string) (string, error) {
	s.n++
	return fmt.Sprintf("SC-TEST-%06d", s.n), nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCaseService(cache SnapshotCache, ttl time.Duration) (*Service, *memoryCaseRepo) {
	repo := newMemoryCaseRepo()
	return NewService(repo, &seqNumbers{}, cache, ttl), repo
}

func openCase(t *testing.T, svc *Service) *SalesCase {
	t.Helper()
	c, err := svc.CreateCase(context.Background(), CreateCaseRequest{
		CustomerID: 7, Title: "Plant expansion", EstimatedValue: dec("1000"),
	})
	require.NoError(t, err)
	return c
}

func TestCreateCase(t *testing.T) {
	svc, _ := newCaseService(nil, 0)

	c := openCase(t, svc)
	require.NotZero(t, c.ID)
	require.NotEmpty(t, c.CaseNumber)
	require.True(t, c.ActualValue.IsZero())

	_, err := svc.CreateCase(context.Background(), CreateCaseRequest{CustomerID: 7, Title: "Bad", EstimatedValue: dec("-1")})
	require.True(t, shared.IsValidation(err))
}

func TestAddExpenseApprovalFlow(t *testing.T) {
	svc, _ := newCaseService(nil, 0)
	ctx := context.Background()
	c := openCase(t, svc)

	direct, err := svc.AddExpense(ctx, AddExpenseRequest{
		SalesCaseID: c.ID, Description: "Fuel", Category: "travel", Amount: dec("50"),
	})
	require.NoError(t, err)
	require.Equal(t, shared.ApprovalApproved, direct.ApprovalStatus)
	require.True(t, direct.Countable())

	gated, err := svc.AddExpense(ctx, AddExpenseRequest{
		SalesCaseID: c.ID, Description: "Consulting", Category: "services", Amount: dec("500"), NeedsApproval: true,
	})
	require.NoError(t, err)
	require.Equal(t, shared.ApprovalPending, gated.ApprovalStatus)
	require.False(t, gated.Countable())

	require.NoError(t, svc.RecordExpenseDecision(ctx, gated.ID, shared.ApprovalApproved))
	expenses, err := svc.ListExpenses(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	require.True(t, expenses[1].Countable())

	err = svc.RecordExpenseDecision(ctx, gated.ID, shared.ApprovalPending)
	require.True(t, shared.IsValidation(err))
}

func TestAddExpenseValidation(t *testing.T) {
	svc, _ := newCaseService(nil, 0)
	c := openCase(t, svc)

	_, err := svc.AddExpense(context.Background(), AddExpenseRequest{
		SalesCaseID: c.ID, Description: "Zero", Category: "misc", Amount: dec("0"),
	})
	require.True(t, shared.IsValidation(err))

	_, err = svc.AddExpense(context.Background(), AddExpenseRequest{
		SalesCaseID: 999, Description: "Orphan", Category: "misc", Amount: dec("1"),
	})
	require.Error(t, err)
}

func TestComputeProfitabilityZeroActivity(t *testing.T) {
	svc, _ := newCaseService(nil, 0)
	c := openCase(t, svc)

	p, err := svc.ComputeProfitability(context.Background(), c.ID)
	require.NoError(t, err)
	require.Zero(t, p.QuotationCount)
	require.Zero(t, p.OrderCount)
	require.True(t, p.Revenue.IsZero())
	require.True(t, p.ActualProfit.IsZero())
	require.True(t, p.ProfitMargin.IsZero())
}

func TestComputeProfitabilityMarginMath(t *testing.T) {
	svc, repo := newCaseService(nil, 0)
	ctx := context.Background()
	c := openCase(t, svc)

	repo.quotations[c.ID] = 2
	repo.orders[c.ID] = 1
	repo.invoiced[c.ID] = dec("596.75")
	repo.paid[c.ID] = dec("300.00")
	repo.consumption[c.ID] = dec("74.00")

	// Only the approved expense counts.
	_, err := svc.AddExpense(ctx, AddExpenseRequest{SalesCaseID: c.ID, Description: "Fuel", Category: "travel", Amount: dec("26.75")})
	require.NoError(t, err)
	pending, err := svc.AddExpense(ctx, AddExpenseRequest{SalesCaseID: c.ID, Description: "Gated", Category: "services", Amount: dec("999"), NeedsApproval: true})
	require.NoError(t, err)
	require.NotNil(t, pending)

	p, err := svc.ComputeProfitability(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, p.QuotationCount)
	require.Equal(t, 1, p.OrderCount)
	require.True(t, p.Revenue.Equal(dec("596.75")))
	require.True(t, p.ApprovedExpenses.Equal(dec("26.75")))
	// 596.75 − (74.00 + 26.75) = 496.00
	require.True(t, p.ActualProfit.Equal(dec("496.00")))
	// 496.00 / 596.75 × 100 = 83.1168…% → 83.12
	require.True(t, p.ProfitMargin.Equal(dec("83.12")), "margin %s", p.ProfitMargin)
}

func TestComputeProfitabilityUnknownCase(t *testing.T) {
	svc, _ := newCaseService(nil, 0)
	_, err := svc.ComputeProfitability(context.Background(), 42)
	require.Error(t, err)
}

func TestComputeProfitabilitySnapshotCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, repo := newCaseService(NewRedisSnapshotCache(client), time.Minute)
	ctx := context.Background()
	c := openCase(t, svc)

	repo.invoiced[c.ID] = dec("100.00")
	first, err := svc.ComputeProfitability(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, first.Revenue.Equal(dec("100.00")))

	// Within the TTL the cached snapshot is served even though the
	// underlying numbers moved.
	repo.invoiced[c.ID] = dec("999.00")
	cached, err := svc.ComputeProfitability(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, cached.Revenue.Equal(dec("100.00")))

	// After expiry the next read recomputes.
	mr.FastForward(2 * time.Minute)
	fresh, err := svc.ComputeProfitability(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, fresh.Revenue.Equal(dec("999.00")))
}

func TestComputeProfitabilityPropagatesAggregateErrors(t *testing.T) {
	svc, repo := newCaseService(nil, 0)
	c := openCase(t, svc)

	repo.aggregateErrs["quotations"] = fmt.Errorf("boom")
	_, err := svc.ComputeProfitability(context.Background(), c.ID)
	require.Error(t, err)
}
