package quotations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	nextID     int64
	nextLineID int64
	quotations map[int64]*Quotation
	lines      map[int64][]QuotationLine
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quotations: make(map[int64]*Quotation),
		lines:      make(map[int64][]QuotationLine),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *q
	cp.Lines = append([]QuotationLine(nil), m.lines[id]...)
	return &cp, nil
}

func (m *memoryRepo) Create(_ context.Context, q Quotation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	q.ID = m.nextID
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	m.quotations[q.ID] = &q
	return q.ID, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return shared.ErrNotFound
	}
	for col, v := range updates {
		switch col {
		case "quote_date":
			q.QuoteDate = v.(time.Time)
		case "valid_until":
			q.ValidUntil = v.(time.Time)
		case "notes":
			notes := v.(string)
			q.Notes = &notes
		case "subtotal":
			q.Subtotal = v.(decimal.Decimal)
		case "discount_amount":
			q.DiscountAmount = v.(decimal.Decimal)
		case "tax_amount":
			q.TaxAmount = v.(decimal.Decimal)
		case "total_amount":
			q.TotalAmount = v.(decimal.Decimal)
		}
	}
	q.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id int64, from, to QuotationStatus, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return shared.ErrNotFound
	}
	if q.Status != from || q.Version != version {
		return &shared.ConcurrentModificationError{Entity: "quotation", ID: id}
	}
	q.Status = to
	q.Version++
	return nil
}

func (m *memoryRepo) InsertLine(_ context.Context, line QuotationLine) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLineID++
	line.ID = m.nextLineID
	m.lines[line.QuotationID] = append(m.lines[line.QuotationID], line)
	return line.ID, nil
}

func (m *memoryRepo) DeleteLines(_ context.Context, quotationID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, quotationID)
	return nil
}

func (m *memoryRepo) FindAcceptedByCase(_ context.Context, caseID int64) (*Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotations {
		if q.SalesCaseID == caseID && q.Status == QuotationStatusAccepted {
			cp := *q
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) MaxRevision(_ context.Context, caseID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, q := range m.quotations {
		if q.SalesCaseID == caseID && q.Revision > max {
			max = q.Revision
		}
	}
	return max, nil
}

func (m *memoryRepo) List(_ context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quotation
	for _, q := range m.quotations {
		if req.SalesCaseID != nil && q.SalesCaseID != *req.SalesCaseID {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

type stubNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *stubNumbers) Next(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("QT-TEST-%06d", s.n), nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, &stubNumbers{}), repo
}

func createRequest() CreateQuotationRequest {
	return CreateQuotationRequest{
		SalesCaseID: 1,
		CustomerID:  7,
		QuoteDate:   time.Now(),
		ValidUntil:  time.Now().Add(30 * 24 * time.Hour),
		Currency:    "USD",
		Lines: []LineRequest{
			{Description: "Widget", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(50),
				DiscountPct: decimal.NewFromInt(7), TaxPct: decimal.NewFromInt(5)},
			{Description: "Gadget", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50),
				TaxPct: decimal.RequireFromString("8.5")},
		},
	}
}

func TestCreateComputesTotalsAndRevision(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.Equal(t, QuotationStatusDraft, q.Status)
	require.Equal(t, 1, q.Revision)
	require.Len(t, q.Lines, 2)
	require.True(t, q.TotalAmount.Equal(decimal.RequireFromString("596.75")))
	// Notes are optional: absent notes persist and read back as nil.
	require.Nil(t, q.Notes)

	q2, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.Equal(t, 2, q2.Revision)
}

func TestCreateRejectsInvalidWindow(t *testing.T) {
	svc, _ := newTestService()
	req := createRequest()
	req.ValidUntil = req.QuoteDate.Add(-time.Hour)

	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	require.True(t, shared.IsValidation(err))
}

func TestUpdateOnlyInDraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Send(ctx, q.ID)
	require.NoError(t, err)

	notes := "too late"
	_, err = svc.Update(ctx, q.ID, UpdateQuotationRequest{Notes: &notes})
	require.Error(t, err)
	require.True(t, shared.IsInvalidState(err))
}

func TestUpdateReplacesLinesAndRecomputes(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	lines := []LineRequest{
		{Description: "Single", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)},
	}
	updated, err := svc.Update(ctx, q.ID, UpdateQuotationRequest{Lines: &lines})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(100)))
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	// Accept straight from DRAFT is rejected.
	_, err = svc.Accept(ctx, q.ID, false)
	require.True(t, shared.IsInvalidState(err))

	sent, err := svc.Send(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusSent, sent.Status)

	// Send twice is rejected.
	_, err = svc.Send(ctx, q.ID)
	require.True(t, shared.IsInvalidState(err))

	accepted, err := svc.Accept(ctx, q.ID, false)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusAccepted, accepted.Status)

	// Terminal: no further transitions.
	_, err = svc.Reject(ctx, q.ID)
	require.True(t, shared.IsInvalidState(err))
}

func TestRejectFromSent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Send(ctx, q.ID)
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusRejected, rejected.Status)
}

func TestExpiryIsDerivedAtRead(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Send(ctx, q.ID)
	require.NoError(t, err)

	// Backdate the window; the stored status must stay SENT.
	repo.quotations[q.ID].ValidUntil = time.Now().Add(-time.Hour)

	stored, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusSent, stored.Status)
	require.Equal(t, QuotationStatusExpired, stored.EffectiveStatus(time.Now()))

	// And expiry blocks acceptance even though the row still says SENT.
	_, err = svc.Accept(ctx, q.ID, false)
	require.True(t, shared.IsInvalidState(err))
}

func TestOneAcceptedPerCase(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	second, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = svc.Send(ctx, first.ID)
	require.NoError(t, err)
	_, err = svc.Send(ctx, second.ID)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, first.ID, false)
	require.NoError(t, err)

	// Without supersede the second acceptance is refused.
	_, err = svc.Accept(ctx, second.ID, false)
	require.True(t, shared.IsInvalidState(err))

	// With supersede the first is demoted in the same transaction.
	accepted, err := svc.Accept(ctx, second.ID, true)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusAccepted, accepted.Status)

	prior, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusSuperseded, prior.Status)
}

func TestCloneCreatesNextRevisionDraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Send(ctx, q.ID)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, q.ID)
	require.NoError(t, err)

	clone, err := svc.Clone(ctx, q.ID)
	require.NoError(t, err)
	require.NotEqual(t, q.ID, clone.ID)
	require.NotEqual(t, q.DocNumber, clone.DocNumber)
	require.Equal(t, QuotationStatusDraft, clone.Status)
	require.Equal(t, q.Revision+1, clone.Revision)
	require.Len(t, clone.Lines, len(q.Lines))
	require.True(t, clone.TotalAmount.Equal(q.TotalAmount))

	// Source is untouched.
	source, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationStatusRejected, source.Status)
}

func TestStaleVersionDetected(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	q, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	// Two writers read the same version; the second write loses.
	require.NoError(t, repo.UpdateStatus(ctx, q.ID, QuotationStatusDraft, QuotationStatusSent, q.Version))
	err = repo.UpdateStatus(ctx, q.ID, QuotationStatusDraft, QuotationStatusSent, q.Version)
	require.Error(t, err)
	require.True(t, shared.IsConcurrentModification(err))
}
