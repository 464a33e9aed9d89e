package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/sales/quotations"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryOrderRepo struct {
	mu         sync.Mutex
	nextID     int64
	nextLineID int64
	orders     map[int64]*SalesOrder
	lines      map[int64][]SalesOrderLine
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders: make(map[int64]*SalesOrder),
		lines:  make(map[int64][]SalesOrderLine),
	}
}

// WithTx snapshots the orders so a failing closure rolls everything
// back, matching the SQL transaction contract.
func (m *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]SalesOrder, len(m.orders))
	for id, o := range m.orders {
		snapshot[id] = *o
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.orders = make(map[int64]*SalesOrder, len(snapshot))
		for id := range snapshot {
			o := snapshot[id]
			m.orders[id] = &o
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryOrderRepo) Get(_ context.Context, id int64) (*SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *o
	cp.Lines = append([]SalesOrderLine(nil), m.lines[id]...)
	return &cp, nil
}

func (m *memoryOrderRepo) Create(_ context.Context, order SalesOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = &order
	return order.ID, nil
}

func (m *memoryOrderRepo) InsertLine(_ context.Context, line SalesOrderLine) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLineID++
	line.ID = m.nextLineID
	m.lines[line.SalesOrderID] = append(m.lines[line.SalesOrderID], line)
	return line.ID, nil
}

func (m *memoryOrderRepo) UpdateStatus(_ context.Context, id int64, from, to SalesOrderStatus, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	if o.Status != from || o.Version != version {
		return &shared.ConcurrentModificationError{Entity: "sales_order", ID: id}
	}
	o.Status = to
	o.Version++
	return nil
}

func (m *memoryOrderRepo) SetDelivered(_ context.Context, id int64, cost decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.CostAmount = cost
	o.DeliveredAt = &at
	return nil
}

func (m *memoryOrderRepo) List(_ context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SalesOrder
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, len(out), nil
}

// stubQuoteRepo serves reads for one quotation. Orders never mutate
// quotations, so every write method fails the test if reached.
type stubQuoteRepo struct {
	t     *testing.T
	quote *quotations.Quotation
}

func (s *stubQuoteRepo) Get(_ context.Context, id int64) (*quotations.Quotation, error) {
	if s.quote == nil || s.quote.ID != id {
		return nil, shared.ErrNotFound
	}
	cp := *s.quote
	return &cp, nil
}

func (s *stubQuoteRepo) WithTx(ctx context.Context, fn func(context.Context, quotations.Repository) error) error {
	return fn(ctx, s)
}

func (s *stubQuoteRepo) Create(context.Context, quotations.Quotation) (int64, error) {
	s.t.Fatal("unexpected quotation write")
	return 0, nil
}

func (s *stubQuoteRepo) Update(context.Context, int64, map[string]interface{}) error {
	s.t.Fatal("unexpected quotation write")
	return nil
}

func (s *stubQuoteRepo) UpdateStatus(context.Context, int64, quotations.QuotationStatus, quotations.QuotationStatus, int64) error {
	s.t.Fatal("unexpected quotation write")
	return nil
}

func (s *stubQuoteRepo) InsertLine(context.Context, quotations.QuotationLine) (int64, error) {
	s.t.Fatal("unexpected quotation write")
	return 0, nil
}

func (s *stubQuoteRepo) DeleteLines(context.Context, int64) error {
	s.t.Fatal("unexpected quotation write")
	return nil
}

func (s *stubQuoteRepo) FindAcceptedByCase(context.Context, int64) (*quotations.Quotation, error) {
	return nil, nil
}

func (s *stubQuoteRepo) MaxRevision(context.Context, int64) (int, error) {
	return 0, nil
}

func (s *stubQuoteRepo) List(context.Context, quotations.ListQuotationsRequest) ([]quotations.Quotation, int, error) {
	return nil, 0, nil
}

type releaseCall struct {
	refType string
	refID   int64
}

// fakeLedger records reservation, release, and consumption calls.
type fakeLedger struct {
	mu         sync.Mutex
	reserved   []inventory.ReserveInput
	released   []releaseCall
	consumed   []inventory.ConsumeInput
	unitCost   decimal.Decimal
	consumeErr error
}

func (f *fakeLedger) Reserve(_ context.Context, input inventory.ReserveInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = append(f.reserved, input)
	return nil
}

func (f *fakeLedger) Release(_ context.Context, refType string, refID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, releaseCall{refType: refType, refID: refID})
	return nil
}

func (f *fakeLedger) Consume(_ context.Context, input inventory.ConsumeInput) (inventory.Consumption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return inventory.Consumption{}, f.consumeErr
	}
	f.consumed = append(f.consumed, input)
	return inventory.Consumption{TotalCost: input.Quantity.Mul(f.unitCost)}, nil
}

type seqNumbers struct{ n int }

func (s *seqNumbers) Next(context.Context, string) (string, error) {
	s.n++
	return fmt.Sprintf("SO-TEST-%06d", s.n), nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func acceptedQuotation(t *testing.T) *quotations.Quotation {
	itemA, itemB := int64(100), int64(200)
	return &quotations.Quotation{
		ID:          1,
		DocNumber:   "QT-TEST-000001",
		SalesCaseID: 5,
		CustomerID:  7,
		Revision:    2,
		QuoteDate:   time.Now(),
		ValidUntil:  time.Now().Add(24 * time.Hour),
		Status:      quotations.QuotationStatusAccepted,
		Currency:    "USD",
		Subtotal:    dec("600.00"),
		TaxAmount:   dec("31.75"),
		TotalAmount: dec("596.75"),
		Lines: []quotations.QuotationLine{
			{LineOrder: 1, IsHeader: true, Description: "Hardware"},
			{LineOrder: 2, ItemID: &itemA, Description: "Widget", Quantity: dec("5"), UnitPrice: dec("50")},
			{LineOrder: 3, ItemID: &itemB, Description: "Gadget", Quantity: dec("2"), UnitPrice: dec("50")},
		},
	}
}

func newOrderService(t *testing.T, quote *quotations.Quotation, ledger *fakeLedger) (*Service, *memoryOrderRepo) {
	repo := newMemoryOrderRepo()
	return NewService(repo, &stubQuoteRepo{t: t, quote: quote}, ledger, &seqNumbers{}), repo
}

func TestCreateFromQuotationSnapshotsLines(t *testing.T) {
	quote := acceptedQuotation(t)
	svc, _ := newOrderService(t, quote, &fakeLedger{unitCost: dec("10")})

	order, err := svc.CreateFromQuotation(context.Background(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusPending, order.Status)
	require.Equal(t, quote.ID, order.QuotationID)
	require.Equal(t, quote.SalesCaseID, order.SalesCaseID)
	require.True(t, order.TotalAmount.Equal(quote.TotalAmount))
	require.Len(t, order.Lines, 3)
	require.True(t, order.Lines[0].IsHeader)
	require.Equal(t, "Widget", order.Lines[1].Description)
}

func TestCreateFromQuotationRequiresAccepted(t *testing.T) {
	quote := acceptedQuotation(t)
	quote.Status = quotations.QuotationStatusSent
	svc, _ := newOrderService(t, quote, &fakeLedger{unitCost: dec("10")})

	_, err := svc.CreateFromQuotation(context.Background(), quote.ID)
	require.Error(t, err)
	require.True(t, shared.IsInvalidState(err))
}

func TestApproveReservesItemLines(t *testing.T) {
	quote := acceptedQuotation(t)
	ledger := &fakeLedger{unitCost: dec("10")}
	svc, _ := newOrderService(t, quote, ledger)
	ctx := context.Background()

	order, err := svc.CreateFromQuotation(ctx, quote.ID)
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusApproved, approved.Status)

	// Header lines reserve nothing; both item lines do.
	require.Len(t, ledger.reserved, 2)
	require.Equal(t, RefType, ledger.reserved[0].RefType)
	require.Equal(t, order.ID, ledger.reserved[0].RefID)

	// Approving twice is refused.
	_, err = svc.Approve(ctx, order.ID)
	require.True(t, shared.IsInvalidState(err))
}

func TestDeliverConsumesAndAttachesCost(t *testing.T) {
	quote := acceptedQuotation(t)
	ledger := &fakeLedger{unitCost: dec("10")}
	svc, _ := newOrderService(t, quote, ledger)
	ctx := context.Background()

	order, err := svc.CreateFromQuotation(ctx, quote.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, order.ID)
	require.NoError(t, err)

	delivered, err := svc.Deliver(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	// 5 + 2 units at cost 10.
	require.True(t, delivered.CostAmount.Equal(dec("70")))
	require.Len(t, ledger.consumed, 2)
}

func TestDeliverRequiresApproved(t *testing.T) {
	quote := acceptedQuotation(t)
	svc, _ := newOrderService(t, quote, &fakeLedger{unitCost: dec("10")})
	ctx := context.Background()

	order, err := svc.CreateFromQuotation(ctx, quote.ID)
	require.NoError(t, err)

	_, err = svc.Deliver(ctx, order.ID)
	require.Error(t, err)
	require.True(t, shared.IsInvalidState(err))
}

func TestCancelApprovedReleasesReservations(t *testing.T) {
	quote := acceptedQuotation(t)
	ledger := &fakeLedger{unitCost: dec("10")}
	svc, _ := newOrderService(t, quote, ledger)
	ctx := context.Background()

	order, err := svc.CreateFromQuotation(ctx, quote.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, order.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusCancelled, cancelled.Status)
	require.Equal(t, []releaseCall{{refType: RefType, refID: order.ID}}, ledger.released)
}

func TestCancelPendingSkipsRelease(t *testing.T) {
	quote := acceptedQuotation(t)
	ledger := &fakeLedger{unitCost: dec("10")}
	svc, _ := newOrderService(t, quote, ledger)
	ctx := context.Background()

	order, err := svc.CreateFromQuotation(ctx, quote.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusCancelled, cancelled.Status)
	require.Empty(t, ledger.released)

	// A cancelled order cannot be approved or delivered.
	_, err = svc.Approve(ctx, order.ID)
	require.True(t, shared.IsInvalidState(err))
}

func TestCancelDeliveredRefused(t *testing.T) {
	quote := acceptedQuotation(t)
	ledger := &fakeLedger{unitCost: dec("10")}
	svc, _ := newOrderService(t, quote, ledger)
	ctx := context.Background()

	order, err := svc.CreateFromQuotation(ctx, quote.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, order.ID)
	require.NoError(t, err)
	_, err = svc.Deliver(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID)
	require.True(t, shared.IsInvalidState(err))
}

// A consumption failure rolls back the status change: the order must
// still read APPROVED and be deliverable once stock arrives.
func TestDeliverRollsBackOnConsumeFailure(t *testing.T) {
	quote := acceptedQuotation(t)
	ledger := &fakeLedger{unitCost: dec("10")}
	svc, repo := newOrderService(t, quote, ledger)
	ctx := context.Background()

	order, err := svc.CreateFromQuotation(ctx, quote.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, order.ID)
	require.NoError(t, err)

	ledger.consumeErr = &shared.InsufficientStockError{ItemID: 100, Requested: "5", Available: "0"}
	_, err = svc.Deliver(ctx, order.ID)
	require.Error(t, err)
	require.True(t, shared.IsInsufficientStock(err))

	after, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, SalesOrderStatusApproved, after.Status)
	require.Nil(t, after.DeliveredAt)

	ledger.consumeErr = nil
	_, err = svc.Deliver(ctx, order.ID)
	require.NoError(t, err)
}
