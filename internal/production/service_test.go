package production

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/ledger/ledgertest"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

type memoryRepo struct {
	boms     map[int64]BOM
	orders   map[int64]Order
	receipts map[int64]Receipt
	nextID   int64
	seq      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		boms:     map[int64]BOM{},
		orders:   map[int64]Order{},
		receipts: map[int64]Receipt{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error {
	return fn(ctx, nil)
}

func (m *memoryRepo) NextDocNumber(ctx context.Context, _ db.DBTX, prefix string) (string, error) {
	m.seq++
	return fmt.Sprintf("%s-%06d", prefix, m.seq), nil
}

func (m *memoryRepo) CreateBOM(_ context.Context, b BOM) (BOM, error) {
	b.ID = m.id()
	for i := range b.Components {
		b.Components[i].ID = m.id()
		b.Components[i].BOMID = b.ID
	}
	m.boms[b.ID] = b
	return b, nil
}

func (m *memoryRepo) GetBOM(_ context.Context, id int64) (BOM, error) {
	b, ok := m.boms[id]
	if !ok {
		return BOM{}, fmt.Errorf("bom %d: %w", id, shared.ErrNotFound)
	}
	return b, nil
}

func (m *memoryRepo) ListBOMs(_ context.Context, _ Filters) ([]BOM, int, error) {
	var out []BOM
	for _, b := range m.boms {
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CreateOrder(_ context.Context, _ db.DBTX, o Order) (Order, error) {
	o.ID = m.id()
	for i := range o.Components {
		o.Components[i].ID = m.id()
		o.Components[i].OrderID = o.ID
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("production order %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (m *memoryRepo) ListOrders(_ context.Context, _ Filters) ([]Order, int, error) {
	var out []Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetOrderStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("production order %d: %w", id, shared.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("production order %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	o.Status = to
	m.orders[id] = o
	return nil
}

func (m *memoryRepo) CreateReceipt(_ context.Context, _ db.DBTX, rc Receipt) (Receipt, error) {
	for _, existing := range m.receipts {
		if existing.OrderID == rc.OrderID && existing.Status != ledger.StatusCancelled {
			return Receipt{}, fmt.Errorf("production order %d already has a receipt: %w", rc.OrderID, shared.ErrDuplicateSuccessor)
		}
	}
	rc.ID = m.id()
	for i := range rc.Components {
		rc.Components[i].ID = m.id()
		rc.Components[i].ReceiptID = rc.ID
	}
	m.receipts[rc.ID] = rc
	return rc, nil
}

func (m *memoryRepo) GetReceipt(_ context.Context, id int64) (Receipt, error) {
	rc, ok := m.receipts[id]
	if !ok {
		return Receipt{}, fmt.Errorf("production receipt %d: %w", id, shared.ErrNotFound)
	}
	return rc, nil
}

func (m *memoryRepo) SetReceiptStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	rc, ok := m.receipts[id]
	if !ok {
		return fmt.Errorf("production receipt %d: %w", id, shared.ErrNotFound)
	}
	if rc.Status != from {
		return fmt.Errorf("production receipt %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	rc.Status = to
	m.receipts[id] = rc
	return nil
}

func (m *memoryRepo) DeleteReceipt(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := m.receipts[id]; !ok {
		return fmt.Errorf("production receipt %d: %w", id, shared.ErrNotFound)
	}
	delete(m.receipts, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *ledgertest.MemoryStore) {
	t.Helper()
	repo := newMemoryRepo()
	store := ledgertest.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := ledger.NewEngine(store, nil, nil, logger)
	return NewService(repo, engine, logger), repo, store
}

// seedBOM builds one unit of product 100 out of one unit each of products
// 201 and 202.
func seedBOM(t *testing.T, svc *Service) BOM {
	t.Helper()
	b, err := svc.CreateBOM(context.Background(), BOM{
		Code:      "bom-widget",
		Name:      "Widget",
		ProductID: 100,
		IsActive:  true,
		Components: []BOMComponent{
			{ProductID: 201, Qty: 1},
			{ProductID: 202, Qty: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "BOM-WIDGET", b.Code)
	return b
}

func releasedOrder(t *testing.T, svc *Service, bomID int64, qty float64) Order {
	t.Helper()
	ctx := context.Background()
	o, err := svc.CreateOrderFromBOM(ctx, bomID, 2, qty, 99)
	require.NoError(t, err)
	require.NoError(t, svc.TransitionOrder(ctx, o.ID, OrderStatusReleased))
	return o
}

func TestCreateOrderScalesComponents(t *testing.T) {
	svc, _, _ := newTestService(t)
	b := seedBOM(t, svc)

	o, err := svc.CreateOrderFromBOM(context.Background(), b.ID, 2, 5, 99)
	require.NoError(t, err)
	require.Equal(t, OrderStatusDraft, o.Status)
	require.Equal(t, int64(100), o.ProductID)
	require.Len(t, o.Components, 2)
	require.Equal(t, 5.0, o.Components[0].Qty)
	require.Equal(t, 5.0, o.Components[1].Qty)
}

func TestProductionConsumption(t *testing.T) {
	svc, _, store := newTestService(t)
	b := seedBOM(t, svc)
	o := releasedOrder(t, svc, b.ID, 5)
	ctx := context.Background()

	rc, err := svc.CreateReceiptFromOrder(ctx, o.ID, 0, 99)
	require.NoError(t, err)
	require.Equal(t, 5.0, rc.QtyProduced)

	require.NoError(t, svc.TransitionReceipt(ctx, rc.ID, ledger.StatusCompleted))

	finished, err := store.SumStock(ctx, 100, 2)
	require.NoError(t, err)
	require.Equal(t, 5.0, finished)
	for _, componentID := range []int64{201, 202} {
		stock, err := store.SumStock(ctx, componentID, 2)
		require.NoError(t, err)
		require.Equal(t, -5.0, stock)
	}
	require.Len(t, store.Entries(), 3)

	got, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, got.Status)
}

func TestSecondReceiptIsDuplicateSuccessor(t *testing.T) {
	svc, _, _ := newTestService(t)
	b := seedBOM(t, svc)
	o := releasedOrder(t, svc, b.ID, 5)
	ctx := context.Background()

	_, err := svc.CreateReceiptFromOrder(ctx, o.ID, 0, 99)
	require.NoError(t, err)
	_, err = svc.CreateReceiptFromOrder(ctx, o.ID, 0, 99)
	require.ErrorIs(t, err, shared.ErrDuplicateSuccessor)
}

func TestReceiptRequiresReleasedOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	b := seedBOM(t, svc)
	ctx := context.Background()

	o, err := svc.CreateOrderFromBOM(ctx, b.ID, 2, 5, 99)
	require.NoError(t, err)
	_, err = svc.CreateReceiptFromOrder(ctx, o.ID, 0, 99)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPartialReceiptScalesByRatio(t *testing.T) {
	svc, _, store := newTestService(t)
	b := seedBOM(t, svc)
	o := releasedOrder(t, svc, b.ID, 10)
	ctx := context.Background()

	rc, err := svc.CreateReceiptFromOrder(ctx, o.ID, 4, 99)
	require.NoError(t, err)
	require.Equal(t, 4.0, rc.QtyProduced)
	require.Equal(t, 4.0, rc.Components[0].Qty)

	require.NoError(t, svc.TransitionReceipt(ctx, rc.ID, ledger.StatusCompleted))
	stock, err := store.SumStock(ctx, 201, 2)
	require.NoError(t, err)
	require.Equal(t, -4.0, stock)
}

func TestRevertReceiptRetractsAll(t *testing.T) {
	svc, _, store := newTestService(t)
	b := seedBOM(t, svc)
	o := releasedOrder(t, svc, b.ID, 5)
	ctx := context.Background()

	rc, err := svc.CreateReceiptFromOrder(ctx, o.ID, 0, 99)
	require.NoError(t, err)
	require.NoError(t, svc.TransitionReceipt(ctx, rc.ID, ledger.StatusCompleted))
	require.Len(t, store.Entries(), 3)

	require.NoError(t, svc.TransitionReceipt(ctx, rc.ID, ledger.StatusDraft))
	require.Empty(t, store.Entries())
}

func TestBOMValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, BOM{Code: "X", Name: "X", ProductID: 1})
	require.ErrorIs(t, err, shared.ErrEmptyDocument)

	_, err = svc.CreateBOM(ctx, BOM{
		Code: "X", Name: "X", ProductID: 1,
		Components: []BOMComponent{{ProductID: 1, Qty: 1}},
	})
	require.Error(t, err)
}
