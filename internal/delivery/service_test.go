package delivery

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

type salesLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Qty       float64
}

type memoryRepo struct {
	deliveries  map[int64]Order
	salesOrders map[int64]OrderHeader
	salesLines  []salesLine
	nextID      int64
	seq         int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		deliveries:  map[int64]Order{},
		salesOrders: map[int64]OrderHeader{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error {
	return fn(ctx, nil)
}

func (m *memoryRepo) NextDocNumber(ctx context.Context, _ db.DBTX) (string, error) {
	m.seq++
	return fmt.Sprintf("DO-%06d", m.seq), nil
}

func (m *memoryRepo) Create(_ context.Context, _ db.DBTX, d Order) (Order, error) {
	d.ID = m.id()
	for i := range d.Lines {
		d.Lines[i].ID = m.id()
		d.Lines[i].DeliveryID = d.ID
	}
	m.deliveries[d.ID] = d
	return d, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Order, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return Order{}, fmt.Errorf("delivery order %d: %w", id, shared.ErrNotFound)
	}
	return d, nil
}

func (m *memoryRepo) List(_ context.Context, _ Filters) ([]Order, int, error) {
	var out []Order
	for _, d := range m.deliveries {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	d, ok := m.deliveries[id]
	if !ok {
		return fmt.Errorf("delivery order %d: %w", id, shared.ErrNotFound)
	}
	if d.Status != from {
		return fmt.Errorf("delivery order %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	d.Status = to
	m.deliveries[id] = d
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := m.deliveries[id]; !ok {
		return fmt.Errorf("delivery order %d: %w", id, shared.ErrNotFound)
	}
	delete(m.deliveries, id)
	return nil
}

func (m *memoryRepo) SalesOrderHeader(_ context.Context, orderID int64) (OrderHeader, error) {
	h, ok := m.salesOrders[orderID]
	if !ok {
		return OrderHeader{}, fmt.Errorf("sales order %d: %w", orderID, shared.ErrNotFound)
	}
	return h, nil
}

func (m *memoryRepo) DeliverableLines(_ context.Context, orderID int64) ([]DeliverableLine, error) {
	var out []DeliverableLine
	for _, sl := range m.salesLines {
		if sl.OrderID != orderID {
			continue
		}
		var delivered float64
		for _, d := range m.deliveries {
			if d.Status == ledger.StatusCancelled {
				continue
			}
			for _, dl := range d.Lines {
				if dl.OrderLineID == sl.ID {
					delivered += dl.Qty
				}
			}
		}
		out = append(out, DeliverableLine{
			OrderLineID: sl.ID,
			ProductID:   sl.ProductID,
			Ordered:     sl.Qty,
			Delivered:   delivered,
		})
	}
	return out, nil
}

func (m *memoryRepo) seedSalesOrder(lines ...salesLine) int64 {
	orderID := m.id()
	m.salesOrders[orderID] = OrderHeader{ID: orderID, CustomerID: 1, Status: ledger.StatusConfirmed}
	for _, l := range lines {
		l.ID = m.id()
		l.OrderID = orderID
		m.salesLines = append(m.salesLines, l)
	}
	return orderID
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *ledgertest.MemoryStore) {
	t.Helper()
	repo := newMemoryRepo()
	store := ledgertest.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := ledger.NewEngine(store, nil, nil, logger)
	return NewService(repo, engine, logger), repo, store
}

func deliver(t *testing.T, svc *Service, id int64) {
	t.Helper()
	require.NoError(t, svc.Transition(context.Background(), id, ledger.StatusConfirmed))
	require.NoError(t, svc.Transition(context.Background(), id, ledger.StatusInTransit))
	require.NoError(t, svc.Transition(context.Background(), id, ledger.StatusDelivered))
}

func TestCreateDeliveryCopiesRemaining(t *testing.T) {
	svc, repo, _ := newTestService(t)
	orderID := repo.seedSalesOrder(salesLine{ProductID: 7, Qty: 10})

	d, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDraft, d.Status)
	require.Len(t, d.Lines, 1)
	require.Equal(t, 10.0, d.Lines[0].Qty)
	require.Equal(t, "DO-000001", d.DocNumber)
}

func TestSecondDeliveryHasNothingToCopy(t *testing.T) {
	svc, repo, _ := newTestService(t)
	orderID := repo.seedSalesOrder(salesLine{ProductID: 7, Qty: 10})

	first, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	deliver(t, svc, first.ID)

	_, err = svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.ErrorIs(t, err, shared.ErrNothingToCopy)
}

func TestCancelledDeliveryFreesRemaining(t *testing.T) {
	svc, repo, _ := newTestService(t)
	orderID := repo.seedSalesOrder(salesLine{ProductID: 7, Qty: 10})

	first, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	require.NoError(t, svc.Transition(context.Background(), first.ID, ledger.StatusCancelled))

	second, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	require.Equal(t, 10.0, second.Lines[0].Qty)
}

func TestDeliveredPostsOutEntries(t *testing.T) {
	svc, repo, store := newTestService(t)
	orderID := repo.seedSalesOrder(salesLine{ProductID: 7, Qty: 10}, salesLine{ProductID: 8, Qty: 4})

	d, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	deliver(t, svc, d.ID)

	entries := store.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, ledger.DocTypeDelivery, e.DocType)
		require.Equal(t, ledger.DirectionOut, e.Direction)
		require.Negative(t, e.Qty)
		require.Equal(t, int64(2), e.WarehouseID)
	}

	stock, err := store.SumStock(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Equal(t, -10.0, stock)
}

func TestRollbackToInTransitRetracts(t *testing.T) {
	svc, repo, store := newTestService(t)
	orderID := repo.seedSalesOrder(salesLine{ProductID: 7, Qty: 10})

	d, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	deliver(t, svc, d.ID)
	require.Len(t, store.Entries(), 1)

	require.NoError(t, svc.Transition(context.Background(), d.ID, ledger.StatusInTransit))
	require.Empty(t, store.Entries())

	got, err := svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusInTransit, got.Status)
}

func TestDeleteDeliveredRetracts(t *testing.T) {
	svc, repo, store := newTestService(t)
	orderID := repo.seedSalesOrder(salesLine{ProductID: 7, Qty: 10})

	d, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	deliver(t, svc, d.ID)

	require.NoError(t, svc.Delete(context.Background(), d.ID))
	require.Empty(t, store.Entries())
	_, err = svc.Get(context.Background(), d.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSkippingStatusesRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	orderID := repo.seedSalesOrder(salesLine{ProductID: 7, Qty: 10})

	d, err := svc.CreateFromOrder(context.Background(), orderID, 2, 99)
	require.NoError(t, err)
	err = svc.Transition(context.Background(), d.ID, ledger.StatusDelivered)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCreateForUnknownOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateFromOrder(context.Background(), 404, 2, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
