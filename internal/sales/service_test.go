package sales

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/ledger/ledgertest"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

type memoryRepo struct {
	customers  map[int64]Customer
	quotations map[int64]Quotation
	orders     map[int64]Order
	invoices   map[int64]Invoice
	returns    map[int64]Return
	quickSales map[int64]QuickSale

	orderByQuotation map[int64]int64
	delivered        map[int64]float64 // qty delivered per order line
	nextID           int64
	seq              int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers:        map[int64]Customer{},
		quotations:       map[int64]Quotation{},
		orders:           map[int64]Order{},
		invoices:         map[int64]Invoice{},
		returns:          map[int64]Return{},
		quickSales:       map[int64]QuickSale{},
		orderByQuotation: map[int64]int64{},
		delivered:        map[int64]float64{},
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

func (m *memoryRepo) CreateCustomer(_ context.Context, c Customer) (Customer, error) {
	c.ID = m.id()
	m.customers[c.ID] = c
	return c, nil
}

func (m *memoryRepo) GetCustomer(_ context.Context, id int64) (Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

func (m *memoryRepo) ListCustomers(_ context.Context, _ DocFilters) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.customers {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memoryRepo) UpdateCustomer(_ context.Context, id int64, c Customer) error {
	if _, ok := m.customers[id]; !ok {
		return fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
	}
	c.ID = id
	m.customers[id] = c
	return nil
}

func (m *memoryRepo) CreateQuotation(_ context.Context, q Quotation) (Quotation, error) {
	q.ID = m.id()
	for i := range q.Lines {
		q.Lines[i].ID = m.id()
		q.Lines[i].QuotationID = q.ID
	}
	m.quotations[q.ID] = q
	return q, nil
}

func (m *memoryRepo) GetQuotation(_ context.Context, id int64) (Quotation, error) {
	q, ok := m.quotations[id]
	if !ok {
		return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return q, nil
}

func (m *memoryRepo) ListQuotations(_ context.Context, _ DocFilters) ([]Quotation, int, error) {
	var out []Quotation
	for _, q := range m.quotations {
		out = append(out, q)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetQuotationStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	q, ok := m.quotations[id]
	if !ok {
		return fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	if q.Status != from {
		return fmt.Errorf("quotation %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	q.Status = to
	m.quotations[id] = q
	return nil
}

func (m *memoryRepo) CreateOrder(_ context.Context, _ db.DBTX, o Order) (Order, error) {
	if o.QuotationID != nil {
		if _, dup := m.orderByQuotation[*o.QuotationID]; dup {
			return Order{}, fmt.Errorf("quotation %d already converted: %w", *o.QuotationID, shared.ErrDuplicateSuccessor)
		}
	}
	o.ID = m.id()
	for i := range o.Lines {
		o.Lines[i].ID = m.id()
		o.Lines[i].OrderID = o.ID
	}
	m.orders[o.ID] = o
	if o.QuotationID != nil {
		m.orderByQuotation[*o.QuotationID] = o.ID
	}
	return o, nil
}

func (m *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("sales order %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (m *memoryRepo) ListOrders(_ context.Context, _ DocFilters) ([]Order, int, error) {
	var out []Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetOrderStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("sales order %d: %w", id, shared.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("sales order %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	o.Status = to
	m.orders[id] = o
	return nil
}

func (m *memoryRepo) CreateInvoice(_ context.Context, _ db.DBTX, inv Invoice) (Invoice, error) {
	inv.ID = m.id()
	for i := range inv.Lines {
		inv.Lines[i].ID = m.id()
		inv.Lines[i].InvoiceID = inv.ID
	}
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("sales invoice %d: %w", id, shared.ErrNotFound)
	}
	return inv, nil
}

func (m *memoryRepo) SetInvoiceStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	inv, ok := m.invoices[id]
	if !ok {
		return fmt.Errorf("sales invoice %d: %w", id, shared.ErrNotFound)
	}
	if inv.Status != from {
		return fmt.Errorf("sales invoice %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	inv.Status = to
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) CreateReturn(_ context.Context, _ db.DBTX, ret Return) (Return, error) {
	ret.ID = m.id()
	for i := range ret.Lines {
		ret.Lines[i].ID = m.id()
		ret.Lines[i].ReturnID = ret.ID
	}
	m.returns[ret.ID] = ret
	return ret, nil
}

func (m *memoryRepo) GetReturn(_ context.Context, id int64) (Return, error) {
	ret, ok := m.returns[id]
	if !ok {
		return Return{}, fmt.Errorf("sales return %d: %w", id, shared.ErrNotFound)
	}
	return ret, nil
}

func (m *memoryRepo) SetReturnStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	ret, ok := m.returns[id]
	if !ok {
		return fmt.Errorf("sales return %d: %w", id, shared.ErrNotFound)
	}
	if ret.Status != from {
		return fmt.Errorf("sales return %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	ret.Status = to
	m.returns[id] = ret
	return nil
}

func (m *memoryRepo) DeleteReturn(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := m.returns[id]; !ok {
		return fmt.Errorf("sales return %d: %w", id, shared.ErrNotFound)
	}
	delete(m.returns, id)
	return nil
}

func (m *memoryRepo) CreateQuickSale(_ context.Context, qs QuickSale) (QuickSale, error) {
	qs.ID = m.id()
	for i := range qs.Lines {
		qs.Lines[i].ID = m.id()
		qs.Lines[i].QuickSaleID = qs.ID
	}
	m.quickSales[qs.ID] = qs
	return qs, nil
}

func (m *memoryRepo) GetQuickSale(_ context.Context, id int64) (QuickSale, error) {
	qs, ok := m.quickSales[id]
	if !ok {
		return QuickSale{}, fmt.Errorf("quick sale %d: %w", id, shared.ErrNotFound)
	}
	return qs, nil
}

func (m *memoryRepo) SetQuickSaleStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	qs, ok := m.quickSales[id]
	if !ok {
		return fmt.Errorf("quick sale %d: %w", id, shared.ErrNotFound)
	}
	if qs.Status != from {
		return fmt.Errorf("quick sale %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	qs.Status = to
	m.quickSales[id] = qs
	return nil
}

func (m *memoryRepo) DeleteQuickSale(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := m.quickSales[id]; !ok {
		return fmt.Errorf("quick sale %d: %w", id, shared.ErrNotFound)
	}
	delete(m.quickSales, id)
	return nil
}

func (m *memoryRepo) InvoiceableLines(_ context.Context, orderID int64) ([]RemainingLine, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("sales order %d: %w", orderID, shared.ErrNotFound)
	}
	var out []RemainingLine
	for _, ol := range o.Lines {
		var invoiced float64
		for _, inv := range m.invoices {
			if inv.Status == ledger.StatusVoid {
				continue
			}
			for _, il := range inv.Lines {
				if il.OrderLineID != nil && *il.OrderLineID == ol.ID {
					invoiced += il.Qty
				}
			}
		}
		out = append(out, RemainingLine{
			OrderLineID: ol.ID,
			ProductID:   ol.ProductID,
			Description: ol.Description,
			UnitPrice:   ol.UnitPrice,
			Ordered:     ol.Qty,
			Fulfilled:   invoiced,
		})
	}
	return out, nil
}

func (m *memoryRepo) ReturnableLines(_ context.Context, orderID int64) ([]RemainingLine, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("sales order %d: %w", orderID, shared.ErrNotFound)
	}
	var out []RemainingLine
	for _, ol := range o.Lines {
		var returned float64
		for _, ret := range m.returns {
			if ret.Status == ledger.StatusCancelled {
				continue
			}
			for _, rl := range ret.Lines {
				if rl.OrderLineID != nil && *rl.OrderLineID == ol.ID {
					returned += rl.Qty
				}
			}
		}
		out = append(out, RemainingLine{
			OrderLineID: ol.ID,
			ProductID:   ol.ProductID,
			Description: ol.Description,
			UnitPrice:   ol.UnitPrice,
			Ordered:     m.delivered[ol.ID],
			Fulfilled:   returned,
		})
	}
	return out, nil
}

func newTestService() (*Service, *memoryRepo, *ledgertest.MemoryStore) {
	repo := newMemoryRepo()
	store := ledgertest.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := ledger.NewEngine(store, nil, nil, logger)
	return NewService(repo, engine, logger), repo, store
}

func seedQuotation(t *testing.T, repo *memoryRepo, status ledger.Status, qty float64) Quotation {
	t.Helper()
	cust, err := repo.CreateCustomer(context.Background(), Customer{Code: "CUST-01", Name: "Acme", IsActive: true})
	require.NoError(t, err)
	q := Quotation{
		DocNumber:  "SQ-TEST",
		CustomerID: cust.ID,
		Status:     status,
		QuoteDate:  time.Now(),
		ValidUntil: time.Now().Add(24 * time.Hour),
		Lines: []QuotationLine{{
			ProductID: 7,
			Qty:       qty,
			UnitPrice: decimal.NewFromInt(100),
		}},
	}
	q, err = repo.CreateQuotation(context.Background(), q)
	require.NoError(t, err)
	return q
}

func TestConvertQuotationToOrder(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)

	order, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	require.InDelta(t, 10, order.Lines[0].Qty, 0.0001)
	require.True(t, order.GrandTotal.Equal(decimal.NewFromInt(1000)))

	got, err := repo.GetQuotation(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusConverted, got.Status)
}

func TestConvertQuotationTwiceIsDuplicateSuccessor(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)

	_, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.NoError(t, err)

	_, err = svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.ErrorIs(t, err, shared.ErrDuplicateSuccessor)
}

func TestConvertRejectsUnapprovedQuotation(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusDraft, 10)

	_, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestConvertRejectsEmptyQuotation(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)
	stored := repo.quotations[q.ID]
	stored.Lines = nil
	repo.quotations[q.ID] = stored

	_, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.ErrorIs(t, err, shared.ErrEmptyDocument)
}

func TestTransitionQuotationRejectsDirectConversion(t *testing.T) {
	svc, repo, _ := newTestService()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)

	err := svc.TransitionQuotation(context.Background(), q.ID, ledger.StatusConverted)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestInvoiceCopiesRemainingThenNothing(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)
	order, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.NoError(t, err)

	inv, err := svc.CreateInvoiceFromOrder(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Len(t, inv.Lines, 1)
	require.InDelta(t, 10, inv.Lines[0].Qty, 0.0001)

	_, err = svc.CreateInvoiceFromOrder(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrNothingToCopy)
}

func TestVoidedInvoiceFreesRemaining(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)
	order, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.NoError(t, err)

	inv, err := svc.CreateInvoiceFromOrder(ctx, order.ID, 1)
	require.NoError(t, err)
	require.NoError(t, svc.TransitionInvoice(ctx, inv.ID, ledger.StatusVoid))

	again, err := svc.CreateInvoiceFromOrder(ctx, order.ID, 1)
	require.NoError(t, err)
	require.InDelta(t, 10, again.Lines[0].Qty, 0.0001)
}

func TestReturnRequiresDeliveredGoods(t *testing.T) {
	svc, repo, store := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)
	order, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.NoError(t, err)

	// Nothing delivered yet, so nothing can come back.
	_, err = svc.CreateReturnFromOrder(ctx, order.ID, 1, 1)
	require.ErrorIs(t, err, shared.ErrNothingToCopy)

	repo.delivered[order.Lines[0].ID] = 4
	ret, err := svc.CreateReturnFromOrder(ctx, order.ID, 1, 1)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, ret.Status)
	require.InDelta(t, 4, ret.Lines[0].Qty, 0.0001)

	require.NoError(t, svc.TransitionReturn(ctx, ret.ID, ledger.StatusCompleted))
	qty, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	require.InDelta(t, 4, qty, 0.0001)
}

func TestOrderStatusNeverTouchesLedger(t *testing.T) {
	svc, repo, store := newTestService()
	ctx := context.Background()
	q := seedQuotation(t, repo, ledger.StatusApproved, 10)
	order, err := svc.ConvertQuotationToOrder(ctx, q.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.TransitionOrder(ctx, order.ID, ledger.StatusConfirmed))
	require.NoError(t, svc.TransitionOrder(ctx, order.ID, ledger.StatusProcessing))
	require.Empty(t, store.Entries())
}

func TestQuickSaleLifecycle(t *testing.T) {
	svc, _, store := newTestService()
	ctx := context.Background()

	qs, err := svc.CreateQuickSale(ctx, QuickSale{
		WarehouseID: 2,
		Lines:       []QuickSaleLine{{ProductID: 9, Qty: 3, UnitPrice: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDraft, qs.Status)
	require.True(t, qs.GrandTotal.Equal(decimal.NewFromInt(150)))

	require.NoError(t, svc.TransitionQuickSale(ctx, qs.ID, ledger.StatusCompleted))
	qty, err := store.SumStock(ctx, 9, 2)
	require.NoError(t, err)
	require.InDelta(t, -3, qty, 0.0001)

	require.NoError(t, svc.TransitionQuickSale(ctx, qs.ID, ledger.StatusDraft))
	qty, err = store.SumStock(ctx, 9, 2)
	require.NoError(t, err)
	require.InDelta(t, 0, qty, 0.0001)
}

func TestDeleteCompletedQuickSaleRetracts(t *testing.T) {
	svc, repo, store := newTestService()
	ctx := context.Background()

	qs, err := svc.CreateQuickSale(ctx, QuickSale{
		WarehouseID: 2,
		Lines:       []QuickSaleLine{{ProductID: 9, Qty: 5, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.TransitionQuickSale(ctx, qs.ID, ledger.StatusCompleted))

	require.NoError(t, svc.DeleteQuickSale(ctx, qs.ID))
	require.Empty(t, repo.quickSales)
	qty, err := store.SumStock(ctx, 9, 2)
	require.NoError(t, err)
	require.InDelta(t, 0, qty, 0.0001)
}
