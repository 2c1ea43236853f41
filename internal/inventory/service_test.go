package inventory

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
	issues      map[int64]Issue
	transfers   map[int64]Transfer
	adjustments map[int64]Adjustment
	nextID      int64
	seq         int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		issues:      map[int64]Issue{},
		transfers:   map[int64]Transfer{},
		adjustments: map[int64]Adjustment{},
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

func (m *memoryRepo) CreateIssue(_ context.Context, _ db.DBTX, is Issue) (Issue, error) {
	is.ID = m.id()
	for i := range is.Lines {
		is.Lines[i].ID = m.id()
		is.Lines[i].IssueID = is.ID
	}
	m.issues[is.ID] = is
	return is, nil
}

func (m *memoryRepo) GetIssue(_ context.Context, id int64) (Issue, error) {
	is, ok := m.issues[id]
	if !ok {
		return Issue{}, fmt.Errorf("goods issue %d: %w", id, shared.ErrNotFound)
	}
	return is, nil
}

func (m *memoryRepo) ListIssues(_ context.Context, _ Filters) ([]Issue, int, error) {
	var out []Issue
	for _, is := range m.issues {
		out = append(out, is)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetIssueStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	is, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("goods issue %d: %w", id, shared.ErrNotFound)
	}
	if is.Status != from {
		return fmt.Errorf("goods issue %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	is.Status = to
	m.issues[id] = is
	return nil
}

func (m *memoryRepo) DeleteIssue(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := m.issues[id]; !ok {
		return fmt.Errorf("goods issue %d: %w", id, shared.ErrNotFound)
	}
	delete(m.issues, id)
	return nil
}

func (m *memoryRepo) CreateTransfer(_ context.Context, _ db.DBTX, tr Transfer) (Transfer, error) {
	tr.ID = m.id()
	for i := range tr.Lines {
		tr.Lines[i].ID = m.id()
		tr.Lines[i].TransferID = tr.ID
	}
	m.transfers[tr.ID] = tr
	return tr, nil
}

func (m *memoryRepo) GetTransfer(_ context.Context, id int64) (Transfer, error) {
	tr, ok := m.transfers[id]
	if !ok {
		return Transfer{}, fmt.Errorf("inventory transfer %d: %w", id, shared.ErrNotFound)
	}
	return tr, nil
}

func (m *memoryRepo) ListTransfers(_ context.Context, _ Filters) ([]Transfer, int, error) {
	var out []Transfer
	for _, tr := range m.transfers {
		out = append(out, tr)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetTransferStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	tr, ok := m.transfers[id]
	if !ok {
		return fmt.Errorf("inventory transfer %d: %w", id, shared.ErrNotFound)
	}
	if tr.Status != from {
		return fmt.Errorf("inventory transfer %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	tr.Status = to
	m.transfers[id] = tr
	return nil
}

func (m *memoryRepo) DeleteTransfer(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := m.transfers[id]; !ok {
		return fmt.Errorf("inventory transfer %d: %w", id, shared.ErrNotFound)
	}
	delete(m.transfers, id)
	return nil
}

func (m *memoryRepo) CreateAdjustment(_ context.Context, _ db.DBTX, adj Adjustment) (Adjustment, error) {
	adj.ID = m.id()
	for i := range adj.Lines {
		adj.Lines[i].ID = m.id()
		adj.Lines[i].AdjustmentID = adj.ID
	}
	m.adjustments[adj.ID] = adj
	return adj, nil
}

func (m *memoryRepo) GetAdjustment(_ context.Context, id int64) (Adjustment, error) {
	adj, ok := m.adjustments[id]
	if !ok {
		return Adjustment{}, fmt.Errorf("stock adjustment %d: %w", id, shared.ErrNotFound)
	}
	return adj, nil
}

func (m *memoryRepo) ListAdjustments(_ context.Context, _ Filters) ([]Adjustment, int, error) {
	var out []Adjustment
	for _, adj := range m.adjustments {
		out = append(out, adj)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetAdjustmentStatus(_ context.Context, _ db.DBTX, id int64, from, to ledger.Status) error {
	adj, ok := m.adjustments[id]
	if !ok {
		return fmt.Errorf("stock adjustment %d: %w", id, shared.ErrNotFound)
	}
	if adj.Status != from {
		return fmt.Errorf("stock adjustment %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	adj.Status = to
	m.adjustments[id] = adj
	return nil
}

func (m *memoryRepo) DeleteAdjustment(_ context.Context, _ db.DBTX, id int64) error {
	if _, ok := m.adjustments[id]; !ok {
		return fmt.Errorf("stock adjustment %d: %w", id, shared.ErrNotFound)
	}
	delete(m.adjustments, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *ledgertest.MemoryStore) {
	t.Helper()
	repo := newMemoryRepo()
	store := ledgertest.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := ledger.NewEngine(store, nil, nil, logger)
	view := ledger.NewStockView(store, nil, 0, logger)
	return NewService(repo, engine, store, view, logger), store
}

func TestIssuePostsOut(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	is, err := svc.CreateIssue(ctx, Issue{
		WarehouseID: 1,
		Reason:      "damaged",
		Lines: []IssueLine{
			{ProductID: 10, Qty: 3},
			{ProductID: 11, Qty: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "GI-000001", is.DocNumber)
	require.Equal(t, ledger.StatusDraft, is.Status)

	require.NoError(t, svc.TransitionIssue(ctx, is.ID, ledger.StatusIssued))

	stock, err := store.SumStock(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, -3.0, stock)
	stock, err = store.SumStock(ctx, 11, 1)
	require.NoError(t, err)
	require.Equal(t, -2.0, stock)
	for _, e := range store.Entries() {
		require.Equal(t, ledger.DirectionOut, e.Direction)
	}
}

func TestRevertIssueRetracts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	is, err := svc.CreateIssue(ctx, Issue{
		WarehouseID: 1,
		Lines:       []IssueLine{{ProductID: 10, Qty: 3}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.TransitionIssue(ctx, is.ID, ledger.StatusIssued))
	require.Len(t, store.Entries(), 1)

	require.NoError(t, svc.TransitionIssue(ctx, is.ID, ledger.StatusDraft))
	require.Empty(t, store.Entries())
}

func TestDeleteIssuedRetracts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	is, err := svc.CreateIssue(ctx, Issue{
		WarehouseID: 1,
		Lines:       []IssueLine{{ProductID: 10, Qty: 3}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.TransitionIssue(ctx, is.ID, ledger.StatusIssued))

	require.NoError(t, svc.DeleteIssue(ctx, is.ID))
	require.Empty(t, store.Entries())
	_, err = svc.GetIssue(ctx, is.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

// A transfer moves stock between warehouses without changing the total.
func TestTransferSymmetry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	tr, err := svc.CreateTransfer(ctx, Transfer{
		SrcWarehouseID: 1,
		DstWarehouseID: 2,
		Lines:          []TransferLine{{ProductID: 10, Qty: 7}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.TransitionTransfer(ctx, tr.ID, ledger.StatusCompleted))

	src, err := store.SumStock(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, -7.0, src)
	dst, err := store.SumStock(ctx, 10, 2)
	require.NoError(t, err)
	require.Equal(t, 7.0, dst)
	total, err := store.SumStockTotal(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestTransferThroughInTransit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	tr, err := svc.CreateTransfer(ctx, Transfer{
		SrcWarehouseID: 1,
		DstWarehouseID: 2,
		Lines:          []TransferLine{{ProductID: 10, Qty: 4}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.TransitionTransfer(ctx, tr.ID, ledger.StatusInTransit))
	require.Empty(t, store.Entries())

	require.NoError(t, svc.TransitionTransfer(ctx, tr.ID, ledger.StatusCompleted))
	require.Len(t, store.Entries(), 2)

	require.NoError(t, svc.TransitionTransfer(ctx, tr.ID, ledger.StatusInTransit))
	require.Empty(t, store.Entries())
}

func TestTransferSameWarehouseRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateTransfer(context.Background(), Transfer{
		SrcWarehouseID: 1,
		DstWarehouseID: 1,
		Lines:          []TransferLine{{ProductID: 10, Qty: 1}},
	})
	require.Error(t, err)
}

func TestAdjustmentPostsBySign(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	adj, err := svc.CreateAdjustment(ctx, Adjustment{
		WarehouseID: 1,
		Reason:      "cycle count",
		Lines: []AdjustmentLine{
			{ProductID: 10, Qty: 3},
			{ProductID: 11, Qty: -2},
			{ProductID: 12, Qty: 0},
		},
	})
	require.NoError(t, err)
	// The zero-variance line never makes it onto the document.
	require.Len(t, adj.Lines, 2)

	require.NoError(t, svc.TransitionAdjustment(ctx, adj.ID, ledger.StatusApproved))

	up, err := store.SumStock(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, 3.0, up)
	down, err := store.SumStock(ctx, 11, 1)
	require.NoError(t, err)
	require.Equal(t, -2.0, down)

	dirs := map[int64]ledger.Direction{}
	for _, e := range store.Entries() {
		dirs[e.ProductID] = e.Direction
	}
	require.Equal(t, ledger.DirectionIn, dirs[10])
	require.Equal(t, ledger.DirectionOut, dirs[11])
}

func TestRevertAdjustmentRetracts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	adj, err := svc.CreateAdjustment(ctx, Adjustment{
		WarehouseID: 1,
		Lines:       []AdjustmentLine{{ProductID: 10, Qty: -5}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.TransitionAdjustment(ctx, adj.ID, ledger.StatusApproved))
	require.Len(t, store.Entries(), 1)

	require.NoError(t, svc.TransitionAdjustment(ctx, adj.ID, ledger.StatusDraft))
	require.Empty(t, store.Entries())
}

func TestAllZeroVariancesRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateAdjustment(context.Background(), Adjustment{
		WarehouseID: 1,
		Lines:       []AdjustmentLine{{ProductID: 10, Qty: 0}},
	})
	require.ErrorIs(t, err, shared.ErrEmptyDocument)
}

func TestStockQueries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	adj, err := svc.CreateAdjustment(ctx, Adjustment{
		WarehouseID: 1,
		Lines:       []AdjustmentLine{{ProductID: 10, Qty: 8}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.TransitionAdjustment(ctx, adj.ID, ledger.StatusApproved))

	tr, err := svc.CreateTransfer(ctx, Transfer{
		SrcWarehouseID: 1,
		DstWarehouseID: 2,
		Lines:          []TransferLine{{ProductID: 10, Qty: 3}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.TransitionTransfer(ctx, tr.ID, ledger.StatusCompleted))

	level, err := svc.StockOf(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, 5.0, level.Qty)
	level, err = svc.StockOf(ctx, 10, 2)
	require.NoError(t, err)
	require.Equal(t, 3.0, level.Qty)
	total, err := svc.TotalStockOf(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 8.0, total.Qty)
}

func TestStockCard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StockCard(ctx, ledger.EntryFilter{})
	require.Error(t, err)

	adj, err := svc.CreateAdjustment(ctx, Adjustment{
		WarehouseID: 1,
		Lines:       []AdjustmentLine{{ProductID: 10, Qty: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.TransitionAdjustment(ctx, adj.ID, ledger.StatusApproved))

	entries, err := svc.StockCard(ctx, ledger.EntryFilter{ProductID: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.DocTypeStockAdjustment, entries[0].DocType)
}
