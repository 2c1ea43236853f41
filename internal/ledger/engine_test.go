package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []Entry
	unique  map[string]struct{}
	nextID  int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{unique: make(map[string]struct{})}
}

type memoryTx struct {
	s *memoryStore
}

func entryKey(e Entry) string {
	return fmt.Sprintf("%s:%d:%d:%s", e.DocType, e.DocID, e.LineID, e.Direction)
}

// WithTx serializes writers and rolls the store back when fn fails, matching
// the all-or-nothing behaviour of the SQL store.
func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := append([]Entry(nil), s.entries...)
	uniqueSnapshot := make(map[string]struct{}, len(s.unique))
	for k := range s.unique {
		uniqueSnapshot[k] = struct{}{}
	}
	if err := fn(ctx, &memoryTx{s: s}); err != nil {
		s.entries = snapshot
		s.unique = uniqueSnapshot
		return err
	}
	return nil
}

func (s *memoryStore) SumStock(ctx context.Context, productID, warehouseID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(productID, warehouseID), nil
}

func (s *memoryStore) sumLocked(productID, warehouseID int64) float64 {
	var sum float64
	for _, e := range s.entries {
		if e.ProductID == productID && (warehouseID == 0 || e.WarehouseID == warehouseID) {
			sum += e.Qty
		}
	}
	return sum
}

func (s *memoryStore) SumStockTotal(ctx context.Context, productID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(productID, 0), nil
}

func (s *memoryStore) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (t *memoryTx) DB() db.DBTX { return nil }

func (t *memoryTx) HasEntries(ctx context.Context, ref DocRef) (bool, error) {
	for _, e := range t.s.entries {
		if e.DocType == ref.Type && e.DocID == ref.ID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		key := entryKey(e)
		if _, dup := t.s.unique[key]; dup {
			return fmt.Errorf("ledger: %s line %d: %w", DocRef{Type: e.DocType, ID: e.DocID}, e.LineID, shared.ErrAlreadyPosted)
		}
		t.s.unique[key] = struct{}{}
		t.s.nextID++
		e.ID = t.s.nextID
		t.s.entries = append(t.s.entries, e)
	}
	return nil
}

func (t *memoryTx) DeleteEntries(ctx context.Context, ref DocRef) (int64, error) {
	var kept []Entry
	var removed int64
	for _, e := range t.s.entries {
		if e.DocType == ref.Type && e.DocID == ref.ID {
			delete(t.s.unique, entryKey(e))
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.s.entries = kept
	return removed, nil
}

func receiptDoc(id int64, qty float64) Document {
	return Document{
		Type:        DocTypeGoodsReceipt,
		ID:          id,
		WarehouseID: 1,
		Lines:       []Line{{ID: id*10 + 1, ProductID: 7, Qty: qty}},
	}
}

func TestPostingRoundTrip(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := receiptDoc(1, 10)
	res, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.NoError(t, err)
	require.Len(t, res.Posted, 1)

	qty, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)

	res, err = engine.ApplyTransition(ctx, doc, StatusReceived, StatusDraft, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Retracted)

	qty, err = store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	require.InDelta(t, 0, qty, 0.0001)
}

func TestRepostCreatesFreshEntries(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := receiptDoc(1, 4)
	_, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.NoError(t, err)
	_, err = engine.ApplyTransition(ctx, doc, StatusReceived, StatusDraft, nil)
	require.NoError(t, err)

	res, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.NoError(t, err)
	require.False(t, res.AlreadyPosted)
	require.Len(t, res.Posted, 1)

	qty, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	require.InDelta(t, 4, qty, 0.0001)
}

func TestDuplicatePostingIsNoOp(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := receiptDoc(1, 5)
	_, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.NoError(t, err)

	res, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.NoError(t, err)
	require.True(t, res.AlreadyPosted)
	require.Empty(t, res.Posted)

	qty, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	require.InDelta(t, 5, qty, 0.0001)
}

func TestInvalidTransitionNeverTouchesLedger(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := receiptDoc(1, 5)
	_, err := engine.ApplyTransition(ctx, doc, StatusCancelled, StatusReceived, nil)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Empty(t, store.entries)
}

func TestEmptyDocumentCannotPost(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := Document{Type: DocTypeGoodsReceipt, ID: 9, WarehouseID: 1}
	_, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.ErrorIs(t, err, shared.ErrEmptyDocument)

	// Zero-quantity lines never post either.
	doc.Lines = []Line{{ID: 1, ProductID: 7, Qty: 0}}
	_, err = engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.ErrorIs(t, err, shared.ErrEmptyDocument)
}

func TestTransferSymmetry(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	seed := receiptDoc(1, 20)
	_, err := engine.ApplyTransition(ctx, seed, StatusDraft, StatusReceived, nil)
	require.NoError(t, err)

	transfer := Document{
		Type:           DocTypeTransfer,
		ID:             2,
		SrcWarehouseID: 1,
		DstWarehouseID: 2,
		Lines:          []Line{{ID: 21, ProductID: 7, Qty: 6}},
	}
	res, err := engine.ApplyTransition(ctx, transfer, StatusDraft, StatusCompleted, nil)
	require.NoError(t, err)
	require.Len(t, res.Posted, 2)

	src, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	dst, err := store.SumStock(ctx, 7, 2)
	require.NoError(t, err)
	total, err := store.SumStockTotal(ctx, 7)
	require.NoError(t, err)
	require.InDelta(t, 14, src, 0.0001)
	require.InDelta(t, 6, dst, 0.0001)
	require.InDelta(t, 20, total, 0.0001)
}

func TestProductionConsumption(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := Document{
		Type:        DocTypeProductionReceipt,
		ID:          3,
		WarehouseID: 1,
		Lines:       []Line{{ID: 31, ProductID: 100, Qty: 5}},
		Components: []Line{
			{ID: 41, ProductID: 200, Qty: 5},
			{ID: 42, ProductID: 201, Qty: 5},
		},
	}
	res, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusCompleted, nil)
	require.NoError(t, err)
	require.Len(t, res.Posted, 3)

	finished, err := store.SumStock(ctx, 100, 1)
	require.NoError(t, err)
	require.InDelta(t, 5, finished, 0.0001)
	for _, componentID := range []int64{200, 201} {
		qty, err := store.SumStock(ctx, componentID, 1)
		require.NoError(t, err)
		require.InDelta(t, -5, qty, 0.0001)
	}
}

func TestAdjustmentDirectionFollowsVarianceSign(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := Document{
		Type:        DocTypeStockAdjustment,
		ID:          4,
		WarehouseID: 1,
		Lines: []Line{
			{ID: 51, ProductID: 7, Qty: 3},
			{ID: 52, ProductID: 8, Qty: -2},
		},
	}
	res, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusApproved, nil)
	require.NoError(t, err)
	require.Len(t, res.Posted, 2)
	require.Equal(t, DirectionIn, res.Posted[0].Direction)
	require.Equal(t, DirectionOut, res.Posted[1].Direction)

	up, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	down, err := store.SumStock(ctx, 8, 1)
	require.NoError(t, err)
	require.InDelta(t, 3, up, 0.0001)
	require.InDelta(t, -2, down, 0.0001)
}

func TestDeleteRetractsPostedDocument(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := receiptDoc(1, 9)
	_, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
	require.NoError(t, err)

	res, err := engine.Delete(ctx, doc, StatusReceived, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Retracted)

	qty, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	require.InDelta(t, 0, qty, 0.0001)
}

func TestUpdateFailureRollsBackPosting(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	doc := receiptDoc(1, 9)
	boom := fmt.Errorf("status write refused")
	_, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, func(ctx context.Context, q db.DBTX) error {
		return boom
	})
	require.ErrorIs(t, err, shared.ErrOperationFailed)
	require.Empty(t, store.entries)
}

func TestConcurrentPostingsSerialize(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, nil, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i, qty := range []float64{3, 4} {
		wg.Add(1)
		go func(id int64, qty float64) {
			defer wg.Done()
			doc := receiptDoc(id, qty)
			_, err := engine.ApplyTransition(ctx, doc, StatusDraft, StatusReceived, nil)
			require.NoError(t, err)
		}(int64(i+1), qty)
	}
	wg.Wait()

	qty, err := store.SumStock(ctx, 7, 1)
	require.NoError(t, err)
	require.InDelta(t, 7, qty, 0.0001)
}
