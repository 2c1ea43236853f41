package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/ledger/ledgertest"
	"github.com/meridian-erp/meridian/internal/masterdata"
)

type fakeCatalog struct {
	products   []masterdata.Product
	warehouses []masterdata.Warehouse
}

func (f *fakeCatalog) ListProducts(_ context.Context, _ masterdata.ListFilters) ([]masterdata.Product, int, error) {
	return f.products, len(f.products), nil
}

func (f *fakeCatalog) ListWarehouses(_ context.Context, _ masterdata.ListFilters) ([]masterdata.Warehouse, int, error) {
	return f.warehouses, len(f.warehouses), nil
}

func seedEntries(t *testing.T, store *ledgertest.MemoryStore, entries []ledger.Entry) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.TxStore) error {
		return tx.InsertEntries(ctx, entries)
	})
	require.NoError(t, err)
}

func TestLowStockScan(t *testing.T) {
	store := ledgertest.NewMemoryStore()
	catalog := &fakeCatalog{
		products: []masterdata.Product{
			{ID: 1, Code: "P-001", Name: "Bolt", MinimumStock: 10},
			{ID: 2, Code: "P-002", Name: "Nut", MinimumStock: 1},
			{ID: 3, Code: "P-003", Name: "Washer"}, // no minimum, never alerts
		},
		warehouses: []masterdata.Warehouse{{ID: 1}, {ID: 2}},
	}
	now := time.Now().UTC()
	seedEntries(t, store, []ledger.Entry{
		{DocType: ledger.DocTypeGoodsReceipt, DocID: 1, LineID: 1, Direction: ledger.DirectionIn, ProductID: 1, WarehouseID: 1, Qty: 3, PostedAt: now},
		{DocType: ledger.DocTypeGoodsReceipt, DocID: 2, LineID: 1, Direction: ledger.DirectionIn, ProductID: 1, WarehouseID: 2, Qty: 1, PostedAt: now},
		{DocType: ledger.DocTypeGoodsReceipt, DocID: 3, LineID: 1, Direction: ledger.DirectionIn, ProductID: 2, WarehouseID: 1, Qty: 5, PostedAt: now},
	})

	scanner := NewLowStockScanner(catalog, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	alerts, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	require.Equal(t, int64(1), alerts[0].ProductID)
	require.Equal(t, 4.0, alerts[0].OnHand)
	require.Equal(t, 10.0, alerts[0].Minimum)
}

func TestLowStockScanEmptyCatalog(t *testing.T) {
	scanner := NewLowStockScanner(&fakeCatalog{}, ledgertest.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	alerts, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, alerts)
}
