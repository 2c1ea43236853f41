package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/ledger/ledgertest"
)

type fakeAggregator struct {
	levels []Aggregate
}

func (f *fakeAggregator) StockLevels(_ context.Context) ([]Aggregate, error) {
	return f.levels, nil
}

func TestSnapshotRebuildPrimesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// The view's backing store stays empty so any hit must come from the
	// primed cache.
	view := ledger.NewStockView(ledgertest.NewMemoryStore(), client, time.Minute, logger)
	agg := &fakeAggregator{levels: []Aggregate{
		{ProductID: 1, WarehouseID: 1, Qty: 4},
		{ProductID: 1, WarehouseID: 2, Qty: 6},
		{ProductID: 2, WarehouseID: 1, Qty: -3},
	}}

	rebuilder := NewSnapshotRebuilder(agg, view, logger)
	n, err := rebuilder.Rebuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	ctx := context.Background()
	qty, err := view.StockOf(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 4.0, qty)
	qty, err = view.StockOf(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 6.0, qty)
	total, err := view.TotalStockOf(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 10.0, total)
	total, err = view.TotalStockOf(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, -3.0, total)
}
