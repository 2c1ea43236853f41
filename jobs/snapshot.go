package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger"
)

// Aggregate is one (product, warehouse) stock sum read from the ledger.
type Aggregate struct {
	ProductID   int64
	WarehouseID int64
	Qty         float64
}

// StockAggregator yields the current per-pair stock sums.
type StockAggregator interface {
	StockLevels(ctx context.Context) ([]Aggregate, error)
}

// PGAggregator groups the stock ledger in SQL.
type PGAggregator struct {
	pool *pgxpool.Pool
}

// NewPGAggregator constructs PGAggregator.
func NewPGAggregator(pool *pgxpool.Pool) *PGAggregator {
	return &PGAggregator{pool: pool}
}

func (a *PGAggregator) StockLevels(ctx context.Context) ([]Aggregate, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT product_id, warehouse_id, SUM(qty) FROM stock_ledger GROUP BY product_id, warehouse_id`)
	if err != nil {
		return nil, fmt.Errorf("jobs: aggregate stock: %w", err)
	}
	defer rows.Close()

	var levels []Aggregate
	for rows.Next() {
		var l Aggregate
		if err := rows.Scan(&l.ProductID, &l.WarehouseID, &l.Qty); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// SnapshotRebuilder re-primes the stock view cache from the ledger. The
// snapshot is a convenience for readers; the ledger stays authoritative.
type SnapshotRebuilder struct {
	agg    StockAggregator
	view   *ledger.StockView
	logger *slog.Logger
}

// NewSnapshotRebuilder constructs SnapshotRebuilder.
func NewSnapshotRebuilder(agg StockAggregator, view *ledger.StockView, logger *slog.Logger) *SnapshotRebuilder {
	return &SnapshotRebuilder{agg: agg, view: view, logger: logger}
}

// Rebuild primes every per-pair aggregate and the per-product totals,
// returning how many pairs were written.
func (r *SnapshotRebuilder) Rebuild(ctx context.Context) (int, error) {
	levels, err := r.agg.StockLevels(ctx)
	if err != nil {
		return 0, err
	}

	totals := make(map[int64]float64)
	for _, l := range levels {
		r.view.Prime(ctx, ledger.StockKey{ProductID: l.ProductID, WarehouseID: l.WarehouseID}, l.Qty)
		totals[l.ProductID] += l.Qty
	}
	for productID, qty := range totals {
		r.view.PrimeTotal(ctx, productID, qty)
	}
	return len(levels), nil
}

// HandleTask processes TaskStockSnapshot.
func (r *SnapshotRebuilder) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	n, err := r.Rebuild(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("stock snapshot rebuilt",
		slog.String("run_id", payload.RunID), slog.Int("pairs", n))
	return nil
}
