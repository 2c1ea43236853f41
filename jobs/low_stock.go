package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/masterdata"
)

// catalogLimit bounds how many products and warehouses one scan loads.
const catalogLimit = 10000

// Catalog is the masterdata slice the scan needs.
type Catalog interface {
	ListProducts(ctx context.Context, filters masterdata.ListFilters) ([]masterdata.Product, int, error)
	ListWarehouses(ctx context.Context, filters masterdata.ListFilters) ([]masterdata.Warehouse, int, error)
}

// LowStockAlert flags a product whose derived stock fell below its minimum.
type LowStockAlert struct {
	ProductID int64   `json:"product_id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Minimum   float64 `json:"minimum"`
	OnHand    float64 `json:"on_hand"`
}

// LowStockScanner sums ledger stock per product across all active warehouses
// and compares the result against each product's minimum.
type LowStockScanner struct {
	catalog Catalog
	store   ledger.Store
	logger  *slog.Logger
}

// NewLowStockScanner constructs LowStockScanner.
func NewLowStockScanner(catalog Catalog, store ledger.Store, logger *slog.Logger) *LowStockScanner {
	return &LowStockScanner{catalog: catalog, store: store, logger: logger}
}

// Scan aggregates stock warehouse by warehouse, one goroutine per warehouse.
func (s *LowStockScanner) Scan(ctx context.Context) ([]LowStockAlert, error) {
	active := true
	products, _, err := s.catalog.ListProducts(ctx, masterdata.ListFilters{IsActive: &active, Limit: catalogLimit})
	if err != nil {
		return nil, err
	}
	warehouses, _, err := s.catalog.ListWarehouses(ctx, masterdata.ListFilters{IsActive: &active, Limit: catalogLimit})
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	totals := make(map[int64]float64, len(products))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, w := range warehouses {
		g.Go(func() error {
			for _, p := range products {
				qty, err := s.store.SumStock(ctx, p.ID, w.ID)
				if err != nil {
					return err
				}
				mu.Lock()
				totals[p.ID] += qty
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var alerts []LowStockAlert
	for _, p := range products {
		if p.MinimumStock <= 0 {
			continue
		}
		if onHand := totals[p.ID]; onHand < p.MinimumStock {
			alerts = append(alerts, LowStockAlert{
				ProductID: p.ID,
				Code:      p.Code,
				Name:      p.Name,
				Minimum:   p.MinimumStock,
				OnHand:    onHand,
			})
		}
	}
	return alerts, nil
}

// HandleTask processes TaskLowStockScan.
func (s *LowStockScanner) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	alerts, err := s.Scan(ctx)
	if err != nil {
		return err
	}
	for _, a := range alerts {
		s.logger.Warn("product below minimum stock",
			slog.String("run_id", payload.RunID),
			slog.Int64("product_id", a.ProductID),
			slog.String("code", a.Code),
			slog.Float64("on_hand", a.OnHand),
			slog.Float64("minimum", a.Minimum))
	}
	s.logger.Info("low stock scan finished",
		slog.String("run_id", payload.RunID), slog.Int("alerts", len(alerts)))
	return nil
}
