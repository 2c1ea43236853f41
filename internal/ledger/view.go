package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// StockView answers current-stock queries by aggregating the ledger. It is a
// pure read path; a Redis materialization fronts the SUM queries but is never
// authoritative and is invalidated on every posting and retraction.
type StockView struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewStockView builds StockView. client may be nil, which disables caching.
func NewStockView(store Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *StockView {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StockView{store: store, client: client, ttl: ttl, logger: logger}
}

func stockKey(productID, warehouseID int64) string {
	return fmt.Sprintf("stock:p:%d:w:%d", productID, warehouseID)
}

func totalStockKey(productID int64) string {
	return fmt.Sprintf("stock:p:%d:total", productID)
}

// StockOf returns current stock for one (product, warehouse) pair.
func (v *StockView) StockOf(ctx context.Context, productID, warehouseID int64) (float64, error) {
	return v.lookup(ctx, stockKey(productID, warehouseID), func(ctx context.Context) (float64, error) {
		return v.store.SumStock(ctx, productID, warehouseID)
	})
}

// TotalStockOf returns current stock for a product across all warehouses.
func (v *StockView) TotalStockOf(ctx context.Context, productID int64) (float64, error) {
	return v.lookup(ctx, totalStockKey(productID), func(ctx context.Context) (float64, error) {
		return v.store.SumStockTotal(ctx, productID)
	})
}

// lookup serves from cache when possible; concurrent misses for one key are
// collapsed into a single aggregate query.
func (v *StockView) lookup(ctx context.Context, key string, compute func(context.Context) (float64, error)) (float64, error) {
	if qty, ok := v.cached(ctx, key); ok {
		return qty, nil
	}
	val, err, _ := v.group.Do(key, func() (interface{}, error) {
		qty, err := compute(ctx)
		if err != nil {
			return 0.0, err
		}
		v.remember(ctx, key, qty)
		return qty, nil
	})
	if err != nil {
		return 0, err
	}
	return val.(float64), nil
}

// Invalidate drops cached aggregates for the given pairs and their totals.
func (v *StockView) Invalidate(ctx context.Context, keys []StockKey) error {
	if v.client == nil || len(keys) == 0 {
		return nil
	}
	cacheKeys := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		cacheKeys = append(cacheKeys, stockKey(k.ProductID, k.WarehouseID), totalStockKey(k.ProductID))
	}
	return v.client.Del(ctx, cacheKeys...).Err()
}

// Prime overwrites the cached aggregate for one (product, warehouse) pair.
// The snapshot rebuild job uses it to re-materialize the cache from the
// ledger in bulk.
func (v *StockView) Prime(ctx context.Context, key StockKey, qty float64) {
	v.remember(ctx, stockKey(key.ProductID, key.WarehouseID), qty)
}

// PrimeTotal overwrites the cached all-warehouse total for a product.
func (v *StockView) PrimeTotal(ctx context.Context, productID int64, qty float64) {
	v.remember(ctx, totalStockKey(productID), qty)
}

func (v *StockView) cached(ctx context.Context, key string) (float64, bool) {
	if v.client == nil {
		return 0, false
	}
	val, err := v.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil && v.logger != nil {
			v.logger.Warn("stock cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return 0, false
	}
	qty, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return qty, true
}

func (v *StockView) remember(ctx context.Context, key string, qty float64) {
	if v.client == nil {
		return
	}
	if err := v.client.Set(ctx, key, strconv.FormatFloat(qty, 'f', -1, 64), v.ttl).Err(); err != nil && v.logger != nil {
		v.logger.Warn("stock cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
