package ledger

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// TxStore exposes the ledger writes available inside one transaction. DB
// returns the underlying transaction handle so document repositories can
// persist the status change atomically with the posting.
type TxStore interface {
	DB() db.DBTX
	HasEntries(ctx context.Context, ref DocRef) (bool, error)
	InsertEntries(ctx context.Context, entries []Entry) error
	DeleteEntries(ctx context.Context, ref DocRef) (int64, error)
}

// Store abstracts ledger persistence for the engine and the stock view.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	SumStock(ctx context.Context, productID, warehouseID int64) (float64, error)
	SumStockTotal(ctx context.Context, productID int64) (float64, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
}

// PGStore persists ledger entries in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

type pgTxStore struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if s == nil {
		return errors.New("ledger store not initialised")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &pgTxStore{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) SumStock(ctx context.Context, productID, warehouseID int64) (float64, error) {
	var qty float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(qty), 0) FROM stock_ledger WHERE product_id = $1 AND warehouse_id = $2`,
		productID, warehouseID,
	).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("ledger: sum stock: %w", err)
	}
	return qty, nil
}

func (s *PGStore) SumStockTotal(ctx context.Context, productID int64) (float64, error) {
	var qty float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(qty), 0) FROM stock_ledger WHERE product_id = $1`,
		productID,
	).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("ledger: sum total stock: %w", err)
	}
	return qty, nil
}

// ListEntries returns ledger entries matching the filter, newest first.
func (s *PGStore) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	builder := sq.Select("id", "doc_type", "doc_id", "line_id", "direction", "product_id", "warehouse_id", "qty", "posted_at").
		From("stock_ledger").
		OrderBy("posted_at DESC", "id DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.ProductID != 0 {
		builder = builder.Where(sq.Eq{"product_id": filter.ProductID})
	}
	if filter.WarehouseID != 0 {
		builder = builder.Where(sq.Eq{"warehouse_id": filter.WarehouseID})
	}
	if filter.DocType != "" {
		builder = builder.Where(sq.Eq{"doc_type": filter.DocType})
	}
	if !filter.From.IsZero() {
		builder = builder.Where(sq.GtOrEq{"posted_at": filter.From})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(sq.LtOrEq{"posted_at": filter.To})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ledger: build list query: %w", err)
	}

	var entries []Entry
	if err := pgxscan.Select(ctx, s.pool, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	return entries, nil
}

func (t *pgTxStore) DB() db.DBTX {
	return t.tx
}

func (t *pgTxStore) HasEntries(ctx context.Context, ref DocRef) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_ledger WHERE doc_type = $1 AND doc_id = $2)`,
		ref.Type, ref.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: check entries: %w", err)
	}
	return exists, nil
}

// InsertEntries appends all entries for one document transition. The unique
// key on (doc_type, doc_id, line_id, direction) turns a concurrent duplicate
// posting into ErrAlreadyPosted instead of a double entry.
func (t *pgTxStore) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO stock_ledger (doc_type, doc_id, line_id, direction, product_id, warehouse_id, qty, posted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.DocType, e.DocID, e.LineID, e.Direction, e.ProductID, e.WarehouseID, e.Qty, e.PostedAt,
		)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("ledger: %s line %d: %w", DocRef{Type: e.DocType, ID: e.DocID}, e.LineID, shared.ErrAlreadyPosted)
			}
			return fmt.Errorf("ledger: insert entry: %w", err)
		}
	}
	return nil
}

func (t *pgTxStore) DeleteEntries(ctx context.Context, ref DocRef) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM stock_ledger WHERE doc_type = $1 AND doc_id = $2`,
		ref.Type, ref.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete entries for %s: %w", ref, err)
	}
	return tag.RowsAffected(), nil
}
