package production

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Repository persists production records.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error

	CreateBOM(ctx context.Context, b BOM) (BOM, error)
	GetBOM(ctx context.Context, id int64) (BOM, error)
	ListBOMs(ctx context.Context, filters Filters) ([]BOM, int, error)

	CreateOrder(ctx context.Context, ex db.DBTX, o Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filters Filters) ([]Order, int, error)
	SetOrderStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error

	CreateReceipt(ctx context.Context, ex db.DBTX, rc Receipt) (Receipt, error)
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	SetReceiptStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteReceipt(ctx context.Context, ex db.DBTX, id int64) error

	NextDocNumber(ctx context.Context, ex db.DBTX, prefix string) (string, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ex(ex db.DBTX) db.DBTX {
	if ex != nil {
		return ex
	}
	return r.pool
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

func (r *repository) NextDocNumber(ctx context.Context, ex db.DBTX, prefix string) (string, error) {
	var n int64
	if err := r.ex(ex).QueryRow(ctx, `SELECT nextval('doc_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("production: next doc number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}

func (r *repository) CreateBOM(ctx context.Context, b BOM) (BOM, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO boms (code, name, product_id, is_active)
			 VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
			b.Code, b.Name, b.ProductID, b.IsActive,
		).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("bom code %q already used: %w", b.Code, shared.ErrDuplicate)
			}
			return fmt.Errorf("production: insert bom: %w", err)
		}
		for i := range b.Components {
			c := &b.Components[i]
			c.BOMID = b.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO bom_components (bom_id, product_id, qty) VALUES ($1, $2, $3) RETURNING id`,
				c.BOMID, c.ProductID, c.Qty,
			).Scan(&c.ID)
			if err != nil {
				return fmt.Errorf("production: insert bom component: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	return b, nil
}

func (r *repository) GetBOM(ctx context.Context, id int64) (BOM, error) {
	var b BOM
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, product_id, is_active, created_at, updated_at FROM boms WHERE id = $1`, id,
	).Scan(&b.ID, &b.Code, &b.Name, &b.ProductID, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, fmt.Errorf("bom %d: %w", id, shared.ErrNotFound)
		}
		return BOM{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, bom_id, product_id, qty FROM bom_components WHERE bom_id = $1 ORDER BY id`, id)
	if err != nil {
		return BOM{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var c BOMComponent
		if err := rows.Scan(&c.ID, &c.BOMID, &c.ProductID, &c.Qty); err != nil {
			return BOM{}, err
		}
		b.Components = append(b.Components, c)
	}
	return b, rows.Err()
}

func (r *repository) ListBOMs(ctx context.Context, filters Filters) ([]BOM, int, error) {
	query := `SELECT id, code, name, product_id, is_active, created_at FROM boms WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM boms WHERE 1=1`
	args := []interface{}{}
	if filters.ProductID != 0 {
		query += ` AND product_id = $1`
		countQuery += ` AND product_id = $1`
		args = append(args, filters.ProductID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY code ASC LIMIT %d OFFSET %d`, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var boms []BOM
	for rows.Next() {
		var b BOM
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.ProductID, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, 0, err
		}
		boms = append(boms, b)
	}
	return boms, total, rows.Err()
}

func (r *repository) CreateOrder(ctx context.Context, ex db.DBTX, o Order) (Order, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO production_orders (doc_number, bom_id, product_id, warehouse_id, qty_to_produce, status, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		o.DocNumber, o.BOMID, o.ProductID, o.WarehouseID, o.QtyToProduce, o.Status, o.Notes, o.CreatedBy,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("production: insert order: %w", err)
	}
	for i := range o.Components {
		c := &o.Components[i]
		c.OrderID = o.ID
		err := run.QueryRow(ctx,
			`INSERT INTO production_order_components (order_id, product_id, qty) VALUES ($1, $2, $3) RETURNING id`,
			c.OrderID, c.ProductID, c.Qty,
		).Scan(&c.ID)
		if err != nil {
			return Order{}, fmt.Errorf("production: insert order component: %w", err)
		}
	}
	return o, nil
}

func (r *repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, bom_id, product_id, warehouse_id, qty_to_produce, status, notes, created_by, created_at, updated_at
		 FROM production_orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.DocNumber, &o.BOMID, &o.ProductID, &o.WarehouseID, &o.QtyToProduce, &o.Status,
		&o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("production order %d: %w", id, shared.ErrNotFound)
		}
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, qty FROM production_order_components WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var c OrderComponent
		if err := rows.Scan(&c.ID, &c.OrderID, &c.ProductID, &c.Qty); err != nil {
			return Order{}, err
		}
		o.Components = append(o.Components, c)
	}
	return o, rows.Err()
}

func (r *repository) ListOrders(ctx context.Context, filters Filters) ([]Order, int, error) {
	query := `SELECT id, doc_number, bom_id, product_id, warehouse_id, qty_to_produce, status, created_at FROM production_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM production_orders WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.ProductID != 0 {
		argCount++
		clause := ` AND product_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.ProductID)
	}
	if filters.Status != "" {
		argCount++
		clause := ` AND status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.DocNumber, &o.BOMID, &o.ProductID, &o.WarehouseID, &o.QtyToProduce, &o.Status, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) SetOrderStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "production_orders", "production order", id, from, to)
}

// CreateReceipt relies on the partial unique index over
// production_receipts.order_id (non-cancelled rows) to cap each production
// order at one receipt.
func (r *repository) CreateReceipt(ctx context.Context, ex db.DBTX, rc Receipt) (Receipt, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO production_receipts (doc_number, order_id, product_id, warehouse_id, qty_produced, status, receipt_date, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		rc.DocNumber, rc.OrderID, rc.ProductID, rc.WarehouseID, rc.QtyProduced, rc.Status, rc.ReceiptDate, rc.CreatedBy,
	).Scan(&rc.ID, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Receipt{}, fmt.Errorf("production order %d already has a receipt: %w", rc.OrderID, shared.ErrDuplicateSuccessor)
		}
		return Receipt{}, fmt.Errorf("production: insert receipt: %w", err)
	}
	for i := range rc.Components {
		c := &rc.Components[i]
		c.ReceiptID = rc.ID
		err := run.QueryRow(ctx,
			`INSERT INTO production_receipt_components (receipt_id, product_id, qty) VALUES ($1, $2, $3) RETURNING id`,
			c.ReceiptID, c.ProductID, c.Qty,
		).Scan(&c.ID)
		if err != nil {
			return Receipt{}, fmt.Errorf("production: insert receipt component: %w", err)
		}
	}
	return rc, nil
}

func (r *repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var rc Receipt
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, order_id, product_id, warehouse_id, qty_produced, status, receipt_date, created_by, created_at, updated_at
		 FROM production_receipts WHERE id = $1`, id,
	).Scan(&rc.ID, &rc.DocNumber, &rc.OrderID, &rc.ProductID, &rc.WarehouseID, &rc.QtyProduced, &rc.Status,
		&rc.ReceiptDate, &rc.CreatedBy, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, fmt.Errorf("production receipt %d: %w", id, shared.ErrNotFound)
		}
		return Receipt{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, receipt_id, product_id, qty FROM production_receipt_components WHERE receipt_id = $1 ORDER BY id`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var c ReceiptComponent
		if err := rows.Scan(&c.ID, &c.ReceiptID, &c.ProductID, &c.Qty); err != nil {
			return Receipt{}, err
		}
		rc.Components = append(rc.Components, c)
	}
	return rc, rows.Err()
}

func (r *repository) SetReceiptStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "production_receipts", "production receipt", id, from, to)
}

func (r *repository) DeleteReceipt(ctx context.Context, ex db.DBTX, id int64) error {
	tag, err := r.ex(ex).Exec(ctx, `DELETE FROM production_receipts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("production: delete receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("production receipt %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) setStatus(ctx context.Context, ex db.DBTX, table, label string, id int64, from, to ledger.Status) error {
	tag, err := r.ex(ex).Exec(ctx,
		`UPDATE `+table+` SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("production: update %s status: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.ex(ex).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s %d: %w", label, id, shared.ErrNotFound)
		}
		return fmt.Errorf("%s %d changed concurrently: %w", label, id, shared.ErrInvalidTransition)
	}
	return nil
}
