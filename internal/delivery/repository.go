package delivery

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

// Repository persists delivery orders.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error
	Create(ctx context.Context, ex db.DBTX, d Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filters Filters) ([]Order, int, error)
	SetStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	Delete(ctx context.Context, ex db.DBTX, id int64) error

	SalesOrderHeader(ctx context.Context, orderID int64) (OrderHeader, error)
	DeliverableLines(ctx context.Context, orderID int64) ([]DeliverableLine, error)
	NextDocNumber(ctx context.Context, ex db.DBTX) (string, error)
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

func (r *repository) NextDocNumber(ctx context.Context, ex db.DBTX) (string, error) {
	var n int64
	if err := r.ex(ex).QueryRow(ctx, `SELECT nextval('doc_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("delivery: next doc number: %w", err)
	}
	return fmt.Sprintf("DO-%06d", n), nil
}

func (r *repository) Create(ctx context.Context, ex db.DBTX, d Order) (Order, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO delivery_orders (doc_number, sales_order_id, customer_id, warehouse_id, status, delivery_date, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		d.DocNumber, d.SalesOrderID, d.CustomerID, d.WarehouseID, d.Status, d.DeliveryDate, d.Notes, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("delivery: insert order: %w", err)
	}
	for i := range d.Lines {
		l := &d.Lines[i]
		l.DeliveryID = d.ID
		err := run.QueryRow(ctx,
			`INSERT INTO delivery_order_lines (delivery_id, order_line_id, product_id, description, qty)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			l.DeliveryID, l.OrderLineID, l.ProductID, l.Description, l.Qty,
		).Scan(&l.ID)
		if err != nil {
			return Order{}, fmt.Errorf("delivery: insert line: %w", err)
		}
	}
	return d, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Order, error) {
	var d Order
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, sales_order_id, customer_id, warehouse_id, status, delivery_date, notes, created_by, created_at, updated_at
		 FROM delivery_orders WHERE id = $1`, id,
	).Scan(&d.ID, &d.DocNumber, &d.SalesOrderID, &d.CustomerID, &d.WarehouseID, &d.Status,
		&d.DeliveryDate, &d.Notes, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("delivery order %d: %w", id, shared.ErrNotFound)
		}
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, delivery_id, order_line_id, product_id, description, qty
		 FROM delivery_order_lines WHERE delivery_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.OrderLineID, &l.ProductID, &l.Description, &l.Qty); err != nil {
			return Order{}, err
		}
		d.Lines = append(d.Lines, l)
	}
	return d, rows.Err()
}

func (r *repository) List(ctx context.Context, filters Filters) ([]Order, int, error) {
	query := `SELECT id, doc_number, sales_order_id, customer_id, warehouse_id, status, delivery_date, created_at FROM delivery_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM delivery_orders WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.SalesOrderID != 0 {
		argCount++
		clause := ` AND sales_order_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.SalesOrderID)
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
		var d Order
		if err := rows.Scan(&d.ID, &d.DocNumber, &d.SalesOrderID, &d.CustomerID, &d.WarehouseID, &d.Status, &d.DeliveryDate, &d.CreatedAt); err != nil {
			return nil, 0, err
		}
		orders = append(orders, d)
	}
	return orders, total, rows.Err()
}

func (r *repository) SetStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	tag, err := r.ex(ex).Exec(ctx,
		`UPDATE delivery_orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("delivery: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.ex(ex).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("delivery order %d: %w", id, shared.ErrNotFound)
		}
		return fmt.Errorf("delivery order %d changed concurrently: %w", id, shared.ErrInvalidTransition)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, ex db.DBTX, id int64) error {
	tag, err := r.ex(ex).Exec(ctx, `DELETE FROM delivery_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delivery: delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery order %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) SalesOrderHeader(ctx context.Context, orderID int64) (OrderHeader, error) {
	var h OrderHeader
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, status FROM sales_orders WHERE id = $1`, orderID,
	).Scan(&h.ID, &h.CustomerID, &h.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderHeader{}, fmt.Errorf("sales order %d: %w", orderID, shared.ErrNotFound)
		}
		return OrderHeader{}, err
	}
	return h, nil
}

// DeliverableLines sums delivery quantities already booked against each
// order line, excluding cancelled deliveries.
func (r *repository) DeliverableLines(ctx context.Context, orderID int64) ([]DeliverableLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ol.id, ol.product_id, ol.description, ol.qty,
		        COALESCE(SUM(dl.qty) FILTER (WHERE d.status <> 'CANCELLED'), 0)
		 FROM sales_order_lines ol
		 LEFT JOIN delivery_order_lines dl ON dl.order_line_id = ol.id
		 LEFT JOIN delivery_orders d ON d.id = dl.delivery_id
		 WHERE ol.order_id = $1
		 GROUP BY ol.id, ol.product_id, ol.description, ol.qty
		 ORDER BY ol.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("delivery: deliverable lines: %w", err)
	}
	defer rows.Close()

	var lines []DeliverableLine
	for rows.Next() {
		var l DeliverableLine
		if err := rows.Scan(&l.OrderLineID, &l.ProductID, &l.Description, &l.Ordered, &l.Delivered); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
