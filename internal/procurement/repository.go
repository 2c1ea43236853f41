package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Repository persists procurement documents. Methods taking a db.DBTX run
// against that handle; passing nil uses the pool directly.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error

	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filters DocFilters) ([]Order, int, error)
	SetOrderStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error

	CreateReceipt(ctx context.Context, ex db.DBTX, rc Receipt) (Receipt, error)
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	ListReceipts(ctx context.Context, filters DocFilters) ([]Receipt, int, error)
	SetReceiptStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteReceipt(ctx context.Context, ex db.DBTX, id int64) error

	CreateReturn(ctx context.Context, ex db.DBTX, ret Return) (Return, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	SetReturnStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteReturn(ctx context.Context, ex db.DBTX, id int64) error

	CreateInvoice(ctx context.Context, ex db.DBTX, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	SetInvoiceStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error

	ReceivableLines(ctx context.Context, orderID int64) ([]RemainingLine, error)
	ReturnableLines(ctx context.Context, orderID int64) ([]RemainingLine, error)
	InvoiceableLines(ctx context.Context, orderID int64) ([]RemainingLine, error)

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
		return "", fmt.Errorf("procurement: next doc number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}

func (r *repository) CreateOrder(ctx context.Context, o Order) (Order, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO purchase_orders (doc_number, supplier_id, status, order_date, expected_date, subtotal, tax, grand_total, notes, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id, created_at, updated_at`,
			o.DocNumber, o.SupplierID, o.Status, o.OrderDate, o.ExpectedDate,
			o.Subtotal.String(), o.Tax.String(), o.GrandTotal.String(), o.Notes, o.CreatedBy,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("procurement: insert purchase order: %w", err)
		}
		for i := range o.Lines {
			l := &o.Lines[i]
			l.OrderID = o.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO purchase_order_lines (order_id, product_id, description, qty, unit_price, tax_percent, line_total)
				 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
				l.OrderID, l.ProductID, l.Description, l.Qty,
				l.UnitPrice.String(), l.TaxPercent.String(), l.LineTotal.String(),
			).Scan(&l.ID)
			if err != nil {
				return fmt.Errorf("procurement: insert purchase order line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	var subtotal, tax, grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, supplier_id, status, order_date, expected_date, subtotal::text, tax::text, grand_total::text, notes, created_by, created_at, updated_at
		 FROM purchase_orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.DocNumber, &o.SupplierID, &o.Status, &o.OrderDate, &o.ExpectedDate,
		&subtotal, &tax, &grand, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
		}
		return Order{}, err
	}
	if o.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return Order{}, err
	}
	if o.Tax, err = decimal.NewFromString(tax); err != nil {
		return Order{}, err
	}
	if o.GrandTotal, err = decimal.NewFromString(grand); err != nil {
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, description, qty, unit_price::text, tax_percent::text, line_total::text
		 FROM purchase_order_lines WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		var price, taxPct, lineTotal string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Description, &l.Qty, &price, &taxPct, &lineTotal); err != nil {
			return Order{}, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return Order{}, err
		}
		if l.TaxPercent, err = decimal.NewFromString(taxPct); err != nil {
			return Order{}, err
		}
		if l.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (r *repository) ListOrders(ctx context.Context, filters DocFilters) ([]Order, int, error) {
	query := `SELECT id, doc_number, supplier_id, status, order_date, expected_date, grand_total::text, created_at FROM purchase_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.SupplierID != 0 {
		argCount++
		clause := ` AND supplier_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.SupplierID)
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
		var grand string
		if err := rows.Scan(&o.ID, &o.DocNumber, &o.SupplierID, &o.Status, &o.OrderDate, &o.ExpectedDate, &grand, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		if o.GrandTotal, err = decimal.NewFromString(grand); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) SetOrderStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "purchase_orders", "purchase order", id, from, to)
}

func (r *repository) CreateReceipt(ctx context.Context, ex db.DBTX, rc Receipt) (Receipt, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO goods_receipts (doc_number, order_id, supplier_id, warehouse_id, status, receipt_date, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		rc.DocNumber, rc.OrderID, rc.SupplierID, rc.WarehouseID, rc.Status, rc.ReceiptDate, rc.Notes, rc.CreatedBy,
	).Scan(&rc.ID, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		return Receipt{}, fmt.Errorf("procurement: insert receipt: %w", err)
	}
	for i := range rc.Lines {
		l := &rc.Lines[i]
		l.ReceiptID = rc.ID
		err := run.QueryRow(ctx,
			`INSERT INTO goods_receipt_lines (receipt_id, order_line_id, product_id, description, qty, unit_cost)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			l.ReceiptID, l.OrderLineID, l.ProductID, l.Description, l.Qty, l.UnitCost.String(),
		).Scan(&l.ID)
		if err != nil {
			return Receipt{}, fmt.Errorf("procurement: insert receipt line: %w", err)
		}
	}
	return rc, nil
}

func (r *repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var rc Receipt
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, order_id, supplier_id, warehouse_id, status, receipt_date, notes, created_by, created_at, updated_at
		 FROM goods_receipts WHERE id = $1`, id,
	).Scan(&rc.ID, &rc.DocNumber, &rc.OrderID, &rc.SupplierID, &rc.WarehouseID, &rc.Status,
		&rc.ReceiptDate, &rc.Notes, &rc.CreatedBy, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, fmt.Errorf("goods receipt %d: %w", id, shared.ErrNotFound)
		}
		return Receipt{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, receipt_id, order_line_id, product_id, description, qty, unit_cost::text
		 FROM goods_receipt_lines WHERE receipt_id = $1 ORDER BY id`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReceiptLine
		var cost string
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.OrderLineID, &l.ProductID, &l.Description, &l.Qty, &cost); err != nil {
			return Receipt{}, err
		}
		if l.UnitCost, err = decimal.NewFromString(cost); err != nil {
			return Receipt{}, err
		}
		rc.Lines = append(rc.Lines, l)
	}
	return rc, rows.Err()
}

func (r *repository) ListReceipts(ctx context.Context, filters DocFilters) ([]Receipt, int, error) {
	query := `SELECT id, doc_number, order_id, supplier_id, warehouse_id, status, receipt_date, created_at FROM goods_receipts WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM goods_receipts WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.SupplierID != 0 {
		argCount++
		clause := ` AND supplier_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.SupplierID)
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

	var receipts []Receipt
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.DocNumber, &rc.OrderID, &rc.SupplierID, &rc.WarehouseID, &rc.Status, &rc.ReceiptDate, &rc.CreatedAt); err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, total, rows.Err()
}

func (r *repository) SetReceiptStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "goods_receipts", "goods receipt", id, from, to)
}

func (r *repository) DeleteReceipt(ctx context.Context, ex db.DBTX, id int64) error {
	return r.deleteDoc(ctx, ex, "goods_receipts", "goods receipt", id)
}

func (r *repository) CreateReturn(ctx context.Context, ex db.DBTX, ret Return) (Return, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO purchase_returns (doc_number, order_id, supplier_id, warehouse_id, status, return_date, grand_total, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		ret.DocNumber, ret.OrderID, ret.SupplierID, ret.WarehouseID, ret.Status, ret.ReturnDate,
		ret.GrandTotal.String(), ret.Notes, ret.CreatedBy,
	).Scan(&ret.ID, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		return Return{}, fmt.Errorf("procurement: insert return: %w", err)
	}
	for i := range ret.Lines {
		l := &ret.Lines[i]
		l.ReturnID = ret.ID
		err := run.QueryRow(ctx,
			`INSERT INTO purchase_return_lines (return_id, order_line_id, product_id, qty, unit_cost)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			l.ReturnID, l.OrderLineID, l.ProductID, l.Qty, l.UnitCost.String(),
		).Scan(&l.ID)
		if err != nil {
			return Return{}, fmt.Errorf("procurement: insert return line: %w", err)
		}
	}
	return ret, nil
}

func (r *repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	var ret Return
	var grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, order_id, supplier_id, warehouse_id, status, return_date, grand_total::text, notes, created_by, created_at, updated_at
		 FROM purchase_returns WHERE id = $1`, id,
	).Scan(&ret.ID, &ret.DocNumber, &ret.OrderID, &ret.SupplierID, &ret.WarehouseID, &ret.Status,
		&ret.ReturnDate, &grand, &ret.Notes, &ret.CreatedBy, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, fmt.Errorf("purchase return %d: %w", id, shared.ErrNotFound)
		}
		return Return{}, err
	}
	if ret.GrandTotal, err = decimal.NewFromString(grand); err != nil {
		return Return{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, return_id, order_line_id, product_id, qty, unit_cost::text
		 FROM purchase_return_lines WHERE return_id = $1 ORDER BY id`, id)
	if err != nil {
		return Return{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReturnLine
		var cost string
		if err := rows.Scan(&l.ID, &l.ReturnID, &l.OrderLineID, &l.ProductID, &l.Qty, &cost); err != nil {
			return Return{}, err
		}
		if l.UnitCost, err = decimal.NewFromString(cost); err != nil {
			return Return{}, err
		}
		ret.Lines = append(ret.Lines, l)
	}
	return ret, rows.Err()
}

func (r *repository) SetReturnStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "purchase_returns", "purchase return", id, from, to)
}

func (r *repository) DeleteReturn(ctx context.Context, ex db.DBTX, id int64) error {
	return r.deleteDoc(ctx, ex, "purchase_returns", "purchase return", id)
}

func (r *repository) CreateInvoice(ctx context.Context, ex db.DBTX, inv Invoice) (Invoice, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO ap_invoices (doc_number, supplier_id, order_id, status, invoice_date, due_date, subtotal, tax, grand_total, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		inv.DocNumber, inv.SupplierID, inv.OrderID, inv.Status, inv.InvoiceDate, inv.DueDate,
		inv.Subtotal.String(), inv.Tax.String(), inv.GrandTotal.String(), inv.Notes, inv.CreatedBy,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, fmt.Errorf("procurement: insert ap invoice: %w", err)
	}
	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.InvoiceID = inv.ID
		err := run.QueryRow(ctx,
			`INSERT INTO ap_invoice_lines (invoice_id, order_line_id, product_id, description, qty, unit_price, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			l.InvoiceID, l.OrderLineID, l.ProductID, l.Description, l.Qty, l.UnitPrice.String(), l.LineTotal.String(),
		).Scan(&l.ID)
		if err != nil {
			return Invoice{}, fmt.Errorf("procurement: insert ap invoice line: %w", err)
		}
	}
	return inv, nil
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	var subtotal, tax, grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, supplier_id, order_id, status, invoice_date, due_date, subtotal::text, tax::text, grand_total::text, notes, created_by, created_at, updated_at
		 FROM ap_invoices WHERE id = $1`, id,
	).Scan(&inv.ID, &inv.DocNumber, &inv.SupplierID, &inv.OrderID, &inv.Status, &inv.InvoiceDate, &inv.DueDate,
		&subtotal, &tax, &grand, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("ap invoice %d: %w", id, shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	if inv.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return Invoice{}, err
	}
	if inv.Tax, err = decimal.NewFromString(tax); err != nil {
		return Invoice{}, err
	}
	if inv.GrandTotal, err = decimal.NewFromString(grand); err != nil {
		return Invoice{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, invoice_id, order_line_id, product_id, description, qty, unit_price::text, line_total::text
		 FROM ap_invoice_lines WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l InvoiceLine
		var price, lineTotal string
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.OrderLineID, &l.ProductID, &l.Description, &l.Qty, &price, &lineTotal); err != nil {
			return Invoice{}, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return Invoice{}, err
		}
		if l.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

func (r *repository) SetInvoiceStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "ap_invoices", "ap invoice", id, from, to)
}

// ReceivableLines reports per purchase order line how much was already
// received on non-cancelled PO-based receipts.
func (r *repository) ReceivableLines(ctx context.Context, orderID int64) ([]RemainingLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ol.id, ol.product_id, ol.description, ol.unit_price::text, ol.qty,
		        COALESCE(SUM(gl.qty) FILTER (WHERE gr.status <> 'CANCELLED'), 0)
		 FROM purchase_order_lines ol
		 LEFT JOIN goods_receipt_lines gl ON gl.order_line_id = ol.id
		 LEFT JOIN goods_receipts gr ON gr.id = gl.receipt_id
		 WHERE ol.order_id = $1
		 GROUP BY ol.id, ol.product_id, ol.description, ol.unit_price, ol.qty
		 ORDER BY ol.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("procurement: receivable lines: %w", err)
	}
	return scanRemaining(rows)
}

// ReturnableLines reports per purchase order line how much was received on
// completed receipts minus how much already went back on non-cancelled
// returns. Only received goods can be returned to the supplier.
func (r *repository) ReturnableLines(ctx context.Context, orderID int64) ([]RemainingLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ol.id, ol.product_id, ol.description, ol.unit_price::text,
		        COALESCE((SELECT SUM(gl.qty)
		                  FROM goods_receipt_lines gl
		                  JOIN goods_receipts gr ON gr.id = gl.receipt_id
		                  WHERE gl.order_line_id = ol.id AND gr.status = 'COMPLETED'), 0),
		        COALESCE((SELECT SUM(rl.qty)
		                  FROM purchase_return_lines rl
		                  JOIN purchase_returns ret ON ret.id = rl.return_id
		                  WHERE rl.order_line_id = ol.id AND ret.status <> 'CANCELLED'), 0)
		 FROM purchase_order_lines ol
		 WHERE ol.order_id = $1
		 ORDER BY ol.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("procurement: returnable lines: %w", err)
	}
	return scanRemaining(rows)
}

// InvoiceableLines reports per purchase order line how much has been billed
// on non-void AP invoices.
func (r *repository) InvoiceableLines(ctx context.Context, orderID int64) ([]RemainingLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ol.id, ol.product_id, ol.description, ol.unit_price::text, ol.qty,
		        COALESCE(SUM(il.qty) FILTER (WHERE inv.status <> 'VOID'), 0)
		 FROM purchase_order_lines ol
		 LEFT JOIN ap_invoice_lines il ON il.order_line_id = ol.id
		 LEFT JOIN ap_invoices inv ON inv.id = il.invoice_id
		 WHERE ol.order_id = $1
		 GROUP BY ol.id, ol.product_id, ol.description, ol.unit_price, ol.qty
		 ORDER BY ol.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("procurement: invoiceable lines: %w", err)
	}
	return scanRemaining(rows)
}

func scanRemaining(rows pgx.Rows) ([]RemainingLine, error) {
	defer rows.Close()
	var lines []RemainingLine
	for rows.Next() {
		var l RemainingLine
		var price string
		if err := rows.Scan(&l.OrderLineID, &l.ProductID, &l.Description, &price, &l.Ordered, &l.Fulfilled); err != nil {
			return nil, err
		}
		var err error
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) setStatus(ctx context.Context, ex db.DBTX, table, label string, id int64, from, to ledger.Status) error {
	tag, err := r.ex(ex).Exec(ctx,
		`UPDATE `+table+` SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("procurement: update %s status: %w", label, err)
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

func (r *repository) deleteDoc(ctx context.Context, ex db.DBTX, table, label string, id int64) error {
	tag, err := r.ex(ex).Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("procurement: delete %s: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", label, id, shared.ErrNotFound)
	}
	return nil
}
