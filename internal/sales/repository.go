package sales

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

// Repository persists sales documents. Methods taking a db.DBTX run against
// that handle so the caller can group several writes into one transaction;
// passing nil uses the pool directly.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error

	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context, filters DocFilters) ([]Customer, int, error)
	UpdateCustomer(ctx context.Context, id int64, c Customer) error

	CreateQuotation(ctx context.Context, q Quotation) (Quotation, error)
	GetQuotation(ctx context.Context, id int64) (Quotation, error)
	ListQuotations(ctx context.Context, filters DocFilters) ([]Quotation, int, error)
	SetQuotationStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error

	CreateOrder(ctx context.Context, ex db.DBTX, o Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filters DocFilters) ([]Order, int, error)
	SetOrderStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error

	CreateInvoice(ctx context.Context, ex db.DBTX, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	SetInvoiceStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error

	CreateReturn(ctx context.Context, ex db.DBTX, ret Return) (Return, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	SetReturnStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteReturn(ctx context.Context, ex db.DBTX, id int64) error

	CreateQuickSale(ctx context.Context, qs QuickSale) (QuickSale, error)
	GetQuickSale(ctx context.Context, id int64) (QuickSale, error)
	SetQuickSaleStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteQuickSale(ctx context.Context, ex db.DBTX, id int64) error

	InvoiceableLines(ctx context.Context, orderID int64) ([]RemainingLine, error)
	ReturnableLines(ctx context.Context, orderID int64) ([]RemainingLine, error)

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

// NextDocNumber draws the next document number from the shared sequence.
func (r *repository) NextDocNumber(ctx context.Context, ex db.DBTX, prefix string) (string, error) {
	var n int64
	if err := r.ex(ex).QueryRow(ctx, `SELECT nextval('doc_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("sales: next doc number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}

func (r *repository) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (code, name, email, phone, address, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		c.Code, c.Name, c.Email, c.Phone, c.Address, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Customer{}, fmt.Errorf("customer code %q already used: %w", c.Code, shared.ErrDuplicate)
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, email, phone, address, is_active, created_at, updated_at FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) ListCustomers(ctx context.Context, filters DocFilters) ([]Customer, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, email, phone, address, is_active, created_at, updated_at
		 FROM customers ORDER BY code ASC LIMIT `+strconv.Itoa(limit)+` OFFSET `+strconv.Itoa(filters.Offset))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) UpdateCustomer(ctx context.Context, id int64, c Customer) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET code=$2, name=$3, email=$4, phone=$5, address=$6, is_active=$7, updated_at=NOW() WHERE id=$1`,
		id, c.Code, c.Name, c.Email, c.Phone, c.Address, c.IsActive,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("customer code %q already used: %w", c.Code, shared.ErrDuplicate)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) CreateQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO sales_quotations (doc_number, customer_id, status, quote_date, valid_until, subtotal, discount, tax, grand_total, notes, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id, created_at, updated_at`,
			q.DocNumber, q.CustomerID, q.Status, q.QuoteDate, q.ValidUntil,
			q.Subtotal.String(), q.Discount.String(), q.Tax.String(), q.GrandTotal.String(), q.Notes, q.CreatedBy,
		).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
		if err != nil {
			return fmt.Errorf("sales: insert quotation: %w", err)
		}
		for i := range q.Lines {
			l := &q.Lines[i]
			l.QuotationID = q.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO sales_quotation_lines (quotation_id, product_id, description, qty, unit_price, discount_percent, tax_percent, line_total)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
				l.QuotationID, l.ProductID, l.Description, l.Qty,
				l.UnitPrice.String(), l.DiscountPercent.String(), l.TaxPercent.String(), l.LineTotal.String(),
			).Scan(&l.ID)
			if err != nil {
				return fmt.Errorf("sales: insert quotation line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}
	return q, nil
}

func (r *repository) GetQuotation(ctx context.Context, id int64) (Quotation, error) {
	var q Quotation
	var subtotal, discount, tax, grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, customer_id, status, quote_date, valid_until, subtotal::text, discount::text, tax::text, grand_total::text, notes, created_by, created_at, updated_at
		 FROM sales_quotations WHERE id = $1`, id,
	).Scan(&q.ID, &q.DocNumber, &q.CustomerID, &q.Status, &q.QuoteDate, &q.ValidUntil,
		&subtotal, &discount, &tax, &grand, &q.Notes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
		}
		return Quotation{}, err
	}
	if q.Subtotal, q.Discount, q.Tax, q.GrandTotal, err = parseTotals(subtotal, discount, tax, grand); err != nil {
		return Quotation{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, quotation_id, product_id, description, qty, unit_price::text, discount_percent::text, tax_percent::text, line_total::text
		 FROM sales_quotation_lines WHERE quotation_id = $1 ORDER BY id`, id)
	if err != nil {
		return Quotation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l QuotationLine
		var price, discPct, taxPct, lineTotal string
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.ProductID, &l.Description, &l.Qty, &price, &discPct, &taxPct, &lineTotal); err != nil {
			return Quotation{}, err
		}
		if l.UnitPrice, l.DiscountPercent, l.TaxPercent, l.LineTotal, err = parseTotals(price, discPct, taxPct, lineTotal); err != nil {
			return Quotation{}, err
		}
		q.Lines = append(q.Lines, l)
	}
	return q, rows.Err()
}

func (r *repository) ListQuotations(ctx context.Context, filters DocFilters) ([]Quotation, int, error) {
	query := `SELECT id, doc_number, customer_id, status, quote_date, valid_until, grand_total::text, created_at FROM sales_quotations WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM sales_quotations WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.CustomerID != 0 {
		argCount++
		clause := ` AND customer_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.CustomerID)
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

	var quotations []Quotation
	for rows.Next() {
		var q Quotation
		var grand string
		if err := rows.Scan(&q.ID, &q.DocNumber, &q.CustomerID, &q.Status, &q.QuoteDate, &q.ValidUntil, &grand, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		if q.GrandTotal, err = decimal.NewFromString(grand); err != nil {
			return nil, 0, err
		}
		quotations = append(quotations, q)
	}
	return quotations, total, rows.Err()
}

func (r *repository) SetQuotationStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "sales_quotations", "quotation", id, from, to)
}

func (r *repository) CreateOrder(ctx context.Context, ex db.DBTX, o Order) (Order, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO sales_orders (doc_number, customer_id, quotation_id, status, order_date, subtotal, discount, tax, grand_total, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		o.DocNumber, o.CustomerID, o.QuotationID, o.Status, o.OrderDate,
		o.Subtotal.String(), o.Discount.String(), o.Tax.String(), o.GrandTotal.String(), o.Notes, o.CreatedBy,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		// The unique index on quotation_id caps each quotation at one order.
		if db.IsUniqueViolation(err) && o.QuotationID != nil {
			return Order{}, fmt.Errorf("quotation %d already converted: %w", *o.QuotationID, shared.ErrDuplicateSuccessor)
		}
		return Order{}, fmt.Errorf("sales: insert order: %w", err)
	}
	for i := range o.Lines {
		l := &o.Lines[i]
		l.OrderID = o.ID
		err := run.QueryRow(ctx,
			`INSERT INTO sales_order_lines (order_id, product_id, description, qty, unit_price, discount_percent, tax_percent, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			l.OrderID, l.ProductID, l.Description, l.Qty,
			l.UnitPrice.String(), l.DiscountPercent.String(), l.TaxPercent.String(), l.LineTotal.String(),
		).Scan(&l.ID)
		if err != nil {
			return Order{}, fmt.Errorf("sales: insert order line: %w", err)
		}
	}
	return o, nil
}

func (r *repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	var subtotal, discount, tax, grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, customer_id, quotation_id, status, order_date, subtotal::text, discount::text, tax::text, grand_total::text, notes, created_by, created_at, updated_at
		 FROM sales_orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.DocNumber, &o.CustomerID, &o.QuotationID, &o.Status, &o.OrderDate,
		&subtotal, &discount, &tax, &grand, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("sales order %d: %w", id, shared.ErrNotFound)
		}
		return Order{}, err
	}
	if o.Subtotal, o.Discount, o.Tax, o.GrandTotal, err = parseTotals(subtotal, discount, tax, grand); err != nil {
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, description, qty, unit_price::text, discount_percent::text, tax_percent::text, line_total::text
		 FROM sales_order_lines WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		var price, discPct, taxPct, lineTotal string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Description, &l.Qty, &price, &discPct, &taxPct, &lineTotal); err != nil {
			return Order{}, err
		}
		if l.UnitPrice, l.DiscountPercent, l.TaxPercent, l.LineTotal, err = parseTotals(price, discPct, taxPct, lineTotal); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (r *repository) ListOrders(ctx context.Context, filters DocFilters) ([]Order, int, error) {
	query := `SELECT id, doc_number, customer_id, quotation_id, status, order_date, grand_total::text, created_at FROM sales_orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM sales_orders WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.CustomerID != 0 {
		argCount++
		clause := ` AND customer_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.CustomerID)
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
		if err := rows.Scan(&o.ID, &o.DocNumber, &o.CustomerID, &o.QuotationID, &o.Status, &o.OrderDate, &grand, &o.CreatedAt); err != nil {
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
	return r.setStatus(ctx, ex, "sales_orders", "sales order", id, from, to)
}

func (r *repository) CreateInvoice(ctx context.Context, ex db.DBTX, inv Invoice) (Invoice, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO sales_invoices (doc_number, customer_id, order_id, status, invoice_date, subtotal, tax, grand_total, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		inv.DocNumber, inv.CustomerID, inv.OrderID, inv.Status, inv.InvoiceDate,
		inv.Subtotal.String(), inv.Tax.String(), inv.GrandTotal.String(), inv.Notes, inv.CreatedBy,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, fmt.Errorf("sales: insert invoice: %w", err)
	}
	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.InvoiceID = inv.ID
		err := run.QueryRow(ctx,
			`INSERT INTO sales_invoice_lines (invoice_id, order_line_id, product_id, description, qty, unit_price, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			l.InvoiceID, l.OrderLineID, l.ProductID, l.Description, l.Qty, l.UnitPrice.String(), l.LineTotal.String(),
		).Scan(&l.ID)
		if err != nil {
			return Invoice{}, fmt.Errorf("sales: insert invoice line: %w", err)
		}
	}
	return inv, nil
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	var subtotal, tax, grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, customer_id, order_id, status, invoice_date, subtotal::text, tax::text, grand_total::text, notes, created_by, created_at, updated_at
		 FROM sales_invoices WHERE id = $1`, id,
	).Scan(&inv.ID, &inv.DocNumber, &inv.CustomerID, &inv.OrderID, &inv.Status, &inv.InvoiceDate,
		&subtotal, &tax, &grand, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("sales invoice %d: %w", id, shared.ErrNotFound)
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
		 FROM sales_invoice_lines WHERE invoice_id = $1 ORDER BY id`, id)
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
	return r.setStatus(ctx, ex, "sales_invoices", "sales invoice", id, from, to)
}

func (r *repository) CreateReturn(ctx context.Context, ex db.DBTX, ret Return) (Return, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO sales_returns (doc_number, customer_id, order_id, warehouse_id, status, return_date, grand_total, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		ret.DocNumber, ret.CustomerID, ret.OrderID, ret.WarehouseID, ret.Status, ret.ReturnDate,
		ret.GrandTotal.String(), ret.Notes, ret.CreatedBy,
	).Scan(&ret.ID, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		return Return{}, fmt.Errorf("sales: insert return: %w", err)
	}
	for i := range ret.Lines {
		l := &ret.Lines[i]
		l.ReturnID = ret.ID
		err := run.QueryRow(ctx,
			`INSERT INTO sales_return_lines (return_id, order_line_id, product_id, qty, unit_price, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			l.ReturnID, l.OrderLineID, l.ProductID, l.Qty, l.UnitPrice.String(), l.LineTotal.String(),
		).Scan(&l.ID)
		if err != nil {
			return Return{}, fmt.Errorf("sales: insert return line: %w", err)
		}
	}
	return ret, nil
}

func (r *repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	var ret Return
	var grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, customer_id, order_id, warehouse_id, status, return_date, grand_total::text, notes, created_by, created_at, updated_at
		 FROM sales_returns WHERE id = $1`, id,
	).Scan(&ret.ID, &ret.DocNumber, &ret.CustomerID, &ret.OrderID, &ret.WarehouseID, &ret.Status, &ret.ReturnDate,
		&grand, &ret.Notes, &ret.CreatedBy, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, fmt.Errorf("sales return %d: %w", id, shared.ErrNotFound)
		}
		return Return{}, err
	}
	if ret.GrandTotal, err = decimal.NewFromString(grand); err != nil {
		return Return{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, return_id, order_line_id, product_id, qty, unit_price::text, line_total::text
		 FROM sales_return_lines WHERE return_id = $1 ORDER BY id`, id)
	if err != nil {
		return Return{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReturnLine
		var price, lineTotal string
		if err := rows.Scan(&l.ID, &l.ReturnID, &l.OrderLineID, &l.ProductID, &l.Qty, &price, &lineTotal); err != nil {
			return Return{}, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return Return{}, err
		}
		if l.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return Return{}, err
		}
		ret.Lines = append(ret.Lines, l)
	}
	return ret, rows.Err()
}

func (r *repository) SetReturnStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "sales_returns", "sales return", id, from, to)
}

func (r *repository) DeleteReturn(ctx context.Context, ex db.DBTX, id int64) error {
	return r.deleteDoc(ctx, ex, "sales_returns", "sales return", id)
}

func (r *repository) CreateQuickSale(ctx context.Context, qs QuickSale) (QuickSale, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO quick_sales (doc_number, customer_id, warehouse_id, status, sale_date, grand_total, notes, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, created_at, updated_at`,
			qs.DocNumber, qs.CustomerID, qs.WarehouseID, qs.Status, qs.SaleDate,
			qs.GrandTotal.String(), qs.Notes, qs.CreatedBy,
		).Scan(&qs.ID, &qs.CreatedAt, &qs.UpdatedAt)
		if err != nil {
			return fmt.Errorf("sales: insert quick sale: %w", err)
		}
		for i := range qs.Lines {
			l := &qs.Lines[i]
			l.QuickSaleID = qs.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO quick_sale_lines (quick_sale_id, product_id, qty, unit_price, line_total)
				 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				l.QuickSaleID, l.ProductID, l.Qty, l.UnitPrice.String(), l.LineTotal.String(),
			).Scan(&l.ID)
			if err != nil {
				return fmt.Errorf("sales: insert quick sale line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return QuickSale{}, err
	}
	return qs, nil
}

func (r *repository) GetQuickSale(ctx context.Context, id int64) (QuickSale, error) {
	var qs QuickSale
	var grand string
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, customer_id, warehouse_id, status, sale_date, grand_total::text, notes, created_by, created_at, updated_at
		 FROM quick_sales WHERE id = $1`, id,
	).Scan(&qs.ID, &qs.DocNumber, &qs.CustomerID, &qs.WarehouseID, &qs.Status, &qs.SaleDate,
		&grand, &qs.Notes, &qs.CreatedBy, &qs.CreatedAt, &qs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuickSale{}, fmt.Errorf("quick sale %d: %w", id, shared.ErrNotFound)
		}
		return QuickSale{}, err
	}
	if qs.GrandTotal, err = decimal.NewFromString(grand); err != nil {
		return QuickSale{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, quick_sale_id, product_id, qty, unit_price::text, line_total::text
		 FROM quick_sale_lines WHERE quick_sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return QuickSale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l QuickSaleLine
		var price, lineTotal string
		if err := rows.Scan(&l.ID, &l.QuickSaleID, &l.ProductID, &l.Qty, &price, &lineTotal); err != nil {
			return QuickSale{}, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return QuickSale{}, err
		}
		if l.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return QuickSale{}, err
		}
		qs.Lines = append(qs.Lines, l)
	}
	return qs, rows.Err()
}

func (r *repository) SetQuickSaleStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "quick_sales", "quick sale", id, from, to)
}

func (r *repository) DeleteQuickSale(ctx context.Context, ex db.DBTX, id int64) error {
	return r.deleteDoc(ctx, ex, "quick_sales", "quick sale", id)
}

// InvoiceableLines reports per order line how much has been invoiced on
// non-void invoices.
func (r *repository) InvoiceableLines(ctx context.Context, orderID int64) ([]RemainingLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ol.id, ol.product_id, ol.description, ol.unit_price::text, ol.qty,
		        COALESCE(SUM(il.qty) FILTER (WHERE inv.status <> 'VOID'), 0)
		 FROM sales_order_lines ol
		 LEFT JOIN sales_invoice_lines il ON il.order_line_id = ol.id
		 LEFT JOIN sales_invoices inv ON inv.id = il.invoice_id
		 WHERE ol.order_id = $1
		 GROUP BY ol.id, ol.product_id, ol.description, ol.unit_price, ol.qty
		 ORDER BY ol.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sales: invoiceable lines: %w", err)
	}
	return scanRemaining(rows)
}

// ReturnableLines reports per order line how much was delivered minus how
// much was already returned on completed returns. Only delivered goods can
// come back.
func (r *repository) ReturnableLines(ctx context.Context, orderID int64) ([]RemainingLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ol.id, ol.product_id, ol.description, ol.unit_price::text,
		        COALESCE((SELECT SUM(dl.qty)
		                  FROM delivery_order_lines dl
		                  JOIN delivery_orders d ON d.id = dl.delivery_id
		                  WHERE dl.order_line_id = ol.id AND d.status = 'DELIVERED'), 0),
		        COALESCE((SELECT SUM(rl.qty)
		                  FROM sales_return_lines rl
		                  JOIN sales_returns ret ON ret.id = rl.return_id
		                  WHERE rl.order_line_id = ol.id AND ret.status <> 'CANCELLED'), 0)
		 FROM sales_order_lines ol
		 WHERE ol.order_id = $1
		 ORDER BY ol.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sales: returnable lines: %w", err)
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

// setStatus is a compare-and-swap on the status column: the update only
// applies when the row is still in the status the caller validated against.
func (r *repository) setStatus(ctx context.Context, ex db.DBTX, table, label string, id int64, from, to ledger.Status) error {
	tag, err := r.ex(ex).Exec(ctx,
		`UPDATE `+table+` SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("sales: update %s status: %w", label, err)
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
		return fmt.Errorf("sales: delete %s: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", label, id, shared.ErrNotFound)
	}
	return nil
}

func parseTotals(a, b, c, d string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	dbv, err := decimal.NewFromString(b)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	dc, err := decimal.NewFromString(c)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	dd, err := decimal.NewFromString(d)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	return da, dbv, dc, dd, nil
}
