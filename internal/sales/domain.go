// Package sales covers the customer-facing document chain: quotations,
// orders, invoices, returns and counter quick sales. Quotations, orders and
// invoices are billing documents and never post to the stock ledger; returns
// and quick sales do.
package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/ledger"
)

// Customer represents a sales counterparty.
type Customer struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuotationLine is one quoted item.
type QuotationLine struct {
	ID              int64           `json:"id"`
	QuotationID     int64           `json:"quotation_id"`
	ProductID       int64           `json:"product_id"`
	Description     string          `json:"description"`
	Qty             float64         `json:"qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// Quotation is a billing-only document; its terminal CONVERTED status marks
// that a sales order has been derived from it.
type Quotation struct {
	ID         int64           `json:"id"`
	DocNumber  string          `json:"doc_number"`
	CustomerID int64           `json:"customer_id"`
	Status     ledger.Status   `json:"status"`
	QuoteDate  time.Time       `json:"quote_date"`
	ValidUntil time.Time       `json:"valid_until"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Notes      string          `json:"notes"`
	Lines      []QuotationLine `json:"lines"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OrderLine is one ordered item. Fulfilment progress (delivered, invoiced,
// returned quantities) is derived by SQL over successor documents, never
// stored on the line.
type OrderLine struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Description     string          `json:"description"`
	Qty             float64         `json:"qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// Order is a billing-only sales order. At most one order exists per
// quotation, enforced by a unique index on quotation_id.
type Order struct {
	ID          int64           `json:"id"`
	DocNumber   string          `json:"doc_number"`
	CustomerID  int64           `json:"customer_id"`
	QuotationID *int64          `json:"quotation_id,omitempty"`
	Status      ledger.Status   `json:"status"`
	OrderDate   time.Time       `json:"order_date"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Notes       string          `json:"notes"`
	Lines       []OrderLine     `json:"lines"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// InvoiceLine is one invoiced item, tied back to the order line it bills.
type InvoiceLine struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	OrderLineID *int64          `json:"order_line_id,omitempty"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Qty         float64         `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Invoice is a billing-only AR document.
type Invoice struct {
	ID          int64           `json:"id"`
	DocNumber   string          `json:"doc_number"`
	CustomerID  int64           `json:"customer_id"`
	OrderID     *int64          `json:"order_id,omitempty"`
	Status      ledger.Status   `json:"status"`
	InvoiceDate time.Time       `json:"invoice_date"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Notes       string          `json:"notes"`
	Lines       []InvoiceLine   `json:"lines"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ReturnLine is one returned item.
type ReturnLine struct {
	ID          int64           `json:"id"`
	ReturnID    int64           `json:"return_id"`
	OrderLineID *int64          `json:"order_line_id,omitempty"`
	ProductID   int64           `json:"product_id"`
	Qty         float64         `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Return receives sold goods back into a warehouse. Completion posts IN
// entries to the ledger.
type Return struct {
	ID          int64           `json:"id"`
	DocNumber   string          `json:"doc_number"`
	CustomerID  int64           `json:"customer_id"`
	OrderID     *int64          `json:"order_id,omitempty"`
	WarehouseID int64           `json:"warehouse_id"`
	Status      ledger.Status   `json:"status"`
	ReturnDate  time.Time       `json:"return_date"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Notes       string          `json:"notes"`
	Lines       []ReturnLine    `json:"lines"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// QuickSaleLine is one counter-sale item.
type QuickSaleLine struct {
	ID          int64           `json:"id"`
	QuickSaleID int64           `json:"quick_sale_id"`
	ProductID   int64           `json:"product_id"`
	Qty         float64         `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// QuickSale is an over-the-counter sale that issues stock directly on
// completion, with no order or delivery in between.
type QuickSale struct {
	ID          int64           `json:"id"`
	DocNumber   string          `json:"doc_number"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
	WarehouseID int64           `json:"warehouse_id"`
	Status      ledger.Status   `json:"status"`
	SaleDate    time.Time       `json:"sale_date"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Notes       string          `json:"notes"`
	Lines       []QuickSaleLine `json:"lines"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RemainingLine reports fulfilment progress of one order line: how much was
// ordered against how much a given successor kind already consumed.
type RemainingLine struct {
	OrderLineID int64
	ProductID   int64
	Description string
	UnitPrice   decimal.Decimal
	Ordered     float64
	Fulfilled   float64
}

// Remaining is the quantity still open for copying.
func (l RemainingLine) Remaining() float64 {
	return l.Ordered - l.Fulfilled
}

// DocFilters narrows document listings.
type DocFilters struct {
	CustomerID int64
	Status     ledger.Status
	Limit      int
	Offset     int
}
