// Package procurement manages the purchasing side: purchase orders (billing
// only), goods receipts, PO-based receipts, purchase returns and AP invoices.
// Receipts post IN entries, purchase returns post OUT entries; purchase
// orders and AP invoices never touch the ledger.
package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/ledger"
)

// OrderLine is one purchase order line.
type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Qty         float64         `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Order is a purchase order. It drives approval and billing flows and is the
// copy source for receipts, returns and AP invoices.
type Order struct {
	ID           int64           `json:"id"`
	DocNumber    string          `json:"doc_number"`
	SupplierID   int64           `json:"supplier_id"`
	Status       ledger.Status   `json:"status"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate time.Time       `json:"expected_date"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	Notes        string          `json:"notes"`
	Lines        []OrderLine     `json:"lines"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ReceiptLine is one received item. OrderLineID is set when the receipt was
// copied from a purchase order.
type ReceiptLine struct {
	ID          int64           `json:"id"`
	ReceiptID   int64           `json:"receipt_id"`
	OrderLineID *int64          `json:"order_line_id,omitempty"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Qty         float64         `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// Receipt is a goods receipt. Standalone receipts (no OrderID) post on
// RECEIVED; PO-based receipts post on COMPLETED.
type Receipt struct {
	ID          int64         `json:"id"`
	DocNumber   string        `json:"doc_number"`
	OrderID     *int64        `json:"order_id,omitempty"`
	SupplierID  int64         `json:"supplier_id"`
	WarehouseID int64         `json:"warehouse_id"`
	Status      ledger.Status `json:"status"`
	ReceiptDate time.Time     `json:"receipt_date"`
	Notes       string        `json:"notes"`
	Lines       []ReceiptLine `json:"lines"`
	CreatedBy   int64         `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DocType reports which ledger variant the receipt belongs to.
func (rc Receipt) DocType() ledger.DocType {
	if rc.OrderID != nil {
		return ledger.DocTypeGoodsReceiptPO
	}
	return ledger.DocTypeGoodsReceipt
}

// ReturnLine is one returned item.
type ReturnLine struct {
	ID          int64           `json:"id"`
	ReturnID    int64           `json:"return_id"`
	OrderLineID *int64          `json:"order_line_id,omitempty"`
	ProductID   int64           `json:"product_id"`
	Qty         float64         `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// Return sends received goods back to the supplier. COMPLETED posts OUT
// entries.
type Return struct {
	ID          int64           `json:"id"`
	DocNumber   string          `json:"doc_number"`
	OrderID     *int64          `json:"order_id,omitempty"`
	SupplierID  int64           `json:"supplier_id"`
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

// InvoiceLine is one AP invoice line.
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

// Invoice is an accounts payable invoice, billing only.
type Invoice struct {
	ID          int64           `json:"id"`
	DocNumber   string          `json:"doc_number"`
	SupplierID  int64           `json:"supplier_id"`
	OrderID     *int64          `json:"order_id,omitempty"`
	Status      ledger.Status   `json:"status"`
	InvoiceDate time.Time       `json:"invoice_date"`
	DueDate     time.Time       `json:"due_date"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Notes       string          `json:"notes"`
	Lines       []InvoiceLine   `json:"lines"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RemainingLine reports how much of one purchase order line is still open
// for a copy operation: Ordered minus the quantity already consumed by
// successor documents.
type RemainingLine struct {
	OrderLineID int64
	ProductID   int64
	Description string
	UnitPrice   decimal.Decimal
	Ordered     float64
	Fulfilled   float64
}

// Remaining is the open quantity.
func (l RemainingLine) Remaining() float64 {
	return l.Ordered - l.Fulfilled
}

// DocFilters narrows procurement document listings.
type DocFilters struct {
	SupplierID int64
	Status     ledger.Status
	Limit      int
	Offset     int
}
