// Package delivery manages delivery orders derived from sales orders. The
// DELIVERED trigger posts OUT entries for every line; rolling a delivered
// order back to IN_TRANSIT retracts them.
package delivery

import (
	"time"

	"github.com/meridian-erp/meridian/internal/ledger"
)

// Line is one delivered item, tied back to the sales order line it fulfils.
type Line struct {
	ID          int64   `json:"id"`
	DeliveryID  int64   `json:"delivery_id"`
	OrderLineID int64   `json:"order_line_id"`
	ProductID   int64   `json:"product_id"`
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
}

// Order is a delivery order.
type Order struct {
	ID           int64         `json:"id"`
	DocNumber    string        `json:"doc_number"`
	SalesOrderID int64         `json:"sales_order_id"`
	CustomerID   int64         `json:"customer_id"`
	WarehouseID  int64         `json:"warehouse_id"`
	Status       ledger.Status `json:"status"`
	DeliveryDate time.Time     `json:"delivery_date"`
	Notes        string        `json:"notes"`
	Lines        []Line        `json:"lines"`
	CreatedBy    int64         `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// DeliverableLine reports how much of one sales order line remains open for
// delivery: ordered quantity minus the sum already on non-cancelled
// delivery orders.
type DeliverableLine struct {
	OrderLineID int64
	ProductID   int64
	Description string
	Ordered     float64
	Delivered   float64
}

// Remaining is the quantity still open for delivery.
func (l DeliverableLine) Remaining() float64 {
	return l.Ordered - l.Delivered
}

// OrderHeader is the slice of a sales order the delivery module needs.
type OrderHeader struct {
	ID         int64
	CustomerID int64
	Status     ledger.Status
}

// Filters narrows delivery listings.
type Filters struct {
	SalesOrderID int64
	Status       ledger.Status
	Limit        int
	Offset       int
}
