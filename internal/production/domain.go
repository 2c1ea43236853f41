// Package production manages bills of material, production orders and
// production receipts. Completing a receipt posts the finished good IN and
// every consumed component OUT in one atomic unit.
package production

import (
	"time"

	"github.com/meridian-erp/meridian/internal/ledger"
)

// BOMComponent is one input of a bill of material. Qty is the quantity
// consumed per unit of finished good.
type BOMComponent struct {
	ID        int64   `json:"id"`
	BOMID     int64   `json:"bom_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
}

// BOM is a bill of material for one finished product.
type BOM struct {
	ID         int64          `json:"id"`
	Code       string         `json:"code"`
	Name       string         `json:"name"`
	ProductID  int64          `json:"product_id"`
	IsActive   bool           `json:"is_active"`
	Components []BOMComponent `json:"components"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Production order statuses. Production orders never post to the ledger;
// their lifecycle gates receipt creation.
const (
	OrderStatusDraft     ledger.Status = "DRAFT"
	OrderStatusReleased  ledger.Status = "RELEASED"
	OrderStatusCompleted ledger.Status = "COMPLETED"
	OrderStatusCancelled ledger.Status = "CANCELLED"
)

// OrderComponent is the planned consumption of one component for the full
// order quantity.
type OrderComponent struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"order_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
}

// Order is a production order copied from a BOM.
type Order struct {
	ID           int64            `json:"id"`
	DocNumber    string           `json:"doc_number"`
	BOMID        int64            `json:"bom_id"`
	ProductID    int64            `json:"product_id"`
	WarehouseID  int64            `json:"warehouse_id"`
	QtyToProduce float64          `json:"qty_to_produce"`
	Status       ledger.Status    `json:"status"`
	Notes        string           `json:"notes"`
	Components   []OrderComponent `json:"components"`
	CreatedBy    int64            `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ReceiptComponent is one consumed component on a production receipt.
type ReceiptComponent struct {
	ID        int64   `json:"id"`
	ReceiptID int64   `json:"receipt_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
}

// Receipt books finished goods into stock and consumes components. At most
// one non-cancelled receipt exists per production order.
type Receipt struct {
	ID          int64              `json:"id"`
	DocNumber   string             `json:"doc_number"`
	OrderID     int64              `json:"order_id"`
	ProductID   int64              `json:"product_id"`
	WarehouseID int64              `json:"warehouse_id"`
	QtyProduced float64            `json:"qty_produced"`
	Status      ledger.Status      `json:"status"`
	ReceiptDate time.Time          `json:"receipt_date"`
	Components  []ReceiptComponent `json:"components"`
	CreatedBy   int64              `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Filters narrows production listings.
type Filters struct {
	ProductID int64
	Status    ledger.Status
	Limit     int
	Offset    int
}
