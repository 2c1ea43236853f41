// Package inventory covers warehouse-internal stock movements: goods issues,
// inter-warehouse transfers and stock adjustments. It also serves the stock
// read path, answering level queries and movement history from the ledger.
package inventory

import (
	"time"

	"github.com/meridian-erp/meridian/internal/ledger"
)

// IssueLine is one product taken out of stock by a goods issue.
type IssueLine struct {
	ID        int64   `json:"id"`
	IssueID   int64   `json:"issue_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
}

// Issue removes stock from a single warehouse, for consumption, damage or
// internal use.
type Issue struct {
	ID          int64         `json:"id"`
	DocNumber   string        `json:"doc_number"`
	WarehouseID int64         `json:"warehouse_id"`
	Status      ledger.Status `json:"status"`
	Reason      string        `json:"reason"`
	IssueDate   time.Time     `json:"issue_date"`
	Lines       []IssueLine   `json:"lines"`
	CreatedBy   int64         `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TransferLine is one product moved between warehouses.
type TransferLine struct {
	ID         int64   `json:"id"`
	TransferID int64   `json:"transfer_id"`
	ProductID  int64   `json:"product_id"`
	Qty        float64 `json:"qty"`
}

// Transfer moves stock from a source warehouse to a destination warehouse.
// Completing posts a matched OUT/IN pair per line, so a transfer never
// changes total stock.
type Transfer struct {
	ID             int64          `json:"id"`
	DocNumber      string         `json:"doc_number"`
	SrcWarehouseID int64          `json:"src_warehouse_id"`
	DstWarehouseID int64          `json:"dst_warehouse_id"`
	Status         ledger.Status  `json:"status"`
	Notes          string         `json:"notes"`
	TransferDate   time.Time      `json:"transfer_date"`
	Lines          []TransferLine `json:"lines"`
	CreatedBy      int64          `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AdjustmentLine records a count variance for one product. Qty is signed:
// actual above system is positive, below is negative.
type AdjustmentLine struct {
	ID           int64   `json:"id"`
	AdjustmentID int64   `json:"adjustment_id"`
	ProductID    int64   `json:"product_id"`
	Qty          float64 `json:"qty"`
}

// Adjustment corrects stock after a physical count. Approval posts each
// variance in the direction of its sign.
type Adjustment struct {
	ID          int64            `json:"id"`
	DocNumber   string           `json:"doc_number"`
	WarehouseID int64            `json:"warehouse_id"`
	Status      ledger.Status    `json:"status"`
	Reason      string           `json:"reason"`
	Lines       []AdjustmentLine `json:"lines"`
	CreatedBy   int64            `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// StockLevel is one (product, warehouse) aggregate from the read path.
type StockLevel struct {
	ProductID   int64   `json:"product_id"`
	WarehouseID int64   `json:"warehouse_id,omitempty"`
	Qty         float64 `json:"qty"`
}

// Filters narrows inventory document listings.
type Filters struct {
	WarehouseID int64
	Status      ledger.Status
	Limit       int
	Offset      int
}
