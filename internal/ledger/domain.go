// Package ledger implements the append-only quantity ledger and the posting
// engine that reacts to document status transitions. The sum of entries per
// (product, warehouse) is the single source of truth for stock levels.
package ledger

import (
	"fmt"
	"time"
)

// DocType tags the document variant a ledger entry originates from.
type DocType string

const (
	DocTypeSalesQuotation    DocType = "SALES_QUOTATION"
	DocTypeSalesOrder        DocType = "SALES_ORDER"
	DocTypeSalesInvoice      DocType = "SALES_INVOICE"
	DocTypePurchaseOrder     DocType = "PURCHASE_ORDER"
	DocTypeAPInvoice         DocType = "AP_INVOICE"
	DocTypeDelivery          DocType = "DELIVERY"
	DocTypeGoodsReceipt      DocType = "GOODS_RECEIPT"
	DocTypeGoodsReceiptPO    DocType = "GOODS_RECEIPT_PO"
	DocTypeGoodsIssue        DocType = "GOODS_ISSUE"
	DocTypeSalesReturn       DocType = "SALES_RETURN"
	DocTypePurchaseReturn    DocType = "PURCHASE_RETURN"
	DocTypeTransfer          DocType = "INVENTORY_TRANSFER"
	DocTypeProductionReceipt DocType = "PRODUCTION_RECEIPT"
	DocTypeStockAdjustment   DocType = "STOCK_ADJUSTMENT"
	DocTypeQuickSale         DocType = "QUICK_SALE"
)

// Direction of a stock movement.
type Direction string

const (
	// DirectionIn is an inbound movement (positive quantity).
	DirectionIn Direction = "IN"
	// DirectionOut is an outbound movement (negative quantity).
	DirectionOut Direction = "OUT"
)

// Status is a document lifecycle status value.
type Status string

// Entry is one signed stock movement. Entries are immutable; retraction
// deletes the rows for a document and repost inserts fresh ones. The
// (doc_type, doc_id, line_id, direction) unique key makes posting idempotent.
type Entry struct {
	ID          int64     `db:"id"`
	DocType     DocType   `db:"doc_type"`
	DocID       int64     `db:"doc_id"`
	LineID      int64     `db:"line_id"`
	Direction   Direction `db:"direction"`
	ProductID   int64     `db:"product_id"`
	WarehouseID int64     `db:"warehouse_id"`
	Qty         float64   `db:"qty"`
	PostedAt    time.Time `db:"posted_at"`
}

// DocRef identifies the originating document of a set of entries.
type DocRef struct {
	Type DocType
	ID   int64
}

// String renders the reference for audit trails and error messages.
func (r DocRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Line is one document line item handed to the posting engine. Qty is
// non-negative for every variant except stock adjustments, where it carries
// the signed variance (actual minus system).
type Line struct {
	ID        int64
	ProductID int64
	Qty       float64
}

// Document is the tagged-variant input to the posting engine. Each document
// module maps its own records onto this shape before invoking a transition.
type Document struct {
	Type           DocType
	ID             int64
	WarehouseID    int64
	SrcWarehouseID int64 // transfers only
	DstWarehouseID int64 // transfers only
	Lines          []Line
	Components     []Line // production receipts: consumed BOM components
	ActorID        int64
}

// Ref returns the document reference.
func (d Document) Ref() DocRef {
	return DocRef{Type: d.Type, ID: d.ID}
}

// StockKey identifies one (product, warehouse) stock aggregate.
type StockKey struct {
	ProductID   int64
	WarehouseID int64
}

// EntryFilter narrows ledger entry listings.
type EntryFilter struct {
	ProductID   int64
	WarehouseID int64
	DocType     DocType
	From        time.Time
	To          time.Time
	Limit       int
}
