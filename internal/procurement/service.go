package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Service implements procurement business logic. Receipts and returns run
// through the posting engine; purchase orders and AP invoices follow the same
// transition path but never post.
type Service struct {
	repo   Repository
	engine *ledger.Engine
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, engine *ledger.Engine, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, logger: logger}
}

// Register binds every procurement document type to the transition
// dispatcher. Standalone and PO-based receipts share one transitioner; the
// machine is chosen per document.
func (s *Service) Register(d *ledger.Dispatcher) {
	d.Register(ledger.DocTypePurchaseOrder, ledger.TransitionerFunc(s.TransitionOrder))
	d.Register(ledger.DocTypeGoodsReceipt, ledger.TransitionerFunc(s.TransitionReceipt))
	d.Register(ledger.DocTypeGoodsReceiptPO, ledger.TransitionerFunc(s.TransitionReceipt))
	d.Register(ledger.DocTypePurchaseReturn, ledger.TransitionerFunc(s.TransitionReturn))
	d.Register(ledger.DocTypeAPInvoice, ledger.TransitionerFunc(s.TransitionInvoice))
}

// CreateOrder stores a new draft purchase order with recalculated totals.
func (s *Service) CreateOrder(ctx context.Context, o Order) (Order, error) {
	if len(o.Lines) == 0 {
		return Order{}, fmt.Errorf("purchase order: %w", shared.ErrEmptyDocument)
	}
	if o.SupplierID == 0 {
		return Order{}, fmt.Errorf("purchase order requires a supplier")
	}
	docNumber, err := s.repo.NextDocNumber(ctx, nil, "PO")
	if err != nil {
		return Order{}, err
	}
	o.DocNumber = docNumber
	o.Status = ledger.StatusDraft
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now().UTC()
	}
	applyOrderTotals(&o)

	created, err := s.repo.CreateOrder(ctx, o)
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("purchase order created", slog.Int64("id", created.ID), slog.String("doc", created.DocNumber))
	return created, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filters DocFilters) ([]Order, int, error) {
	return s.repo.ListOrders(ctx, filters)
}

func (s *Service) TransitionOrder(ctx context.Context, id int64, to ledger.Status) error {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	doc := ledger.Document{Type: ledger.DocTypePurchaseOrder, ID: id}
	_, err = s.engine.ApplyTransition(ctx, doc, o.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetOrderStatus(ctx, tx, id, o.Status, to)
	})
	return err
}

// CreateReceipt stores a standalone goods receipt, not tied to any purchase
// order. It posts on RECEIVED.
func (s *Service) CreateReceipt(ctx context.Context, rc Receipt) (Receipt, error) {
	if len(rc.Lines) == 0 {
		return Receipt{}, fmt.Errorf("goods receipt: %w", shared.ErrEmptyDocument)
	}
	if rc.WarehouseID == 0 {
		return Receipt{}, fmt.Errorf("goods receipt requires a warehouse")
	}
	rc.OrderID = nil
	rc.Status = ledger.StatusDraft
	if rc.ReceiptDate.IsZero() {
		rc.ReceiptDate = time.Now().UTC()
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "GR")
		if err != nil {
			return err
		}
		rc.DocNumber = docNumber
		rc, err = s.repo.CreateReceipt(ctx, tx, rc)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	return rc, nil
}

// CreateReceiptFromOrder copies the not-yet-received remainder of an
// approved purchase order into a new draft PO receipt, which posts on
// COMPLETED.
func (s *Service) CreateReceiptFromOrder(ctx context.Context, orderID, warehouseID, actorID int64) (Receipt, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}
	if len(o.Lines) == 0 {
		return Receipt{}, fmt.Errorf("purchase order %d: %w", orderID, shared.ErrEmptyDocument)
	}
	if warehouseID == 0 {
		return Receipt{}, fmt.Errorf("goods receipt requires a warehouse")
	}
	remaining, err := s.repo.ReceivableLines(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}

	rc := Receipt{
		OrderID:     &orderID,
		SupplierID:  o.SupplierID,
		WarehouseID: warehouseID,
		Status:      ledger.StatusDraft,
		ReceiptDate: time.Now().UTC(),
		CreatedBy:   actorID,
	}
	for _, l := range remaining {
		if l.Remaining() <= 0 {
			continue
		}
		lineID := l.OrderLineID
		rc.Lines = append(rc.Lines, ReceiptLine{
			OrderLineID: &lineID,
			ProductID:   l.ProductID,
			Description: l.Description,
			Qty:         l.Remaining(),
			UnitCost:    l.UnitPrice,
		})
	}
	if len(rc.Lines) == 0 {
		return Receipt{}, fmt.Errorf("purchase order %d fully received: %w", orderID, shared.ErrNothingToCopy)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "GRP")
		if err != nil {
			return err
		}
		rc.DocNumber = docNumber
		rc, err = s.repo.CreateReceipt(ctx, tx, rc)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	s.logger.Info("po receipt created",
		slog.Int64("id", rc.ID), slog.Int64("order_id", orderID), slog.String("doc", rc.DocNumber))
	return rc, nil
}

func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

func (s *Service) ListReceipts(ctx context.Context, filters DocFilters) ([]Receipt, int, error) {
	return s.repo.ListReceipts(ctx, filters)
}

// TransitionReceipt posts IN entries when the receipt reaches its trigger
// status and retracts them on the way back.
func (s *Service) TransitionReceipt(ctx context.Context, id int64, to ledger.Status) error {
	rc, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, receiptDocument(rc), rc.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetReceiptStatus(ctx, tx, id, rc.Status, to)
	})
	return err
}

// DeleteReceipt retracts a posted receipt before removing it.
func (s *Service) DeleteReceipt(ctx context.Context, id int64) error {
	rc, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Delete(ctx, receiptDocument(rc), rc.Status, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.DeleteReceipt(ctx, tx, id)
	})
	return err
}

// CreateReturnFromOrder copies the received-but-not-returned remainder of a
// purchase order into a pending return to the supplier.
func (s *Service) CreateReturnFromOrder(ctx context.Context, orderID, warehouseID, actorID int64) (Return, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Return{}, err
	}
	if len(o.Lines) == 0 {
		return Return{}, fmt.Errorf("purchase order %d: %w", orderID, shared.ErrEmptyDocument)
	}
	remaining, err := s.repo.ReturnableLines(ctx, orderID)
	if err != nil {
		return Return{}, err
	}

	ret := Return{
		OrderID:     &orderID,
		SupplierID:  o.SupplierID,
		WarehouseID: warehouseID,
		Status:      ledger.StatusPending,
		ReturnDate:  time.Now().UTC(),
		CreatedBy:   actorID,
	}
	total := decimal.Zero
	for _, l := range remaining {
		if l.Remaining() <= 0 {
			continue
		}
		lineID := l.OrderLineID
		ret.Lines = append(ret.Lines, ReturnLine{
			OrderLineID: &lineID,
			ProductID:   l.ProductID,
			Qty:         l.Remaining(),
			UnitCost:    l.UnitPrice,
		})
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromFloat(l.Remaining())))
	}
	if len(ret.Lines) == 0 {
		return Return{}, fmt.Errorf("purchase order %d has nothing returnable: %w", orderID, shared.ErrNothingToCopy)
	}
	ret.GrandTotal = total

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "PRN")
		if err != nil {
			return err
		}
		ret.DocNumber = docNumber
		ret, err = s.repo.CreateReturn(ctx, tx, ret)
		return err
	})
	if err != nil {
		return Return{}, err
	}
	return ret, nil
}

func (s *Service) GetReturn(ctx context.Context, id int64) (Return, error) {
	return s.repo.GetReturn(ctx, id)
}

// TransitionReturn posts OUT entries when the return completes and retracts
// them when it is reopened or cancelled.
func (s *Service) TransitionReturn(ctx context.Context, id int64, to ledger.Status) error {
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, returnDocument(ret), ret.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetReturnStatus(ctx, tx, id, ret.Status, to)
	})
	return err
}

// DeleteReturn retracts a completed return before removing it.
func (s *Service) DeleteReturn(ctx context.Context, id int64) error {
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Delete(ctx, returnDocument(ret), ret.Status, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.DeleteReturn(ctx, tx, id)
	})
	return err
}

// CreateInvoiceFromOrder bills the not-yet-invoiced remainder of a purchase
// order.
func (s *Service) CreateInvoiceFromOrder(ctx context.Context, orderID, actorID int64, dueDate time.Time) (Invoice, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	if len(o.Lines) == 0 {
		return Invoice{}, fmt.Errorf("purchase order %d: %w", orderID, shared.ErrEmptyDocument)
	}
	remaining, err := s.repo.InvoiceableLines(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		SupplierID:  o.SupplierID,
		OrderID:     &orderID,
		Status:      ledger.StatusDraft,
		InvoiceDate: time.Now().UTC(),
		DueDate:     dueDate,
		CreatedBy:   actorID,
	}
	for _, l := range remaining {
		if l.Remaining() <= 0 {
			continue
		}
		lineID := l.OrderLineID
		inv.Lines = append(inv.Lines, InvoiceLine{
			OrderLineID: &lineID,
			ProductID:   l.ProductID,
			Description: l.Description,
			Qty:         l.Remaining(),
			UnitPrice:   l.UnitPrice,
		})
	}
	if len(inv.Lines) == 0 {
		return Invoice{}, fmt.Errorf("purchase order %d fully invoiced: %w", orderID, shared.ErrNothingToCopy)
	}
	applyInvoiceTotals(&inv)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "AP")
		if err != nil {
			return err
		}
		inv.DocNumber = docNumber
		inv, err = s.repo.CreateInvoice(ctx, tx, inv)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) TransitionInvoice(ctx context.Context, id int64, to ledger.Status) error {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	doc := ledger.Document{Type: ledger.DocTypeAPInvoice, ID: id}
	_, err = s.engine.ApplyTransition(ctx, doc, inv.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetInvoiceStatus(ctx, tx, id, inv.Status, to)
	})
	return err
}

func receiptDocument(rc Receipt) ledger.Document {
	doc := ledger.Document{
		Type:        rc.DocType(),
		ID:          rc.ID,
		WarehouseID: rc.WarehouseID,
		ActorID:     rc.CreatedBy,
	}
	for _, l := range rc.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}

func returnDocument(ret Return) ledger.Document {
	doc := ledger.Document{
		Type:        ledger.DocTypePurchaseReturn,
		ID:          ret.ID,
		WarehouseID: ret.WarehouseID,
		ActorID:     ret.CreatedBy,
	}
	for _, l := range ret.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}

var hundred = decimal.NewFromInt(100)

func applyOrderTotals(o *Order) {
	var subtotal, tax decimal.Decimal
	for i := range o.Lines {
		l := &o.Lines[i]
		gross := l.UnitPrice.Mul(decimal.NewFromFloat(l.Qty))
		lineTax := gross.Mul(l.TaxPercent.Div(hundred))
		l.LineTotal = gross.Add(lineTax)
		subtotal = subtotal.Add(gross)
		tax = tax.Add(lineTax)
	}
	o.Subtotal = subtotal
	o.Tax = tax
	o.GrandTotal = subtotal.Add(tax)
}

func applyInvoiceTotals(inv *Invoice) {
	var subtotal decimal.Decimal
	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromFloat(l.Qty))
		subtotal = subtotal.Add(l.LineTotal)
	}
	inv.Subtotal = subtotal
	inv.Tax = decimal.Zero
	inv.GrandTotal = subtotal
}
