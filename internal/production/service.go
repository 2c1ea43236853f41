package production

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// orderTransitions is the production order lifecycle. Orders never post;
// they gate receipt creation, so their machine lives here instead of the
// ledger catalogue.
var orderTransitions = map[ledger.Status][]ledger.Status{
	OrderStatusDraft:    {OrderStatusReleased, OrderStatusCancelled},
	OrderStatusReleased: {OrderStatusCompleted, OrderStatusCancelled},
}

// Service implements production business logic.
type Service struct {
	repo   Repository
	engine *ledger.Engine
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, engine *ledger.Engine, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, logger: logger}
}

// Register binds production receipts to the transition dispatcher.
func (s *Service) Register(d *ledger.Dispatcher) {
	d.Register(ledger.DocTypeProductionReceipt, ledger.TransitionerFunc(s.TransitionReceipt))
}

// CreateBOM stores a bill of material.
func (s *Service) CreateBOM(ctx context.Context, b BOM) (BOM, error) {
	b.Code = strings.ToUpper(strings.TrimSpace(b.Code))
	b.Name = strings.TrimSpace(b.Name)
	if b.Code == "" || b.Name == "" {
		return BOM{}, fmt.Errorf("bom code and name are required")
	}
	if b.ProductID == 0 {
		return BOM{}, fmt.Errorf("bom requires a finished product")
	}
	if len(b.Components) == 0 {
		return BOM{}, fmt.Errorf("bom: %w", shared.ErrEmptyDocument)
	}
	for _, c := range b.Components {
		if c.ProductID == 0 || c.Qty <= 0 {
			return BOM{}, fmt.Errorf("bom component requires a product and a positive quantity")
		}
		if c.ProductID == b.ProductID {
			return BOM{}, fmt.Errorf("bom cannot consume its own finished product")
		}
	}
	return s.repo.CreateBOM(ctx, b)
}

func (s *Service) GetBOM(ctx context.Context, id int64) (BOM, error) {
	return s.repo.GetBOM(ctx, id)
}

func (s *Service) ListBOMs(ctx context.Context, filters Filters) ([]BOM, int, error) {
	return s.repo.ListBOMs(ctx, filters)
}

// CreateOrderFromBOM copies a bill of material into a draft production
// order, scaling every component requirement by the quantity to produce.
func (s *Service) CreateOrderFromBOM(ctx context.Context, bomID, warehouseID int64, qty float64, actorID int64) (Order, error) {
	b, err := s.repo.GetBOM(ctx, bomID)
	if err != nil {
		return Order{}, err
	}
	if len(b.Components) == 0 {
		return Order{}, fmt.Errorf("bom %d: %w", bomID, shared.ErrEmptyDocument)
	}
	if qty <= 0 {
		return Order{}, fmt.Errorf("production order quantity must be positive")
	}
	if warehouseID == 0 {
		return Order{}, fmt.Errorf("production order requires a warehouse")
	}

	o := Order{
		BOMID:        bomID,
		ProductID:    b.ProductID,
		WarehouseID:  warehouseID,
		QtyToProduce: qty,
		Status:       OrderStatusDraft,
		CreatedBy:    actorID,
	}
	for _, c := range b.Components {
		o.Components = append(o.Components, OrderComponent{
			ProductID: c.ProductID,
			Qty:       c.Qty * qty,
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "MO")
		if err != nil {
			return err
		}
		o.DocNumber = docNumber
		o, err = s.repo.CreateOrder(ctx, tx, o)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("production order created",
		slog.Int64("id", o.ID), slog.Int64("bom_id", bomID), slog.String("doc", o.DocNumber))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filters Filters) ([]Order, int, error) {
	return s.repo.ListOrders(ctx, filters)
}

// TransitionOrder drives the production order lifecycle.
func (s *Service) TransitionOrder(ctx context.Context, id int64, to ledger.Status) error {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !validOrderTransition(o.Status, to) {
		return fmt.Errorf("production order %d cannot move %s -> %s: %w", id, o.Status, to, shared.ErrInvalidTransition)
	}
	return s.repo.SetOrderStatus(ctx, nil, id, o.Status, to)
}

func validOrderTransition(from, to ledger.Status) bool {
	for _, t := range orderTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CreateReceiptFromOrder copies a released production order into a draft
// receipt: one finished-good line plus the component consumption scaled to
// the quantity actually produced. A second receipt for the same order is
// rejected.
func (s *Service) CreateReceiptFromOrder(ctx context.Context, orderID int64, qtyProduced float64, actorID int64) (Receipt, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}
	if o.Status != OrderStatusReleased {
		return Receipt{}, fmt.Errorf("production order %d is %s, not %s: %w", orderID, o.Status, OrderStatusReleased, shared.ErrInvalidTransition)
	}
	if len(o.Components) == 0 {
		return Receipt{}, fmt.Errorf("production order %d: %w", orderID, shared.ErrEmptyDocument)
	}
	if qtyProduced <= 0 {
		qtyProduced = o.QtyToProduce
	}

	rc := Receipt{
		OrderID:     orderID,
		ProductID:   o.ProductID,
		WarehouseID: o.WarehouseID,
		QtyProduced: qtyProduced,
		Status:      ledger.StatusDraft,
		ReceiptDate: time.Now().UTC(),
		CreatedBy:   actorID,
	}
	// Component consumption follows the BOM ratio embedded in the order.
	ratio := qtyProduced / o.QtyToProduce
	for _, c := range o.Components {
		rc.Components = append(rc.Components, ReceiptComponent{
			ProductID: c.ProductID,
			Qty:       c.Qty * ratio,
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "PRC")
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
	s.logger.Info("production receipt created",
		slog.Int64("id", rc.ID), slog.Int64("order_id", orderID), slog.String("doc", rc.DocNumber))
	return rc, nil
}

func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

// TransitionReceipt posts the finished good IN and components OUT when the
// receipt completes; reverting retracts everything. Completing also closes
// the production order.
func (s *Service) TransitionReceipt(ctx context.Context, id int64, to ledger.Status) error {
	rc, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return err
	}
	o, err := s.repo.GetOrder(ctx, rc.OrderID)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, receiptDocument(rc), rc.Status, to, func(ctx context.Context, tx db.DBTX) error {
		if err := s.repo.SetReceiptStatus(ctx, tx, id, rc.Status, to); err != nil {
			return err
		}
		if to == ledger.StatusCompleted && o.Status == OrderStatusReleased {
			return s.repo.SetOrderStatus(ctx, tx, rc.OrderID, OrderStatusReleased, OrderStatusCompleted)
		}
		return nil
	})
	return err
}

// DeleteReceipt retracts a completed receipt before removing it.
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

// receiptDocument maps the receipt onto the posting engine's shape. The
// finished good posts as line 0; component rows carry their own line ids.
func receiptDocument(rc Receipt) ledger.Document {
	doc := ledger.Document{
		Type:        ledger.DocTypeProductionReceipt,
		ID:          rc.ID,
		WarehouseID: rc.WarehouseID,
		ActorID:     rc.CreatedBy,
		Lines:       []ledger.Line{{ID: 0, ProductID: rc.ProductID, Qty: rc.QtyProduced}},
	}
	for _, c := range rc.Components {
		doc.Components = append(doc.Components, ledger.Line{ID: c.ID, ProductID: c.ProductID, Qty: c.Qty})
	}
	return doc
}
