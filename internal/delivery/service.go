package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Service implements delivery order business logic.
type Service struct {
	repo   Repository
	engine *ledger.Engine
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, engine *ledger.Engine, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, logger: logger}
}

// Register binds delivery orders to the transition dispatcher.
func (s *Service) Register(d *ledger.Dispatcher) {
	d.Register(ledger.DocTypeDelivery, ledger.TransitionerFunc(s.Transition))
}

// CreateFromOrder copies the undelivered remainder of a sales order into a
// new draft delivery. Lines already fulfilled by non-cancelled deliveries are
// skipped; a fully delivered order yields ErrNothingToCopy.
func (s *Service) CreateFromOrder(ctx context.Context, orderID, warehouseID, actorID int64) (Order, error) {
	header, err := s.repo.SalesOrderHeader(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if warehouseID == 0 {
		return Order{}, fmt.Errorf("delivery requires a warehouse")
	}

	deliverable, err := s.repo.DeliverableLines(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if len(deliverable) == 0 {
		return Order{}, fmt.Errorf("sales order %d: %w", orderID, shared.ErrEmptyDocument)
	}

	d := Order{
		SalesOrderID: orderID,
		CustomerID:   header.CustomerID,
		WarehouseID:  warehouseID,
		Status:       ledger.StatusDraft,
		DeliveryDate: time.Now().UTC(),
		CreatedBy:    actorID,
	}
	for _, l := range deliverable {
		if l.Remaining() <= 0 {
			continue
		}
		d.Lines = append(d.Lines, Line{
			OrderLineID: l.OrderLineID,
			ProductID:   l.ProductID,
			Description: l.Description,
			Qty:         l.Remaining(),
		})
	}
	if len(d.Lines) == 0 {
		return Order{}, fmt.Errorf("sales order %d fully delivered: %w", orderID, shared.ErrNothingToCopy)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx)
		if err != nil {
			return err
		}
		d.DocNumber = docNumber
		d, err = s.repo.Create(ctx, tx, d)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("delivery created",
		slog.Int64("id", d.ID), slog.Int64("sales_order_id", orderID), slog.String("doc", d.DocNumber))
	return d, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Order, int, error) {
	return s.repo.List(ctx, filters)
}

// Transition drives a delivery through its lifecycle. Reaching DELIVERED
// posts OUT entries; moving back to IN_TRANSIT retracts them.
func (s *Service) Transition(ctx context.Context, id int64, to ledger.Status) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, document(d), d.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetStatus(ctx, tx, id, d.Status, to)
	})
	return err
}

// Delete retracts a delivered order's entries before removing it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Delete(ctx, document(d), d.Status, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.Delete(ctx, tx, id)
	})
	return err
}

// RemainingForOrder exposes the open delivery quantities per order line.
func (s *Service) RemainingForOrder(ctx context.Context, orderID int64) ([]DeliverableLine, error) {
	if _, err := s.repo.SalesOrderHeader(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.DeliverableLines(ctx, orderID)
}

func document(d Order) ledger.Document {
	doc := ledger.Document{
		Type:        ledger.DocTypeDelivery,
		ID:          d.ID,
		WarehouseID: d.WarehouseID,
		ActorID:     d.CreatedBy,
	}
	for _, l := range d.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}
