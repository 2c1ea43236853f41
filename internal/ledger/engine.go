package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Result reports what a transition did to the ledger.
type Result struct {
	Posted        []Entry
	Retracted     int64
	AlreadyPosted bool
}

// Engine reacts to document status transitions: entering the trigger status
// posts one entry per (line, direction), leaving it retracts exactly the
// entries the document posted. All of it happens inside one transaction
// together with the caller's status update.
type Engine struct {
	store  Store
	view   *StockView
	audit  AuditPort
	logger *slog.Logger
}

// NewEngine builds Engine. view and audit may be nil.
func NewEngine(store Store, view *StockView, audit AuditPort, logger *slog.Logger) *Engine {
	return &Engine{store: store, view: view, audit: audit, logger: logger}
}

// ApplyTransition validates the status change against the document's state
// machine, runs the caller's status update and the implied posting or
// retraction atomically, then invalidates the stock cache. A duplicate
// posting surfaces as Result.AlreadyPosted with a nil error.
func (e *Engine) ApplyTransition(ctx context.Context, doc Document, from, to Status, update func(context.Context, db.DBTX) error) (Result, error) {
	machine, err := MachineFor(doc.Type)
	if err != nil {
		return Result{}, err
	}
	if err := machine.Validate(from, to); err != nil {
		return Result{}, err
	}

	var res Result
	posting := machine.IsPosting(from, to)
	retracting := machine.IsRetraction(from, to)

	var entries []Entry
	if posting {
		entries, err = entriesFor(doc, time.Now().UTC())
		if err != nil {
			return Result{}, err
		}
		if len(entries) == 0 {
			return Result{}, fmt.Errorf("ledger: %s: %w", doc.Ref(), shared.ErrEmptyDocument)
		}
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if update != nil {
			if err := update(ctx, tx.DB()); err != nil {
				return err
			}
		}
		switch {
		case posting:
			exists, err := tx.HasEntries(ctx, doc.Ref())
			if err != nil {
				return err
			}
			if exists {
				res.AlreadyPosted = true
				return nil
			}
			if err := tx.InsertEntries(ctx, entries); err != nil {
				return err
			}
			res.Posted = entries
		case retracting:
			n, err := tx.DeleteEntries(ctx, doc.Ref())
			if err != nil {
				return err
			}
			res.Retracted = n
		}
		return nil
	})
	if err != nil {
		// A concurrent transition already posted the same document; the
		// winner's status update stands and this call becomes a no-op.
		if errors.Is(err, shared.ErrAlreadyPosted) {
			return Result{AlreadyPosted: true}, nil
		}
		return Result{}, wrapUnexpected(err)
	}

	if res.Posted != nil || res.Retracted > 0 {
		e.invalidate(ctx, doc)
		e.recordAudit(ctx, doc, from, to, res)
	}
	return res, nil
}

// Delete treats document deletion as a transition to an implicit terminal
// state: a document sitting in its trigger status is fully retracted before
// the caller's delete statement runs, in the same transaction.
func (e *Engine) Delete(ctx context.Context, doc Document, current Status, del func(context.Context, db.DBTX) error) (Result, error) {
	machine, err := MachineFor(doc.Type)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = e.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if machine.Trigger != "" && current == machine.Trigger {
			n, err := tx.DeleteEntries(ctx, doc.Ref())
			if err != nil {
				return err
			}
			res.Retracted = n
		}
		if del != nil {
			return del(ctx, tx.DB())
		}
		return nil
	})
	if err != nil {
		return Result{}, wrapUnexpected(err)
	}

	if res.Retracted > 0 {
		e.invalidate(ctx, doc)
		e.recordAudit(ctx, doc, current, "DELETED", res)
	}
	return res, nil
}

// entriesFor computes the signed movements implied by the document's line
// items. Zero-quantity lines never post; negative quantities are rejected
// everywhere except adjustment variances.
func entriesFor(doc Document, postedAt time.Time) ([]Entry, error) {
	var entries []Entry

	add := func(lineID, productID, warehouseID int64, qty float64, dir Direction) {
		entries = append(entries, Entry{
			DocType:     doc.Type,
			DocID:       doc.ID,
			LineID:      lineID,
			Direction:   dir,
			ProductID:   productID,
			WarehouseID: warehouseID,
			Qty:         qty,
			PostedAt:    postedAt,
		})
	}

	checkLines := func(lines []Line) error {
		for _, l := range lines {
			if l.Qty < 0 {
				return fmt.Errorf("ledger: %s line %d: negative quantity %f", doc.Ref(), l.ID, l.Qty)
			}
		}
		return nil
	}

	switch doc.Type {
	case DocTypeGoodsReceipt, DocTypeGoodsReceiptPO, DocTypeSalesReturn:
		if err := checkLines(doc.Lines); err != nil {
			return nil, err
		}
		for _, l := range doc.Lines {
			if l.Qty == 0 {
				continue
			}
			add(l.ID, l.ProductID, doc.WarehouseID, l.Qty, DirectionIn)
		}

	case DocTypeDelivery, DocTypeGoodsIssue, DocTypePurchaseReturn, DocTypeQuickSale:
		if err := checkLines(doc.Lines); err != nil {
			return nil, err
		}
		for _, l := range doc.Lines {
			if l.Qty == 0 {
				continue
			}
			add(l.ID, l.ProductID, doc.WarehouseID, -l.Qty, DirectionOut)
		}

	case DocTypeTransfer:
		if err := checkLines(doc.Lines); err != nil {
			return nil, err
		}
		if doc.SrcWarehouseID == 0 || doc.DstWarehouseID == 0 {
			return nil, fmt.Errorf("ledger: %s: transfer requires source and destination warehouses", doc.Ref())
		}
		if doc.SrcWarehouseID == doc.DstWarehouseID {
			return nil, fmt.Errorf("ledger: %s: transfer warehouses must differ", doc.Ref())
		}
		for _, l := range doc.Lines {
			if l.Qty == 0 {
				continue
			}
			add(l.ID, l.ProductID, doc.SrcWarehouseID, -l.Qty, DirectionOut)
			add(l.ID, l.ProductID, doc.DstWarehouseID, l.Qty, DirectionIn)
		}

	case DocTypeProductionReceipt:
		if err := checkLines(doc.Lines); err != nil {
			return nil, err
		}
		if err := checkLines(doc.Components); err != nil {
			return nil, err
		}
		for _, l := range doc.Lines {
			if l.Qty == 0 {
				continue
			}
			add(l.ID, l.ProductID, doc.WarehouseID, l.Qty, DirectionIn)
		}
		for _, c := range doc.Components {
			if c.Qty == 0 {
				continue
			}
			add(c.ID, c.ProductID, doc.WarehouseID, -c.Qty, DirectionOut)
		}

	case DocTypeStockAdjustment:
		// Line quantities carry the signed variance: actual above system
		// counts in, below counts out.
		for _, l := range doc.Lines {
			if l.Qty == 0 {
				continue
			}
			if l.Qty > 0 {
				add(l.ID, l.ProductID, doc.WarehouseID, l.Qty, DirectionIn)
			} else {
				add(l.ID, l.ProductID, doc.WarehouseID, l.Qty, DirectionOut)
			}
		}

	default:
		return nil, fmt.Errorf("ledger: document type %s does not post", doc.Type)
	}

	return entries, nil
}

// affectedKeys lists the (product, warehouse) aggregates the document touches.
func affectedKeys(doc Document) []StockKey {
	seen := make(map[StockKey]struct{})
	var keys []StockKey
	collect := func(productID, warehouseID int64) {
		k := StockKey{ProductID: productID, WarehouseID: warehouseID}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, l := range doc.Lines {
		if doc.Type == DocTypeTransfer {
			collect(l.ProductID, doc.SrcWarehouseID)
			collect(l.ProductID, doc.DstWarehouseID)
			continue
		}
		collect(l.ProductID, doc.WarehouseID)
	}
	for _, c := range doc.Components {
		collect(c.ProductID, doc.WarehouseID)
	}
	return keys
}

func (e *Engine) invalidate(ctx context.Context, doc Document) {
	if e.view == nil {
		return
	}
	if err := e.view.Invalidate(ctx, affectedKeys(doc)); err != nil && e.logger != nil {
		e.logger.Warn("stock cache invalidation failed", slog.String("doc", doc.Ref().String()), slog.Any("error", err))
	}
}

func (e *Engine) recordAudit(ctx context.Context, doc Document, from, to Status, res Result) {
	if e.audit == nil {
		return
	}
	action := "ledger:post"
	if res.Retracted > 0 {
		action = "ledger:retract"
	}
	_ = e.audit.Record(ctx, shared.AuditLog{
		ActorID:  doc.ActorID,
		Action:   action,
		Entity:   string(doc.Type),
		EntityID: fmt.Sprintf("%d", doc.ID),
		Meta: map[string]any{
			"from":      string(from),
			"to":        string(to),
			"posted":    len(res.Posted),
			"retracted": res.Retracted,
		},
	})
}

var sentinels = []error{
	shared.ErrNotFound,
	shared.ErrInvalidTransition,
	shared.ErrAlreadyPosted,
	shared.ErrNothingToCopy,
	shared.ErrDuplicateSuccessor,
	shared.ErrEmptyDocument,
}

// wrapUnexpected keeps typed domain failures intact and folds everything
// else into ErrOperationFailed with the cause attached.
func wrapUnexpected(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}
	return shared.OperationFailed(err)
}
