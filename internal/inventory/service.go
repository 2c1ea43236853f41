package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Service implements inventory business logic and the stock read path.
type Service struct {
	repo   Repository
	engine *ledger.Engine
	store  ledger.Store
	view   *ledger.StockView
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, engine *ledger.Engine, store ledger.Store, view *ledger.StockView, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, store: store, view: view, logger: logger}
}

// Register binds inventory document types to the transition dispatcher.
func (s *Service) Register(d *ledger.Dispatcher) {
	d.Register(ledger.DocTypeGoodsIssue, ledger.TransitionerFunc(s.TransitionIssue))
	d.Register(ledger.DocTypeTransfer, ledger.TransitionerFunc(s.TransitionTransfer))
	d.Register(ledger.DocTypeStockAdjustment, ledger.TransitionerFunc(s.TransitionAdjustment))
}

// CreateIssue stores a draft goods issue.
func (s *Service) CreateIssue(ctx context.Context, is Issue) (Issue, error) {
	if is.WarehouseID == 0 {
		return Issue{}, fmt.Errorf("goods issue requires a warehouse")
	}
	if len(is.Lines) == 0 {
		return Issue{}, fmt.Errorf("goods issue: %w", shared.ErrEmptyDocument)
	}
	for _, l := range is.Lines {
		if l.ProductID == 0 || l.Qty <= 0 {
			return Issue{}, fmt.Errorf("goods issue line requires a product and a positive quantity")
		}
	}
	is.Status = ledger.StatusDraft
	if is.IssueDate.IsZero() {
		is.IssueDate = time.Now().UTC()
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "GI")
		if err != nil {
			return err
		}
		is.DocNumber = docNumber
		is, err = s.repo.CreateIssue(ctx, tx, is)
		return err
	})
	if err != nil {
		return Issue{}, err
	}
	s.logger.Info("goods issue created", slog.Int64("id", is.ID), slog.String("doc", is.DocNumber))
	return is, nil
}

func (s *Service) GetIssue(ctx context.Context, id int64) (Issue, error) {
	return s.repo.GetIssue(ctx, id)
}

func (s *Service) ListIssues(ctx context.Context, filters Filters) ([]Issue, int, error) {
	return s.repo.ListIssues(ctx, filters)
}

// TransitionIssue posts the issue lines OUT when it reaches ISSUED and
// retracts them on the way back.
func (s *Service) TransitionIssue(ctx context.Context, id int64, to ledger.Status) error {
	is, err := s.repo.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, issueDocument(is), is.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetIssueStatus(ctx, tx, id, is.Status, to)
	})
	return err
}

// DeleteIssue retracts an issued document before removing it.
func (s *Service) DeleteIssue(ctx context.Context, id int64) error {
	is, err := s.repo.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Delete(ctx, issueDocument(is), is.Status, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.DeleteIssue(ctx, tx, id)
	})
	return err
}

// CreateTransfer stores a draft inter-warehouse transfer.
func (s *Service) CreateTransfer(ctx context.Context, tr Transfer) (Transfer, error) {
	if tr.SrcWarehouseID == 0 || tr.DstWarehouseID == 0 {
		return Transfer{}, fmt.Errorf("transfer requires source and destination warehouses")
	}
	if tr.SrcWarehouseID == tr.DstWarehouseID {
		return Transfer{}, fmt.Errorf("transfer warehouses must differ")
	}
	if len(tr.Lines) == 0 {
		return Transfer{}, fmt.Errorf("transfer: %w", shared.ErrEmptyDocument)
	}
	for _, l := range tr.Lines {
		if l.ProductID == 0 || l.Qty <= 0 {
			return Transfer{}, fmt.Errorf("transfer line requires a product and a positive quantity")
		}
	}
	tr.Status = ledger.StatusDraft
	if tr.TransferDate.IsZero() {
		tr.TransferDate = time.Now().UTC()
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "TRF")
		if err != nil {
			return err
		}
		tr.DocNumber = docNumber
		tr, err = s.repo.CreateTransfer(ctx, tx, tr)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	s.logger.Info("inventory transfer created", slog.Int64("id", tr.ID), slog.String("doc", tr.DocNumber))
	return tr, nil
}

func (s *Service) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

func (s *Service) ListTransfers(ctx context.Context, filters Filters) ([]Transfer, int, error) {
	return s.repo.ListTransfers(ctx, filters)
}

// TransitionTransfer posts a matched OUT/IN pair per line on completion.
func (s *Service) TransitionTransfer(ctx context.Context, id int64, to ledger.Status) error {
	tr, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, transferDocument(tr), tr.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetTransferStatus(ctx, tx, id, tr.Status, to)
	})
	return err
}

// DeleteTransfer retracts a completed transfer before removing it.
func (s *Service) DeleteTransfer(ctx context.Context, id int64) error {
	tr, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Delete(ctx, transferDocument(tr), tr.Status, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.DeleteTransfer(ctx, tx, id)
	})
	return err
}

// CreateAdjustment stores a draft stock adjustment. Line quantities carry the
// signed variance and zero-variance lines are dropped.
func (s *Service) CreateAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	if adj.WarehouseID == 0 {
		return Adjustment{}, fmt.Errorf("stock adjustment requires a warehouse")
	}
	lines := adj.Lines[:0]
	for _, l := range adj.Lines {
		if l.ProductID == 0 {
			return Adjustment{}, fmt.Errorf("stock adjustment line requires a product")
		}
		if l.Qty == 0 {
			continue
		}
		lines = append(lines, l)
	}
	adj.Lines = lines
	if len(adj.Lines) == 0 {
		return Adjustment{}, fmt.Errorf("stock adjustment: %w", shared.ErrEmptyDocument)
	}
	adj.Status = ledger.StatusDraft

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "ADJ")
		if err != nil {
			return err
		}
		adj.DocNumber = docNumber
		adj, err = s.repo.CreateAdjustment(ctx, tx, adj)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.logger.Info("stock adjustment created", slog.Int64("id", adj.ID), slog.String("doc", adj.DocNumber))
	return adj, nil
}

func (s *Service) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

func (s *Service) ListAdjustments(ctx context.Context, filters Filters) ([]Adjustment, int, error) {
	return s.repo.ListAdjustments(ctx, filters)
}

// TransitionAdjustment posts each variance in the direction of its sign when
// the adjustment is approved.
func (s *Service) TransitionAdjustment(ctx context.Context, id int64, to ledger.Status) error {
	adj, err := s.repo.GetAdjustment(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, adjustmentDocument(adj), adj.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetAdjustmentStatus(ctx, tx, id, adj.Status, to)
	})
	return err
}

// DeleteAdjustment retracts an approved adjustment before removing it.
func (s *Service) DeleteAdjustment(ctx context.Context, id int64) error {
	adj, err := s.repo.GetAdjustment(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Delete(ctx, adjustmentDocument(adj), adj.Status, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.DeleteAdjustment(ctx, tx, id)
	})
	return err
}

// StockOf returns current stock for one (product, warehouse) pair.
func (s *Service) StockOf(ctx context.Context, productID, warehouseID int64) (StockLevel, error) {
	qty, err := s.view.StockOf(ctx, productID, warehouseID)
	if err != nil {
		return StockLevel{}, err
	}
	return StockLevel{ProductID: productID, WarehouseID: warehouseID, Qty: qty}, nil
}

// TotalStockOf returns current stock for a product across all warehouses.
func (s *Service) TotalStockOf(ctx context.Context, productID int64) (StockLevel, error) {
	qty, err := s.view.TotalStockOf(ctx, productID)
	if err != nil {
		return StockLevel{}, err
	}
	return StockLevel{ProductID: productID, Qty: qty}, nil
}

// StockCard lists the movement history behind a stock level, newest first.
func (s *Service) StockCard(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	if filter.ProductID == 0 {
		return nil, fmt.Errorf("stock card requires a product")
	}
	return s.store.ListEntries(ctx, filter)
}

func issueDocument(is Issue) ledger.Document {
	doc := ledger.Document{
		Type:        ledger.DocTypeGoodsIssue,
		ID:          is.ID,
		WarehouseID: is.WarehouseID,
		ActorID:     is.CreatedBy,
	}
	for _, l := range is.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}

func transferDocument(tr Transfer) ledger.Document {
	doc := ledger.Document{
		Type:           ledger.DocTypeTransfer,
		ID:             tr.ID,
		SrcWarehouseID: tr.SrcWarehouseID,
		DstWarehouseID: tr.DstWarehouseID,
		ActorID:        tr.CreatedBy,
	}
	for _, l := range tr.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}

func adjustmentDocument(adj Adjustment) ledger.Document {
	doc := ledger.Document{
		Type:        ledger.DocTypeStockAdjustment,
		ID:          adj.ID,
		WarehouseID: adj.WarehouseID,
		ActorID:     adj.CreatedBy,
	}
	for _, l := range adj.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}
