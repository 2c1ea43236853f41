package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Service implements sales business logic. Status changes on stock-affecting
// documents run through the posting engine; billing documents go through the
// same path but never touch the ledger.
type Service struct {
	repo   Repository
	engine *ledger.Engine
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, engine *ledger.Engine, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, logger: logger}
}

// Register binds every sales document type to the transition dispatcher.
func (s *Service) Register(d *ledger.Dispatcher) {
	d.Register(ledger.DocTypeSalesQuotation, ledger.TransitionerFunc(s.TransitionQuotation))
	d.Register(ledger.DocTypeSalesOrder, ledger.TransitionerFunc(s.TransitionOrder))
	d.Register(ledger.DocTypeSalesInvoice, ledger.TransitionerFunc(s.TransitionInvoice))
	d.Register(ledger.DocTypeSalesReturn, ledger.TransitionerFunc(s.TransitionReturn))
	d.Register(ledger.DocTypeQuickSale, ledger.TransitionerFunc(s.TransitionQuickSale))
}

func (s *Service) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	if c.Code == "" || c.Name == "" {
		return Customer{}, fmt.Errorf("customer code and name are required")
	}
	return s.repo.CreateCustomer(ctx, c)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context, filters DocFilters) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, filters)
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, c Customer) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	if c.Code == "" || c.Name == "" {
		return fmt.Errorf("customer code and name are required")
	}
	return s.repo.UpdateCustomer(ctx, id, c)
}

// CreateQuotation stores a new draft quotation with recalculated totals.
func (s *Service) CreateQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	if len(q.Lines) == 0 {
		return Quotation{}, fmt.Errorf("quotation: %w", shared.ErrEmptyDocument)
	}
	if _, err := s.repo.GetCustomer(ctx, q.CustomerID); err != nil {
		return Quotation{}, err
	}
	if q.ValidUntil.Before(q.QuoteDate) {
		return Quotation{}, fmt.Errorf("quotation valid_until precedes quote_date")
	}

	docNumber, err := s.repo.NextDocNumber(ctx, nil, "SQ")
	if err != nil {
		return Quotation{}, err
	}
	q.DocNumber = docNumber
	q.Status = ledger.StatusDraft
	applyQuotationTotals(&q)

	created, err := s.repo.CreateQuotation(ctx, q)
	if err != nil {
		return Quotation{}, err
	}
	s.logger.Info("quotation created", slog.Int64("id", created.ID), slog.String("doc", created.DocNumber))
	return created, nil
}

func (s *Service) GetQuotation(ctx context.Context, id int64) (Quotation, error) {
	return s.repo.GetQuotation(ctx, id)
}

func (s *Service) ListQuotations(ctx context.Context, filters DocFilters) ([]Quotation, int, error) {
	return s.repo.ListQuotations(ctx, filters)
}

// TransitionQuotation drives quotation status changes. CONVERTED is reserved
// for ConvertQuotationToOrder so a conversion always produces an order.
func (s *Service) TransitionQuotation(ctx context.Context, id int64, to ledger.Status) error {
	if to == ledger.StatusConverted {
		return fmt.Errorf("quotation %d: conversion must create an order: %w", id, shared.ErrInvalidTransition)
	}
	q, err := s.repo.GetQuotation(ctx, id)
	if err != nil {
		return err
	}
	doc := ledger.Document{Type: ledger.DocTypeSalesQuotation, ID: id}
	_, err = s.engine.ApplyTransition(ctx, doc, q.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetQuotationStatus(ctx, tx, id, q.Status, to)
	})
	return err
}

// ConvertQuotationToOrder copies an approved quotation into a new sales
// order and advances the quotation to CONVERTED, atomically. The unique
// index on sales_orders.quotation_id rejects a second conversion.
func (s *Service) ConvertQuotationToOrder(ctx context.Context, quotationID, actorID int64) (Order, error) {
	q, err := s.repo.GetQuotation(ctx, quotationID)
	if err != nil {
		return Order{}, err
	}
	if q.Status == ledger.StatusConverted {
		return Order{}, fmt.Errorf("quotation %d already converted: %w", quotationID, shared.ErrDuplicateSuccessor)
	}
	machine, err := ledger.MachineFor(ledger.DocTypeSalesQuotation)
	if err != nil {
		return Order{}, err
	}
	if err := machine.Validate(q.Status, ledger.StatusConverted); err != nil {
		return Order{}, err
	}
	if len(q.Lines) == 0 {
		return Order{}, fmt.Errorf("quotation %d: %w", quotationID, shared.ErrEmptyDocument)
	}

	order := Order{
		CustomerID:  q.CustomerID,
		QuotationID: &quotationID,
		Status:      ledger.StatusDraft,
		OrderDate:   time.Now().UTC(),
		Notes:       q.Notes,
		CreatedBy:   actorID,
	}
	for _, ql := range q.Lines {
		order.Lines = append(order.Lines, OrderLine{
			ProductID:       ql.ProductID,
			Description:     ql.Description,
			Qty:             ql.Qty,
			UnitPrice:       ql.UnitPrice,
			DiscountPercent: ql.DiscountPercent,
			TaxPercent:      ql.TaxPercent,
		})
	}
	applyOrderTotals(&order)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "SO")
		if err != nil {
			return err
		}
		order.DocNumber = docNumber
		order, err = s.repo.CreateOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		return s.repo.SetQuotationStatus(ctx, tx, quotationID, q.Status, ledger.StatusConverted)
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("quotation converted",
		slog.Int64("quotation_id", quotationID), slog.Int64("order_id", order.ID))
	return order, nil
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
	doc := ledger.Document{Type: ledger.DocTypeSalesOrder, ID: id}
	_, err = s.engine.ApplyTransition(ctx, doc, o.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetOrderStatus(ctx, tx, id, o.Status, to)
	})
	return err
}

// CreateInvoiceFromOrder bills the not-yet-invoiced remainder of an order.
func (s *Service) CreateInvoiceFromOrder(ctx context.Context, orderID, actorID int64) (Invoice, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	if len(o.Lines) == 0 {
		return Invoice{}, fmt.Errorf("sales order %d: %w", orderID, shared.ErrEmptyDocument)
	}
	remaining, err := s.repo.InvoiceableLines(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		CustomerID:  o.CustomerID,
		OrderID:     &orderID,
		Status:      ledger.StatusDraft,
		InvoiceDate: time.Now().UTC(),
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
		return Invoice{}, fmt.Errorf("sales order %d fully invoiced: %w", orderID, shared.ErrNothingToCopy)
	}
	applyInvoiceTotals(&inv)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "INV")
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
	doc := ledger.Document{Type: ledger.DocTypeSalesInvoice, ID: id}
	_, err = s.engine.ApplyTransition(ctx, doc, inv.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetInvoiceStatus(ctx, tx, id, inv.Status, to)
	})
	return err
}

// CreateReturnFromOrder copies the delivered-but-not-returned remainder of an
// order into a pending sales return.
func (s *Service) CreateReturnFromOrder(ctx context.Context, orderID, warehouseID, actorID int64) (Return, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Return{}, err
	}
	if len(o.Lines) == 0 {
		return Return{}, fmt.Errorf("sales order %d: %w", orderID, shared.ErrEmptyDocument)
	}
	remaining, err := s.repo.ReturnableLines(ctx, orderID)
	if err != nil {
		return Return{}, err
	}

	ret := Return{
		CustomerID:  o.CustomerID,
		OrderID:     &orderID,
		WarehouseID: warehouseID,
		Status:      ledger.StatusPending,
		ReturnDate:  time.Now().UTC(),
		CreatedBy:   actorID,
	}
	for _, l := range remaining {
		if l.Remaining() <= 0 {
			continue
		}
		lineID := l.OrderLineID
		ret.Lines = append(ret.Lines, ReturnLine{
			OrderLineID: &lineID,
			ProductID:   l.ProductID,
			Qty:         l.Remaining(),
			UnitPrice:   l.UnitPrice,
		})
	}
	if len(ret.Lines) == 0 {
		return Return{}, fmt.Errorf("sales order %d has nothing returnable: %w", orderID, shared.ErrNothingToCopy)
	}
	applyReturnTotals(&ret)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		docNumber, err := s.repo.NextDocNumber(ctx, tx, "SR")
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

// TransitionReturn posts IN entries when the return completes and retracts
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

// CreateQuickSale stores a draft counter sale.
func (s *Service) CreateQuickSale(ctx context.Context, qs QuickSale) (QuickSale, error) {
	if len(qs.Lines) == 0 {
		return QuickSale{}, fmt.Errorf("quick sale: %w", shared.ErrEmptyDocument)
	}
	if qs.WarehouseID == 0 {
		return QuickSale{}, fmt.Errorf("quick sale requires a warehouse")
	}
	docNumber, err := s.repo.NextDocNumber(ctx, nil, "QS")
	if err != nil {
		return QuickSale{}, err
	}
	qs.DocNumber = docNumber
	qs.Status = ledger.StatusDraft
	if qs.SaleDate.IsZero() {
		qs.SaleDate = time.Now().UTC()
	}
	applyQuickSaleTotals(&qs)
	return s.repo.CreateQuickSale(ctx, qs)
}

func (s *Service) GetQuickSale(ctx context.Context, id int64) (QuickSale, error) {
	return s.repo.GetQuickSale(ctx, id)
}

// TransitionQuickSale issues stock on completion and restores it on revert.
func (s *Service) TransitionQuickSale(ctx context.Context, id int64, to ledger.Status) error {
	qs, err := s.repo.GetQuickSale(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.ApplyTransition(ctx, quickSaleDocument(qs), qs.Status, to, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.SetQuickSaleStatus(ctx, tx, id, qs.Status, to)
	})
	return err
}

// DeleteQuickSale retracts a completed quick sale before removing it.
func (s *Service) DeleteQuickSale(ctx context.Context, id int64) error {
	qs, err := s.repo.GetQuickSale(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Delete(ctx, quickSaleDocument(qs), qs.Status, func(ctx context.Context, tx db.DBTX) error {
		return s.repo.DeleteQuickSale(ctx, tx, id)
	})
	return err
}

func returnDocument(ret Return) ledger.Document {
	doc := ledger.Document{
		Type:        ledger.DocTypeSalesReturn,
		ID:          ret.ID,
		WarehouseID: ret.WarehouseID,
		ActorID:     ret.CreatedBy,
	}
	for _, l := range ret.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}

func quickSaleDocument(qs QuickSale) ledger.Document {
	doc := ledger.Document{
		Type:        ledger.DocTypeQuickSale,
		ID:          qs.ID,
		WarehouseID: qs.WarehouseID,
		ActorID:     qs.CreatedBy,
	}
	for _, l := range qs.Lines {
		doc.Lines = append(doc.Lines, ledger.Line{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty})
	}
	return doc
}

func applyQuotationTotals(q *Quotation) {
	for i := range q.Lines {
		_, _, lineTotal := CalculateLineTotals(q.Lines[i].Qty, q.Lines[i].UnitPrice, q.Lines[i].DiscountPercent, q.Lines[i].TaxPercent)
		q.Lines[i].LineTotal = lineTotal
	}
	t := totalsOf(q.Lines)
	q.Subtotal, q.Discount, q.Tax, q.GrandTotal = t.Subtotal, t.Discount, t.Tax, t.GrandTotal
}

func applyOrderTotals(o *Order) {
	for i := range o.Lines {
		_, _, lineTotal := CalculateLineTotals(o.Lines[i].Qty, o.Lines[i].UnitPrice, o.Lines[i].DiscountPercent, o.Lines[i].TaxPercent)
		o.Lines[i].LineTotal = lineTotal
	}
	t := totalsOf(o.Lines)
	o.Subtotal, o.Discount, o.Tax, o.GrandTotal = t.Subtotal, t.Discount, t.Tax, t.GrandTotal
}

func applyInvoiceTotals(inv *Invoice) {
	for i := range inv.Lines {
		_, _, lineTotal := CalculateLineTotals(inv.Lines[i].Qty, inv.Lines[i].UnitPrice, decimal.Zero, decimal.Zero)
		inv.Lines[i].LineTotal = lineTotal
	}
	t := totalsOf(inv.Lines)
	inv.Subtotal, inv.Tax, inv.GrandTotal = t.Subtotal, t.Tax, t.GrandTotal
}

func applyReturnTotals(ret *Return) {
	for i := range ret.Lines {
		_, _, lineTotal := CalculateLineTotals(ret.Lines[i].Qty, ret.Lines[i].UnitPrice, decimal.Zero, decimal.Zero)
		ret.Lines[i].LineTotal = lineTotal
	}
	t := totalsOf(ret.Lines)
	ret.GrandTotal = t.GrandTotal
}

func applyQuickSaleTotals(qs *QuickSale) {
	for i := range qs.Lines {
		_, _, lineTotal := CalculateLineTotals(qs.Lines[i].Qty, qs.Lines[i].UnitPrice, decimal.Zero, decimal.Zero)
		qs.Lines[i].LineTotal = lineTotal
	}
	t := totalsOf(qs.Lines)
	qs.GrandTotal = t.GrandTotal
}
