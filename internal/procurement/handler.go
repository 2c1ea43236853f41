package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Handler exposes the procurement JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Routes mounts procurement endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/status", h.TransitionOrder)
		r.Post("/{id}/receipt", h.CreateReceiptFromOrder)
		r.Post("/{id}/return", h.CreateReturnFromOrder)
		r.Post("/{id}/invoice", h.CreateInvoiceFromOrder)
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Get("/", h.ListReceipts)
		r.Post("/", h.CreateReceipt)
		r.Get("/{id}", h.GetReceipt)
		r.Post("/{id}/status", h.TransitionReceipt)
		r.Delete("/{id}", h.DeleteReceipt)
	})
	r.Route("/purchase-returns", func(r chi.Router) {
		r.Get("/{id}", h.GetReturn)
		r.Post("/{id}/status", h.TransitionReturn)
		r.Delete("/{id}", h.DeleteReturn)
	})
	r.Route("/ap-invoices", func(r chi.Router) {
		r.Get("/{id}", h.GetInvoice)
		r.Post("/{id}/status", h.TransitionInvoice)
	})
}

type orderLineRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description string  `json:"description" validate:"max=255"`
	Qty         float64 `json:"qty" validate:"gt=0"`
	UnitPrice   string  `json:"unit_price" validate:"required"`
	TaxPercent  string  `json:"tax_percent"`
}

type orderRequest struct {
	SupplierID   int64              `json:"supplier_id" validate:"required,gt=0"`
	OrderDate    time.Time          `json:"order_date"`
	ExpectedDate time.Time          `json:"expected_date"`
	Notes        string             `json:"notes" validate:"max=1024"`
	Lines        []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o := Order{
		SupplierID:   req.SupplierID,
		OrderDate:    req.OrderDate,
		ExpectedDate: req.ExpectedDate,
		Notes:        req.Notes,
		CreatedBy:    actorID(r),
	}
	for _, lr := range req.Lines {
		price, err := parseMoney(lr.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		tax, err := parseMoney(lr.TaxPercent)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		o.Lines = append(o.Lines, OrderLine{
			ProductID:   lr.ProductID,
			Description: lr.Description,
			Qty:         lr.Qty,
			UnitPrice:   price,
			TaxPercent:  tax,
		})
	}
	created, err := h.service.CreateOrder(r.Context(), o)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	o, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := docFiltersFromQuery(r)
	orders, total, err := h.service.ListOrders(r.Context(), filters)
	if err != nil {
		h.logger.Error("list purchase orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionOrder)
}

type receiptLineRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description string  `json:"description" validate:"max=255"`
	Qty         float64 `json:"qty" validate:"gt=0"`
	UnitCost    string  `json:"unit_cost"`
}

type receiptRequest struct {
	SupplierID  int64                `json:"supplier_id" validate:"required,gt=0"`
	WarehouseID int64                `json:"warehouse_id" validate:"required,gt=0"`
	Notes       string               `json:"notes" validate:"max=1024"`
	Lines       []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rc := Receipt{
		SupplierID:  req.SupplierID,
		WarehouseID: req.WarehouseID,
		Notes:       req.Notes,
		CreatedBy:   actorID(r),
	}
	for _, lr := range req.Lines {
		cost, err := parseMoney(lr.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		rc.Lines = append(rc.Lines, ReceiptLine{
			ProductID:   lr.ProductID,
			Description: lr.Description,
			Qty:         lr.Qty,
			UnitCost:    cost,
		})
	}
	created, err := h.service.CreateReceipt(r.Context(), rc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type warehouseRequest struct {
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
}

func (h *Handler) CreateReceiptFromOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rc, err := h.service.CreateReceiptFromOrder(r.Context(), id, req.WarehouseID, actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rc)
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	rc, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rc)
}

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := docFiltersFromQuery(r)
	receipts, total, err := h.service.ListReceipts(r.Context(), filters)
	if err != nil {
		h.logger.Error("list goods receipts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: receipts, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) TransitionReceipt(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionReceipt)
}

func (h *Handler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteReceipt(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) CreateReturnFromOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.CreateReturnFromOrder(r.Context(), id, req.WarehouseID, actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) GetReturn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) TransitionReturn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionReturn)
}

func (h *Handler) DeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteReturn(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type invoiceRequest struct {
	DueDate time.Time `json:"due_date" validate:"required"`
}

func (h *Handler) CreateInvoiceFromOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.CreateInvoiceFromOrder(r.Context(), id, actorID(r), req.DueDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) TransitionInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionInvoice)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, ledger.Status) error) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := fn(r.Context(), id, ledger.Status(req.Status)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

type listResponse struct {
	Data       any               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func docFiltersFromQuery(r *http.Request) (DocFilters, int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("limit"))
	if perPage < 1 {
		perPage = 50
	}
	filters := DocFilters{
		Status: ledger.Status(q.Get("status")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if q.Get("supplier_id") != "" {
		filters.SupplierID, _ = strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	}
	return filters, page, perPage
}
