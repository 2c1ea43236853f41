package sales

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

// Handler exposes the sales JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Routes mounts sales endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.ListCustomers)
		r.Post("/", h.CreateCustomer)
		r.Get("/{id}", h.GetCustomer)
		r.Put("/{id}", h.UpdateCustomer)
	})
	r.Route("/quotations", func(r chi.Router) {
		r.Get("/", h.ListQuotations)
		r.Post("/", h.CreateQuotation)
		r.Get("/{id}", h.GetQuotation)
		r.Post("/{id}/status", h.TransitionQuotation)
		r.Post("/{id}/convert", h.ConvertQuotation)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/status", h.TransitionOrder)
		r.Post("/{id}/invoice", h.CreateInvoiceFromOrder)
		r.Post("/{id}/return", h.CreateReturnFromOrder)
	})
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/{id}", h.GetInvoice)
		r.Post("/{id}/status", h.TransitionInvoice)
	})
	r.Route("/returns", func(r chi.Router) {
		r.Get("/{id}", h.GetReturn)
		r.Post("/{id}/status", h.TransitionReturn)
		r.Delete("/{id}", h.DeleteReturn)
	})
	r.Route("/quick-sales", func(r chi.Router) {
		r.Post("/", h.CreateQuickSale)
		r.Get("/{id}", h.GetQuickSale)
		r.Post("/{id}/status", h.TransitionQuickSale)
		r.Delete("/{id}", h.DeleteQuickSale)
	})
}

type customerRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=32"`
	Address  string `json:"address" validate:"max=512"`
	IsActive *bool  `json:"is_active"`
}

func (req customerRequest) toCustomer() Customer {
	c := Customer{Code: req.Code, Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address, IsActive: true}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	return c
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateCustomer(r.Context(), req.toCustomer())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := docFiltersFromQuery(r)
	customers, total, err := h.service.ListCustomers(r.Context(), filters)
	if err != nil {
		h.logger.Error("list customers failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: customers, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateCustomer(r.Context(), id, req.toCustomer()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type lineRequest struct {
	ProductID       int64   `json:"product_id" validate:"required,gt=0"`
	Description     string  `json:"description" validate:"max=255"`
	Qty             float64 `json:"qty" validate:"gt=0"`
	UnitPrice       string  `json:"unit_price" validate:"required"`
	DiscountPercent string  `json:"discount_percent"`
	TaxPercent      string  `json:"tax_percent"`
}

type quotationRequest struct {
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	QuoteDate  time.Time     `json:"quote_date" validate:"required"`
	ValidUntil time.Time     `json:"valid_until" validate:"required"`
	Notes      string        `json:"notes" validate:"max=1024"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (h *Handler) CreateQuotation(w http.ResponseWriter, r *http.Request) {
	var req quotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := Quotation{
		CustomerID: req.CustomerID,
		QuoteDate:  req.QuoteDate,
		ValidUntil: req.ValidUntil,
		Notes:      req.Notes,
		CreatedBy:  actorID(r),
	}
	for _, lr := range req.Lines {
		price, err := parseMoney(lr.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		discount, err := parseMoney(lr.DiscountPercent)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		tax, err := parseMoney(lr.TaxPercent)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		q.Lines = append(q.Lines, QuotationLine{
			ProductID:       lr.ProductID,
			Description:     lr.Description,
			Qty:             lr.Qty,
			UnitPrice:       price,
			DiscountPercent: discount,
			TaxPercent:      tax,
		})
	}
	created, err := h.service.CreateQuotation(r.Context(), q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	q, err := h.service.GetQuotation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) ListQuotations(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := docFiltersFromQuery(r)
	quotations, total, err := h.service.ListQuotations(r.Context(), filters)
	if err != nil {
		h.logger.Error("list quotations failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: quotations, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) TransitionQuotation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionQuotation)
}

func (h *Handler) ConvertQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	order, err := h.service.ConvertQuotationToOrder(r.Context(), id, actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := docFiltersFromQuery(r)
	orders, total, err := h.service.ListOrders(r.Context(), filters)
	if err != nil {
		h.logger.Error("list orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionOrder)
}

func (h *Handler) CreateInvoiceFromOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	inv, err := h.service.CreateInvoiceFromOrder(r.Context(), id, actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

type returnRequest struct {
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
}

func (h *Handler) CreateReturnFromOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req returnRequest
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

type quickSaleRequest struct {
	CustomerID  *int64        `json:"customer_id"`
	WarehouseID int64         `json:"warehouse_id" validate:"required,gt=0"`
	Notes       string        `json:"notes" validate:"max=1024"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) CreateQuickSale(w http.ResponseWriter, r *http.Request) {
	var req quickSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	qs := QuickSale{
		CustomerID:  req.CustomerID,
		WarehouseID: req.WarehouseID,
		Notes:       req.Notes,
		CreatedBy:   actorID(r),
	}
	for _, lr := range req.Lines {
		price, err := parseMoney(lr.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		qs.Lines = append(qs.Lines, QuickSaleLine{ProductID: lr.ProductID, Qty: lr.Qty, UnitPrice: price})
	}
	created, err := h.service.CreateQuickSale(r.Context(), qs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetQuickSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	qs, err := h.service.GetQuickSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, qs)
}

func (h *Handler) TransitionQuickSale(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionQuickSale)
}

func (h *Handler) DeleteQuickSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteQuickSale(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
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

// actorID reads the acting user from the X-Actor-ID header; authorization
// itself happens upstream of this API.
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
	if q.Get("customer_id") != "" {
		filters.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	}
	return filters, page, perPage
}
