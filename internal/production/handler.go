package production

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Handler exposes the production JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Routes mounts production endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/boms", func(r chi.Router) {
		r.Get("/", h.ListBOMs)
		r.Post("/", h.CreateBOM)
		r.Get("/{id}", h.GetBOM)
		r.Post("/{id}/order", h.CreateOrderFromBOM)
	})
	r.Route("/production-orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/status", h.TransitionOrder)
		r.Post("/{id}/receipt", h.CreateReceiptFromOrder)
	})
	r.Route("/production-receipts", func(r chi.Router) {
		r.Get("/{id}", h.GetReceipt)
		r.Post("/{id}/status", h.TransitionReceipt)
		r.Delete("/{id}", h.DeleteReceipt)
	})
}

type bomComponentRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"gt=0"`
}

type bomRequest struct {
	Code       string                `json:"code" validate:"required,max=64"`
	Name       string                `json:"name" validate:"required,max=255"`
	ProductID  int64                 `json:"product_id" validate:"required,gt=0"`
	IsActive   *bool                 `json:"is_active"`
	Components []bomComponentRequest `json:"components" validate:"required,min=1,dive"`
}

func (h *Handler) CreateBOM(w http.ResponseWriter, r *http.Request) {
	var req bomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b := BOM{Code: req.Code, Name: req.Name, ProductID: req.ProductID, IsActive: true}
	if req.IsActive != nil {
		b.IsActive = *req.IsActive
	}
	for _, cr := range req.Components {
		b.Components = append(b.Components, BOMComponent{ProductID: cr.ProductID, Qty: cr.Qty})
	}
	created, err := h.service.CreateBOM(r.Context(), b)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetBOM(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	b, err := h.service.GetBOM(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) ListBOMs(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := filtersFromQuery(r)
	boms, total, err := h.service.ListBOMs(r.Context(), filters)
	if err != nil {
		h.logger.Error("list boms failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: boms, Pagination: shared.NewPagination(page, perPage, total)})
}

type orderRequest struct {
	WarehouseID int64   `json:"warehouse_id" validate:"required,gt=0"`
	Qty         float64 `json:"qty" validate:"gt=0"`
}

func (h *Handler) CreateOrderFromBOM(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.CreateOrderFromBOM(r.Context(), id, req.WarehouseID, req.Qty, actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
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
	filters, page, perPage := filtersFromQuery(r)
	orders, total, err := h.service.ListOrders(r.Context(), filters)
	if err != nil {
		h.logger.Error("list production orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Pagination: shared.NewPagination(page, perPage, total)})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.TransitionOrder(r.Context(), id, ledger.Status(req.Status)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

type receiptRequest struct {
	QtyProduced float64 `json:"qty_produced" validate:"gte=0"`
}

func (h *Handler) CreateReceiptFromOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rc, err := h.service.CreateReceiptFromOrder(r.Context(), id, req.QtyProduced, actorID(r))
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

func (h *Handler) TransitionReceipt(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.TransitionReceipt(r.Context(), id, ledger.Status(req.Status)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": req.Status})
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

func filtersFromQuery(r *http.Request) (Filters, int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("limit"))
	if perPage < 1 {
		perPage = 50
	}
	filters := Filters{
		Status: ledger.Status(q.Get("status")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if q.Get("product_id") != "" {
		filters.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	}
	return filters, page, perPage
}
