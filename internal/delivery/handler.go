package delivery

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

// Handler exposes the delivery JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Routes mounts delivery endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/deliveries", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.CreateFromOrder)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/status", h.Transition)
		r.Delete("/{id}", h.Delete)
	})
	r.Get("/orders/{id}/deliverable", h.RemainingForOrder)
}

type createRequest struct {
	SalesOrderID int64 `json:"sales_order_id" validate:"required,gt=0"`
	WarehouseID  int64 `json:"warehouse_id" validate:"required,gt=0"`
}

func (h *Handler) CreateFromOrder(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateFromOrder(r.Context(), req.SalesOrderID, req.WarehouseID, actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := filtersFromQuery(r)
	deliveries, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list deliveries failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: deliveries, Pagination: shared.NewPagination(page, perPage, total)})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.Transition(r.Context(), id, ledger.Status(req.Status)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) RemainingForOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	lines, err := h.service.RemainingForOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type deliverable struct {
		OrderLineID int64   `json:"order_line_id"`
		ProductID   int64   `json:"product_id"`
		Description string  `json:"description"`
		Ordered     float64 `json:"ordered"`
		Delivered   float64 `json:"delivered"`
		Remaining   float64 `json:"remaining"`
	}
	out := make([]deliverable, 0, len(lines))
	for _, l := range lines {
		out = append(out, deliverable{
			OrderLineID: l.OrderLineID,
			ProductID:   l.ProductID,
			Description: l.Description,
			Ordered:     l.Ordered,
			Delivered:   l.Delivered,
			Remaining:   l.Remaining(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
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
	if q.Get("sales_order_id") != "" {
		filters.SalesOrderID, _ = strconv.ParseInt(q.Get("sales_order_id"), 10, 64)
	}
	return filters, page, perPage
}
