package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Handler exposes the inventory JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Routes mounts inventory endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/goods-issues", func(r chi.Router) {
		r.Get("/", h.ListIssues)
		r.Post("/", h.CreateIssue)
		r.Get("/{id}", h.GetIssue)
		r.Post("/{id}/status", h.TransitionIssue)
		r.Delete("/{id}", h.DeleteIssue)
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.ListTransfers)
		r.Post("/", h.CreateTransfer)
		r.Get("/{id}", h.GetTransfer)
		r.Post("/{id}/status", h.TransitionTransfer)
		r.Delete("/{id}", h.DeleteTransfer)
	})
	r.Route("/stock-adjustments", func(r chi.Router) {
		r.Get("/", h.ListAdjustments)
		r.Post("/", h.CreateAdjustment)
		r.Get("/{id}", h.GetAdjustment)
		r.Post("/{id}/status", h.TransitionAdjustment)
		r.Delete("/{id}", h.DeleteAdjustment)
	})
	r.Route("/stock", func(r chi.Router) {
		r.Get("/", h.Stock)
		r.Get("/card", h.StockCard)
	})
}

type issueLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"gt=0"`
}

type issueRequest struct {
	WarehouseID int64              `json:"warehouse_id" validate:"required,gt=0"`
	Reason      string             `json:"reason" validate:"max=255"`
	IssueDate   *time.Time         `json:"issue_date"`
	Lines       []issueLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	is := Issue{WarehouseID: req.WarehouseID, Reason: req.Reason, CreatedBy: actorID(r)}
	if req.IssueDate != nil {
		is.IssueDate = *req.IssueDate
	}
	for _, lr := range req.Lines {
		is.Lines = append(is.Lines, IssueLine{ProductID: lr.ProductID, Qty: lr.Qty})
	}
	created, err := h.service.CreateIssue(r.Context(), is)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	is, err := h.service.GetIssue(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, is)
}

func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := filtersFromQuery(r)
	issues, total, err := h.service.ListIssues(r.Context(), filters)
	if err != nil {
		h.logger.Error("list goods issues failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: issues, Pagination: shared.NewPagination(page, perPage, total)})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) TransitionIssue(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionIssue)
}

func (h *Handler) DeleteIssue(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.service.DeleteIssue)
}

type transferLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"gt=0"`
}

type transferRequest struct {
	SrcWarehouseID int64                 `json:"src_warehouse_id" validate:"required,gt=0"`
	DstWarehouseID int64                 `json:"dst_warehouse_id" validate:"required,gt=0"`
	Notes          string                `json:"notes" validate:"max=1000"`
	TransferDate   *time.Time            `json:"transfer_date"`
	Lines          []transferLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tr := Transfer{
		SrcWarehouseID: req.SrcWarehouseID,
		DstWarehouseID: req.DstWarehouseID,
		Notes:          req.Notes,
		CreatedBy:      actorID(r),
	}
	if req.TransferDate != nil {
		tr.TransferDate = *req.TransferDate
	}
	for _, lr := range req.Lines {
		tr.Lines = append(tr.Lines, TransferLine{ProductID: lr.ProductID, Qty: lr.Qty})
	}
	created, err := h.service.CreateTransfer(r.Context(), tr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	tr, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := filtersFromQuery(r)
	transfers, total, err := h.service.ListTransfers(r.Context(), filters)
	if err != nil {
		h.logger.Error("list transfers failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: transfers, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) TransitionTransfer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionTransfer)
}

func (h *Handler) DeleteTransfer(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.service.DeleteTransfer)
}

type adjustmentLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty"`
}

type adjustmentRequest struct {
	WarehouseID int64                   `json:"warehouse_id" validate:"required,gt=0"`
	Reason      string                  `json:"reason" validate:"max=255"`
	Lines       []adjustmentLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj := Adjustment{WarehouseID: req.WarehouseID, Reason: req.Reason, CreatedBy: actorID(r)}
	for _, lr := range req.Lines {
		adj.Lines = append(adj.Lines, AdjustmentLine{ProductID: lr.ProductID, Qty: lr.Qty})
	}
	created, err := h.service.CreateAdjustment(r.Context(), adj)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	adj, err := h.service.GetAdjustment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	filters, page, perPage := filtersFromQuery(r)
	adjustments, total, err := h.service.ListAdjustments(r.Context(), filters)
	if err != nil {
		h.logger.Error("list adjustments failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: adjustments, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) TransitionAdjustment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.TransitionAdjustment)
}

func (h *Handler) DeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.service.DeleteAdjustment)
}

// Stock answers level queries. With warehouse_id it returns one aggregate;
// without it, the total across all warehouses.
func (h *Handler) Stock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "product_id is required")
		return
	}
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)

	var (
		level StockLevel
		err   error
	)
	if warehouseID != 0 {
		level, err = h.service.StockOf(r.Context(), productID, warehouseID)
	} else {
		level, err = h.service.TotalStockOf(r.Context(), productID)
	}
	if err != nil {
		h.logger.Error("stock query failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

// StockCard lists the ledger entries behind a stock level.
func (h *Handler) StockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.EntryFilter{
		DocType: ledger.DocType(q.Get("doc_type")),
	}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if from := q.Get("from"); from != "" {
		filter.From, _ = time.Parse(time.RFC3339, from)
	}
	if to := q.Get("to"); to != "" {
		filter.To, _ = time.Parse(time.RFC3339, to)
	}

	entries, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, to ledger.Status) error) {
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

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) error) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := fn(r.Context(), id); err != nil {
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
	if q.Get("warehouse_id") != "" {
		filters.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	}
	return filters, page, perPage
}
