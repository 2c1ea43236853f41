package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian/internal/audit"
	"github.com/meridian-erp/meridian/internal/delivery"
	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/masterdata"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
	"github.com/meridian-erp/meridian/internal/procurement"
	"github.com/meridian-erp/meridian/internal/production"
	"github.com/meridian-erp/meridian/internal/sales"
	"github.com/meridian-erp/meridian/internal/shared"
	"github.com/meridian-erp/meridian/jobs"
)

// RouterConfig collects everything the HTTP API needs.
type RouterConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client          // may be nil; disables the stock cache
	Metrics *observability.Metrics // may be nil; disables /metrics
	Jobs    *jobs.Client           // may be nil; disables on-demand job triggers
}

// NewRouter wires repositories, the posting engine and every document module
// into one chi router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	validate := validator.New()

	store := ledger.NewPGStore(cfg.Pool)
	view := ledger.NewStockView(store, cfg.Redis, cfg.Config.StockCacheTTL, cfg.Logger)
	auditLog := shared.NewAuditLogger(cfg.Pool)
	engine := ledger.NewEngine(store, view, auditLog, cfg.Logger)
	dispatcher := ledger.NewDispatcher()

	masterdataSvc := masterdata.NewService(masterdata.NewRepository(cfg.Pool), cfg.Logger)
	salesSvc := sales.NewService(sales.NewRepository(cfg.Pool), engine, cfg.Logger)
	deliverySvc := delivery.NewService(delivery.NewRepository(cfg.Pool), engine, cfg.Logger)
	procurementSvc := procurement.NewService(procurement.NewRepository(cfg.Pool), engine, cfg.Logger)
	productionSvc := production.NewService(production.NewRepository(cfg.Pool), engine, cfg.Logger)
	inventorySvc := inventory.NewService(inventory.NewRepository(cfg.Pool), engine, store, view, cfg.Logger)
	auditSvc := audit.NewService(audit.NewRepository(cfg.Pool), cfg.Logger)

	salesSvc.Register(dispatcher)
	deliverySvc.Register(dispatcher)
	procurementSvc.Register(dispatcher)
	productionSvc.Register(dispatcher)
	inventorySvc.Register(dispatcher)

	r := chi.NewRouter()
	r.Use(MiddlewareStack(MiddlewareConfig{Logger: cfg.Logger, Config: cfg.Config})...)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/healthz", healthHandler(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		masterdata.NewHandler(cfg.Logger, masterdataSvc, validate).Routes(r)
		sales.NewHandler(cfg.Logger, salesSvc, validate).Routes(r)
		delivery.NewHandler(cfg.Logger, deliverySvc, validate).Routes(r)
		procurement.NewHandler(cfg.Logger, procurementSvc, validate).Routes(r)
		production.NewHandler(cfg.Logger, productionSvc, validate).Routes(r)
		inventory.NewHandler(cfg.Logger, inventorySvc, validate).Routes(r)
		audit.NewHandler(auditSvc).Routes(r)

		r.Post("/documents/{type}/{id}/status", transitionHandler(dispatcher, validate, shared.NewIdempotencyStore(cfg.Pool)))

		if cfg.Jobs != nil {
			r.Post("/jobs/low-stock-scan", enqueueHandler(cfg.Jobs.EnqueueLowStockScan))
			r.Post("/jobs/stock-snapshot", enqueueHandler(cfg.Jobs.EnqueueStockSnapshot))
		}
	})

	return r
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// transitionHandler drives any registered document variant through the
// dispatcher, so callers can transition by (type, id) without knowing the
// owning module. An Idempotency-Key header lets external callers retry the
// request without re-running the transition.
func transitionHandler(d *ledger.Dispatcher, validate *validator.Validate, idem *shared.IdempotencyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docType := ledger.DocType(chi.URLParam(r, "type"))
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
			return
		}
		var req transitionRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		if err := validate.Struct(req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			if err := idem.CheckAndInsert(r.Context(), key, "documents"); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
					return
				}
				httpx.RespondError(w, err)
				return
			}
		}
		if err := d.TransitionStatus(r.Context(), docType, id, ledger.Status(req.Status)); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": req.Status})
	}
}

// enqueueHandler submits a background job and answers with its queue ID.
func enqueueHandler(enqueue func(ctx context.Context) (*asynq.TaskInfo, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := enqueue(r.Context())
		if err != nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", err.Error())
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID, "queue": info.Queue})
	}
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.Pool.Ping(ctx); err != nil {
			cfg.Logger.Warn("health check", slog.Any("error", err))
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
