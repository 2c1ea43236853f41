package masterdata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian/internal/shared"
)

// Service wraps Repository with validation and normalization.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filters)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	normalizeProduct(&p)
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product created", slog.Int64("id", created.ID), slog.String("code", created.Code))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, p Product) error {
	if id <= 0 {
		return fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	normalizeProduct(&p)
	if err := validateProduct(p); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, id, p)
}

func (s *Service) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.ListWarehouses(ctx, filters)
}

func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("warehouse %d: %w", id, shared.ErrNotFound)
	}
	return s.repo.GetWarehouse(ctx, id)
}

func (s *Service) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	normalizeWarehouse(&w)
	if err := validateWarehouse(w); err != nil {
		return Warehouse{}, err
	}
	created, err := s.repo.CreateWarehouse(ctx, w)
	if err != nil {
		return Warehouse{}, err
	}
	s.logger.Info("warehouse created", slog.Int64("id", created.ID), slog.String("code", created.Code))
	return created, nil
}

func (s *Service) UpdateWarehouse(ctx context.Context, id int64, w Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("warehouse %d: %w", id, shared.ErrNotFound)
	}
	normalizeWarehouse(&w)
	if err := validateWarehouse(w); err != nil {
		return err
	}
	return s.repo.UpdateWarehouse(ctx, id, w)
}

func (s *Service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) CreateSupplier(ctx context.Context, sp Supplier) (Supplier, error) {
	normalizeSupplier(&sp)
	if err := validateSupplier(sp); err != nil {
		return Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, sp)
	if err != nil {
		return Supplier{}, err
	}
	s.logger.Info("supplier created", slog.Int64("id", created.ID), slog.String("code", created.Code))
	return created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, sp Supplier) error {
	if id <= 0 {
		return fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
	}
	normalizeSupplier(&sp)
	if err := validateSupplier(sp); err != nil {
		return err
	}
	return s.repo.UpdateSupplier(ctx, id, sp)
}
