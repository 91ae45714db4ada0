package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/policy"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

const (
	stockHistoryLimit      = 50
	manualAdjustmentReason = "manual adjustment"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.authorize(ctx, policy.ActionViewProducts)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, actor.StoreID)
	if err != nil {
		return nil, storeError(err, "products")
	}
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.authorize(ctx, policy.ActionManageProducts)
	if err != nil {
		return domain.Product{}, err
	}
	if err := validateMoney("price", req.Price); err != nil {
		return domain.Product{}, err
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:          xid.New(),
		StoreID:     actor.StoreID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    defaultString(strings.TrimSpace(req.Category), domain.DefaultCategory),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		Price:       req.Price,
		Stock:       req.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.CostPrice != nil {
		if err := validateMoney("cost_price", *req.CostPrice); err != nil {
			return domain.Product{}, err
		}
		product.CostPrice = decimal.NewNullDecimal(*req.CostPrice)
	}
	if product.Name == "" {
		return domain.Product{}, apperr.Validation("product name is required")
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, storeError(err, "product")
	}
	return product, nil
}

// UpdateProduct edits the catalogue fields. A requested stock level is booked
// through the ledger as a manual ENTRY or LOSS against the locked row.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.authorize(ctx, policy.ActionManageProducts)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, actor.StoreID, id)
	if err != nil {
		return domain.Product{}, storeError(err, "product")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, apperr.Validation("product name is required")
		}
		product.Name = name
	}
	if req.Price != nil {
		if err := validateMoney("price", *req.Price); err != nil {
			return domain.Product{}, err
		}
		product.Price = *req.Price
	}
	if req.CostPrice != nil {
		if err := validateMoney("cost_price", *req.CostPrice); err != nil {
			return domain.Product{}, err
		}
		product.CostPrice = decimal.NewNullDecimal(*req.CostPrice)
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		product.Category = defaultString(strings.TrimSpace(*req.Category), domain.DefaultCategory)
	}
	if req.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	product.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateProduct(ctx, *product); err != nil {
		return domain.Product{}, storeError(err, "product")
	}

	if req.Stock != nil {
		updated, entry, err := s.repo.SetStock(ctx, domain.StockEntry{
			ID:        xid.New(),
			StoreID:   actor.StoreID,
			ProductID: product.ID,
			UserID:    actor.UserID,
			Reason:    manualAdjustmentReason,
			CreatedAt: product.UpdatedAt,
		}, *req.Stock)
		if err != nil {
			return domain.Product{}, storeError(err, "product")
		}
		if entry != nil {
			s.metrics.StockEntry(entry.Type)
		}
		product = updated
	}

	s.invalidateReports(ctx, actor.StoreID)
	return *product, nil
}

// DeleteProduct removes a product that never moved. Anything sold or booked
// through the stock ledger stays so the history keeps its rows.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, policy.ActionManageProducts)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, actor.StoreID, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apperr.Conflict("product has sales or stock history and cannot be deleted").WithReason("PRODUCT_HAS_HISTORY")
		}
		return storeError(err, "product")
	}
	s.invalidateReports(ctx, actor.StoreID)
	return nil
}

// ApplyStockEntry books a manual ENTRY or LOSS. LOSS may take stock below
// zero; the ledger records what happened rather than blocking it.
func (s *Service) ApplyStockEntry(ctx context.Context, req domain.StockEntryRequest) (domain.StockEntryResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionStockEntry)
	if err != nil {
		return domain.StockEntryResponse{}, err
	}
	if req.Quantity <= 0 {
		return domain.StockEntryResponse{}, apperr.Validation("quantity must be positive")
	}
	entryType := defaultString(req.Type, domain.StockEntryEntry)
	if entryType != domain.StockEntryEntry && entryType != domain.StockEntryLoss {
		return domain.StockEntryResponse{}, apperr.Validation("type must be ENTRY or LOSS")
	}
	var newCost *decimal.Decimal
	if req.NewCostPrice != nil && entryType == domain.StockEntryEntry {
		if err := validateMoney("new_cost_price", *req.NewCostPrice); err != nil {
			return domain.StockEntryResponse{}, err
		}
		newCost = req.NewCostPrice
	}

	product, entry, err := s.repo.ApplyStockEntry(ctx, domain.StockEntry{
		ID:        xid.New(),
		StoreID:   actor.StoreID,
		ProductID: req.ProductID,
		UserID:    actor.UserID,
		Type:      entryType,
		Quantity:  req.Quantity,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: s.now().UTC(),
	}, newCost)
	if err != nil {
		return domain.StockEntryResponse{}, storeError(err, "product")
	}

	s.metrics.StockEntry(entryType)
	if newCost != nil {
		s.invalidateReports(ctx, actor.StoreID)
	}
	return domain.StockEntryResponse{Product: *product, Entry: *entry}, nil
}

func (s *Service) StockHistory(ctx context.Context) ([]domain.StockEntry, error) {
	actor, err := s.authorize(ctx, policy.ActionViewProducts)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListStockEntries(ctx, actor.StoreID, stockHistoryLimit)
	if err != nil {
		return nil, storeError(err, "stock history")
	}
	return entries, nil
}

func validateMoney(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return apperr.Validation(field + " must not be negative").WithDetails(map[string]string{field: "min=0"})
	}
	if value.Exponent() < -2 && !value.Equal(value.Round(2)) {
		return apperr.Validation(field + " has more than two decimal places").WithDetails(map[string]string{field: "scale=2"})
	}
	return nil
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
