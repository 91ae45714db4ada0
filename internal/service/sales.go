package service

import (
	"context"
	"errors"
	"slices"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/policy"
	"stoqplus/backend/internal/reporting"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

const recentSalesLimit = 5

// CreateSale records a sale priced from the current catalogue. Store credit
// sales stay PENDING until paid and fall due after CreditStoreTermDays.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	actor, err := s.authorize(ctx, policy.ActionSell)
	if err != nil {
		return domain.Sale{}, err
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, apperr.Validation("a sale needs at least one item")
	}
	method := defaultString(req.PaymentMethod, domain.PaymentMoney)
	if !slices.Contains(domain.PaymentMethods, method) {
		return domain.Sale{}, apperr.Validation("unsupported payment method").WithDetails(map[string]string{"payment_method": method})
	}

	now := s.now().UTC()
	sale := domain.Sale{
		ID:            xid.New(),
		StoreID:       actor.StoreID,
		UserID:        actor.UserID,
		PaymentMethod: method,
		Status:        domain.SaleStatusPaid,
		CreatedAt:     now,
		Items:         make([]domain.SaleItem, 0, len(req.Items)),
	}
	if req.CustomerID != nil && *req.CustomerID != "" {
		customerID := *req.CustomerID
		sale.CustomerID = &customerID
	}
	if method == domain.PaymentCreditStore {
		due := now.AddDate(0, 0, domain.CreditStoreTermDays)
		sale.Status = domain.SaleStatusPending
		sale.DueDate = &due
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return domain.Sale{}, apperr.Validation("item quantity must be positive").WithDetails(map[string]string{"product_id": line.ProductID})
		}
		sale.Items = append(sale.Items, domain.SaleItem{ID: xid.New(), SaleID: sale.ID, ProductID: line.ProductID, Quantity: line.Quantity})
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, apperr.Wrap(apperr.CodeNotFound, err, "customer not found")
		}
		return domain.Sale{}, storeError(err, "sale")
	}

	s.metrics.SaleCreated(created.PaymentMethod, created.Total.InexactFloat64())
	s.invalidateReports(ctx, actor.StoreID)
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"store_id": actor.StoreID,
		"sale_id":  created.ID,
		"total":    created.Total.String(),
	}), "sale.created")
	return *created, nil
}

// ListDebts returns the store's unpaid store-credit sales, earliest due first.
func (s *Service) ListDebts(ctx context.Context) ([]domain.Sale, error) {
	actor, err := s.authorize(ctx, policy.ActionManageDebts)
	if err != nil {
		return nil, err
	}
	debts, err := s.repo.ListDebts(ctx, actor.StoreID)
	if err != nil {
		return nil, storeError(err, "debts")
	}
	return debts, nil
}

func (s *Service) PayDebt(ctx context.Context, saleID string) (domain.MessageResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionManageDebts)
	if err != nil {
		return domain.MessageResponse{}, err
	}
	if err := s.repo.MarkSalePaid(ctx, actor.StoreID, saleID); err != nil {
		return domain.MessageResponse{}, storeError(err, "pending sale")
	}
	s.invalidateReports(ctx, actor.StoreID)
	return domain.MessageResponse{Message: "debt settled"}, nil
}

// MyMetrics summarises the caller's own sales.
func (s *Service) MyMetrics(ctx context.Context) (reporting.SellerMetrics, error) {
	actor, err := s.authorize(ctx, policy.ActionViewOwnMetrics)
	if err != nil {
		return reporting.SellerMetrics{}, err
	}

	week, err := s.repo.ListSaleRecords(ctx, actor.StoreID, store.SaleFilter{
		From:     s.today().AddDate(0, 0, -6),
		SellerID: actor.UserID,
	})
	if err != nil {
		return reporting.SellerMetrics{}, storeError(err, "sales")
	}
	recent, err := s.repo.ListSaleRecords(ctx, actor.StoreID, store.SaleFilter{SellerID: actor.UserID, Limit: recentSalesLimit})
	if err != nil {
		return reporting.SellerMetrics{}, storeError(err, "sales")
	}
	return reporting.BuildSellerMetrics(week, recent, s.now(), s.loc), nil
}
