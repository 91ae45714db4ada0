package service

import (
	"context"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/payments"
	"stoqplus/backend/internal/policy"
)

func (s *Service) AdminDashboard(ctx context.Context) (domain.AdminDashboard, error) {
	if _, err := s.authorize(ctx, policy.ActionAdmin); err != nil {
		return domain.AdminDashboard{}, err
	}
	stores, err := s.repo.ListStoreStats(ctx)
	if err != nil {
		return domain.AdminDashboard{}, storeError(err, "stores")
	}
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return domain.AdminDashboard{}, storeError(err, "users")
	}

	pro := 0
	for _, st := range stores {
		if st.Plan == domain.PlanPro {
			pro++
		}
	}
	return domain.AdminDashboard{
		Metrics: domain.AdminMetrics{
			TotalStores: len(stores),
			TotalUsers:  users,
			ProCount:    pro,
			MRR:         payments.MonthlyPrice.Mul(decimal.NewFromInt(int64(pro))),
		},
		Stores: stores,
	}, nil
}

// AdminDeleteStore wipes a tenant including its member accounts.
func (s *Service) AdminDeleteStore(ctx context.Context, storeID string) (domain.MessageResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionAdmin)
	if err != nil {
		return domain.MessageResponse{}, err
	}
	if storeID == actor.StoreID {
		return domain.MessageResponse{}, apperr.Domain("the administrator's own store cannot be deleted here")
	}
	if err := s.repo.DeleteStore(ctx, storeID, true); err != nil {
		return domain.MessageResponse{}, storeError(err, "store")
	}
	s.invalidateReports(ctx, storeID)
	s.log.Warn(s.log.WithFields(ctx, map[string]any{"store_id": storeID, "admin_id": actor.UserID}), "admin.store_deleted")
	return domain.MessageResponse{Message: "store and members deleted"}, nil
}
