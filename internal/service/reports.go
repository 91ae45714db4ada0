package service

import (
	"context"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/policy"
	"stoqplus/backend/internal/reporting"
	"stoqplus/backend/internal/store"
)

// Dashboard is the overview for period 7days, month or year.
func (s *Service) Dashboard(ctx context.Context, period string) (reporting.Dashboard, error) {
	actor, err := s.authorize(ctx, policy.ActionViewReports)
	if err != nil {
		return reporting.Dashboard{}, err
	}
	now := s.now()
	window, err := reporting.DashboardWindow(period, now, s.loc)
	if err != nil {
		return reporting.Dashboard{}, apperr.Validation(err.Error())
	}

	key := reporting.Key(actor.StoreID, "dashboard", window.Period)
	return reporting.Load(ctx, s.reports, key, func(ctx context.Context) (reporting.Dashboard, error) {
		from := window.From
		if yesterday := s.today().AddDate(0, 0, -1); yesterday.Before(from) {
			from = yesterday
		}
		paid, err := s.repo.ListSaleRecords(ctx, actor.StoreID, store.SaleFilter{From: from, Status: domain.SaleStatusPaid})
		if err != nil {
			return reporting.Dashboard{}, storeError(err, "sales")
		}
		recent, err := s.repo.ListSaleRecords(ctx, actor.StoreID, store.SaleFilter{Limit: recentSalesLimit})
		if err != nil {
			return reporting.Dashboard{}, storeError(err, "sales")
		}
		products, err := s.repo.ListProducts(ctx, actor.StoreID)
		if err != nil {
			return reporting.Dashboard{}, storeError(err, "products")
		}
		return reporting.BuildDashboard(reporting.DashboardInput{
			Window:   window,
			Paid:     paid,
			Recent:   recent,
			Products: products,
			Now:      now,
			Location: s.loc,
		}), nil
	})
}

func (s *Service) AdvancedAnalytics(ctx context.Context) (reporting.Advanced, error) {
	actor, err := s.authorize(ctx, policy.ActionViewReports)
	if err != nil {
		return reporting.Advanced{}, err
	}
	key := reporting.Key(actor.StoreID, "advanced", "")
	return reporting.Load(ctx, s.reports, key, func(ctx context.Context) (reporting.Advanced, error) {
		paid, err := s.repo.ListSaleRecords(ctx, actor.StoreID, store.SaleFilter{
			From:   s.today().AddDate(0, 0, -(reporting.AdvancedDays - 1)),
			Status: domain.SaleStatusPaid,
		})
		if err != nil {
			return reporting.Advanced{}, storeError(err, "sales")
		}
		return reporting.BuildAdvanced(paid, s.now(), s.loc), nil
	})
}

// FinancialReport covers every sale of the period, pending ones included.
func (s *Service) FinancialReport(ctx context.Context, period string) (reporting.Financial, error) {
	actor, err := s.authorize(ctx, policy.ActionViewReports)
	if err != nil {
		return reporting.Financial{}, err
	}
	window, err := reporting.FinancialWindow(period, s.now(), s.loc)
	if err != nil {
		return reporting.Financial{}, apperr.Validation(err.Error())
	}

	key := reporting.Key(actor.StoreID, "financial", window.Period)
	return reporting.Load(ctx, s.reports, key, func(ctx context.Context) (reporting.Financial, error) {
		records, err := s.repo.ListSaleRecords(ctx, actor.StoreID, store.SaleFilter{From: window.From})
		if err != nil {
			return reporting.Financial{}, storeError(err, "sales")
		}
		return reporting.BuildFinancial(window, records), nil
	})
}
