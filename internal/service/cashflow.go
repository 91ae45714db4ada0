package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/policy"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

const cashHistoryLimit = 20

func (s *Service) CashStatus(ctx context.Context) (domain.CashStatusResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionOperateCash)
	if err != nil {
		return domain.CashStatusResponse{}, err
	}
	session, err := s.repo.GetOpenCashSession(ctx, actor.StoreID)
	if errors.Is(err, store.ErrNoOpenSession) {
		return domain.CashStatusResponse{Status: domain.CashStatusClosed, Bleeds: []domain.CashMovement{}, Supplies: []domain.CashMovement{}}, nil
	}
	if err != nil {
		return domain.CashStatusResponse{}, storeError(err, "cash session")
	}

	resp := domain.CashStatusResponse{
		Status:   domain.CashStatusOpen,
		Session:  session,
		Bleeds:   make([]domain.CashMovement, 0),
		Supplies: make([]domain.CashMovement, 0),
	}
	for _, mv := range session.Movements {
		switch mv.Type {
		case domain.MovementBleed:
			resp.Bleeds = append(resp.Bleeds, mv)
		case domain.MovementSupply:
			resp.Supplies = append(resp.Supplies, mv)
		}
	}
	return resp, nil
}

// CashSummary totals today's sales per payment method. Every method is listed,
// zero when unused.
func (s *Service) CashSummary(ctx context.Context) (domain.CashSummaryResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionOperateCash)
	if err != nil {
		return domain.CashSummaryResponse{}, err
	}
	today := s.today()
	records, err := s.repo.ListSaleRecords(ctx, actor.StoreID, store.SaleFilter{From: today})
	if err != nil {
		return domain.CashSummaryResponse{}, storeError(err, "sales")
	}

	resp := domain.CashSummaryResponse{
		Date:    today.Format(time.DateOnly),
		Total:   decimal.Zero,
		Count:   len(records),
		Methods: make(map[string]decimal.Decimal, len(domain.PaymentMethods)),
	}
	for _, method := range domain.PaymentMethods {
		resp.Methods[method] = decimal.Zero
	}
	for _, r := range records {
		resp.Methods[r.PaymentMethod] = resp.Methods[r.PaymentMethod].Add(r.Total)
		resp.Total = resp.Total.Add(r.Total)
	}
	return resp, nil
}

// OpenCash starts a new session. Any session still open is closed first
// without reconciliation, so a store never has two open drawers.
func (s *Service) OpenCash(ctx context.Context, req domain.CashOpenRequest) (domain.CashSession, error) {
	actor, err := s.authorize(ctx, policy.ActionOperateCash)
	if err != nil {
		return domain.CashSession{}, err
	}
	if err := validateMoney("opening_balance", req.OpeningBalance); err != nil {
		return domain.CashSession{}, err
	}

	session, err := s.repo.OpenCashSession(ctx, domain.CashSession{
		ID:             xid.New(),
		StoreID:        actor.StoreID,
		UserID:         actor.UserID,
		Operator:       defaultString(actor.Name, domain.DefaultOperatorName),
		Status:         domain.CashStatusOpen,
		OpeningBalance: req.OpeningBalance,
		TotalRevenue:   decimal.Zero,
		TotalBleed:     decimal.Zero,
		TotalSupply:    decimal.Zero,
		CountedMoney:   decimal.Zero,
		Difference:     decimal.Zero,
		OpenedAt:       s.now().UTC(),
	})
	if err != nil {
		return domain.CashSession{}, storeError(err, "cash session")
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"store_id": actor.StoreID, "session_id": session.ID}), "cash.opened")
	return *session, nil
}

func (s *Service) AddCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovement, error) {
	actor, err := s.authorize(ctx, policy.ActionOperateCash)
	if err != nil {
		return domain.CashMovement{}, err
	}
	if req.Type != domain.MovementSupply && req.Type != domain.MovementBleed {
		return domain.CashMovement{}, apperr.Validation("type must be SUPPLY or BLEED")
	}
	if !req.Value.IsPositive() {
		return domain.CashMovement{}, apperr.Validation("value must be positive")
	}

	movement, err := s.repo.AddCashMovement(ctx, actor.StoreID, domain.CashMovement{
		ID:          xid.New(),
		Type:        req.Type,
		Value:       req.Value,
		Description: req.Description,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return domain.CashMovement{}, storeError(err, "cash session")
	}
	return *movement, nil
}

// CloseCash reconciles the open session against today's cash sales and the
// amount counted in the drawer.
func (s *Service) CloseCash(ctx context.Context, req domain.CashCloseRequest) (domain.CashCloseResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionOperateCash)
	if err != nil {
		return domain.CashCloseResponse{}, err
	}
	if err := validateMoney("counted_money", req.CountedMoney); err != nil {
		return domain.CashCloseResponse{}, err
	}

	session, err := s.repo.CloseCashSession(ctx, actor.StoreID, req.CountedMoney, s.today(), s.now().UTC())
	if err != nil {
		return domain.CashCloseResponse{}, storeError(err, "cash session")
	}

	balanced := session.Difference.IsZero()
	s.metrics.CashSessionClosed(balanced)
	logCtx := s.log.WithFields(ctx, map[string]any{
		"store_id":   actor.StoreID,
		"session_id": session.ID,
		"difference": session.Difference.String(),
	})
	if balanced {
		s.log.Info(logCtx, "cash.closed")
	} else {
		s.log.Warn(logCtx, "cash.closed_with_difference")
	}
	return domain.CashCloseResponse{Session: *session, Expected: session.Expected()}, nil
}

func (s *Service) CashHistory(ctx context.Context) ([]domain.CashHistoryEntry, error) {
	actor, err := s.authorize(ctx, policy.ActionOperateCash)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListClosedCashSessions(ctx, actor.StoreID, cashHistoryLimit)
	if err != nil {
		return nil, storeError(err, "cash history")
	}

	history := make([]domain.CashHistoryEntry, 0, len(sessions))
	for _, cs := range sessions {
		date := cs.OpenedAt
		if cs.ClosedAt != nil {
			date = *cs.ClosedAt
		}
		history = append(history, domain.CashHistoryEntry{
			ID:             cs.ID,
			Date:           date,
			Operator:       cs.Operator,
			OpeningBalance: cs.OpeningBalance,
			Revenue:        cs.TotalRevenue,
			TotalSupply:    cs.TotalSupply,
			TotalBleed:     cs.TotalBleed,
			Expected:       cs.Expected(),
			Counted:        cs.CountedMoney,
			Difference:     cs.Difference,
		})
	}
	return history, nil
}

// ResetCash force-closes open sessions without reconciling them.
func (s *Service) ResetCash(ctx context.Context) (domain.MessageResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionOperateCash)
	if err != nil {
		return domain.MessageResponse{}, err
	}
	closed, err := s.repo.ForceCloseCashSessions(ctx, actor.StoreID, s.now().UTC())
	if err != nil {
		return domain.MessageResponse{}, storeError(err, "cash session")
	}
	if closed > 0 {
		s.log.Warn(s.log.WithFields(ctx, map[string]any{"store_id": actor.StoreID, "closed": closed}), "cash.reset")
	}
	return domain.MessageResponse{Message: "cash reset"}, nil
}
