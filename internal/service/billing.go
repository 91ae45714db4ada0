package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/payments"
	"stoqplus/backend/internal/policy"
)

// yearlyAmountThreshold classifies approved payments whose reference carries
// no plan type: anything above it is taken as a yearly plan.
var yearlyAmountThreshold = decimal.NewFromInt(100)

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionBilling)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if s.payments == nil {
		return domain.CheckoutResponse{}, apperr.Domain("payments are not configured").WithReason("PAYMENTS_DISABLED")
	}
	if _, err := payments.PlanFor(req.PlanType); err != nil {
		return domain.CheckoutResponse{}, apperr.Validation(err.Error())
	}

	pref, err := s.payments.CreatePreference(ctx, payments.PreferenceRequest{
		StoreID:   actor.StoreID,
		PlanType:  req.PlanType,
		ReturnURL: s.frontendURL,
	})
	if err != nil {
		return domain.CheckoutResponse{}, apperr.Internal(err, "failed to create checkout")
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"store_id": actor.StoreID, "plan": req.PlanType}), "billing.checkout_created")
	return domain.CheckoutResponse{PreferenceID: pref.ID, InitPoint: pref.InitPoint}, nil
}

// HandlePaymentNotification applies an approved payment to the store named in
// its external reference: the store moves to PRO until now plus the plan's
// days. Notifications of other topics or unapproved payments are ignored.
func (s *Service) HandlePaymentNotification(ctx context.Context, hook domain.PaymentWebhook) error {
	if hook.Type != "payment" || strings.TrimSpace(hook.Data.ID) == "" {
		return nil
	}
	if s.payments == nil {
		return apperr.Domain("payments are not configured").WithReason("PAYMENTS_DISABLED")
	}

	payment, err := s.payments.GetPayment(ctx, hook.Data.ID)
	if err != nil {
		return apperr.Internal(err, "failed to fetch payment")
	}
	logCtx := s.log.WithFields(ctx, map[string]any{"payment_id": payment.ID, "status": payment.Status})
	if payment.Status != payments.StatusApproved {
		s.log.Info(logCtx, "billing.payment_ignored")
		return nil
	}

	storeID, planType := payments.ParseExternalReference(payment.ExternalReference)
	if storeID == "" {
		s.log.Warn(logCtx, "billing.payment_without_reference")
		return nil
	}
	if planType == "" {
		planType = payments.PlanMonthly
		if payment.Amount.GreaterThan(yearlyAmountThreshold) {
			planType = payments.PlanYearly
		}
		s.log.Warn(s.log.WithFields(logCtx, map[string]any{"amount": payment.Amount.String(), "plan": planType}), "billing.plan_inferred_from_amount")
	}
	plan, err := payments.PlanFor(planType)
	if err != nil {
		return apperr.Validation(err.Error())
	}

	st, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return storeError(err, "store")
	}
	expires := s.now().UTC().AddDate(0, 0, plan.Days)
	st.Plan = domain.PlanPro
	st.SubscriptionExpiresAt = &expires
	if err := s.repo.UpdateStore(ctx, *st); err != nil {
		return storeError(err, "store")
	}
	s.log.Info(s.log.WithFields(logCtx, map[string]any{"store_id": storeID, "plan": plan.Type}), "billing.plan_activated")
	return nil
}
