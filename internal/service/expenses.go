package service

import (
	"context"
	"fmt"
	"strings"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/policy"
	"stoqplus/backend/internal/xid"
)

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	actor, err := s.authorize(ctx, policy.ActionManageExpenses)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, actor.StoreID)
	if err != nil {
		return nil, storeError(err, "expenses")
	}
	return expenses, nil
}

// CreateExpenses books an expense, or RepeatCount monthly installments of it
// labelled "(i/n)". Only the first installment may be created already paid.
func (s *Service) CreateExpenses(ctx context.Context, req domain.ExpenseRequest) (domain.ExpenseCreatedResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionManageExpenses)
	if err != nil {
		return domain.ExpenseCreatedResponse{}, err
	}
	if err := validateMoney("value", req.Value); err != nil {
		return domain.ExpenseCreatedResponse{}, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.ExpenseCreatedResponse{}, apperr.Validation("description is required")
	}
	if req.DueDate.IsZero() {
		return domain.ExpenseCreatedResponse{}, apperr.Validation("due_date is required")
	}
	count := req.RepeatCount
	if count < 1 {
		count = 1
	}

	now := s.now().UTC()
	expenses := make([]domain.Expense, 0, count)
	for i := 0; i < count; i++ {
		e := domain.Expense{
			ID:          xid.New(),
			StoreID:     actor.StoreID,
			Description: description,
			Category:    strings.TrimSpace(req.Category),
			Value:       req.Value,
			DueDate:     req.DueDate.AddDate(0, i, 0),
			CreatedAt:   now,
		}
		if count > 1 {
			e.Description = fmt.Sprintf("%s (%d/%d)", description, i+1, count)
		}
		if i == 0 && req.Paid {
			paidAt := now
			e.Paid = true
			e.PaidAt = &paidAt
		}
		expenses = append(expenses, e)
	}

	if err := s.repo.CreateExpenses(ctx, expenses); err != nil {
		return domain.ExpenseCreatedResponse{}, storeError(err, "expense")
	}
	return domain.ExpenseCreatedResponse{Message: "expenses created", Count: count, Expenses: expenses}, nil
}

// ToggleExpense flips the paid flag, stamping or clearing paid_at.
func (s *Service) ToggleExpense(ctx context.Context, id string) (domain.Expense, error) {
	actor, err := s.authorize(ctx, policy.ActionManageExpenses)
	if err != nil {
		return domain.Expense{}, err
	}
	expense, err := s.repo.ToggleExpense(ctx, actor.StoreID, id, s.now().UTC())
	if err != nil {
		return domain.Expense{}, storeError(err, "expense")
	}
	return *expense, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, policy.ActionManageExpenses)
	if err != nil {
		return err
	}
	return storeError(s.repo.DeleteExpense(ctx, actor.StoreID, id), "expense")
}
