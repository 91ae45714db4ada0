package service

import (
	"context"
	"errors"
	"strings"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/policy"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	actor, err := s.authorize(ctx, policy.ActionManageCustomers)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx, actor.StoreID)
	if err != nil {
		return nil, storeError(err, "customers")
	}
	return customers, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	actor, err := s.authorize(ctx, policy.ActionManageCustomers)
	if err != nil {
		return domain.Customer{}, err
	}
	customer := applyCustomer(domain.Customer{
		ID:        xid.New(),
		StoreID:   actor.StoreID,
		CreatedAt: s.now().UTC(),
	}, req)
	if customer.Name == "" {
		return domain.Customer{}, apperr.Validation("customer name is required")
	}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return domain.Customer{}, storeError(err, "customer")
	}
	return customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	actor, err := s.authorize(ctx, policy.ActionManageCustomers)
	if err != nil {
		return domain.Customer{}, err
	}
	existing, err := s.repo.GetCustomer(ctx, actor.StoreID, id)
	if err != nil {
		return domain.Customer{}, storeError(err, "customer")
	}
	customer := applyCustomer(*existing, req)
	if customer.Name == "" {
		return domain.Customer{}, apperr.Validation("customer name is required")
	}
	if err := s.repo.UpdateCustomer(ctx, customer); err != nil {
		return domain.Customer{}, storeError(err, "customer")
	}
	return customer, nil
}

// DeleteCustomer refuses customers with sales so the history stays intact.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, policy.ActionManageCustomers)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, actor.StoreID, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apperr.Conflict("customers with sales history cannot be deleted").WithReason("CUSTOMER_HAS_SALES")
		}
		return storeError(err, "customer")
	}
	return nil
}

func (s *Service) CustomerHistory(ctx context.Context, id string) ([]domain.Sale, error) {
	actor, err := s.authorize(ctx, policy.ActionManageCustomers)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListCustomerSales(ctx, actor.StoreID, id)
	if err != nil {
		return nil, storeError(err, "customer")
	}
	return sales, nil
}

// applyCustomer copies the request onto c. Blank optional fields are stored
// as NULL.
func applyCustomer(c domain.Customer, req domain.CustomerRequest) domain.Customer {
	c.Name = strings.TrimSpace(req.Name)
	c.Email = optional(strings.ToLower(req.Email))
	c.Phone = optional(req.Phone)
	c.CPF = optional(req.CPF)
	c.Address = optional(req.Address)
	return c
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
