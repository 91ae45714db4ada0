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

// CreateStore opens the caller's store on the FREE plan with the caller as
// OWNER and returns a token carrying the new role.
func (s *Service) CreateStore(ctx context.Context, req domain.StoreRequest) (domain.StoreCreatedResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionCreateStore)
	if err != nil {
		return domain.StoreCreatedResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.StoreCreatedResponse{}, apperr.Validation("store name is required")
	}

	now := s.now().UTC()
	st := domain.Store{ID: xid.New(), Name: name, Plan: domain.PlanFree, CreatedAt: now}
	owner := domain.Membership{
		ID:                xid.New(),
		UserID:            actor.UserID,
		StoreID:           st.ID,
		Role:              domain.RoleOwner,
		CanSell:           true,
		CanManageProducts: true,
		CreatedAt:         now,
	}
	if err := s.repo.CreateStoreWithOwner(ctx, st, owner); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.StoreCreatedResponse{}, apperr.Conflict("user already has a store")
		}
		return domain.StoreCreatedResponse{}, storeError(err, "store")
	}

	token, err := s.creds.IssueToken(actor.UserID, domain.RoleOwner, st.ID)
	if err != nil {
		return domain.StoreCreatedResponse{}, apperr.Internal(err, "failed to issue token")
	}
	s.log.Info(s.log.WithStoreID(ctx, st.ID), "store.created")
	return domain.StoreCreatedResponse{Store: st, Token: token}, nil
}

func (s *Service) UpdateStore(ctx context.Context, req domain.StoreRequest) (domain.Store, error) {
	actor, err := s.authorize(ctx, policy.ActionUpdateStore)
	if err != nil {
		return domain.Store{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Store{}, apperr.Validation("store name is required")
	}

	st, err := s.repo.GetStore(ctx, actor.StoreID)
	if err != nil {
		return domain.Store{}, storeError(err, "store")
	}
	st.Name = name
	if err := s.repo.UpdateStore(ctx, *st); err != nil {
		return domain.Store{}, storeError(err, "store")
	}
	return *st, nil
}

// DeleteStore lets an owner close the store. Member accounts stay; they just
// lose their membership.
func (s *Service) DeleteStore(ctx context.Context) (domain.MessageResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionDeleteStore)
	if err != nil {
		return domain.MessageResponse{}, err
	}
	if err := s.repo.DeleteStore(ctx, actor.StoreID, false); err != nil {
		return domain.MessageResponse{}, storeError(err, "store")
	}
	s.invalidateReports(ctx, actor.StoreID)
	s.log.Info(s.log.WithStoreID(ctx, actor.StoreID), "store.deleted")
	return domain.MessageResponse{Message: "store deleted"}, nil
}
