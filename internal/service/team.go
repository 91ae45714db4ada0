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

// ListTeam returns the store's members other than the owner.
func (s *Service) ListTeam(ctx context.Context) ([]domain.TeamMember, error) {
	actor, err := s.authorize(ctx, policy.ActionViewTeam)
	if err != nil {
		return nil, err
	}
	team, err := s.repo.ListTeam(ctx, actor.StoreID)
	if err != nil {
		return nil, storeError(err, "team")
	}
	return team, nil
}

// CreateMember registers an already verified account bound to the caller's
// store. Role defaults to SELLER.
func (s *Service) CreateMember(ctx context.Context, req domain.TeamMemberCreateRequest) (domain.MessageResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionCreateMember)
	if err != nil {
		return domain.MessageResponse{}, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return domain.MessageResponse{}, err
	}

	role := req.Role
	if role == "" {
		role = domain.RoleSeller
	}
	if err := validateMemberRole(role); err != nil {
		return domain.MessageResponse{}, err
	}
	canSell := true
	if req.CanSell != nil {
		canSell = *req.CanSell
	}
	canManage := role == domain.RoleManager
	if req.CanManageProducts != nil {
		canManage = *req.CanManageProducts
	}

	hash, err := s.creds.HashPassword(req.Password)
	if err != nil {
		return domain.MessageResponse{}, apperr.Internal(err, "failed to hash password")
	}
	now := s.now().UTC()
	user := domain.User{
		ID:           xid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		IsVerified:   true,
		CreatedAt:    now,
	}
	membership := domain.Membership{
		ID:                xid.New(),
		UserID:            user.ID,
		StoreID:           actor.StoreID,
		Role:              role,
		CanSell:           canSell,
		CanManageProducts: canManage,
		CreatedAt:         now,
	}
	if err := s.repo.CreateTeamMember(ctx, user, membership); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.MessageResponse{}, apperr.Conflict("email already registered")
		}
		return domain.MessageResponse{}, storeError(err, "team member")
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"store_id": actor.StoreID, "member_id": membership.ID}), "team.member_created")
	return domain.MessageResponse{Message: "member created"}, nil
}

func (s *Service) UpdateMember(ctx context.Context, id string, req domain.TeamMemberUpdateRequest) (domain.MessageResponse, error) {
	actor, err := s.authorize(ctx, policy.ActionUpdateMember)
	if err != nil {
		return domain.MessageResponse{}, err
	}
	membership, err := s.memberOfStore(ctx, actor.StoreID, id)
	if err != nil {
		return domain.MessageResponse{}, err
	}

	if req.Role != "" {
		if err := validateMemberRole(req.Role); err != nil {
			return domain.MessageResponse{}, err
		}
		membership.Role = req.Role
	}
	if req.CanSell != nil {
		membership.CanSell = *req.CanSell
	}
	if req.CanManageProducts != nil {
		membership.CanManageProducts = *req.CanManageProducts
	}
	if err := s.repo.UpdateMembership(ctx, *membership); err != nil {
		return domain.MessageResponse{}, storeError(err, "team member")
	}
	return domain.MessageResponse{Message: "permissions updated"}, nil
}

// RemoveMember drops the membership. The account itself survives.
func (s *Service) RemoveMember(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, policy.ActionRemoveMember)
	if err != nil {
		return err
	}
	if _, err := s.memberOfStore(ctx, actor.StoreID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteMembership(ctx, actor.StoreID, id); err != nil {
		return storeError(err, "team member")
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"store_id": actor.StoreID, "member_id": id}), "team.member_removed")
	return nil
}

// validateMemberRole keeps OWNER out of team management; a store has one owner.
func validateMemberRole(role string) error {
	if role != domain.RoleSeller && role != domain.RoleManager {
		return apperr.Validation("role must be SELLER or MANAGER")
	}
	return nil
}

// memberOfStore loads a non-owner membership of the store.
func (s *Service) memberOfStore(ctx context.Context, storeID string, id string) (*domain.Membership, error) {
	membership, err := s.repo.GetMembership(ctx, storeID, id)
	if err != nil {
		return nil, storeError(err, "team member")
	}
	if membership.Role == domain.RoleOwner {
		return nil, apperr.Forbidden("the store owner cannot be changed through the team")
	}
	return membership, nil
}
