package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

const (
	passwordSpecials     = `!@#$%^&*(),.?":{}|<>`
	verificationTokenLen = 32
	superAdminStoreName  = "Stoq+ HQ"
)

// ValidatePassword enforces the account password rules: at least eight
// characters with an upper-case letter, a lower-case letter, a digit and one
// of the accepted special characters.
func ValidatePassword(password string) error {
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}

	missing := make([]string, 0, 5)
	if len([]rune(password)) < 8 {
		missing = append(missing, "at least 8 characters")
	}
	if !upper {
		missing = append(missing, "an upper-case letter")
	}
	if !lower {
		missing = append(missing, "a lower-case letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !special {
		missing = append(missing, "a special character")
	}
	if len(missing) > 0 {
		return apperr.Validation("password is too weak").WithDetails(map[string]any{"password": missing})
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (domain.SignupResponse, error) {
	email := normalizeEmail(req.Email)
	if err := ValidatePassword(req.Password); err != nil {
		return domain.SignupResponse{}, err
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil && !existing.IsVerified:
		return domain.SignupResponse{}, apperr.Conflict("email registered but not verified").WithReason("EMAIL_NOT_VERIFIED_YET")
	case err == nil:
		return domain.SignupResponse{}, apperr.Conflict("email already registered")
	case !errors.Is(err, store.ErrNotFound):
		return domain.SignupResponse{}, storeError(err, "user")
	}

	hash, err := s.creds.HashPassword(req.Password)
	if err != nil {
		return domain.SignupResponse{}, apperr.Internal(err, "failed to hash password")
	}
	token, err := xid.Token(verificationTokenLen)
	if err != nil {
		return domain.SignupResponse{}, apperr.Internal(err, "failed to generate verification token")
	}

	user := domain.User{
		ID:                xid.New(),
		Name:              strings.TrimSpace(req.Name),
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: &token,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.SignupResponse{}, apperr.Conflict("email already registered")
		}
		return domain.SignupResponse{}, storeError(err, "user")
	}

	if err := s.mail.SendVerification(ctx, user.Email, user.Name, token); err != nil {
		return domain.SignupResponse{}, apperr.Internal(err, "failed to send verification email")
	}
	s.log.Info(s.log.WithUserID(ctx, user.ID), "auth.signup")
	return domain.SignupResponse{Message: "account created, check your email", Email: user.Email}, nil
}

// ResendCode replaces the verification token; links carrying the previous
// token stop working.
func (s *Service) ResendCode(ctx context.Context, req domain.ResendCodeRequest) (domain.MessageResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return domain.MessageResponse{}, storeError(err, "user")
	}
	if user.IsVerified {
		return domain.MessageResponse{}, apperr.Domain("account already verified").WithReason("ALREADY_VERIFIED")
	}

	token, err := xid.Token(verificationTokenLen)
	if err != nil {
		return domain.MessageResponse{}, apperr.Internal(err, "failed to generate verification token")
	}
	user.VerificationToken = &token
	if err := s.repo.UpdateUser(ctx, *user); err != nil {
		return domain.MessageResponse{}, storeError(err, "user")
	}
	if err := s.mail.SendVerification(ctx, user.Email, user.Name, token); err != nil {
		return domain.MessageResponse{}, apperr.Internal(err, "failed to send verification email")
	}
	return domain.MessageResponse{Message: "verification code sent"}, nil
}

func (s *Service) Verify(ctx context.Context, token string) (domain.MessageResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.MessageResponse{}, apperr.Validation("token is required")
	}
	user, err := s.repo.GetUserByVerificationToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MessageResponse{}, apperr.Domain("token expired or invalid").WithReason("INVALID_TOKEN")
	}
	if err != nil {
		return domain.MessageResponse{}, storeError(err, "user")
	}

	user.IsVerified = true
	user.VerificationToken = nil
	if err := s.repo.UpdateUser(ctx, *user); err != nil {
		return domain.MessageResponse{}, storeError(err, "user")
	}
	return domain.MessageResponse{Message: "email verified"}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, storeError(err, "user")
	}
	if user == nil || !s.creds.ComparePassword(user.PasswordHash, req.Password) {
		s.delayFailedLogin(ctx)
		return domain.LoginResponse{}, apperr.Unauthorized("invalid credentials")
	}
	if !user.IsVerified {
		return domain.LoginResponse{}, apperr.Forbidden("confirm your email before signing in").WithReason("EMAIL_NOT_VERIFIED")
	}

	view, storeID, err := s.userView(ctx, *user)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	token, err := s.creds.IssueToken(user.ID, view.Role, storeID)
	if err != nil {
		return domain.LoginResponse{}, apperr.Internal(err, "failed to issue token")
	}
	s.log.Info(s.log.WithUserID(ctx, user.ID), "auth.login")
	return domain.LoginResponse{User: view, Token: token, StoreID: storeID}, nil
}

func (s *Service) delayFailedLogin(ctx context.Context) {
	if s.loginDelay <= 0 {
		return
	}
	timer := time.NewTimer(s.loginDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// userView builds the public account view with the role and plan of the
// user's store, FREE and USER when there is none.
func (s *Service) userView(ctx context.Context, user domain.User) (domain.UserView, string, error) {
	view := domain.UserView{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         domain.RoleUser,
		IsSuperAdmin: user.IsSuperAdmin,
		AvatarURL:    user.AvatarURL,
		Plan:         domain.PlanFree,
	}
	membership, err := s.repo.GetMembershipByUser(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return view, "", nil
	}
	if err != nil {
		return domain.UserView{}, "", storeError(err, "membership")
	}
	view.Role = membership.Role

	st, err := s.repo.GetStore(ctx, membership.StoreID)
	if err != nil {
		return domain.UserView{}, "", storeError(err, "store")
	}
	view.Plan = st.Plan
	createdAt := st.CreatedAt
	view.StoreCreatedAt = &createdAt
	return view, st.ID, nil
}

func (s *Service) Me(ctx context.Context) (domain.MeResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.MeResponse{}, apperr.Unauthorized("authentication required")
	}
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.MeResponse{}, storeError(err, "user")
	}
	view, storeID, err := s.userView(ctx, *user)
	if err != nil {
		return domain.MeResponse{}, err
	}

	resp := domain.MeResponse{User: view}
	if storeID != "" {
		st, err := s.repo.GetStore(ctx, storeID)
		if err != nil {
			return domain.MeResponse{}, storeError(err, "store")
		}
		resp.Store = &domain.StoreRef{ID: st.ID, Name: st.Name}
	}
	return resp, nil
}

func (s *Service) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) (domain.MessageResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.MessageResponse{}, apperr.Unauthorized("authentication required")
	}
	if err := s.setPassword(ctx, actor.UserID, req.NewPassword); err != nil {
		return domain.MessageResponse{}, err
	}
	return domain.MessageResponse{Message: "password changed"}, nil
}

// SetPassword resets the password of the account registered under email.
func (s *Service) SetPassword(ctx context.Context, email string, password string) error {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return storeError(err, "user")
	}
	return s.setPassword(ctx, user.ID, password)
}

func (s *Service) setPassword(ctx context.Context, userID string, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return storeError(err, "user")
	}
	hash, err := s.creds.HashPassword(password)
	if err != nil {
		return apperr.Internal(err, "failed to hash password")
	}
	user.PasswordHash = hash
	return storeError(s.repo.UpdateUser(ctx, *user), "user")
}

// DeleteMe removes the caller's account. An owner's store goes with it.
func (s *Service) DeleteMe(ctx context.Context) (domain.MessageResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.MessageResponse{}, apperr.Unauthorized("authentication required")
	}
	storeID := ""
	if actor.Role == domain.RoleOwner {
		storeID = actor.StoreID
	}
	if err := s.repo.DeleteAccount(ctx, actor.UserID, storeID); err != nil {
		return domain.MessageResponse{}, storeError(err, "user")
	}
	if storeID != "" {
		s.invalidateReports(ctx, storeID)
	}
	s.log.Info(s.log.WithUserID(ctx, actor.UserID), "auth.account_deleted")
	return domain.MessageResponse{Message: "account deleted"}, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.User{}, apperr.Unauthorized("authentication required")
	}
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, storeError(err, "user")
	}
	user.Name = strings.TrimSpace(req.Name)
	if err := s.repo.UpdateUser(ctx, *user); err != nil {
		return domain.User{}, storeError(err, "user")
	}
	return *user, nil
}

// EnsureSuperAdmin makes sure the platform administrator exists: a verified
// super-admin account that owns a PRO headquarters store. An existing account
// is promoted without touching its password.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email string, password string, name string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	now := s.now().UTC()

	user, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := ValidatePassword(password); err != nil {
			return err
		}
		hash, err := s.creds.HashPassword(password)
		if err != nil {
			return apperr.Internal(err, "failed to hash password")
		}
		user = &domain.User{ID: xid.New(), Name: name, Email: email, PasswordHash: hash, CreatedAt: now}
		user.IsVerified = true
		user.IsSuperAdmin = true
		if err := s.repo.CreateUser(ctx, *user); err != nil {
			return storeError(err, "user")
		}
		s.log.Info(s.log.WithUserID(ctx, user.ID), "admin.seeded")
	case err != nil:
		return storeError(err, "user")
	case !user.IsSuperAdmin || !user.IsVerified:
		user.IsSuperAdmin = true
		user.IsVerified = true
		user.VerificationToken = nil
		if err := s.repo.UpdateUser(ctx, *user); err != nil {
			return storeError(err, "user")
		}
		s.log.Info(s.log.WithUserID(ctx, user.ID), "admin.promoted")
	}

	if _, err := s.repo.GetMembershipByUser(ctx, user.ID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return storeError(err, "membership")
	}
	hq := domain.Store{ID: xid.New(), Name: superAdminStoreName, Plan: domain.PlanPro, CreatedAt: now}
	owner := domain.Membership{
		ID: xid.New(), UserID: user.ID, StoreID: hq.ID, Role: domain.RoleOwner,
		CanSell: true, CanManageProducts: true, CreatedAt: now,
	}
	return storeError(s.repo.CreateStoreWithOwner(ctx, hq, owner), "store")
}
