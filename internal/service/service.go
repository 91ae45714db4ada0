package service

import (
	"context"
	"errors"
	"time"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/logger"
	"stoqplus/backend/internal/mailer"
	"stoqplus/backend/internal/metrics"
	"stoqplus/backend/internal/payments"
	"stoqplus/backend/internal/policy"
	"stoqplus/backend/internal/reporting"
	"stoqplus/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Credentials signs session tokens and hashes passwords.
type Credentials interface {
	IssueToken(userID string, role string, storeID string) (string, error)
	HashPassword(password string) (string, error)
	ComparePassword(hash string, password string) bool
}

type Options struct {
	Logger   *logger.Logger
	Reports  *reporting.Engine
	Mailer   mailer.Mailer
	Payments payments.Gateway
	Metrics  *metrics.Metrics
	Location *time.Location
	// LoginFailureDelay is waited before answering a failed login.
	LoginFailureDelay time.Duration
	// FrontendURL is where checkout returns the buyer.
	FrontendURL string
	Now         func() time.Time
}

type Service struct {
	repo        store.Repository
	creds       Credentials
	log         *logger.Logger
	reports     *reporting.Engine
	mail        mailer.Mailer
	payments    payments.Gateway
	metrics     *metrics.Metrics
	loc         *time.Location
	loginDelay  time.Duration
	frontendURL string
	now         func() time.Time
}

func New(repo store.Repository, creds Credentials, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Reports == nil {
		opts.Reports = reporting.NewEngine(nil, 0)
	}
	if opts.Mailer == nil {
		opts.Mailer = mailer.NewLogMailer(opts.Logger, "")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:        repo,
		creds:       creds,
		log:         opts.Logger,
		reports:     opts.Reports,
		mail:        opts.Mailer,
		payments:    opts.Payments,
		metrics:     opts.Metrics,
		loc:         opts.Location,
		loginDelay:  opts.LoginFailureDelay,
		frontendURL: opts.FrontendURL,
		now:         opts.Now,
	}
}

// ResolveActor loads the account behind a verified token together with its
// current membership. Tokens of deleted accounts are rejected.
func (s *Service) ResolveActor(ctx context.Context, userID string) (domain.Actor, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Actor{}, apperr.Unauthorized("account no longer exists")
	}
	if err != nil {
		return domain.Actor{}, apperr.Internal(err, "failed to load account")
	}

	actor := domain.Actor{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		IsSuperAdmin: user.IsSuperAdmin,
		Role:         domain.RoleUser,
	}
	membership, err := s.repo.GetMembershipByUser(ctx, user.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return actor, nil
	case err != nil:
		return domain.Actor{}, apperr.Internal(err, "failed to load membership")
	}
	actor.StoreID = membership.StoreID
	actor.MembershipID = membership.ID
	actor.Role = membership.Role
	actor.CanSell = membership.CanSell
	actor.CanManageProducts = membership.CanManageProducts
	return actor, nil
}

// authorize returns the request actor when the policy lets it perform action.
func (s *Service) authorize(ctx context.Context, action policy.Action) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, apperr.Unauthorized("authentication required")
	}
	decision := policy.Evaluate(policy.Subject{
		Role:              actor.Role,
		CanSell:           actor.CanSell,
		CanManageProducts: actor.CanManageProducts,
		IsSuperAdmin:      actor.IsSuperAdmin,
		HasStore:          actor.HasStore(),
	}, action)
	if !decision.Allowed {
		return domain.Actor{}, apperr.Forbidden(decision.Reason)
	}
	return actor, nil
}

// storeError translates repository sentinels into typed errors. entity names
// the thing that was looked up.
func storeError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if typed := apperr.As(err); typed != nil {
		return typed
	}

	var shortage *store.StockShortage
	switch {
	case errors.As(err, &shortage):
		return apperr.Wrap(apperr.CodeDomain, err, shortage.Error()).
			WithReason("INSUFFICIENT_STOCK").
			WithDetails(map[string]any{
				"product_id": shortage.ProductID,
				"available":  shortage.Available,
				"requested":  shortage.Requested,
			})
	case errors.Is(err, store.ErrNoOpenSession):
		return apperr.Wrap(apperr.CodeDomain, err, "no open cash session").WithReason("NO_OPEN_SESSION")
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, err, entity+" not found")
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.CodeConflict, err, entity+" conflicts with existing data")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return apperr.Internal(err, "failed to access "+entity)
}

func (s *Service) invalidateReports(ctx context.Context, storeID string) {
	if err := s.reports.Invalidate(ctx, storeID); err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "reports.invalidate.failed")
	}
}

func (s *Service) today() time.Time {
	return reporting.StartOfDay(s.now(), s.loc)
}
