package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"stoqplus/backend/internal/cache"
	"stoqplus/backend/internal/config"
	"stoqplus/backend/internal/httpapi"
	"stoqplus/backend/internal/logger"
	"stoqplus/backend/internal/mailer"
	"stoqplus/backend/internal/metrics"
	"stoqplus/backend/internal/payments"
	"stoqplus/backend/internal/reporting"
	"stoqplus/backend/internal/service"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/store/memory"
	pgstore "stoqplus/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "stoqplus-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := context.Background()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server.exit", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	bootCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	a, err := newApp(bootCtx, cfg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(log.WithField(ctx, "addr", cfg.Address()), "server.listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Info(log.WithField(ctx, "signal", s.String()), "server.shutting_down")
	case err := <-serveErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("shutdown: %w", err))
	}
	runErr = multierr.Append(runErr, a.Close())

	log.Info(ctx, "server.stopped")
	return runErr
}

type app struct {
	handler http.Handler
	service *service.Service
	closers []func() error
}

// Close releases the pool and the cache client, in that order.
func (a *app) Close() error {
	var err error
	for _, closeFn := range a.closers {
		err = multierr.Append(err, closeFn())
	}
	return err
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	a := &app{}

	var repo store.Repository
	if cfg.DB.URL != "" {
		pg, err := pgstore.New(ctx, cfg.DB.URL, pgstore.Options{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and %s is set; refusing to start with in-memory fallback: %w", config.EnvDatabaseURL, err)
		}
		a.closers = append(a.closers, pg.Close)
		if cfg.DB.AutoMigrate {
			if err := pgstore.Migrate(ctx, pg.DB(), "up"); err != nil {
				return nil, multierr.Append(fmt.Errorf("migrating: %w", err), a.Close())
			}
			log.Info(ctx, "db.migrated")
		}
		repo = pg
		log.Info(log.WithField(ctx, "repository", "postgres"), "repository.ready")
	} else {
		if cfg.App.IsProd() {
			return nil, fmt.Errorf("%s is required in production", config.EnvDatabaseURL)
		}
		if memory.UsesDefaultSeedPassword() {
			log.Warn(ctx, "memory.default_demo_password")
		}
		repo = memory.NewSeeded()
		log.Warn(log.WithField(ctx, "repository", "memory"), "repository.ready")
	}

	// Without redis, dev keeps reports in process; other environments skip
	// caching so replicas never serve each other's stale figures.
	var reportCache cache.ReportCache = cache.Noop{}
	if cfg.App.IsDev() {
		reportCache = cache.NewMemory()
	}
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn(log.WithField(ctx, "error", err.Error()), "cache.redis_unavailable")
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			a.closers = append(a.closers, redisCache.Close)
			log.Info(log.WithField(ctx, "cache", "redis"), "cache.ready")
		}
	}

	var mail mailer.Mailer
	if cfg.Mail.Enabled() {
		mail = mailer.NewSMTP(mailer.SMTPConfig{
			Host:       cfg.Mail.SMTPHost,
			Port:       cfg.Mail.SMTPPort,
			Username:   cfg.Mail.SMTPUser,
			Password:   cfg.Mail.SMTPPass,
			From:       cfg.Mail.From,
			BackendURL: cfg.App.BackendURL,
		})
	} else {
		mail = mailer.NewLogMailer(log, cfg.App.BackendURL)
		log.Warn(ctx, "mail.smtp_disabled")
	}

	var gateway payments.Gateway
	if cfg.Payments.AccessToken != "" {
		mp, err := payments.NewMercadoPago(cfg.Payments.AccessToken,
			payments.WithBaseURL(cfg.Payments.APIBaseURL),
			payments.WithNotificationURL(cfg.Payments.NotificationURL),
		)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("payments: %w", err), a.Close())
		}
		gateway = mp
	} else {
		log.Warn(ctx, "payments.disabled")
	}

	m := metrics.New()
	auth := httpapi.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	svc := service.New(repo, auth, service.Options{
		Logger:            log,
		Reports:           reporting.NewEngine(reportCache, cfg.Redis.ReportTTL),
		Mailer:            mail,
		Payments:          gateway,
		Metrics:           m,
		Location:          loc,
		LoginFailureDelay: cfg.Auth.LoginFailureDelay,
		FrontendURL:       cfg.App.FrontendURL,
	})

	if cfg.Admin.Password != "" {
		if err := svc.EnsureSuperAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name); err != nil {
			return nil, multierr.Append(fmt.Errorf("seeding super admin: %w", err), a.Close())
		}
		log.Info(log.WithField(ctx, "email", cfg.Admin.Email), "admin.ensured")
	}

	api := httpapi.New(svc, auth, httpapi.Options{
		Logger:         log,
		Metrics:        m,
		AllowedOrigins: splitOrigins(cfg.App.AllowedOrigin),
		FrontendURL:    cfg.App.FrontendURL,
		AttemptLimit:   cfg.Auth.AttemptLimit,
		AttemptWindow:  cfg.Auth.AttemptWindow,
	})
	a.handler = api.Handler()
	a.service = svc
	return a, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validateSecurityConfig(cfg *config.Config) error {
	if len(cfg.Auth.JWTSecret) < 32 {
		return fmt.Errorf("%s must be set and at least 32 characters", config.EnvJWTSecret)
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if cfg.App.IsProd() && strings.Contains(cfg.App.AllowedOrigin, "*") {
		return errors.New("wildcard CORS origin is not allowed in production")
	}
	if cfg.Admin.Password != "" && len(cfg.Admin.Password) < 8 {
		return fmt.Errorf("%s must be at least 8 characters", config.EnvAdminPassword)
	}
	return nil
}
