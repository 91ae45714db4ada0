// Package cli holds the stoqctl operator commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"stoqplus/backend/internal/config"
	"stoqplus/backend/internal/httpapi"
	"stoqplus/backend/internal/logger"
	"stoqplus/backend/internal/service"
	"stoqplus/backend/internal/store"
	pgstore "stoqplus/backend/internal/store/postgres"
)

// Backend is what account commands run against.
type Backend struct {
	Repo  store.Repository
	Close func() error
}

// RootOptions holds global flags and the seams tests replace.
type RootOptions struct {
	DatabaseURL string
	Timeout     time.Duration

	Config *config.Config
	Logger *logger.Logger
	// OpenBackend defaults to the Postgres store.
	OpenBackend func(ctx context.Context, databaseURL string) (*Backend, error)
}

func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.OpenBackend == nil {
		opts.OpenBackend = openPostgres
	}

	cmd := &cobra.Command{
		Use:           "stoqctl",
		Short:         "Stoq+ operator tool",
		Long:          "Schema migrations and account maintenance for a Stoq+ deployment.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.DatabaseURL == "" && opts.Config != nil {
				opts.DatabaseURL = opts.Config.DB.URL
			}
			if opts.DatabaseURL == "" {
				return fmt.Errorf("database URL is required (--database-url or %s)", config.EnvDatabaseURL)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "Postgres connection URL (defaults to "+config.EnvDatabaseURL+")")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", time.Minute, "overall command timeout")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedAdminCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	return cmd
}

func openPostgres(ctx context.Context, databaseURL string) (*Backend, error) {
	pg, err := pgstore.New(ctx, databaseURL, pgstore.Options{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return nil, err
	}
	return &Backend{Repo: pg, Close: pg.Close}, nil
}

func (o *RootOptions) context(parent context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.Timeout)
}

// withService opens the backend and hands fn a service over it.
func (o *RootOptions) withService(ctx context.Context, fn func(*service.Service) error) (err error) {
	backend, err := o.OpenBackend(ctx, o.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if backend.Close != nil {
			err = multierr.Append(err, backend.Close())
		}
	}()

	secret, ttl := "", time.Duration(0)
	if o.Config != nil {
		secret, ttl = o.Config.Auth.JWTSecret, o.Config.Auth.TokenTTL
	}
	svc := service.New(backend.Repo, httpapi.NewAuthManager(secret, ttl), service.Options{Logger: o.Logger})
	return fn(svc)
}
