package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stoqplus/backend/internal/service"
)

const newPasswordEnv = "STOQ_NEW_PASSWORD"

type seedAdminOptions struct {
	Email    string
	Password string
	Name     string
}

// NewSeedAdminCommand creates the seed-admin command.
func NewSeedAdminCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &seedAdminOptions{}
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or promote the platform super admin",
		Long: `Ensure the super-admin account exists, is verified and owns the
headquarters store. An existing account keeps its password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.Config != nil {
				if opts.Email == "" {
					opts.Email = rootOpts.Config.Admin.Email
				}
				if opts.Password == "" {
					opts.Password = rootOpts.Config.Admin.Password
				}
				if opts.Name == "" {
					opts.Name = rootOpts.Config.Admin.Name
				}
			}
			if strings.TrimSpace(opts.Email) == "" || opts.Password == "" {
				return errors.New("--email and --password are required")
			}

			ctx, cancel := rootOpts.context(cmd.Context())
			defer cancel()
			return rootOpts.withService(ctx, func(svc *service.Service) error {
				if err := svc.EnsureSuperAdmin(ctx, opts.Email, opts.Password, opts.Name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "super admin %s ready\n", opts.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "admin password (used only when the account is created)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "admin display name")
	return cmd
}

// NewUserCommand groups account maintenance subcommands.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account maintenance",
	}
	cmd.AddCommand(newSetPasswordCommand(rootOpts))
	return cmd
}

func newSetPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "set-password <email>",
		Short: "Replace an account's password",
		Long:  "Replace an account's password. The new password is read from --password or " + newPasswordEnv + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(newPasswordEnv)
			}
			if password == "" {
				return fmt.Errorf("a new password is required (--password or %s)", newPasswordEnv)
			}

			ctx, cancel := rootOpts.context(cmd.Context())
			defer cancel()
			return rootOpts.withService(ctx, func(svc *service.Service) error {
				if err := svc.SetPassword(ctx, args[0], password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}
