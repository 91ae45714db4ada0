package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	pgstore "stoqplus/backend/internal/store/postgres"
)

var migrateCommands = []string{"up", "down", "status", "version", "redo"}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate <up|down|status|version|redo>",
		Short:     "Run schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrateCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runMigrate(opts *RootOptions, command string, cmd *cobra.Command) (err error) {
	ctx, cancel := opts.context(cmd.Context())
	defer cancel()

	pg, err := pgstore.New(ctx, opts.DatabaseURL, pgstore.Options{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, pg.Close())
	}()

	if command == "version" {
		version, err := pgstore.Version(pg.DB())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
		return nil
	}
	if err := pgstore.Migrate(ctx, pg.DB(), command); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", command)
	return nil
}
