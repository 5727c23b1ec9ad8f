package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShariqSheikhh/AssemblyOS/internal/config"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/db"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverPostgres {
				return errors.New("migrate needs storage.driver postgres")
			}
			if err := db.Migrate(cfg.Postgres.DSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
