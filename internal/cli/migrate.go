package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svd-classify/internal/config"
	"github.com/svd-classify/internal/database"
)

func getMigrateCmd(opts *rootOptions) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
		Long: `Migrate manages the Postgres schema with the SQL files in
database.migrations_path (default ./migrations).

Examples:
  svd-classify migrate up
  svd-classify migrate version`,
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrations(opts.configFile, func(mr *database.MigrationRunner) error {
					return mr.Up(cmd.Context())
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrations(opts.configFile, func(mr *database.MigrationRunner) error {
					return mr.Down(cmd.Context())
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrations(opts.configFile, func(mr *database.MigrationRunner) error {
					version, dirty, err := mr.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty:   %t\n", version, dirty)
					return nil
				})
			},
		},
	)
	return migrateCmd
}

func withMigrations(configFile string, fn func(*database.MigrationRunner) error) error {
	m, err := loadManager(configFile)
	if err != nil {
		return err
	}
	cfg := m.GetConfig()

	logger, logCloser, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	dbURL := database.ConfigFromSettings(cfg.Database).URL()
	mr, err := database.NewMigrationRunner(dbURL, cfg.Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer mr.Close()
	return fn(mr)
}
