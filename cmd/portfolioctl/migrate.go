package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hexastock/internal/storage"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				databaseURL, migrationsPath, err := migrationTarget()
				if err != nil {
					return err
				}
				if err := storage.RunMigrations(databaseURL, migrationsPath); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Postgres migrations completed successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				databaseURL, migrationsPath, err := migrationTarget()
				if err != nil {
					return err
				}
				if err := storage.RollbackMigrations(databaseURL, migrationsPath); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Postgres migration rolled back successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				databaseURL, migrationsPath, err := migrationTarget()
				if err != nil {
					return err
				}
				version, dirty, err := storage.MigrationVersion(databaseURL, migrationsPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current Postgres migration version: %d (dirty: %v)\n", version, dirty)
				return nil
			},
		},
	)

	return cmd
}

func migrationTarget() (databaseURL, migrationsPath string, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", "", err
	}
	return cfg.Database.Postgres.PostgresDSN(), cfg.Storage.MigrationsPath, nil
}
