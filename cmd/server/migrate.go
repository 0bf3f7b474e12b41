package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/config"
	"quickcap-auth-backend/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		url, log, err := migrationTarget()
		if err != nil {
			return err
		}
		if err := database.RunMigrations(url); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		steps, err := c.Flags().GetInt("steps")
		if err != nil {
			return err
		}
		url, log, err := migrationTarget()
		if err != nil {
			return err
		}
		if err := database.RollbackMigrations(url, steps); err != nil {
			return err
		}
		log.Info("migrations rolled back", zap.Int("steps", steps))
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		url, _, err := migrationTarget()
		if err != nil {
			return err
		}
		version, dirty, err := database.MigrationVersion(url)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "number of versions to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func migrationTarget() (string, *zap.Logger, error) {
	cfg, log, err := setup()
	if err != nil {
		return "", nil, err
	}
	if cfg.DBDriver == config.DriverLocal {
		return "", nil, fmt.Errorf("DB_DRIVER=%s keeps no schema; use postgres or sqlite", cfg.DBDriver)
	}
	url, err := database.MigrationURL(cfg)
	if err != nil {
		return "", nil, err
	}
	return url, log, nil
}
