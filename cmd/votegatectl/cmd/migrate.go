// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taibuivan/votegate/internal/platform/migration"
)

var downSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long:  `Apply, roll back or inspect migrations. Reads DATABASE_URL and MIGRATION_PATH.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(runner *migration.Runner) error {
			return runner.Up()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(runner *migration.Runner) error {
			return runner.Down(downSteps)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(runner *migration.Runner) error {
			status, err := runner.Status()
			if err != nil {
				return err
			}
			if status.Empty {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", status.Version, status.Dirty)
			return nil
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "Number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withRunner(cmd *cobra.Command, run func(runner *migration.Runner) error) error {
	var cfg databaseEnv
	if err := loadEnv(&cfg); err != nil {
		return err
	}

	runner, err := migration.Open(cfg.DatabaseURL, cfg.MigrationPath, logger(cmd))
	if err != nil {
		return err
	}
	defer runner.Close()

	return run(runner)
}
