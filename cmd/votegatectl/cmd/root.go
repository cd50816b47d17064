// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package cmd holds the votegatectl commands.
//
// Each command reads only the environment variables it needs, so an operator
// can run migrations without the token or SSO secrets in scope.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/taibuivan/votegate/internal/platform/constants"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "votegatectl",
	Short: "Operator tools for the votegate authentication gateway",
	Long: `Maintenance commands for the votegate gateway: schema migrations,
SSO assertion signing for integration testing, and credential record purging.`,
	Version:      constants.AppVersion,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// databaseEnv is the subset of the server configuration that database commands read.
type databaseEnv struct {
	DatabaseURL   string `env:"DATABASE_URL,notEmpty"`
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`
}

// loadEnv parses the environment into target.
func loadEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("votegatectl: failed to read environment: %w", err)
	}
	return nil
}

// logger writes text logs to the command's error stream.
func logger(command *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(command.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
