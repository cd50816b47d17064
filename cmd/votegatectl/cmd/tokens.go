// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taibuivan/votegate/internal/credential"
	pgstore "github.com/taibuivan/votegate/internal/platform/postgres"
)

var purgeGrace time.Duration

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Credential record maintenance",
}

var tokensPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete credential records whose refresh token expired",
	Long: `Deletes credential records whose refresh token expired more than --grace ago.
Reads DATABASE_URL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg databaseEnv
		if err := loadEnv(&cfg); err != nil {
			return err
		}

		log := logger(cmd)
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, pgstore.PoolSettings{MaxConns: 2}, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Purging never signs or parses tokens, so no signer is wired.
		service := credential.NewService(credential.NewRepository(pool), nil, pgstore.NewTxManager(pool), credential.Lifetimes{}, log)

		deleted, err := service.PurgeExpired(ctx, purgeGrace)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "purged %d credential records\n", deleted)
		return nil
	},
}

func init() {
	tokensPurgeCmd.Flags().DurationVar(&purgeGrace, "grace", 24*time.Hour, "Keep records expired less than this long ago")

	tokensCmd.AddCommand(tokensPurgeCmd)
	rootCmd.AddCommand(tokensCmd)
}
