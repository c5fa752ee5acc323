package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/repository"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"

	"github.com/spf13/cobra"
)

const migrateTimeout = 2 * time.Minute

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Create or update the database schema.

This command ensures the opennotes schema exists with the tables backing
batch jobs, note candidates, per-tenant resource quotas and usage records,
plus the partial indexes the batch claim queries rely on. All statements
are idempotent, so it is safe to run on every deploy.

Configuration for the database connection is loaded from config files and
environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			pool, err := setupDatabaseConnection(GetConfig())
			if err != nil {
				return fmt.Errorf("failed to create database connection pool: %w", err)
			}
			defer pool.Close()

			if err := repository.EnsureSchema(ctx, pool); err != nil {
				return err
			}

			slogger.InfoNoCtx("Database schema is up to date", nil)
			return nil
		},
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}
