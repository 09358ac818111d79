package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"folio/api/internal/config"
	"folio/api/internal/store"
)

var migrateOpts struct {
	databaseURL string
	dir         string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(ctx context.Context, db *sql.DB, dir string) error {
			applied, err := store.ApplyMigrations(ctx, db, dir)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recently applied migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(ctx context.Context, db *sql.DB, dir string) error {
			name, err := store.RollbackMigration(ctx, db, dir)
			if errors.Is(err, store.ErrNoMigrations) {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether each is applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(ctx context.Context, db *sql.DB, dir string) error {
			states, err := store.MigrationStatus(ctx, db, dir)
			if err != nil {
				return err
			}
			for _, state := range states {
				mark := "pending"
				if state.Applied {
					mark = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", mark, state.Name)
			}
			return nil
		})
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrateOpts.databaseURL, "database-url", "", "Postgres URL (default: DATABASE_URL)")
	migrateCmd.PersistentFlags().StringVar(&migrateOpts.dir, "dir", "", "Migrations directory (default: FOLIO_MIGRATIONS_DIR)")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

// migrationTarget resolves the database URL and directory from flags, then
// the environment.
func migrationTarget(cfg config.Config) (string, string) {
	databaseURL := cfg.DatabaseURL
	if migrateOpts.databaseURL != "" {
		databaseURL = migrateOpts.databaseURL
	}
	dir := cfg.MigrationsDir
	if migrateOpts.dir != "" {
		dir = migrateOpts.dir
	}
	return databaseURL, dir
}

func withMigrationDB(ctx context.Context, fn func(context.Context, *sql.DB, string) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	databaseURL, dir := migrationTarget(config.Load())
	if _, err := store.LoadMigrations(dir); err != nil {
		return err
	}

	db, err := store.Open(ctx, databaseURL, store.PoolOptions{MaxOpen: 2})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return fn(ctx, db, dir)
}
