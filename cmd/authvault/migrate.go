// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authvault/authvault/internal/store"
)

// SchemaMigrator is the part of store.Migrator the migrate command drives.
type SchemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory opens a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (SchemaMigrator, error)
}

type migrateConfig struct {
	databaseURL string
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (SchemaMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, revert or inspect the embedded schema migrations.
Without a subcommand, all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, cfg, deps, runMigrateUp)
		},
	}
	cmd.PersistentFlags().StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, cfg, deps, runMigrateUp)
		},
	})
	cmd.AddCommand(newMigrateDownCmd(cfg, deps))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, cfg, deps, runMigrateStatus)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Long: `Record VERSION as the current schema version without running any
migration. Use it to recover after a migration failed halfway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, cfg, deps, func(cmd *cobra.Command, m SchemaMigrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func newMigrateDownCmd(cfg *migrateConfig, deps *MigrateDeps) *cobra.Command {
	var (
		steps int
		all   bool
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Long: `Revert the most recent migration, or --steps of them, or --all.
Reverting drops account data, so --yes is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("reverting migrations deletes account data; pass --yes to confirm")
			}
			if steps < 1 {
				return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
			}
			return withMigrator(cmd, cfg, deps, func(cmd *cobra.Command, m SchemaMigrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Reverted all migrations")
					return nil
				}
				if err := m.Steps(-steps); err != nil {
					return err
				}
				cmd.Printf("Reverted %d migration(s)\n", steps)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.Flags().BoolVar(&all, "all", false, "revert every migration")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")
	return cmd
}

func withMigrator(cmd *cobra.Command, cfg *migrateConfig, deps *MigrateDeps, run func(*cobra.Command, SchemaMigrator) error) error {
	databaseURL := cfg.databaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--database-url or DATABASE_URL is required")
	}

	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()
	return run(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m SchemaMigrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("Schema is up to date")
		return nil
	}
	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m SchemaMigrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty (run 'migrate force VERSION' after fixing the schema)"
	}
	cmd.Printf("Version: %d\n", version)
	cmd.Printf("State:   %s\n", state)
	cmd.Printf("Applied: %s\n", describeVersions(applied))
	cmd.Printf("Pending: %s\n", describeVersions(pending))
	return nil
}

func describeVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// parseForceVersion reads a migration version. Parsing stops at the first
// non-digit, so "3abc" is 3.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	return version, nil
}
