package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/Youssefbenarbiya/booki-relay/internal/config"
	"github.com/Youssefbenarbiya/booki-relay/internal/upgrade"
)

var migrationsDir string

func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	if v := os.Getenv("BOOKI_MIGRATIONS_DIR"); v != "" {
		return v
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+resolveMigrationsDir(), dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// resolveDSN loads the config and its secrets. The DSN never comes from
// config.json: BOOKI_POSTGRES_DSN or the SSM prefix.
func resolveDSN(cmd *cobra.Command) (string, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if err := applySSMSecrets(cmd.Context(), cfg); err != nil {
		return "", err
	}
	if cfg.Database.PostgresDSN == "" {
		return "", fmt.Errorf("BOOKI_POSTGRES_DSN is not set")
	}
	return cfg.Database.PostgresDSN, nil
}

// readSchemaStatus compares the database's migration version with the one
// this relay build serves.
func readSchemaStatus(ctx context.Context, dsn string) (*upgrade.SchemaStatus, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer db.Close()
	return upgrade.CheckSchema(ctx, db)
}

// describeSchema is the one-line verdict printed after every migrate command.
func describeSchema(s *upgrade.SchemaStatus) string {
	switch {
	case s.Dirty:
		return fmt.Sprintf("schema v%d is dirty; the relay will not start until it is forced and re-applied", s.CurrentVersion)
	case s.Compatible:
		return fmt.Sprintf("schema v%d: ready for this relay", s.CurrentVersion)
	case s.NeedsMigration && s.CurrentVersion == 0:
		return fmt.Sprintf("no relay schema yet; this relay needs v%d", s.RequiredVersion)
	case s.NeedsMigration:
		return fmt.Sprintf("schema v%d is behind this relay (needs v%d); message storage is unavailable until `migrate up`",
			s.CurrentVersion, s.RequiredVersion)
	default:
		return fmt.Sprintf("schema v%d is ahead of this relay (serves v%d); deploy a newer build or roll back",
			s.CurrentVersion, s.RequiredVersion)
	}
}

// checkGotoTarget refuses versions this build cannot serve.
func checkGotoTarget(version uint) error {
	if version > upgrade.RequiredSchemaVersion {
		return fmt.Errorf("version %d is newer than this relay supports (v%d)", version, upgrade.RequiredSchemaVersion)
	}
	return nil
}

// reportSchema prints the verdict and returns the status for callers that
// want to fail on it.
func reportSchema(cmd *cobra.Command, dsn string) (*upgrade.SchemaStatus, error) {
	s, err := readSchemaStatus(cmd.Context(), dsn)
	if err != nil {
		return nil, fmt.Errorf("schema status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), describeSchema(s))
	if s.Err() != nil {
		slog.Warn("relay.schema_incompatible", "current", s.CurrentVersion, "required", s.RequiredVersion, "dirty", s.Dirty)
	}
	return s, nil
}

// runMigration opens a migrator, applies step and reports where the schema
// landed relative to this relay build.
func runMigration(cmd *cobra.Command, step func(*migrate.Migrate) error) (*upgrade.SchemaStatus, error) {
	dsn, err := resolveDSN(cmd)
	if err != nil {
		return nil, err
	}
	m, err := newMigrator(dsn)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, err
	}
	return reportSchema(cmd, dsn)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Postgres schema migrations (managed mode)",
	}

	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: ./migrations)")

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())
	cmd.AddCommand(migrateGotoCmd())
	cmd.AddCommand(migrateDropCmd())

	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := runMigration(cmd, func(m *migrate.Migrate) error {
				if err := m.Up(); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			// A migrations dir older than the binary leaves the relay unable to start.
			if s.Err() != nil {
				return errors.New(upgrade.FormatError(s))
			}
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = 1
			}
			_, err := runMigration(cmd, func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return nil
			})
			return err
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the schema version and whether this relay can serve it",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN(cmd)
			if err != nil {
				return err
			}
			_, err = reportSchema(cmd, dsn)
			return err
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			_, err = runMigration(cmd, func(m *migrate.Migrate) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				return nil
			})
			return err
		},
	}
}

func migrateGotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			if err := checkGotoTarget(uint(version)); err != nil {
				return err
			}
			_, err = runMigration(cmd, func(m *migrate.Migrate) error {
				if err := m.Migrate(uint(version)); err != nil {
					return fmt.Errorf("migrate goto: %w", err)
				}
				return nil
			})
			return err
		},
	}
}

func migrateDropCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop all relay tables, message history included (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("drop deletes every stored message; pass --yes to confirm")
			}
			dsn, err := resolveDSN(cmd)
			if err != nil {
				return err
			}
			m, err := newMigrator(dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop: %w", err)
			}
			slog.Warn("relay.schema_dropped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping all relay tables")
	return cmd
}
