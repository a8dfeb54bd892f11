package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/Youssefbenarbiya/booki-relay/internal/upgrade"
)

// checkSchemaOrAutoUpgrade gates managed-mode startup on the schema version.
// With BOOKI_AUTO_UPGRADE=true an outdated schema is migrated inline.
func checkSchemaOrAutoUpgrade(ctx context.Context, dsn string) error {
	s, err := readSchemaStatus(ctx, dsn)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	if s.Compatible {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}
	if !s.NeedsMigration || os.Getenv("BOOKI_AUTO_UPGRADE") != "true" {
		return errors.New(upgrade.FormatError(s))
	}

	slog.Info("auto-upgrade: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
	m, err := newMigrator(dsn)
	if err != nil {
		return fmt.Errorf("auto-upgrade: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("auto-upgrade: migrate up: %w", err)
	}
	v, _, _ := m.Version()
	slog.Info("auto-upgrade complete", "version", v)
	return nil
}
