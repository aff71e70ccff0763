package storage

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"NewsDigest/pkg/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every pending migration for the dialect. Up-to-date schemas are not an error.
func Migrate(dialect Dialect, dsn string, log *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("open migrations for %s: %w", dialect, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(dialect, dsn))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	m.Log = logger.New(log, "storage.migrate")

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func migrationURL(dialect Dialect, dsn string) string {
	if dialect == DialectSQLite && !strings.HasPrefix(dsn, "sqlite://") {
		return "sqlite://" + dsn
	}
	return dsn
}
