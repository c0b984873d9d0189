// database/migrate.go
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/gewnthar/civicpulse/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationDSN is the golang-migrate URL for cfg. The mysql migrate driver
// needs multi-statement support for the embedded scripts.
func MigrationDSN(cfg config.DatabaseConfig) (string, error) {
	mc, err := mysql.ParseDSN(DSN(cfg))
	if err != nil {
		return "", fmt.Errorf("failed to parse database DSN: %w", err)
	}
	mc.MultiStatements = true
	return "mysql://" + mc.FormatDSN(), nil
}

func newMigrator(cfg config.DatabaseConfig) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	dsn, err := MigrationDSN(cfg)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies steps migrations; 0 applies all pending up migrations and
// a negative count rolls back. It returns the resulting schema version.
func Migrate(cfg config.DatabaseConfig, steps int) (uint, error) {
	m, err := newMigrator(cfg)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if steps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
