package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// schemaTable records the applied api_keys schema version.
const schemaTable = "api_keys_schema_migrations"

// RunMigrations brings the api_keys schema up to date on the writer
// connection and returns the resulting schema version.
func RunMigrations(writer *sql.DB) (uint, error) {
	m, err := newMigrator(writer)
	if err != nil {
		return 0, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate api_keys schema: %w", err)
	}

	// Closing m would close writer, which the store keeps using.
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read api_keys schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("api_keys schema version %d is dirty", version)
	}
	return version, nil
}

func newMigrator(writer *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	target, err := migratesqlite.WithInstance(writer, &migratesqlite.Config{MigrationsTable: schemaTable})
	if err != nil {
		return nil, fmt.Errorf("attach migrations to key db: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return nil, fmt.Errorf("create api_keys migrator: %w", err)
	}
	return m, nil
}
