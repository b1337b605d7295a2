package sql

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Bootstrap applies the file-source migrations bundled under
// migrationsDir against dsn using the named driver ("postgres" or
// "sqlite3"; the migrator's own sqlite3 driver bootstraps DDL only, the
// backend's runtime queries still run through modernc.org/sqlite),
// bringing the schema DDL (CREATE TABLE IF NOT EXISTS, composite
// indexes) up to date before the backend accepts traffic.
func Bootstrap(driverName, dsn, migrationsDir string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsDir), fmt.Sprintf("%s://%s", driverName, dsn))
	if err != nil {
		return fmt.Errorf("sql: init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sql: apply migrations: %w", err)
	}
	return nil
}
