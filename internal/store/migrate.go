package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// WaitForDatabase pings the database until it responds or attempts run out.
// Useful under container orchestration where Postgres may come up after us.
func WaitForDatabase(dsn string, attempts int, delay time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = db.Ping(); lastErr == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return fmt.Errorf("database not reachable after %d attempts: %w", attempts, lastErr)
}

// RunMigrations runs SQL migrations from the given directory (e.g. "file://migrations") against the DSN.
func RunMigrations(dsn string, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}
