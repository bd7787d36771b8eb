package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

func migrateUp(db *sql.DB, d dialect) error {
	src, err := iofs.New(migrationsFS, "migrations/"+d.name)
	if err != nil {
		return fmt.Errorf("loading %s migrations: %w", d.name, err)
	}

	var driver database.Driver
	switch d.name {
	case "postgres":
		// A dedicated connection keeps the advisory lock off the pool.
		conn, cerr := db.Conn(context.Background())
		if cerr != nil {
			return fmt.Errorf("acquiring migration connection: %w", cerr)
		}
		defer conn.Close()
		driver, err = postgres.WithConnection(context.Background(), conn, &postgres.Config{})
	default:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("creating %s migration driver: %w", d.name, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.name, driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	// Closing the migrate instance would close db as well.
	return src.Close()
}
