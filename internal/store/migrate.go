package store

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending golang-migrate migration embedded in this
// binary. It generalizes the teacher's StockStore.Init pattern (an
// ad-hoc CREATE TABLE IF NOT EXISTS run at startup) into a real versioned
// migration chain, one of the teacher's declared-but-unused go.mod
// dependencies (golang-migrate/migrate/v4) now doing real work.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: build migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("store: build migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("[store] migration source close error: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("[store] migration db close error: %v", dbErr)
		}
	}()

	log.Println("[store] applying migrations")
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	log.Println("[store] migrations up to date")
	return nil
}
