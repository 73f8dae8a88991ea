// migrate.go brings the schema up to date.
//
// PostgreSQL uses golang-migrate with the SQL files in migrations/; the
// library tracks applied versions in schema_migrations. SQLite applies the
// embedded schema/ files, recording each in _migrations.
package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// source driver
)

// RunMigrations applies all pending migrations. migrationsPath is only used
// for PostgreSQL.
func (db *DB) RunMigrations(migrationsPath string) error {
	if db.dialect == SQLite {
		return db.migrateSQLite()
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("📦 Database: no new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Printf("📦 Database: migrated to version %d (dirty: %v)", version, dirty)
	return nil
}

func (db *DB) migrateSQLite() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		name TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create _migrations: %w", err)
	}

	names, err := fs.Glob(sqliteSchema, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		var n int
		if err := db.Get(&n, `SELECT COUNT(*) FROM _migrations WHERE name = ?`, name); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}

		content, err := sqliteSchema.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := db.Exec(`INSERT INTO _migrations (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		applied++
	}

	if applied == 0 {
		log.Println("📦 Database: no new migrations to apply")
	} else {
		log.Printf("📦 Database: applied %d SQLite migrations", applied)
	}
	return nil
}
