// Package database handles the PostgreSQL or SQLite store.
//
// Go Pattern: We use `sqlx`, which extends database/sql with struct scanning.
// Queries are written once with `?` placeholders and passed through Rebind,
// which rewrites them to `$1, $2, ...` for PostgreSQL.
//
// Go's database/sql has built-in connection pooling: one *sqlx.DB is created
// at startup and shared by every goroutine.
package database

import (
	"context"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver, registered by its init()
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered as "sqlite"
)

// Dialect names the SQL backend behind a DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

//go:embed schema/*.sql
var sqliteSchema embed.FS

// DB wraps the sqlx connection with the application's queries.
// Go Pattern: Embedding (*sqlx.DB) promotes all of sqlx's methods.
type DB struct {
	*sqlx.DB
	dialect Dialect
}

// New opens the database named by databaseURL. A `sqlite://path` URL (or a
// bare path ending in .db) selects SQLite; anything else is treated as a
// PostgreSQL connection string.
func New(databaseURL string) (*DB, error) {
	if path, ok := sqlitePath(databaseURL); ok {
		return openSQLite(path)
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Serverless PostgreSQL closes idle connections aggressively, so keep the
	// pool small and recycle often.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	return &DB{DB: db, dialect: Postgres}, nil
}

func sqlitePath(databaseURL string) (string, bool) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return strings.TrimPrefix(databaseURL, "sqlite://"), true
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return strings.TrimPrefix(databaseURL, "sqlite:"), true
	case strings.HasSuffix(databaseURL, ".db"):
		return databaseURL, true
	}
	return "", false
}

func openSQLite(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return &DB{DB: db, dialect: SQLite}, nil
}

// Dialect reports which backend this DB talks to.
func (db *DB) Dialect() Dialect { return db.dialect }

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// MarkInterruptedJobs fails analysis jobs left pending or processing by a
// previous process. Their admissions died with that process.
func (db *DB) MarkInterruptedJobs(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, db.Rebind(`
		UPDATE analysis_jobs
		SET status = ?, error_message = ?, updated_at = ?
		WHERE status IN (?, ?)`),
		"failed", "interrupted by restart", time.Now().UTC(), "pending", "processing")
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("⚠️  Marked %d interrupted analysis jobs as failed", n)
	}
	return n, nil
}
