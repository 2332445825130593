package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps common aliases to a canonical driver.
func ParseDriver(d string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", d)
	}
}

// Open opens a DB, tunes the pool and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:certsync.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/certsync?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	tunePool(driver, db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if driver == DriverSQLite {
		if err := applySQLitePragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := Migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema (idempotent CREATE IF NOT EXISTS).
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
	// Some drivers reject multi-statement scripts; run each statement on its own.
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed at: %s\nerror: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func tunePool(driver Driver, db *sql.DB) {
	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
}

func applySQLitePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Timestamps are unix seconds in both dialects.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS certificate_requests (
  id                      TEXT PRIMARY KEY,
  email                   TEXT NOT NULL DEFAULT '',
  course_id               TEXT NOT NULL DEFAULT '',
  batch_id                TEXT,
  roster_id               TEXT,
  practical_score         REAL,
  written_score           REAL,
  total_score             REAL,
  pass_threshold          REAL,
  requires_both_scores    INTEGER,
  calculated_status       TEXT NOT NULL DEFAULT 'pending',
  completion_date         INTEGER,
  online_completion_date  INTEGER,
  thinkific_course_id     TEXT,
  thinkific_enrollment_id TEXT,
  last_score_sync         INTEGER,
  created_at              INTEGER NOT NULL,
  updated_at              INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificate_requests_batch ON certificate_requests(batch_id);
CREATE INDEX IF NOT EXISTS idx_certificate_requests_roster ON certificate_requests(roster_id);

CREATE TABLE IF NOT EXISTS audit_logs (
  id          TEXT PRIMARY KEY,
  action      TEXT NOT NULL,      -- e.g. score_sync, alert_triggered
  entity_type TEXT NOT NULL,
  entity_id   TEXT NOT NULL,
  status      TEXT NOT NULL,      -- success|failure|info
  message     TEXT NOT NULL DEFAULT '',
  metadata    TEXT NOT NULL DEFAULT '{}',
  created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS certificate_requests (
  id                      TEXT PRIMARY KEY,
  email                   TEXT NOT NULL DEFAULT '',
  course_id               TEXT NOT NULL DEFAULT '',
  batch_id                TEXT,
  roster_id               TEXT,
  practical_score         DOUBLE PRECISION,
  written_score           DOUBLE PRECISION,
  total_score             DOUBLE PRECISION,
  pass_threshold          DOUBLE PRECISION,
  requires_both_scores    BOOLEAN,
  calculated_status       TEXT NOT NULL DEFAULT 'pending',
  completion_date         BIGINT,
  online_completion_date  BIGINT,
  thinkific_course_id     TEXT,
  thinkific_enrollment_id TEXT,
  last_score_sync         BIGINT,
  created_at              BIGINT NOT NULL,
  updated_at              BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificate_requests_batch ON certificate_requests(batch_id);
CREATE INDEX IF NOT EXISTS idx_certificate_requests_roster ON certificate_requests(roster_id);

CREATE TABLE IF NOT EXISTS audit_logs (
  id          TEXT PRIMARY KEY,
  action      TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id   TEXT NOT NULL,
  status      TEXT NOT NULL,
  message     TEXT NOT NULL DEFAULT '',
  metadata    TEXT NOT NULL DEFAULT '{}',
  created_at  BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);
`
