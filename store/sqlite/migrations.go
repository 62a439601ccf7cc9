package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const migrationTable = "schema_migrations"

// migrations run at most once each, in order, keyed by name.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "0001_accounts",
		sql: `
CREATE TABLE IF NOT EXISTS points_accounts (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL UNIQUE,
    tier            TEXT NOT NULL,
    balance         INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);`,
	},
	{
		name: "0002_entries",
		sql: `
CREATE TABLE IF NOT EXISTS points_entries (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    type            TEXT NOT NULL,
    action          TEXT NOT NULL DEFAULT '',
    amount          INTEGER NOT NULL,
    balance_after   INTEGER NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    expires_at      TEXT,
    expired         INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_points_entries_org
    ON points_entries (organization_id, created_at);
CREATE INDEX IF NOT EXISTS idx_points_entries_lapsed
    ON points_entries (organization_id, expires_at)
    WHERE expired = 0 AND expires_at IS NOT NULL;`,
	},
	{
		name: "0003_entities",
		sql: `
CREATE TABLE IF NOT EXISTS points_entities (
    kind       TEXT NOT NULL,
    id         TEXT NOT NULL,
    owner_id   TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    payload    BLOB,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_points_entities_owner
    ON points_entities (kind, owner_id);`,
	},
}

// migrate applies pending migrations at most once each.
func migrate(ctx context.Context, db *sql.DB) error {
	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name       TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`, migrationTable)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		applied, err := isApplied(ctx, db, m.name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", migrationTable),
			m.name,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}

	return nil
}

func isApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", name).Scan(&found)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
