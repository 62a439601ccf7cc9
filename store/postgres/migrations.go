package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
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
    balance         BIGINT NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
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
    amount          BIGINT NOT NULL,
    balance_after   BIGINT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    expires_at      TIMESTAMPTZ,
    expired         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_points_entries_org
    ON points_entries (organization_id, created_at);
CREATE INDEX IF NOT EXISTS idx_points_entries_lapsed
    ON points_entries (organization_id, expires_at)
    WHERE NOT expired AND expires_at IS NOT NULL;`,
	},
	{
		name: "0003_entities",
		sql: `
CREATE TABLE IF NOT EXISTS points_entities (
    kind       TEXT NOT NULL,
    id         TEXT NOT NULL,
    owner_id   TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    payload    BYTEA,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_points_entities_owner
    ON points_entities (kind, owner_id);`,
	},
}

// migrate applies pending migrations at most once each.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name       TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
);`, migrationTable)
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		applied, err := isApplied(ctx, pool, m.name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}

		if _, err := tx.Exec(ctx, m.sql); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}

		if _, err := tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES ($1, $2) ON CONFLICT DO NOTHING", migrationTable),
			m.name,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}

	return nil
}

func isApplied(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	var found int
	err := pool.QueryRow(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = $1", name).Scan(&found)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
