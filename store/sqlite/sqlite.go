// Package sqlite provides a SQLite-backed store for the Points engine,
// using the pure-Go modernc.org/sqlite driver.
//
// SQLite has one writer at a time, so the account-lock contract comes from
// the transaction itself: WithAccountLock begins an immediate write by
// touching the account row, which both asserts the row exists and takes the
// database write lock until commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xraph/points"
	"github.com/xraph/points/account"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/transition"
)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) a SQLite database at the given path.
// Pass ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// The driver serializes writes; a single connection avoids
	// SQLITE_BUSY between our own transactions.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %v", points.ErrMigrationFailed, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// timeLayout is RFC 3339 with a fixed-width nanosecond fraction. The width
// matters: timestamps are stored as TEXT and compared lexically (ORDER BY
// created_at, expires_at < ?), and RFC3339Nano's trimmed trailing zeros
// break lexical ordering within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

const accountColumns = "id, organization_id, tier, balance, status, created_at, updated_at"

func scanAccount(row interface{ Scan(...any) error }) (*account.Account, error) {
	var a account.Account
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Tier, &a.Balance, &a.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = decodeTime(createdAt)
	a.UpdatedAt = decodeTime(updatedAt)
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO points_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrganizationID, a.Tier, a.Balance, a.Status,
		encodeTime(a.CreatedAt), encodeTime(a.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return points.ErrAlreadyExists
		}
		return fmt.Errorf("sqlite: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, orgID string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM points_accounts WHERE organization_id = ?", orgID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, points.ErrNoSubscription
		}
		return nil, fmt.Errorf("sqlite: get account: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, orgID string, status account.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE points_accounts SET status = ?, updated_at = ?
		WHERE organization_id = ?`,
		status, encodeTime(time.Now()), orgID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update account status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return points.ErrNoSubscription
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	query := "SELECT " + accountColumns + " FROM points_accounts"
	args := []any{}
	if opts.Status != "" {
		query += " WHERE status = ?"
		args = append(args, opts.Status)
	}
	query += " ORDER BY organization_id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list accounts: %w", err)
	}
	defer rows.Close()

	var result []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func (s *Store) WithAccountLock(ctx context.Context, orgID string, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", points.ErrTransactionFailed, err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	// Write-intent touch. This escalates the transaction to a write lock
	// immediately and doubles as the existence check.
	res, err := sqlTx.ExecContext(ctx,
		"UPDATE points_accounts SET updated_at = ? WHERE organization_id = ?",
		encodeTime(time.Now()), orgID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: lock account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return points.ErrNoSubscription
	}

	row := sqlTx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM points_accounts WHERE organization_id = ?", orgID)
	acct, err := scanAccount(row)
	if err != nil {
		return fmt.Errorf("sqlite: read locked account: %w", err)
	}

	if err := fn(ctx, &tx{sqlTx: sqlTx, acct: acct}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", points.ErrTransactionFailed, err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(ctx, &tx{sqlTx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

const entryColumns = "id, organization_id, type, action, amount, balance_after, description, expires_at, expired, created_at, updated_at"

func scanEntry(row interface{ Scan(...any) error }) (*entry.Entry, error) {
	var e entry.Entry
	var expiresAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.OrganizationID, &e.Type, &e.Action, &e.Amount,
		&e.BalanceAfter, &e.Description, &expiresAt, &e.Expired, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := decodeTime(expiresAt.String)
		e.ExpiresAt = &t
	}
	e.CreatedAt = decodeTime(createdAt)
	e.UpdatedAt = decodeTime(updatedAt)
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, orgID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	query := "SELECT " + entryColumns + " FROM points_entries WHERE organization_id = ?"
	args := []any{orgID}
	if opts.Type != "" {
		query += " AND type = ?"
		args = append(args, opts.Type)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entries: %w", err)
	}
	defer rows.Close()

	var result []*entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) LapsedTotal(ctx context.Context, orgID string, now time.Time) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM points_entries
		WHERE organization_id = ? AND expired = 0
		  AND expires_at IS NOT NULL AND expires_at < ?`,
		orgID, encodeTime(now),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: lapsed total: %w", err)
	}
	return total.Int64, nil
}

// ──────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────

func (s *Store) PutEntity(ctx context.Context, e *transition.Entity) error {
	return putEntity(ctx, s.db, e)
}

func (s *Store) GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error) {
	return getEntity(ctx, s.db, kind, entityID)
}

func (s *Store) ClaimTransition(ctx context.Context, claim transition.Claim, fn func(ctx context.Context, tx store.Tx) error) (bool, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", points.ErrTransactionFailed, err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	t := &tx{sqlTx: sqlTx}
	claimed, err := t.ClaimTransition(ctx, claim)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	if fn != nil {
		if err := fn(ctx, t); err != nil {
			return false, err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func putEntity(ctx context.Context, db execer, e *transition.Entity) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO points_entities (kind, id, owner_id, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			owner_id = excluded.owner_id,
			status = excluded.status,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		e.Kind, e.ID, e.OwnerID, e.Status, []byte(e.Payload),
		encodeTime(e.CreatedAt), encodeTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put entity: %w", err)
	}
	return nil
}

func getEntity(ctx context.Context, db execer, kind transition.Kind, entityID string) (*transition.Entity, error) {
	var e transition.Entity
	var payload []byte
	var createdAt, updatedAt string
	err := db.QueryRowContext(ctx, `
		SELECT kind, id, owner_id, status, payload, created_at, updated_at
		FROM points_entities WHERE kind = ? AND id = ?`,
		kind, entityID,
	).Scan(&e.Kind, &e.ID, &e.OwnerID, &e.Status, &payload, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, points.ErrEntityNotFound
		}
		return nil, fmt.Errorf("sqlite: get entity: %w", err)
	}
	e.Payload = payload
	e.CreatedAt = decodeTime(createdAt)
	e.UpdatedAt = decodeTime(updatedAt)
	return &e, nil
}

func claimTransition(ctx context.Context, db execer, claim transition.Claim) (bool, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(claim.From)), ", ")
	query := `
		UPDATE points_entities SET status = ?, updated_at = ?
		WHERE kind = ? AND id = ? AND status IN (` + placeholders + `)`
	args := []any{claim.Target, encodeTime(time.Now()), claim.Kind, claim.ID}
	for _, from := range claim.From {
		args = append(args, from)
	}
	if claim.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, claim.OwnerID)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: claim transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

type tx struct {
	sqlTx *sql.Tx
	acct  *account.Account // nil outside account locks
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Account() *account.Account { return t.acct }

func (t *tx) UpdateBalance(ctx context.Context, balance int64) error {
	if t.acct == nil {
		return points.ErrTransactionFailed
	}
	_, err := t.sqlTx.ExecContext(ctx, `
		UPDATE points_accounts SET balance = ?, updated_at = ?
		WHERE organization_id = ?`,
		balance, encodeTime(time.Now()), t.acct.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update balance: %w", err)
	}
	t.acct.Balance = balance
	return nil
}

func (t *tx) AppendEntry(ctx context.Context, e *entry.Entry) error {
	var expiresAt any
	if e.ExpiresAt != nil {
		expiresAt = encodeTime(*e.ExpiresAt)
	}
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO points_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrganizationID, e.Type, e.Action, e.Amount, e.BalanceAfter,
		e.Description, expiresAt, e.Expired,
		encodeTime(e.CreatedAt), encodeTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append entry: %w", err)
	}
	return nil
}

func (t *tx) LapsedGrants(ctx context.Context, now time.Time) ([]*entry.Entry, error) {
	if t.acct == nil {
		return nil, points.ErrTransactionFailed
	}
	rows, err := t.sqlTx.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM points_entries
		WHERE organization_id = ? AND expired = 0
		  AND expires_at IS NOT NULL AND expires_at < ?`,
		t.acct.OrganizationID, encodeTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lapsed grants: %w", err)
	}
	defer rows.Close()

	var result []*entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (t *tx) MarkExpired(ctx context.Context, ids []id.ID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := []any{encodeTime(time.Now())}
	for _, entryID := range ids {
		args = append(args, entryID)
	}
	_, err := t.sqlTx.ExecContext(ctx,
		"UPDATE points_entries SET expired = 1, updated_at = ? WHERE id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark expired: %w", err)
	}
	return nil
}

func (t *tx) ClaimTransition(ctx context.Context, claim transition.Claim) (bool, error) {
	return claimTransition(ctx, t.sqlTx, claim)
}

func (t *tx) PutEntity(ctx context.Context, e *transition.Entity) error {
	return putEntity(ctx, t.sqlTx, e)
}

func (t *tx) GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error) {
	return getEntity(ctx, t.sqlTx, kind, entityID)
}
