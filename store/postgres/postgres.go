// Package postgres provides a PostgreSQL-backed store for the Points
// engine, using pgx with connection pooling.
//
// The account-lock contract maps directly onto row locks: WithAccountLock
// runs SELECT ... FOR UPDATE on the account row, so concurrent ledger
// mutations for one organization queue on the row while other organizations
// proceed in parallel.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/points"
	"github.com/xraph/points/account"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/transition"
)

// Store is a PostgreSQL implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL with the given connection string.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing connection pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.pool); err != nil {
		return fmt.Errorf("%w: %v", points.ErrMigrationFailed, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

const accountColumns = "id, organization_id, tier, balance, status, created_at, updated_at"

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Tier, &a.Balance, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO points_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.OrganizationID, a.Tier, a.Balance, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return points.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, orgID string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM points_accounts WHERE organization_id = $1", orgID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, points.ErrNoSubscription
		}
		return nil, fmt.Errorf("postgres: get account: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, orgID string, status account.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE points_accounts SET status = $1, updated_at = $2
		WHERE organization_id = $3`,
		status, time.Now().UTC(), orgID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return points.ErrNoSubscription
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	query := "SELECT " + accountColumns + " FROM points_accounts"
	args := []any{}
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY organization_id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
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
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", points.ErrTransactionFailed, err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	row := pgxTx.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM points_accounts WHERE organization_id = $1 FOR UPDATE", orgID)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return points.ErrNoSubscription
		}
		return fmt.Errorf("postgres: lock account: %w", err)
	}

	if err := fn(ctx, &tx{pgxTx: pgxTx, acct: acct}); err != nil {
		return err
	}
	return pgxTx.Commit(ctx)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", points.ErrTransactionFailed, err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(ctx, &tx{pgxTx: pgxTx}); err != nil {
		return err
	}
	return pgxTx.Commit(ctx)
}

const entryColumns = "id, organization_id, type, action, amount, balance_after, description, expires_at, expired, created_at, updated_at"

func scanEntry(row pgx.Row) (*entry.Entry, error) {
	var e entry.Entry
	err := row.Scan(&e.ID, &e.OrganizationID, &e.Type, &e.Action, &e.Amount,
		&e.BalanceAfter, &e.Description, &e.ExpiresAt, &e.Expired, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, orgID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	query := "SELECT " + entryColumns + " FROM points_entries WHERE organization_id = $1"
	args := []any{orgID}
	if opts.Type != "" {
		args = append(args, opts.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries: %w", err)
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
	var total *int64
	err := s.pool.QueryRow(ctx, `
		SELECT SUM(amount) FROM points_entries
		WHERE organization_id = $1 AND NOT expired
		  AND expires_at IS NOT NULL AND expires_at < $2`,
		orgID, now,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: lapsed total: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// ──────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────

// querier covers *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) PutEntity(ctx context.Context, e *transition.Entity) error {
	return putEntity(ctx, s.pool, e)
}

func (s *Store) GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error) {
	return getEntity(ctx, s.pool, kind, entityID)
}

func (s *Store) ClaimTransition(ctx context.Context, claim transition.Claim, fn func(ctx context.Context, tx store.Tx) error) (bool, error) {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", points.ErrTransactionFailed, err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	t := &tx{pgxTx: pgxTx}
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
	if err := pgxTx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func putEntity(ctx context.Context, db querier, e *transition.Entity) error {
	_, err := db.Exec(ctx, `
		INSERT INTO points_entities (kind, id, owner_id, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (kind, id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		e.Kind, e.ID, e.OwnerID, e.Status, []byte(e.Payload), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put entity: %w", err)
	}
	return nil
}

func getEntity(ctx context.Context, db querier, kind transition.Kind, entityID string) (*transition.Entity, error) {
	var e transition.Entity
	var payload []byte
	err := db.QueryRow(ctx, `
		SELECT kind, id, owner_id, status, payload, created_at, updated_at
		FROM points_entities WHERE kind = $1 AND id = $2`,
		kind, entityID,
	).Scan(&e.Kind, &e.ID, &e.OwnerID, &e.Status, &payload, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, points.ErrEntityNotFound
		}
		return nil, fmt.Errorf("postgres: get entity: %w", err)
	}
	e.Payload = payload
	return &e, nil
}

func claimTransition(ctx context.Context, db querier, claim transition.Claim) (bool, error) {
	args := []any{claim.Target, time.Now().UTC(), claim.Kind, claim.ID}
	placeholders := make([]string, 0, len(claim.From))
	for _, from := range claim.From {
		args = append(args, from)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := `
		UPDATE points_entities SET status = $1, updated_at = $2
		WHERE kind = $3 AND id = $4 AND status IN (` + strings.Join(placeholders, ", ") + `)`
	if claim.OwnerID != "" {
		args = append(args, claim.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: claim transition: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

type tx struct {
	pgxTx pgx.Tx
	acct  *account.Account // nil outside account locks
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Account() *account.Account { return t.acct }

func (t *tx) UpdateBalance(ctx context.Context, balance int64) error {
	if t.acct == nil {
		return points.ErrTransactionFailed
	}
	_, err := t.pgxTx.Exec(ctx, `
		UPDATE points_accounts SET balance = $1, updated_at = $2
		WHERE organization_id = $3`,
		balance, time.Now().UTC(), t.acct.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update balance: %w", err)
	}
	t.acct.Balance = balance
	return nil
}

func (t *tx) AppendEntry(ctx context.Context, e *entry.Entry) error {
	_, err := t.pgxTx.Exec(ctx, `
		INSERT INTO points_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.OrganizationID, e.Type, e.Action, e.Amount, e.BalanceAfter,
		e.Description, e.ExpiresAt, e.Expired, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append entry: %w", err)
	}
	return nil
}

func (t *tx) LapsedGrants(ctx context.Context, now time.Time) ([]*entry.Entry, error) {
	if t.acct == nil {
		return nil, points.ErrTransactionFailed
	}
	rows, err := t.pgxTx.Query(ctx, `
		SELECT `+entryColumns+` FROM points_entries
		WHERE organization_id = $1 AND NOT expired
		  AND expires_at IS NOT NULL AND expires_at < $2`,
		t.acct.OrganizationID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: lapsed grants: %w", err)
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
	strIDs := make([]string, len(ids))
	for i, entryID := range ids {
		strIDs[i] = entryID.String()
	}
	_, err := t.pgxTx.Exec(ctx, `
		UPDATE points_entries SET expired = TRUE, updated_at = $1
		WHERE id = ANY($2)`,
		time.Now().UTC(), strIDs,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark expired: %w", err)
	}
	return nil
}

func (t *tx) ClaimTransition(ctx context.Context, claim transition.Claim) (bool, error) {
	return claimTransition(ctx, t.pgxTx, claim)
}

func (t *tx) PutEntity(ctx context.Context, e *transition.Entity) error {
	return putEntity(ctx, t.pgxTx, e)
}

func (t *tx) GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error) {
	return getEntity(ctx, t.pgxTx, kind, entityID)
}
