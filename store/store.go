// Package store defines the storage contract for the Points engine.
package store

import (
	"context"
	"time"

	"github.com/xraph/points/account"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/transition"
)

// Store is the unified storage interface for all Points entities. Methods
// are declared flat rather than via embedded sub-interfaces to avoid naming
// conflicts across backends.
//
// The two transactional entry points carry the engine's concurrency
// contract:
//
//   - WithAccountLock serializes ledger mutations per organization. The
//     callback runs with an exclusive claim on the account row; two
//     concurrent calls for the same organization serialize, and the second
//     observes the first's committed balance. Everything the callback does
//     through its Tx commits or rolls back atomically.
//   - ClaimTransition applies a conditional status update and reports
//     whether it affected a row. When it did, the callback runs inside the
//     same transaction as the claim, so side effects and the status change
//     commit together.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, orgID string) (*account.Account, error)
	UpdateAccountStatus(ctx context.Context, orgID string, status account.Status) error
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)

	// Ledger methods
	WithAccountLock(ctx context.Context, orgID string, fn func(ctx context.Context, tx Tx) error) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ListEntries(ctx context.Context, orgID string, opts entry.ListOpts) ([]*entry.Entry, error)
	LapsedTotal(ctx context.Context, orgID string, now time.Time) (int64, error)

	// Transition methods
	PutEntity(ctx context.Context, e *transition.Entity) error
	GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error)
	ClaimTransition(ctx context.Context, claim transition.Claim, fn func(ctx context.Context, tx Tx) error) (bool, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional context handed to locked callbacks and side
// effects. Every write made through a Tx is part of the surrounding
// transaction: if the callback returns an error, all of it rolls back.
type Tx interface {
	// Account returns the locked account row, or nil inside RunInTx and
	// ClaimTransition. The returned value reflects writes already staged in
	// this transaction.
	Account() *account.Account

	// UpdateBalance stages a new balance for the locked account.
	UpdateBalance(ctx context.Context, balance int64) error

	// AppendEntry stages a ledger entry.
	AppendEntry(ctx context.Context, e *entry.Entry) error

	// LapsedGrants returns the unexpired credit entries for the locked
	// account whose validity window has passed.
	LapsedGrants(ctx context.Context, now time.Time) ([]*entry.Entry, error)

	// MarkExpired flips the expired flag on the given entries. Amounts are
	// never touched.
	MarkExpired(ctx context.Context, ids []id.ID) error

	// ClaimTransition applies a conditional status update inside this
	// transaction and reports whether a row was affected.
	ClaimTransition(ctx context.Context, claim transition.Claim) (bool, error)

	// PutEntity stages a transitional entity write.
	PutEntity(ctx context.Context, e *transition.Entity) error

	// GetEntity reads a transitional entity, observing writes staged in
	// this transaction.
	GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error)
}
