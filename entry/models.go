// Package entry defines the append-only points ledger entry.
//
// Entries are immutable once written: the only field ever updated after
// insert is the Expired flag, set by the expiration sweeper. Corrections
// are new REFUND entries, never edits. At any committed state the sum of
// non-expired amounts for an organization equals the account balance.
package entry

import (
	"time"

	"github.com/xraph/points/catalog"
	"github.com/xraph/points/id"
	"github.com/xraph/points/types"
)

// Type classifies a ledger entry.
type Type string

const (
	TypeGrant    Type = "grant"
	TypeConsume  Type = "consume"
	TypePurchase Type = "purchase"
	TypeExpire   Type = "expire"
	TypeRefund   Type = "refund"
)

// Credits reports whether entries of this type carry positive amounts.
func (t Type) Credits() bool {
	return t == TypeGrant || t == TypePurchase || t == TypeRefund
}

// Expirable reports whether entries of this type lapse after a billing
// cycle and are subject to the sweeper.
func (t Type) Expirable() bool {
	return t == TypeGrant || t == TypePurchase
}

// Entry is one ledger transaction. Amount is signed: positive for credits,
// negative for debits. BalanceAfter snapshots the account balance the
// moment the entry committed.
type Entry struct {
	types.Entity
	ID             id.ID          `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Type           Type           `json:"type"`
	Action         catalog.Action `json:"action,omitempty"`
	Amount         int64          `json:"amount"`
	BalanceAfter   int64          `json:"balance_after"`
	Description    string         `json:"description,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Expired        bool           `json:"expired"`
}

// Lapsed reports whether the entry is an unexpired credit whose validity
// window has passed at the given instant.
func (e *Entry) Lapsed(now time.Time) bool {
	return e.Type.Expirable() && !e.Expired && e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// ListOpts filters and pages ledger history. History is always returned
// newest-first.
type ListOpts struct {
	Type   Type
	Limit  int
	Offset int
}
