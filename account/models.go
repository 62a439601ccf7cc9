// Package account defines the per-organization points account: the balance
// row every ledger mutation locks.
package account

import (
	"github.com/xraph/points/catalog"
	"github.com/xraph/points/id"
	"github.com/xraph/points/types"
)

// Status is the subscription standing of an account. Non-ACTIVE statuses
// block consumption but not balance inspection.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// CanSpend reports whether the status permits debits.
func (s Status) CanSpend() bool {
	return s == StatusActive
}

// Account is the persisted points balance for one organization. Accounts
// are never hard-deleted; cancellation is a status transition. Balance is
// only ever mutated inside a locked store transaction and is never
// observed negative at a committed state.
type Account struct {
	types.Entity
	ID             id.ID        `json:"id"`
	OrganizationID string       `json:"organization_id"`
	Tier           catalog.Tier `json:"tier"`
	Balance        int64        `json:"balance"`
	Status         Status       `json:"status"`
}

// ListOpts filters account listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
