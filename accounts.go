package points

import (
	"context"

	"github.com/xraph/points/account"
	"github.com/xraph/points/catalog"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/types"
)

// CreateAccount opens a points account for an organization. The account
// starts with a zero balance; the first Grant funds it.
func (e *Engine) CreateAccount(ctx context.Context, orgID string, tier catalog.Tier) (*account.Account, error) {
	if orgID == "" {
		return nil, ErrInvalidInput
	}
	if _, ok := e.catalog.Policy(tier); !ok {
		return nil, ErrUnknownTier
	}

	a := &account.Account{
		Entity:         types.NewEntity(),
		ID:             id.NewAccountID(),
		OrganizationID: orgID,
		Tier:           tier,
		Balance:        0,
		Status:         account.StatusActive,
	}
	if err := e.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	e.plugins.EmitAccountCreated(ctx, orgID, string(tier))
	return a, nil
}

// GetAccount returns the organization's account.
func (e *Engine) GetAccount(ctx context.Context, orgID string) (*account.Account, error) {
	return e.store.GetAccount(ctx, orgID)
}

// SetAccountStatus updates the subscription status gate. Moving an account
// to past_due or canceled blocks spending immediately; the balance itself
// is untouched.
func (e *Engine) SetAccountStatus(ctx context.Context, orgID string, status account.Status) error {
	switch status {
	case account.StatusActive, account.StatusPastDue, account.StatusCanceled:
	default:
		return ErrInvalidInput
	}

	if err := e.store.UpdateAccountStatus(ctx, orgID, status); err != nil {
		return err
	}

	e.plugins.EmitAccountStatusChanged(ctx, orgID, string(status))
	return nil
}

// History returns the organization's ledger entries, newest first.
func (e *Engine) History(ctx context.Context, orgID string, limit, offset int) ([]*entry.Entry, error) {
	return e.store.ListEntries(ctx, orgID, entry.ListOpts{Limit: limit, Offset: offset})
}
