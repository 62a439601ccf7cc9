package points

import (
	"context"
	"time"

	"github.com/xraph/points/catalog"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/types"
)

// SideEffect is a domain mutation bundled with a debit. It runs inside the
// same locked transaction as the balance update: if it returns an error,
// the debit rolls back with it and no partial state commits.
type SideEffect func(ctx context.Context, tx store.Tx) error

// ConsumeResult reports a successful debit.
type ConsumeResult struct {
	NewBalance int64
	Consumed   int64
}

// BalanceCheck is the advisory result of CheckBalance.
type BalanceCheck struct {
	CanProceed bool
	Required   int64
	Available  int64
}

// ConsumeOption configures a single Consume call.
type ConsumeOption func(*consumeOpts)

type consumeOpts struct {
	sideEffect  SideEffect
	description string
}

// WithSideEffect attaches a domain mutation to the debit. For priced
// actions it runs inside the locked transaction; for free actions it runs
// in a plain transaction with no ledger involvement.
func WithSideEffect(fn SideEffect) ConsumeOption {
	return func(o *consumeOpts) { o.sideEffect = fn }
}

// WithDescription sets the ledger entry description.
func WithDescription(desc string) ConsumeOption {
	return func(o *consumeOpts) { o.description = desc }
}

// Consume debits the action's cost from the organization's balance,
// appends a CONSUME entry, and runs the optional side effect atomically
// with the debit.
//
// Lapsed grants are swept before the sufficiency check, so a balance
// propped up by expired credits does not spend. Two concurrent calls for
// the same organization serialize on the account lock: they cannot both
// observe a sufficient balance when only one debit fits.
func (e *Engine) Consume(ctx context.Context, orgID string, action catalog.Action, opts ...ConsumeOption) (*ConsumeResult, error) {
	var o consumeOpts
	for _, opt := range opts {
		opt(&o)
	}

	cost, ok := e.catalog.Cost(action)
	if !ok {
		return nil, ErrUnknownAction
	}

	// Free actions bypass the ledger entirely. No account row is required;
	// the side effect still gets a transactional context of its own.
	if cost == 0 {
		if o.sideEffect != nil {
			if err := e.store.RunInTx(ctx, o.sideEffect); err != nil {
				return nil, err
			}
		}
		return &ConsumeResult{NewBalance: 0, Consumed: 0}, nil
	}

	var result ConsumeResult
	err := e.store.WithAccountLock(ctx, orgID, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.sweep(ctx, tx); err != nil {
			return err
		}

		acct := tx.Account()
		if !acct.Status.CanSpend() {
			return &InactiveError{Status: acct.Status}
		}
		if acct.Balance < cost {
			return &InsufficientPointsError{Required: cost, Available: acct.Balance}
		}

		newBalance := acct.Balance - cost
		if err := tx.UpdateBalance(ctx, newBalance); err != nil {
			return err
		}

		ent := &entry.Entry{
			Entity:         types.NewEntity(),
			ID:             id.NewEntryID(),
			OrganizationID: orgID,
			Type:           entry.TypeConsume,
			Action:         action,
			Amount:         -cost,
			BalanceAfter:   newBalance,
			Description:    o.description,
		}
		if err := tx.AppendEntry(ctx, ent); err != nil {
			return err
		}

		if o.sideEffect != nil {
			if err := o.sideEffect(ctx, tx); err != nil {
				return err
			}
		}

		result = ConsumeResult{NewBalance: newBalance, Consumed: cost}
		return nil
	})
	if err != nil {
		if IsPaymentRequired(err) {
			e.plugins.EmitInsufficientPoints(ctx, orgID, string(action), err)
		}
		return nil, err
	}

	e.plugins.EmitConsumed(ctx, orgID, string(action), result.Consumed, result.NewBalance)
	return &result, nil
}

// CheckBalance is the non-mutating preview of Consume's sufficiency check.
// It accounts for lapsed-but-unswept grants so the preview matches what a
// real consume would see, but it takes no lock and is advisory only: the
// authoritative check happens inside Consume.
func (e *Engine) CheckBalance(ctx context.Context, orgID string, action catalog.Action) (*BalanceCheck, error) {
	cost, ok := e.catalog.Cost(action)
	if !ok {
		return nil, ErrUnknownAction
	}
	if cost == 0 {
		return &BalanceCheck{CanProceed: true}, nil
	}

	acct, err := e.store.GetAccount(ctx, orgID)
	if err != nil {
		return nil, err
	}

	lapsed, err := e.store.LapsedTotal(ctx, orgID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	available := acct.Balance - min(lapsed, acct.Balance)
	return &BalanceCheck{
		CanProceed: acct.Status.CanSpend() && available >= cost,
		Required:   cost,
		Available:  available,
	}, nil
}
