package points

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/types"
)

// GrantResult reports a successful credit.
type GrantResult struct {
	NewBalance int64
	Expired    int64 // points expired by the carry-over cap before crediting
}

// SweepResult reports a sweep pass.
type SweepResult struct {
	Expired int64
}

// Grant credits points to the organization's balance. typ must be GRANT or
// PURCHASE; both expire one billing cycle after crediting.
//
// Inside one locked transaction the engine sweeps lapsed grants, enforces
// the tier's carry-over cap (expiring the excess as its own ledger entry),
// then appends the credit. The expire-then-grant ordering is fixed: the cap
// applies to the balance carried into the grant, never to the fresh credit.
func (e *Engine) Grant(ctx context.Context, orgID string, amount int64, typ entry.Type) (*GrantResult, error) {
	if typ != entry.TypeGrant && typ != entry.TypePurchase {
		return nil, ErrEntryTypeNotCrediting
	}
	if amount <= 0 {
		return nil, ErrNonPositiveGrant
	}

	var result GrantResult
	err := e.store.WithAccountLock(ctx, orgID, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.sweep(ctx, tx); err != nil {
			return err
		}

		acct := tx.Account()
		policy, ok := e.catalog.Policy(acct.Tier)
		if !ok {
			return ErrUnknownTier
		}

		balance := acct.Balance

		// Cap carry-over before crediting.
		if cap := policy.CarryoverCap(); balance > cap {
			excess := balance - cap
			balance = cap

			capEntry := &entry.Entry{
				Entity:         types.NewEntity(),
				ID:             id.NewEntryID(),
				OrganizationID: orgID,
				Type:           entry.TypeExpire,
				Amount:         -excess,
				BalanceAfter:   balance,
				Description:    fmt.Sprintf("carry-over cap %d exceeded", cap),
			}
			if err := tx.AppendEntry(ctx, capEntry); err != nil {
				return err
			}
			if err := tx.UpdateBalance(ctx, balance); err != nil {
				return err
			}
			result.Expired = excess
		}

		balance += amount
		expiresAt := e.cycleEnd(time.Now().UTC())

		credit := &entry.Entry{
			Entity:         types.NewEntity(),
			ID:             id.NewEntryID(),
			OrganizationID: orgID,
			Type:           typ,
			Amount:         amount,
			BalanceAfter:   balance,
			Description:    fmt.Sprintf("%s of %d points", typ, amount),
			ExpiresAt:      &expiresAt,
		}
		if err := tx.AppendEntry(ctx, credit); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, balance); err != nil {
			return err
		}

		result.NewBalance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitGranted(ctx, orgID, string(typ), amount, result.NewBalance)
	if result.Expired > 0 {
		e.plugins.EmitExpired(ctx, orgID, result.Expired)
	}
	return &result, nil
}

// Refund credits points back without an expiry window. Corrections stay
// append-only: a refund is a new entry, never an edit of the original.
// Lapsed grants are swept before the credit, like every locked mutation.
func (e *Engine) Refund(ctx context.Context, orgID string, amount int64, description string) (*GrantResult, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveGrant
	}

	var result GrantResult
	err := e.store.WithAccountLock(ctx, orgID, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.sweep(ctx, tx); err != nil {
			return err
		}

		balance := tx.Account().Balance + amount

		ent := &entry.Entry{
			Entity:         types.NewEntity(),
			ID:             id.NewEntryID(),
			OrganizationID: orgID,
			Type:           entry.TypeRefund,
			Amount:         amount,
			BalanceAfter:   balance,
			Description:    description,
		}
		if err := tx.AppendEntry(ctx, ent); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, balance); err != nil {
			return err
		}

		result.NewBalance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitGranted(ctx, orgID, string(entry.TypeRefund), amount, result.NewBalance)
	return &result, nil
}

// ExpireBatch sweeps lapsed grants for one organization. It is idempotent:
// when nothing has lapsed, no write occurs. Intended for an external
// scheduler; the engine's own sweep worker calls it too.
func (e *Engine) ExpireBatch(ctx context.Context, orgID string) (*SweepResult, error) {
	var swept int64
	err := e.store.WithAccountLock(ctx, orgID, func(ctx context.Context, tx store.Tx) error {
		n, err := e.sweep(ctx, tx)
		swept = n
		return err
	})
	if err != nil {
		return nil, err
	}

	if swept > 0 {
		e.plugins.EmitExpired(ctx, orgID, swept)
	}
	return &SweepResult{Expired: swept}, nil
}

// sweep purges lapsed grants inside a locked transaction: it sums the
// unexpired credit entries whose window has passed, caps the sum at the
// current balance (expiration alone never drives a balance negative),
// subtracts, and flips the expired flag on the swept entries. A pass with
// nothing lapsed writes nothing.
func (e *Engine) sweep(ctx context.Context, tx store.Tx) (int64, error) {
	now := time.Now().UTC()

	lapsed, err := tx.LapsedGrants(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(lapsed) == 0 {
		return 0, nil
	}

	var sum int64
	ids := make([]id.ID, 0, len(lapsed))
	for _, ent := range lapsed {
		sum += ent.Amount
		ids = append(ids, ent.ID)
	}

	balance := tx.Account().Balance
	swept := min(sum, balance)

	if err := tx.MarkExpired(ctx, ids); err != nil {
		return 0, err
	}
	if swept > 0 {
		if err := tx.UpdateBalance(ctx, balance-swept); err != nil {
			return 0, err
		}
	}

	return swept, nil
}

// cycleEnd returns the expiry instant for a credit granted at now. A zero
// configured cycle means one calendar month.
func (e *Engine) cycleEnd(now time.Time) time.Time {
	if e.billingCycle > 0 {
		return now.Add(e.billingCycle)
	}
	return now.AddDate(0, 1, 0)
}
