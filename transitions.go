package points

import (
	"context"

	"github.com/xraph/points/store"
	"github.com/xraph/points/transition"
)

// ClaimTransition moves an entity from one of the claim's source states to
// its target state, at most once across all concurrent callers.
//
// The claim is a conditional write: it succeeds only when the entity's
// current status is still in claim.From, and the store reports whether a
// row actually changed. A lost race returns ErrConflict; the caller reads
// the entity back if it needs to distinguish "already in target" from
// "moved somewhere else".
//
// The optional fn runs inside the same transaction as the claim, so
// follow-up writes (memberships, counters, disclosure records) commit with
// the status change or not at all.
func (e *Engine) ClaimTransition(ctx context.Context, claim transition.Claim, fn func(ctx context.Context, tx store.Tx) error) error {
	if len(claim.From) == 0 || claim.Target == "" {
		return ErrInvalidInput
	}

	claimed, err := e.store.ClaimTransition(ctx, claim, fn)
	if err != nil {
		return err
	}
	if !claimed {
		e.plugins.EmitTransitionConflict(ctx, string(claim.Kind), claim.ID, string(claim.Target))
		return ErrConflict
	}

	e.plugins.EmitTransitionClaimed(ctx, string(claim.Kind), claim.ID, string(claim.Target))
	return nil
}

// GetEntity reads a transitional entity by kind and id.
func (e *Engine) GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error) {
	return e.store.GetEntity(ctx, kind, entityID)
}

// PutEntity creates or replaces a transitional entity.
func (e *Engine) PutEntity(ctx context.Context, ent *transition.Entity) error {
	if ent.Kind == "" || ent.ID == "" {
		return ErrInvalidInput
	}
	ent.Touch()
	return e.store.PutEntity(ctx, ent)
}
