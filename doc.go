// Package points provides a points ledger and state-transition engine for
// recruiting marketplaces.
//
// Points is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A per-organization points balance with an append-only ledger
//   - Atomic spend-and-mutate: a priced action's domain side effect commits
//     with the debit or not at all
//   - Cycle-based expiration with per-tier carry-over caps
//   - At-most-once state transitions via conditional claims
//   - Pluggable storage (memory, SQLite, PostgreSQL)
//   - Lifecycle plugins for notifications, metrics, and audit trails
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/points"
//	    "github.com/xraph/points/store/memory"
//	)
//
//	eng := points.New(memory.New())
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Accounts hold one balance per organization:
//
//	acct, err := eng.CreateAccount(ctx, orgID, catalog.TierB)
//
// Grants credit points that expire one billing cycle later:
//
//	_, err = eng.Grant(ctx, orgID, 300, entry.TypeGrant)
//
// Consume debits an action's cost and runs the domain mutation in the same
// transaction:
//
//	_, err = eng.Consume(ctx, orgID, catalog.ActionContactRequest,
//	    points.WithSideEffect(func(ctx context.Context, tx store.Tx) error {
//	        // commits with the debit or rolls back with it
//	        return nil
//	    }),
//	)
//
// Transitions move workflow entities between states exactly once under
// concurrency:
//
//	err = eng.ClaimTransition(ctx, transition.Claim{
//	    Kind:   transition.KindInvite,
//	    ID:     inviteID,
//	    From:   []transition.Status{"PENDING"},
//	    Target: "USED",
//	}, nil)
//
// The workflow package builds the recurring marketplace flows (interest,
// invites, pipeline, chat) on these primitives.
package points
