package points_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/points"
	"github.com/xraph/points/store"
	"github.com/xraph/points/store/memory"
	"github.com/xraph/points/transition"
	"github.com/xraph/points/types"
)

func newEntity(kind transition.Kind, entityID, ownerID string, status transition.Status) *transition.Entity {
	return &transition.Entity{
		Entity:  types.NewEntity(),
		Kind:    kind,
		ID:      entityID,
		OwnerID: ownerID,
		Status:  status,
	}
}

func TestClaimTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("ClaimMovesStatus", func(t *testing.T) {
		eng := points.New(memory.New())
		if err := eng.PutEntity(ctx, newEntity(transition.KindInvite, "inv_1", "org_a", "PENDING")); err != nil {
			t.Fatal(err)
		}

		err := eng.ClaimTransition(ctx, transition.Claim{
			Kind:   transition.KindInvite,
			ID:     "inv_1",
			From:   []transition.Status{"PENDING"},
			Target: "USED",
		}, nil)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}

		ent, err := eng.GetEntity(ctx, transition.KindInvite, "inv_1")
		if err != nil {
			t.Fatal(err)
		}
		if ent.Status != "USED" {
			t.Errorf("status = %s, want USED", ent.Status)
		}
	})

	t.Run("SecondClaimConflicts", func(t *testing.T) {
		eng := points.New(memory.New())
		if err := eng.PutEntity(ctx, newEntity(transition.KindInvite, "inv_1", "org_a", "PENDING")); err != nil {
			t.Fatal(err)
		}

		claim := transition.Claim{
			Kind:   transition.KindInvite,
			ID:     "inv_1",
			From:   []transition.Status{"PENDING"},
			Target: "USED",
		}
		if err := eng.ClaimTransition(ctx, claim, nil); err != nil {
			t.Fatal(err)
		}

		err := eng.ClaimTransition(ctx, claim, nil)
		if !errors.Is(err, points.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
		if !points.IsConflict(err) {
			t.Error("IsConflict should report true")
		}
	})

	t.Run("OwnerMismatchConflicts", func(t *testing.T) {
		eng := points.New(memory.New())
		if err := eng.PutEntity(ctx, newEntity(transition.KindInvite, "inv_1", "org_a", "PENDING")); err != nil {
			t.Fatal(err)
		}

		err := eng.ClaimTransition(ctx, transition.Claim{
			Kind:    transition.KindInvite,
			ID:      "inv_1",
			OwnerID: "org_b",
			From:    []transition.Status{"PENDING"},
			Target:  "REVOKED",
		}, nil)
		if !errors.Is(err, points.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("CallbackErrorRollsBackClaim", func(t *testing.T) {
		eng := points.New(memory.New())
		if err := eng.PutEntity(ctx, newEntity(transition.KindInvite, "inv_1", "org_a", "PENDING")); err != nil {
			t.Fatal(err)
		}

		boom := errors.New("membership write failed")
		err := eng.ClaimTransition(ctx, transition.Claim{
			Kind:   transition.KindInvite,
			ID:     "inv_1",
			From:   []transition.Status{"PENDING"},
			Target: "USED",
		}, func(ctx context.Context, tx store.Tx) error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want callback error", err)
		}

		// The claim rolled back with the callback; the invite is still
		// claimable.
		ent, err := eng.GetEntity(ctx, transition.KindInvite, "inv_1")
		if err != nil {
			t.Fatal(err)
		}
		if ent.Status != "PENDING" {
			t.Errorf("status = %s, want PENDING after rollback", ent.Status)
		}
	})

	t.Run("ConcurrentClaimsWinAtMostOnce", func(t *testing.T) {
		eng := points.New(memory.New())
		if err := eng.PutEntity(ctx, newEntity(transition.KindInterest, "intr_1", "org_a", "EXPRESSED")); err != nil {
			t.Fatal(err)
		}

		const workers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		var wins, conflicts int

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := eng.ClaimTransition(ctx, transition.Claim{
					Kind:   transition.KindInterest,
					ID:     "intr_1",
					From:   []transition.Status{"EXPRESSED"},
					Target: "CONTACT_REQUESTED",
				}, nil)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, points.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("wins = %d, want exactly 1", wins)
		}
		if conflicts != workers-1 {
			t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
		}
	})

	t.Run("EmptyClaimIsInvalid", func(t *testing.T) {
		eng := points.New(memory.New())

		err := eng.ClaimTransition(ctx, transition.Claim{Kind: transition.KindInvite, ID: "x"}, nil)
		if !errors.Is(err, points.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})
}
