package points_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/points"
	"github.com/xraph/points/catalog"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/store"
	"github.com/xraph/points/store/memory"
)

const testOrg = "org_test"

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		Costs: map[catalog.Action]int64{
			catalog.ActionContactRequest: 10,
			catalog.ActionChatSession:    5,
			catalog.ActionJobPost:        20,
			catalog.ActionProfileView:    0,
			"bulk_outreach":              90,
		},
		Plans: map[catalog.Tier]catalog.Policy{
			catalog.TierB: {MonthlyAllotment: 300, CarryoverFraction: 0.5},
		},
	}
}

func newTestEngine(t *testing.T, opts ...points.Option) *points.Engine {
	t.Helper()
	opts = append([]points.Option{points.WithCatalog(testCatalog())}, opts...)
	eng := points.New(memory.New(), opts...)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Stop()
	})
	return eng
}

func fundedAccount(t *testing.T, eng *points.Engine, balance int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := eng.CreateAccount(ctx, testOrg, catalog.TierB); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if balance > 0 {
		if _, err := eng.Grant(ctx, testOrg, balance, entry.TypeGrant); err != nil {
			t.Fatalf("fund account: %v", err)
		}
	}
}

func TestConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("ExactBalanceSpendsToZero", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 10)

		res, err := eng.Consume(ctx, testOrg, catalog.ActionContactRequest)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if res.NewBalance != 0 {
			t.Errorf("new balance = %d, want 0", res.NewBalance)
		}
		if res.Consumed != 10 {
			t.Errorf("consumed = %d, want 10", res.Consumed)
		}
	})

	t.Run("InsufficientLeavesBalanceUntouched", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 5)

		_, err := eng.Consume(ctx, testOrg, catalog.ActionContactRequest)
		if !errors.Is(err, points.ErrInsufficientPoints) {
			t.Fatalf("err = %v, want ErrInsufficientPoints", err)
		}

		var ipErr *points.InsufficientPointsError
		if !errors.As(err, &ipErr) {
			t.Fatalf("err = %T, want *InsufficientPointsError", err)
		}
		if ipErr.Required != 10 || ipErr.Available != 5 {
			t.Errorf("required/available = %d/%d, want 10/5", ipErr.Required, ipErr.Available)
		}
		if ipErr.Deficit() != 5 {
			t.Errorf("deficit = %d, want 5", ipErr.Deficit())
		}

		acct, err := eng.GetAccount(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Balance != 5 {
			t.Errorf("balance = %d, want 5 (unchanged)", acct.Balance)
		}

		// The rejected consume must leave no ledger entry behind.
		history, err := eng.History(ctx, testOrg, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range history {
			if e.Type == entry.TypeConsume {
				t.Errorf("unexpected CONSUME entry after rejected spend: %+v", e)
			}
		}
	})

	t.Run("FreeActionNeedsNoAccount", func(t *testing.T) {
		eng := newTestEngine(t)

		ran := false
		res, err := eng.Consume(ctx, "org_without_account", catalog.ActionProfileView,
			points.WithSideEffect(func(ctx context.Context, tx store.Tx) error {
				ran = true
				return nil
			}),
		)
		if err != nil {
			t.Fatalf("free consume: %v", err)
		}
		if !ran {
			t.Error("side effect did not run")
		}
		if res.Consumed != 0 {
			t.Errorf("consumed = %d, want 0", res.Consumed)
		}
	})

	t.Run("UnknownActionIsADefect", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 100)

		_, err := eng.Consume(ctx, testOrg, "no_such_action")
		if !errors.Is(err, points.ErrUnknownAction) {
			t.Fatalf("err = %v, want ErrUnknownAction", err)
		}
		if !points.IsDefect(err) {
			t.Error("unknown action should classify as defect")
		}
	})

	t.Run("MissingAccountIsPaymentRequired", func(t *testing.T) {
		eng := newTestEngine(t)

		_, err := eng.Consume(ctx, "org_missing", catalog.ActionContactRequest)
		if !errors.Is(err, points.ErrNoSubscription) {
			t.Fatalf("err = %v, want ErrNoSubscription", err)
		}
		if !points.IsPaymentRequired(err) {
			t.Error("missing subscription should classify as payment required")
		}
	})

	t.Run("InactiveStatusBlocksSpending", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 100)

		if err := eng.SetAccountStatus(ctx, testOrg, "past_due"); err != nil {
			t.Fatal(err)
		}

		_, err := eng.Consume(ctx, testOrg, catalog.ActionContactRequest)
		if !errors.Is(err, points.ErrSubscriptionInactive) {
			t.Fatalf("err = %v, want ErrSubscriptionInactive", err)
		}

		acct, err := eng.GetAccount(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Balance != 100 {
			t.Errorf("balance = %d, want 100 (unchanged)", acct.Balance)
		}
	})

	t.Run("SideEffectErrorRollsBackDebit", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 100)

		boom := errors.New("domain write failed")
		_, err := eng.Consume(ctx, testOrg, catalog.ActionContactRequest,
			points.WithSideEffect(func(ctx context.Context, tx store.Tx) error {
				return boom
			}),
		)
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want wrapped side-effect error", err)
		}

		acct, err := eng.GetAccount(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Balance != 100 {
			t.Errorf("balance = %d after failed side effect, want 100", acct.Balance)
		}
	})

	t.Run("ConcurrentSpendsNeverDoubleSpend", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 10) // fits exactly one contact request

		const workers = 8
		var wg sync.WaitGroup
		successes := make(chan struct{}, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := eng.Consume(ctx, testOrg, catalog.ActionContactRequest); err == nil {
					successes <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(successes)

		var n int
		for range successes {
			n++
		}
		if n != 1 {
			t.Errorf("successful spends = %d, want exactly 1", n)
		}

		acct, err := eng.GetAccount(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Balance != 0 {
			t.Errorf("balance = %d, want 0", acct.Balance)
		}
	})
}

func TestGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("CarryoverCapExpiresExcessBeforeCrediting", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 200)

		// Tier B cap is 300 * 0.5 = 150. The 200 carried in exceeds it by
		// 50; the new 300 credits on top of the capped 150.
		res, err := eng.Grant(ctx, testOrg, 300, entry.TypeGrant)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		if res.Expired != 50 {
			t.Errorf("expired by cap = %d, want 50", res.Expired)
		}
		if res.NewBalance != 450 {
			t.Errorf("new balance = %d, want 450", res.NewBalance)
		}

		history, err := eng.History(ctx, testOrg, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		var sawCapEntry bool
		for _, e := range history {
			if e.Type == entry.TypeExpire && e.Amount == -50 {
				sawCapEntry = true
			}
		}
		if !sawCapEntry {
			t.Error("missing EXPIRE entry for the capped excess")
		}
	})

	t.Run("NonPositiveAmountRejected", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 0)

		for _, amount := range []int64{0, -5} {
			if _, err := eng.Grant(ctx, testOrg, amount, entry.TypeGrant); !errors.Is(err, points.ErrNonPositiveGrant) {
				t.Errorf("Grant(%d) err = %v, want ErrNonPositiveGrant", amount, err)
			}
		}
	})

	t.Run("NonCreditingTypeRejected", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 0)

		if _, err := eng.Grant(ctx, testOrg, 10, entry.TypeConsume); !errors.Is(err, points.ErrEntryTypeNotCrediting) {
			t.Errorf("err = %v, want ErrEntryTypeNotCrediting", err)
		}
	})

	t.Run("PurchaseCreditsLikeGrant", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 0)

		res, err := eng.Grant(ctx, testOrg, 40, entry.TypePurchase)
		if err != nil {
			t.Fatalf("purchase: %v", err)
		}
		if res.NewBalance != 40 {
			t.Errorf("new balance = %d, want 40", res.NewBalance)
		}

		history, err := eng.History(ctx, testOrg, 1, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].Type != entry.TypePurchase {
			t.Fatalf("latest entry = %+v, want PURCHASE", history)
		}
		if history[0].ExpiresAt == nil {
			t.Error("purchase entry missing expiry window")
		}
	})

	t.Run("RefundHasNoExpiry", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 0)

		res, err := eng.Refund(ctx, testOrg, 10, "support credit")
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if res.NewBalance != 10 {
			t.Errorf("new balance = %d, want 10", res.NewBalance)
		}

		history, err := eng.History(ctx, testOrg, 1, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].Type != entry.TypeRefund {
			t.Fatalf("latest entry = %+v, want REFUND", history)
		}
		if history[0].ExpiresAt != nil {
			t.Error("refund entry should not expire")
		}
	})
}

func TestExpiration(t *testing.T) {
	ctx := context.Background()

	t.Run("SweepBeforeSpend", func(t *testing.T) {
		// Two engines over one store: a short cycle to plant a grant that
		// lapses quickly, a long cycle for the rest.
		s := memory.New()
		short := points.New(s, points.WithCatalog(testCatalog()), points.WithBillingCycle(time.Millisecond))
		long := points.New(s, points.WithCatalog(testCatalog()), points.WithBillingCycle(30*24*time.Hour))

		if _, err := long.CreateAccount(ctx, testOrg, catalog.TierB); err != nil {
			t.Fatal(err)
		}
		if _, err := long.Grant(ctx, testOrg, 70, entry.TypeGrant); err != nil {
			t.Fatal(err)
		}
		if _, err := short.Grant(ctx, testOrg, 30, entry.TypeGrant); err != nil {
			t.Fatal(err)
		}

		time.Sleep(20 * time.Millisecond) // the 30-point grant lapses

		// Balance reads 100, but only 70 points are live. A 90-point spend
		// must fail with the post-sweep availability.
		_, err := long.Consume(ctx, testOrg, "bulk_outreach")
		var ipErr *points.InsufficientPointsError
		if !errors.As(err, &ipErr) {
			t.Fatalf("err = %v, want *InsufficientPointsError", err)
		}
		if ipErr.Required != 90 || ipErr.Available != 70 {
			t.Errorf("required/available = %d/%d, want 90/70", ipErr.Required, ipErr.Available)
		}

		// The rejected spend rolls back its whole transaction, sweep
		// included; the balance converges once a sweep commits.
		acct, err := long.GetAccount(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Balance != 100 {
			t.Errorf("balance after rejected spend = %d, want 100", acct.Balance)
		}

		if _, err := long.ExpireBatch(ctx, testOrg); err != nil {
			t.Fatal(err)
		}
		acct, err = long.GetAccount(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Balance != 70 {
			t.Errorf("balance after sweep = %d, want 70", acct.Balance)
		}
	})

	t.Run("RefundSweepsBeforeCrediting", func(t *testing.T) {
		// A refund is a locked mutation like any other, so lapsed grants are
		// swept before the credit lands.
		s := memory.New()
		short := points.New(s, points.WithCatalog(testCatalog()), points.WithBillingCycle(time.Millisecond))
		long := points.New(s, points.WithCatalog(testCatalog()), points.WithBillingCycle(30*24*time.Hour))

		if _, err := long.CreateAccount(ctx, testOrg, catalog.TierB); err != nil {
			t.Fatal(err)
		}
		if _, err := long.Grant(ctx, testOrg, 70, entry.TypeGrant); err != nil {
			t.Fatal(err)
		}
		if _, err := short.Grant(ctx, testOrg, 30, entry.TypeGrant); err != nil {
			t.Fatal(err)
		}

		time.Sleep(20 * time.Millisecond) // the 30-point grant lapses

		res, err := long.Refund(ctx, testOrg, 5, "support credit")
		if err != nil {
			t.Fatal(err)
		}
		if res.NewBalance != 75 {
			t.Errorf("balance after refund = %d, want 75 (100 - 30 lapsed + 5)", res.NewBalance)
		}

		history, err := long.History(ctx, testOrg, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		var sum int64
		for _, e := range history {
			if !e.Expired {
				sum += e.Amount
			}
		}
		if sum != 75 {
			t.Errorf("sum of live entries = %d, want 75", sum)
		}
	})

	t.Run("ExpireBatchIsIdempotent", func(t *testing.T) {
		s := memory.New()
		short := points.New(s, points.WithCatalog(testCatalog()), points.WithBillingCycle(time.Millisecond))

		if _, err := short.CreateAccount(ctx, testOrg, catalog.TierB); err != nil {
			t.Fatal(err)
		}
		if _, err := short.Grant(ctx, testOrg, 25, entry.TypeGrant); err != nil {
			t.Fatal(err)
		}

		time.Sleep(20 * time.Millisecond)

		res, err := short.ExpireBatch(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if res.Expired != 25 {
			t.Errorf("first sweep expired = %d, want 25", res.Expired)
		}

		res, err = short.ExpireBatch(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if res.Expired != 0 {
			t.Errorf("second sweep expired = %d, want 0", res.Expired)
		}
	})

	t.Run("CheckBalanceSubtractsLapsed", func(t *testing.T) {
		s := memory.New()
		short := points.New(s, points.WithCatalog(testCatalog()), points.WithBillingCycle(time.Millisecond))

		if _, err := short.CreateAccount(ctx, testOrg, catalog.TierB); err != nil {
			t.Fatal(err)
		}
		if _, err := short.Grant(ctx, testOrg, 30, entry.TypeGrant); err != nil {
			t.Fatal(err)
		}

		time.Sleep(20 * time.Millisecond)

		check, err := short.CheckBalance(ctx, testOrg, catalog.ActionContactRequest)
		if err != nil {
			t.Fatal(err)
		}
		if check.CanProceed {
			t.Error("check should not pass on a fully lapsed balance")
		}
		if check.Available != 0 {
			t.Errorf("available = %d, want 0", check.Available)
		}

		// Advisory only: the balance itself is untouched until a real
		// sweep runs.
		acct, err := short.GetAccount(ctx, testOrg)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Balance != 30 {
			t.Errorf("balance = %d, want 30 (no sweep yet)", acct.Balance)
		}
	})
}

func TestLedgerConservation(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	fundedAccount(t, eng, 100)

	if _, err := eng.Consume(ctx, testOrg, catalog.ActionContactRequest); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Consume(ctx, testOrg, catalog.ActionChatSession); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Refund(ctx, testOrg, 5, "duplicate charge"); err != nil {
		t.Fatal(err)
	}

	acct, err := eng.GetAccount(ctx, testOrg)
	if err != nil {
		t.Fatal(err)
	}

	history, err := eng.History(ctx, testOrg, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	var sum int64
	for _, e := range history {
		if !e.Expired {
			sum += e.Amount
		}
	}
	if sum != acct.Balance {
		t.Errorf("sum of live entries = %d, balance = %d; ledger does not reconcile", sum, acct.Balance)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	fundedAccount(t, eng, 100)

	if _, err := eng.Consume(ctx, testOrg, catalog.ActionContactRequest); err != nil {
		t.Fatal(err)
	}

	history, err := eng.History(ctx, testOrg, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	// Newest first: the consume follows the grant.
	if history[0].Type != entry.TypeConsume {
		t.Errorf("history[0].Type = %s, want consume", history[0].Type)
	}
	if history[1].Type != entry.TypeGrant {
		t.Errorf("history[1].Type = %s, want grant", history[1].Type)
	}
	if history[0].BalanceAfter != 90 {
		t.Errorf("consume BalanceAfter = %d, want 90", history[0].BalanceAfter)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("DuplicateCreateRejected", func(t *testing.T) {
		eng := newTestEngine(t)
		fundedAccount(t, eng, 0)

		_, err := eng.CreateAccount(ctx, testOrg, catalog.TierB)
		if !errors.Is(err, points.ErrAlreadyExists) {
			t.Errorf("err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("UnknownTierRejected", func(t *testing.T) {
		eng := newTestEngine(t)

		_, err := eng.CreateAccount(ctx, "org_new", "tier_z")
		if !errors.Is(err, points.ErrUnknownTier) {
			t.Errorf("err = %v, want ErrUnknownTier", err)
		}
	})
}
