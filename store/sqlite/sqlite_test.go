package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/points"
	"github.com/xraph/points/account"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/store/sqlite"
	"github.com/xraph/points/transition"
	"github.com/xraph/points/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedAccount(t *testing.T, s *sqlite.Store, orgID string, balance int64) {
	t.Helper()
	err := s.CreateAccount(context.Background(), &account.Account{
		Entity:         types.NewEntity(),
		ID:             id.NewAccountID(),
		OrganizationID: orgID,
		Tier:           "tier_b",
		Balance:        balance,
		Status:         account.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAccount(t, s, "org_a", 50)

	acct, err := s.GetAccount(ctx, "org_a")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 50 || acct.Status != account.StatusActive {
		t.Errorf("account = %+v", acct)
	}

	if _, err := s.GetAccount(ctx, "org_missing"); !errors.Is(err, points.ErrNoSubscription) {
		t.Errorf("missing account err = %v, want ErrNoSubscription", err)
	}

	seedDup := s.CreateAccount(ctx, &account.Account{
		Entity:         types.NewEntity(),
		ID:             id.NewAccountID(),
		OrganizationID: "org_a",
		Tier:           "tier_b",
		Status:         account.StatusActive,
	})
	if !errors.Is(seedDup, points.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v, want ErrAlreadyExists", seedDup)
	}

	if err := s.UpdateAccountStatus(ctx, "org_a", account.StatusPastDue); err != nil {
		t.Fatal(err)
	}
	acct, err = s.GetAccount(ctx, "org_a")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Status != account.StatusPastDue {
		t.Errorf("status = %s, want past_due", acct.Status)
	}
}

func TestAccountLockLedgerWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAccount(t, s, "org_a", 100)

	err := s.WithAccountLock(ctx, "org_a", func(ctx context.Context, tx store.Tx) error {
		if tx.Account().Balance != 100 {
			t.Errorf("locked balance = %d, want 100", tx.Account().Balance)
		}
		if err := tx.UpdateBalance(ctx, 90); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &entry.Entry{
			Entity:         types.NewEntity(),
			ID:             id.NewEntryID(),
			OrganizationID: "org_a",
			Type:           entry.TypeConsume,
			Action:         "contact_request",
			Amount:         -10,
			BalanceAfter:   90,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	acct, err := s.GetAccount(ctx, "org_a")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 90 {
		t.Errorf("balance = %d, want 90", acct.Balance)
	}

	entries, err := s.ListEntries(ctx, "org_a", entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Amount != -10 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAccountLockRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAccount(t, s, "org_a", 100)

	boom := errors.New("boom")
	err := s.WithAccountLock(ctx, "org_a", func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateBalance(ctx, 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	acct, err := s.GetAccount(ctx, "org_a")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 100 {
		t.Errorf("balance = %d, want 100 after rollback", acct.Balance)
	}
}

func TestLapsedGrantsSweep(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAccount(t, s, "org_a", 30)

	past := time.Now().UTC().Add(-time.Hour)
	err := s.WithAccountLock(ctx, "org_a", func(ctx context.Context, tx store.Tx) error {
		return tx.AppendEntry(ctx, &entry.Entry{
			Entity:         types.NewEntity(),
			ID:             id.NewEntryID(),
			OrganizationID: "org_a",
			Type:           entry.TypeGrant,
			Amount:         30,
			BalanceAfter:   30,
			ExpiresAt:      &past,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	total, err := s.LapsedTotal(ctx, "org_a", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if total != 30 {
		t.Errorf("lapsed total = %d, want 30", total)
	}

	err = s.WithAccountLock(ctx, "org_a", func(ctx context.Context, tx store.Tx) error {
		lapsed, err := tx.LapsedGrants(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if len(lapsed) != 1 {
			t.Fatalf("lapsed = %d, want 1", len(lapsed))
		}
		if err := tx.MarkExpired(ctx, []id.ID{lapsed[0].ID}); err != nil {
			return err
		}
		return tx.UpdateBalance(ctx, 0)
	})
	if err != nil {
		t.Fatal(err)
	}

	total, err = s.LapsedTotal(ctx, "org_a", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("lapsed total after sweep = %d, want 0", total)
	}
}

func TestSubSecondTimestampOrdering(t *testing.T) {
	// Timestamps are stored as TEXT and compared lexically, so the encoding
	// must keep a fixed-width fraction: with trailing zeros trimmed,
	// "...05.5Z" sorts after "...05.51Z" and same-second entries come back
	// in the wrong order.
	ctx := context.Background()
	s := newTestStore(t)
	seedAccount(t, s, "org_a", 30)

	base := time.Date(2026, 3, 1, 12, 0, 5, 500_000_000, time.UTC)
	older := base
	newer := base.Add(10 * time.Millisecond)

	err := s.WithAccountLock(ctx, "org_a", func(ctx context.Context, tx store.Tx) error {
		for _, e := range []*entry.Entry{
			{
				Entity:         types.Entity{CreatedAt: older, UpdatedAt: older},
				ID:             id.NewEntryID(),
				OrganizationID: "org_a",
				Type:           entry.TypeGrant,
				Amount:         30,
				BalanceAfter:   30,
				Description:    "older",
				ExpiresAt:      &older,
			},
			{
				Entity:         types.Entity{CreatedAt: newer, UpdatedAt: newer},
				ID:             id.NewEntryID(),
				OrganizationID: "org_a",
				Type:           entry.TypeConsume,
				Amount:         -10,
				BalanceAfter:   20,
				Description:    "newer",
			},
		} {
			if err := tx.AppendEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListEntries(ctx, "org_a", entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Description != "newer" {
		t.Errorf("first entry = %q, want newest first", entries[0].Description)
	}

	// The grant expired 10ms before the sweep instant must be visible.
	total, err := s.LapsedTotal(ctx, "org_a", newer)
	if err != nil {
		t.Fatal(err)
	}
	if total != 30 {
		t.Errorf("lapsed total = %d, want 30", total)
	}
}

func TestClaimTransitionSQL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.PutEntity(ctx, &transition.Entity{
		Entity:  types.NewEntity(),
		Kind:    transition.KindInvite,
		ID:      "inv_1",
		OwnerID: "org_a",
		Status:  "PENDING",
		Payload: []byte(`{"email":"x@example.com"}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	claim := transition.Claim{
		Kind:   transition.KindInvite,
		ID:     "inv_1",
		From:   []transition.Status{"PENDING"},
		Target: "USED",
	}

	claimed, err := s.ClaimTransition(ctx, claim, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("first claim should win")
	}

	claimed, err = s.ClaimTransition(ctx, claim, nil)
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Error("second claim should lose")
	}

	ent, err := s.GetEntity(ctx, transition.KindInvite, "inv_1")
	if err != nil {
		t.Fatal(err)
	}
	if ent.Status != "USED" {
		t.Errorf("status = %s, want USED", ent.Status)
	}

	if _, err := s.GetEntity(ctx, transition.KindInvite, "nope"); !errors.Is(err, points.ErrEntityNotFound) {
		t.Errorf("missing entity err = %v, want ErrEntityNotFound", err)
	}
}

func TestEngineOnSQLite(t *testing.T) {
	// The full consume path against the SQLite backend.
	ctx := context.Background()
	s := newTestStore(t)

	eng := points.New(s)
	if _, err := eng.CreateAccount(ctx, "org_a", "tier_b"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, "org_a", 100, entry.TypeGrant); err != nil {
		t.Fatal(err)
	}

	res, err := eng.Consume(ctx, "org_a", "contact_request")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewBalance != 90 {
		t.Errorf("balance = %d, want 90", res.NewBalance)
	}
}
