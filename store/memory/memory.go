// Package memory provides an in-memory store for the Points engine.
// Suitable for tests and prototyping; data does not survive restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/points"
	"github.com/xraph/points/account"
	"github.com/xraph/points/entry"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/transition"
)

// Store is an in-memory implementation of store.Store.
//
// A single mutex serializes every transaction. That is stricter than the
// per-organization serialization the contract asks for, but it preserves the
// observable guarantee: concurrent debits for one organization never both
// see the same pre-debit balance. Transactions work on copies and commit by
// swap, so a callback error rolls back for free.
type Store struct {
	mu       sync.Mutex
	closed   bool
	accounts map[string]*account.Account   // by organization ID
	entries  map[string][]*entry.Entry     // by organization ID, append order
	entities map[string]*transition.Entity // by kind/id
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*account.Account),
		entries:  make(map[string][]*entry.Entry),
		entities: make(map[string]*transition.Entity),
	}
}

func entityKey(kind transition.Kind, entityID string) string {
	return string(kind) + "/" + entityID
}

func cloneAccount(a *account.Account) *account.Account {
	cp := *a
	return &cp
}

func cloneEntry(e *entry.Entry) *entry.Entry {
	cp := *e
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

func cloneEntity(e *transition.Entity) *transition.Entity {
	cp := *e
	if e.Payload != nil {
		cp.Payload = append([]byte(nil), e.Payload...)
	}
	return &cp
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return points.ErrStoreClosed
	}
	if _, ok := s.accounts[a.OrganizationID]; ok {
		return points.ErrAlreadyExists
	}
	s.accounts[a.OrganizationID] = cloneAccount(a)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, orgID string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, points.ErrStoreClosed
	}
	a, ok := s.accounts[orgID]
	if !ok {
		return nil, points.ErrNoSubscription
	}
	return cloneAccount(a), nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, orgID string, status account.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return points.ErrStoreClosed
	}
	a, ok := s.accounts[orgID]
	if !ok {
		return points.ErrNoSubscription
	}
	a.Status = status
	a.Touch()
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, points.ErrStoreClosed
	}

	orgIDs := make([]string, 0, len(s.accounts))
	for orgID, a := range s.accounts {
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		orgIDs = append(orgIDs, orgID)
	}
	sort.Strings(orgIDs)

	if opts.Offset > 0 {
		if opts.Offset >= len(orgIDs) {
			return nil, nil
		}
		orgIDs = orgIDs[opts.Offset:]
	}
	if opts.Limit > 0 && len(orgIDs) > opts.Limit {
		orgIDs = orgIDs[:opts.Limit]
	}

	result := make([]*account.Account, 0, len(orgIDs))
	for _, orgID := range orgIDs {
		result = append(result, cloneAccount(s.accounts[orgID]))
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func (s *Store) WithAccountLock(ctx context.Context, orgID string, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return points.ErrStoreClosed
	}

	a, ok := s.accounts[orgID]
	if !ok {
		return points.ErrNoSubscription
	}

	tx := s.newTx(cloneAccount(a))
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return points.ErrStoreClosed
	}

	tx := s.newTx(nil)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) ListEntries(ctx context.Context, orgID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, points.ErrStoreClosed
	}

	all := s.entries[orgID]
	result := make([]*entry.Entry, 0, len(all))
	// Newest first: entries are stored in append order.
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		result = append(result, cloneEntry(e))
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) LapsedTotal(ctx context.Context, orgID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, points.ErrStoreClosed
	}

	var total int64
	for _, e := range s.entries[orgID] {
		if e.Lapsed(now) {
			total += e.Amount
		}
	}
	return total, nil
}

// ──────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────

func (s *Store) PutEntity(ctx context.Context, e *transition.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return points.ErrStoreClosed
	}
	s.entities[entityKey(e.Kind, e.ID)] = cloneEntity(e)
	return nil
}

func (s *Store) GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, points.ErrStoreClosed
	}
	e, ok := s.entities[entityKey(kind, entityID)]
	if !ok {
		return nil, points.ErrEntityNotFound
	}
	return cloneEntity(e), nil
}

func (s *Store) ClaimTransition(ctx context.Context, claim transition.Claim, fn func(ctx context.Context, tx store.Tx) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, points.ErrStoreClosed
	}

	tx := s.newTx(nil)
	claimed, err := tx.ClaimTransition(ctx, claim)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	if fn != nil {
		if err := fn(ctx, tx); err != nil {
			return false, err
		}
	}
	tx.commit()
	return true, nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(ctx context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return points.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

// memTx stages writes on copies and applies them on commit. The store mutex
// is held for the transaction's whole lifetime, so commit never races.
type memTx struct {
	s *Store

	acct       *account.Account // locked working copy, nil outside account locks
	newEntries []*entry.Entry
	expired    map[string]bool               // entry IDs staged as expired
	entities   map[string]*transition.Entity // staged entity writes
}

var _ store.Tx = (*memTx)(nil)

func (s *Store) newTx(acct *account.Account) *memTx {
	return &memTx{
		s:        s,
		acct:     acct,
		expired:  make(map[string]bool),
		entities: make(map[string]*transition.Entity),
	}
}

func (tx *memTx) commit() {
	if tx.acct != nil {
		tx.s.accounts[tx.acct.OrganizationID] = tx.acct
	}
	for _, e := range tx.newEntries {
		tx.s.entries[e.OrganizationID] = append(tx.s.entries[e.OrganizationID], e)
	}
	if len(tx.expired) > 0 && tx.acct != nil {
		for _, e := range tx.s.entries[tx.acct.OrganizationID] {
			if tx.expired[e.ID.String()] {
				e.Expired = true
				e.Touch()
			}
		}
	}
	for key, e := range tx.entities {
		tx.s.entities[key] = e
	}
}

func (tx *memTx) Account() *account.Account { return tx.acct }

func (tx *memTx) UpdateBalance(ctx context.Context, balance int64) error {
	if tx.acct == nil {
		return points.ErrTransactionFailed
	}
	tx.acct.Balance = balance
	tx.acct.Touch()
	return nil
}

func (tx *memTx) AppendEntry(ctx context.Context, e *entry.Entry) error {
	tx.newEntries = append(tx.newEntries, cloneEntry(e))
	return nil
}

func (tx *memTx) LapsedGrants(ctx context.Context, now time.Time) ([]*entry.Entry, error) {
	if tx.acct == nil {
		return nil, points.ErrTransactionFailed
	}

	var lapsed []*entry.Entry
	for _, e := range tx.s.entries[tx.acct.OrganizationID] {
		if tx.expired[e.ID.String()] {
			continue
		}
		if e.Lapsed(now) {
			lapsed = append(lapsed, cloneEntry(e))
		}
	}
	return lapsed, nil
}

func (tx *memTx) MarkExpired(ctx context.Context, ids []id.ID) error {
	if tx.acct == nil {
		return points.ErrTransactionFailed
	}
	for _, entryID := range ids {
		tx.expired[entryID.String()] = true
	}
	return nil
}

func (tx *memTx) ClaimTransition(ctx context.Context, claim transition.Claim) (bool, error) {
	key := entityKey(claim.Kind, claim.ID)

	cur, ok := tx.entities[key]
	if !ok {
		committed, found := tx.s.entities[key]
		if !found {
			return false, nil
		}
		cur = cloneEntity(committed)
	}

	if claim.OwnerID != "" && cur.OwnerID != claim.OwnerID {
		return false, nil
	}
	if !claim.Allows(cur.Status) {
		return false, nil
	}

	cur.Status = claim.Target
	cur.Touch()
	tx.entities[key] = cur
	return true, nil
}

func (tx *memTx) PutEntity(ctx context.Context, e *transition.Entity) error {
	tx.entities[entityKey(e.Kind, e.ID)] = cloneEntity(e)
	return nil
}

func (tx *memTx) GetEntity(ctx context.Context, kind transition.Kind, entityID string) (*transition.Entity, error) {
	key := entityKey(kind, entityID)
	if e, ok := tx.entities[key]; ok {
		return cloneEntity(e), nil
	}
	if e, ok := tx.s.entities[key]; ok {
		return cloneEntity(e), nil
	}
	return nil, points.ErrEntityNotFound
}
