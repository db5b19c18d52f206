package testutil

import (
	"context"
	"sync"

	"gridstakes/internal/store"
)

// MemStore is an in-memory stand-in for the postgres store, used by
// orchestrator tests that exercise escrow and settlement without a
// database. It honors the store's sentinel errors so error paths behave
// the same.
type MemStore struct {
	mu          sync.Mutex
	balances    map[string]int64
	progression map[string]store.Progression
	Entries     []store.LedgerEntry
	Settled     []store.SettleParams

	// FailDebitFor rejects every debit for the named user, on top of the
	// balance check. FailSettle rejects SettleMatch once and then clears.
	FailDebitFor string
	FailSettle   error

	// BeforeDebit, when set, runs once before the named user's next debit
	// is applied, outside the store lock. Tests use it to interleave an
	// action with an in-flight escrow.
	BeforeDebit    func()
	BeforeDebitFor string
}

func NewMemStore() *MemStore {
	return &MemStore{
		balances:    map[string]int64{},
		progression: map[string]store.Progression{},
	}
}

func (m *MemStore) SeedUser(userID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
	m.progression[userID] = store.Progression{Rating: 1000, XP: 0, Level: 1}
}

func (m *MemStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return bal, nil
}

func (m *MemStore) Debit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error) {
	m.mu.Lock()
	if m.BeforeDebit != nil && m.BeforeDebitFor == userID {
		hook := m.BeforeDebit
		m.BeforeDebit = nil
		m.mu.Unlock()
		hook()
		m.mu.Lock()
	}
	defer m.mu.Unlock()
	if m.FailDebitFor == userID {
		return 0, store.ErrInsufficientFunds
	}
	bal, ok := m.balances[userID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if bal < amount {
		return 0, store.ErrInsufficientFunds
	}
	m.balances[userID] = bal - amount
	m.Entries = append(m.Entries, store.LedgerEntry{
		UserID: userID, Type: entryType, Amount: -amount, RefType: refType, RefID: refID,
	})
	return bal - amount, nil
}

func (m *MemStore) Credit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, store.ErrNotFound
	}
	m.balances[userID] = bal + amount
	m.Entries = append(m.Entries, store.LedgerEntry{
		UserID: userID, Type: entryType, Amount: amount, RefType: refType, RefID: refID,
	})
	return bal + amount, nil
}

func (m *MemStore) GetProgression(ctx context.Context, userID string) (*store.Progression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progression[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// SettleMatch mirrors the transactional store write: payouts are credited
// and progression updated together, then the params are recorded for
// assertions.
func (m *MemStore) SettleMatch(ctx context.Context, p store.SettleParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSettle != nil {
		err := m.FailSettle
		m.FailSettle = nil
		return err
	}
	for _, seat := range p.Seats {
		if seat.Payout > 0 {
			m.balances[seat.UserID] += seat.Payout
			m.Entries = append(m.Entries, store.LedgerEntry{
				UserID: seat.UserID, Type: "pot_payout", Amount: seat.Payout, RefType: "match", RefID: p.MatchID,
			})
		}
		m.progression[seat.UserID] = store.Progression{
			Rating: seat.NewRating, XP: seat.NewXP, Level: seat.NewLevel,
		}
	}
	m.Settled = append(m.Settled, p)
	return nil
}

// Balance is a lock-free-looking convenience for test assertions.
func (m *MemStore) Balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

// EntriesOfType filters the recorded ledger rows.
func (m *MemStore) EntriesOfType(entryType string) []store.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.LedgerEntry
	for _, e := range m.Entries {
		if e.Type == entryType {
			out = append(out, e)
		}
	}
	return out
}
