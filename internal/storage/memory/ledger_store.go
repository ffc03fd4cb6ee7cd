package memory

import (
	"context"
	"sort"
	"sync"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu       sync.RWMutex
	balances map[domain.Principal]uint64
	state    domain.LedgerState
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		balances: make(map[domain.Principal]uint64),
	}
}

// Balance returns the balance of p, or 0 if p was never credited.
func (s *LedgerStore) Balance(_ context.Context, p domain.Principal) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[p], nil
}

// State returns a copy of the ledger scalars.
func (s *LedgerStore) State(_ context.Context) (*domain.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.state
	return &state, nil
}

// Commit applies the change set under a single write lock.
func (s *LedgerStore) Commit(_ context.Context, cs *domain.ChangeSet) error {
	if cs == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for p, balance := range cs.Balances {
		s.balances[p] = balance
	}
	s.state = cs.State
	return nil
}

// Accounts returns all accounts ordered by principal.
func (s *LedgerStore) Accounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(s.balances))
	for p, balance := range s.balances {
		accounts = append(accounts, domain.Account{Principal: p, Balance: balance})
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Principal.Compare(accounts[j].Principal) < 0
	})
	return accounts, nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
