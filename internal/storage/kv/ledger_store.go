package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v2"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
)

// LedgerStore implements storage.LedgerStore on Badger.
type LedgerStore struct {
	db    *badger.DB
	codec *Codec
}

// NewLedgerStore creates a ledger store on db.
func NewLedgerStore(db *badger.DB, codec *Codec) *LedgerStore {
	return &LedgerStore{db: db, codec: codec}
}

// Balance returns the balance of p, or 0 if p was never credited.
func (s *LedgerStore) Balance(_ context.Context, p domain.Principal) (uint64, error) {
	var balance uint64
	err := s.db.View(s.codec.retrieveOptional(EncodeKey(PrefixBalance, p), &balance))
	if err != nil {
		return 0, fmt.Errorf("could not retrieve balance: %w", err)
	}
	return balance, nil
}

// State returns the ledger scalars, or a zero state on an empty database.
func (s *LedgerStore) State(_ context.Context) (*domain.LedgerState, error) {
	var state domain.LedgerState
	err := s.db.View(s.codec.retrieveOptional(EncodeKey(PrefixState), &state))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve state: %w", err)
	}
	return &state, nil
}

// Commit writes every balance and the state in one transaction.
func (s *LedgerStore) Commit(_ context.Context, cs *domain.ChangeSet) error {
	if cs == nil {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	err := s.db.Update(s.writeChangeSet(cs))
	observability.RecordDBQuery("badger", "commit", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("could not commit change set: %w", err)
	}
	return nil
}

// CommitWithEvents writes cs and appends events to the event log that
// EventStore reads, in one transaction.
func (s *LedgerStore) CommitWithEvents(_ context.Context, cs *domain.ChangeSet, events []*domain.Event) error {
	if cs == nil {
		return storage.ErrInvalidInput
	}
	if err := checkBatch(events); err != nil {
		return err
	}

	start := time.Now()
	err := s.db.Update(Combine(s.writeChangeSet(cs), appendEvents(s.codec, events)))
	observability.RecordDBQuery("badger", "commit_with_events", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("could not commit change set with events: %w", err)
	}
	return nil
}

func (s *LedgerStore) writeChangeSet(cs *domain.ChangeSet) func(*badger.Txn) error {
	ops := make([]func(*badger.Txn) error, 0, len(cs.Balances)+1)
	for p, balance := range cs.Balances {
		ops = append(ops, s.codec.save(EncodeKey(PrefixBalance, p), balance))
	}
	ops = append(ops, s.codec.save(EncodeKey(PrefixState), cs.State))
	return Combine(ops...)
}

// Accounts returns all accounts ordered by principal.
// Badger iterates keys in byte order, which is principal order.
func (s *LedgerStore) Accounts(_ context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	prefix := EncodeKey(PrefixBalance)

	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			p, err := domain.PrincipalFromBytes(item.Key()[len(prefix):])
			if err != nil {
				return fmt.Errorf("could not decode principal (key: %x): %w", item.Key(), err)
			}

			var balance uint64
			err = item.Value(func(val []byte) error {
				return s.codec.Unmarshal(val, &balance)
			})
			if err != nil {
				return fmt.Errorf("could not decode balance (principal: %s): %w", p, err)
			}
			accounts = append(accounts, domain.Account{Principal: p, Balance: balance})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return accounts, nil
}

var _ storage.JournalingLedgerStore = (*LedgerStore)(nil)
