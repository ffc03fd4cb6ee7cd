package ledger

import (
	"context"
	"fmt"
	"math"

	"token-ledger/internal/domain"
	"token-ledger/internal/idhash"
	"token-ledger/internal/storage"
)

// stage is a copy-on-write overlay over the store for the duration of one call.
// Reads fall through to the store, writes stay in the overlay until commit.
// Discarding a stage leaves the store untouched.
type stage struct {
	ctx      context.Context
	store    storage.LedgerStore
	state    domain.LedgerState
	balances map[domain.Principal]uint64
	events   []*domain.Event
	now      int64
}

func newStage(ctx context.Context, store storage.LedgerStore, now int64) (*stage, error) {
	state, err := store.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	return &stage{
		ctx:      ctx,
		store:    store,
		state:    *state,
		balances: make(map[domain.Principal]uint64),
		now:      now,
	}, nil
}

// balance returns the staged balance of p, falling back to the store.
func (s *stage) balance(p domain.Principal) (uint64, error) {
	if b, ok := s.balances[p]; ok {
		return b, nil
	}
	b, err := s.store.Balance(s.ctx, p)
	if err != nil {
		return 0, fmt.Errorf("load balance of %s: %w", p, err)
	}
	return b, nil
}

// credit adds amount to p's balance. Fails with ErrArithmeticOverflow and
// leaves the balance unchanged when the result is not representable.
func (s *stage) credit(p domain.Principal, amount uint64) error {
	b, err := s.balance(p)
	if err != nil {
		return err
	}
	if amount > math.MaxUint64-b {
		return ErrArithmeticOverflow
	}
	s.balances[p] = b + amount
	return nil
}

// debit subtracts amount from p's balance. Fails with ErrInsufficientBalance
// and leaves the balance unchanged when p holds less than amount.
func (s *stage) debit(p domain.Principal, amount uint64) error {
	b, err := s.balance(p)
	if err != nil {
		return err
	}
	if b < amount {
		return ErrInsufficientBalance
	}
	s.balances[p] = b - amount
	return nil
}

// increaseSupply adds amount to the total supply.
// Since every balance is bounded by the supply, a supply that does not overflow
// guarantees the matching credit does not overflow either.
func (s *stage) increaseSupply(amount uint64) error {
	if amount > math.MaxUint64-s.state.Supply {
		return ErrArithmeticOverflow
	}
	s.state.Supply += amount
	return nil
}

// decreaseSupply subtracts amount from the total supply.
func (s *stage) decreaseSupply(amount uint64) error {
	if s.state.Supply < amount {
		// Only reachable if the store broke the conservation law.
		return fmt.Errorf("supply %d below burn amount %d", s.state.Supply, amount)
	}
	s.state.Supply -= amount
	return nil
}

// mint credits recipient and grows the supply.
func (s *stage) mint(recipient domain.Principal, amount uint64) error {
	if err := s.increaseSupply(amount); err != nil {
		return err
	}
	if err := s.credit(recipient, amount); err != nil {
		return err
	}
	s.emit(&domain.Event{Kind: domain.EventKindMint, Recipient: recipient, Amount: amount})
	return nil
}

// move debits sender then credits recipient. Supply is unchanged.
func (s *stage) move(sender, recipient domain.Principal, amount uint64, memo []byte) error {
	if err := s.debit(sender, amount); err != nil {
		return err
	}
	if err := s.credit(recipient, amount); err != nil {
		return err
	}
	s.emit(&domain.Event{
		Kind:      domain.EventKindTransfer,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Memo:      memo,
	})
	return nil
}

// burn debits holder and shrinks the supply.
func (s *stage) burn(holder domain.Principal, amount uint64) error {
	if err := s.debit(holder, amount); err != nil {
		return err
	}
	if err := s.decreaseSupply(amount); err != nil {
		return err
	}
	s.emit(&domain.Event{Kind: domain.EventKindBurn, Sender: holder, Amount: amount})
	return nil
}

// setTokenURI replaces the metadata pointer.
func (s *stage) setTokenURI(uri string) {
	s.state.TokenURI = uri
	s.emit(&domain.Event{Kind: domain.EventKindTokenURI, TokenURI: uri})
}

// emit assigns the next sequence and a deterministic id to e.
func (s *stage) emit(e *domain.Event) {
	s.state.Sequence++
	e.Sequence = s.state.Sequence
	e.Timestamp = s.now
	if e.Memo != nil {
		e.Memo = append([]byte(nil), e.Memo...)
	}
	e.ID = idhash.EventID(e)
	s.events = append(s.events, e)
}

// changeSet returns the staged writes as one atomic unit.
func (s *stage) changeSet() *domain.ChangeSet {
	cs := domain.NewChangeSet(s.state)
	for p, b := range s.balances {
		cs.Balances[p] = b
	}
	return cs
}
