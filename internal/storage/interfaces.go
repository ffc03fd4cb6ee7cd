package storage

import (
	"context"

	"token-ledger/internal/domain"
)

// LedgerStore provides durable access to balances and ledger state.
type LedgerStore interface {
	// Balance returns the balance of p. Returns 0 if p has never been credited.
	Balance(ctx context.Context, p domain.Principal) (uint64, error)

	// State returns the ledger scalars. Returns a zero state if nothing was committed yet.
	State(ctx context.Context) (*domain.LedgerState, error)

	// Commit applies all balances and the state of cs atomically.
	// On error nothing from cs is visible to subsequent reads.
	Commit(ctx context.Context, cs *domain.ChangeSet) error

	// Accounts returns every stored account ordered by principal bytes.
	Accounts(ctx context.Context) ([]domain.Account, error)
}

// JournalingLedgerStore is a LedgerStore that keeps its own event log and can
// append a change set's events in the same transaction as the change set.
type JournalingLedgerStore interface {
	LedgerStore

	// CommitWithEvents applies cs and appends events atomically.
	// On error neither is visible to subsequent reads.
	CommitWithEvents(ctx context.Context, cs *domain.ChangeSet, events []*domain.Event) error
}

// EventStore provides access to the append-only ledger event log.
type EventStore interface {
	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate ID.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetAll retrieves all events ordered by sequence ASC.
	GetAll(ctx context.Context) ([]*domain.Event, error)

	// GetByPrincipal retrieves events where p is sender or recipient, ordered by sequence ASC.
	GetByPrincipal(ctx context.Context, p domain.Principal) ([]*domain.Event, error)
}
