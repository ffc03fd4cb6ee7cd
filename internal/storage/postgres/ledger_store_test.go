package postgres

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

func TestLedgerStore_EmptyState(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerStore(pool)
	ctx := context.Background()

	state, err := store.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerState{}, *state)

	balance, err := store.Balance(ctx, domain.Principal{1})
	require.NoError(t, err)
	assert.Zero(t, balance)

	accounts, err := store.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestLedgerStore_CommitAndRead(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerStore(pool)
	ctx := context.Background()

	cs := domain.NewChangeSet(domain.LedgerState{
		Supply:      math.MaxUint64,
		TokenURI:    "ipfs://meta",
		Sequence:    2,
		Initialized: true,
	})
	cs.Balances[domain.Principal{2}] = math.MaxUint64 - 5
	cs.Balances[domain.Principal{1}] = 5
	require.NoError(t, store.Commit(ctx, cs))

	state, err := store.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, cs.State, *state)

	balance, err := store.Balance(ctx, domain.Principal{2})
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-5), balance, "full uint64 range must survive NUMERIC round trip")

	accounts, err := store.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, domain.Principal{1}, accounts[0].Principal)
	assert.Equal(t, domain.Principal{2}, accounts[1].Principal)

	// Second commit upserts.
	next := domain.NewChangeSet(domain.LedgerState{Supply: math.MaxUint64, Sequence: 3, Initialized: true, TokenURI: "ipfs://v2"})
	next.Balances[domain.Principal{1}] = 0
	next.Balances[domain.Principal{3}] = 5
	require.NoError(t, store.Commit(ctx, next))

	balance, err = store.Balance(ctx, domain.Principal{1})
	require.NoError(t, err)
	assert.Zero(t, balance)

	state, err = store.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://v2", state.TokenURI)
	assert.Equal(t, uint64(3), state.Sequence)
}

func TestLedgerStore_CommitNil(t *testing.T) {
	store := NewLedgerStore(nil)
	assert.ErrorIs(t, store.Commit(context.Background(), nil), storage.ErrInvalidInput)
}

func TestLedgerStore_CommitWithEvents(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerStore(pool)
	events := NewEventStore(pool)
	ctx := context.Background()

	alice, bob := domain.Principal{1}, domain.Principal{2}

	cs := domain.NewChangeSet(domain.LedgerState{Supply: 100, Sequence: 2, Initialized: true})
	cs.Balances[alice] = 60
	cs.Balances[bob] = 40
	require.NoError(t, store.CommitWithEvents(ctx, cs, []*domain.Event{
		makeEvent(1, domain.EventKindMint, domain.Principal{}, alice, 100),
		makeEvent(2, domain.EventKindTransfer, alice, bob, 40),
	}))

	all, err := events.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// The duplicate event id rolls back the balances written before it.
	next := domain.NewChangeSet(domain.LedgerState{Supply: 100, Sequence: 3, Initialized: true})
	next.Balances[alice] = 0
	next.Balances[bob] = 100
	dup := makeEvent(3, domain.EventKindTransfer, alice, bob, 60)
	dup.ID = all[1].ID
	err = store.CommitWithEvents(ctx, next, []*domain.Event{dup})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	balance, err := store.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), balance)

	state, err := store.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.Sequence)
}

func TestPool_Ping(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, pool.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, pool.Ping(ctx))
}

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}
