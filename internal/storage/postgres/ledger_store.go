package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Amounts are NUMERIC(20,0) and cross the wire as text so the full uint64
// range survives.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JournalingLedgerStore = (*LedgerStore)(nil)

// Balance returns the balance of p, or 0 if p was never credited.
func (s *LedgerStore) Balance(ctx context.Context, p domain.Principal) (uint64, error) {
	start := time.Now()
	query := `SELECT balance::text FROM balances WHERE principal = $1`

	var raw string
	err := s.pool.QueryRow(ctx, query, p.String()).Scan(&raw)
	if isNotFoundError(err) {
		observability.RecordDBQuery("postgres", "balance", time.Since(start).Seconds(), nil)
		return 0, nil
	}
	observability.RecordDBQuery("postgres", "balance", time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return parseAmount(raw)
}

// State returns the ledger scalars, or a zero state if nothing was committed yet.
func (s *LedgerStore) State(ctx context.Context) (*domain.LedgerState, error) {
	start := time.Now()
	query := `
		SELECT supply::text, token_uri, sequence, initialized
		FROM ledger_state
		WHERE id = 1
	`

	var state domain.LedgerState
	var supply string
	var sequence int64
	err := s.pool.QueryRow(ctx, query).Scan(&supply, &state.TokenURI, &sequence, &state.Initialized)
	if isNotFoundError(err) {
		observability.RecordDBQuery("postgres", "state", time.Since(start).Seconds(), nil)
		return &state, nil
	}
	observability.RecordDBQuery("postgres", "state", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get ledger state: %w", err)
	}

	state.Supply, err = parseAmount(supply)
	if err != nil {
		return nil, err
	}
	state.Sequence = uint64(sequence)
	return &state, nil
}

// Commit upserts every balance and the state row in one transaction.
func (s *LedgerStore) Commit(ctx context.Context, cs *domain.ChangeSet) (err error) {
	if cs == nil {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "commit", time.Since(start).Seconds(), err)
	}()

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		return writeChangeSet(ctx, tx, cs)
	})
}

// CommitWithEvents writes cs and appends events to ledger_events in the same
// transaction. A duplicate event id rolls back the balances too.
func (s *LedgerStore) CommitWithEvents(ctx context.Context, cs *domain.ChangeSet, events []*domain.Event) (err error) {
	if cs == nil {
		return storage.ErrInvalidInput
	}
	if err := validateEvents(events); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "commit_with_events", time.Since(start).Seconds(), err)
	}()

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		if err := writeChangeSet(ctx, tx, cs); err != nil {
			return err
		}
		return insertEvents(ctx, tx, events)
	})
}

func writeChangeSet(ctx context.Context, tx pgx.Tx, cs *domain.ChangeSet) error {
	batch := &pgx.Batch{}
	for p, balance := range cs.Balances {
		batch.Queue(`
			INSERT INTO balances (principal, balance, updated_at)
			VALUES ($1, $2::text::numeric, now())
			ON CONFLICT (principal) DO UPDATE
			SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		`, p.String(), formatAmount(balance))
	}
	batch.Queue(`
		INSERT INTO ledger_state (id, supply, token_uri, sequence, initialized, updated_at)
		VALUES (1, $1::text::numeric, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET supply = EXCLUDED.supply,
		    token_uri = EXCLUDED.token_uri,
		    sequence = EXCLUDED.sequence,
		    initialized = EXCLUDED.initialized,
		    updated_at = EXCLUDED.updated_at
	`, formatAmount(cs.State.Supply), cs.State.TokenURI, int64(cs.State.Sequence), cs.State.Initialized)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write change set: %w", err)
	}
	return nil
}

// Accounts returns all accounts ordered by principal bytes.
func (s *LedgerStore) Accounts(ctx context.Context) ([]domain.Account, error) {
	start := time.Now()
	query := `SELECT principal, balance::text FROM balances`

	rows, err := s.pool.Query(ctx, query)
	observability.RecordDBQuery("postgres", "accounts", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		var principal, balance string
		if err := rows.Scan(&principal, &balance); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}

		var a domain.Account
		if a.Principal, err = domain.ParsePrincipal(principal); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		if a.Balance, err = parseAmount(balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	// Base58 text order differs from byte order, so sort in Go.
	sortAccounts(accounts)
	return accounts, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}
