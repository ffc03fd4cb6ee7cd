package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const insertEventQuery = `
	INSERT INTO ledger_events (
		id, sequence, kind, amount, sender, recipient, memo, token_uri, timestamp
	) VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9)
`

const selectEventColumns = `
	SELECT id, sequence, kind, amount::text, sender, recipient, memo, token_uri, timestamp
	FROM ledger_events
`

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	if err := validateEvents(events); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "insert_events", time.Since(start).Seconds(), err)
	}()

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		return insertEvents(ctx, tx, events)
	})
}

func validateEvents(events []*domain.Event) error {
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
	}
	return nil
}

// insertEvents appends events inside tx.
func insertEvents(ctx context.Context, tx pgx.Tx, events []*domain.Event) error {
	for _, e := range events {
		_, err := tx.Exec(ctx, insertEventQuery,
			e.ID,
			int64(e.Sequence),
			string(e.Kind),
			formatAmount(e.Amount),
			principalParam(e.Sender),
			principalParam(e.Recipient),
			e.Memo,
			nullableString(e.TokenURI),
			e.Timestamp,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert event in bulk: %w", err)
		}
	}
	return nil
}

// GetAll retrieves all events ordered by sequence ASC.
func (s *EventStore) GetAll(ctx context.Context) ([]*domain.Event, error) {
	rows, err := s.pool.Query(ctx, selectEventColumns+` ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("get all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByPrincipal retrieves events where p is sender or recipient, ordered by sequence ASC.
func (s *EventStore) GetByPrincipal(ctx context.Context, p domain.Principal) ([]*domain.Event, error) {
	query := selectEventColumns + `
		WHERE sender = $1 OR recipient = $1
		ORDER BY sequence ASC
	`
	rows, err := s.pool.Query(ctx, query, p.String())
	if err != nil {
		return nil, fmt.Errorf("get events by principal: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans multiple rows into events.
func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	events := make([]*domain.Event, 0)

	for rows.Next() {
		var e domain.Event
		var sequence int64
		var kind, amount string
		var sender, recipient, tokenURI *string

		err := rows.Scan(&e.ID, &sequence, &kind, &amount, &sender, &recipient, &e.Memo, &tokenURI, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Sequence = uint64(sequence)
		e.Kind = domain.EventKind(kind)
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if e.Sender, err = scanPrincipal(sender); err != nil {
			return nil, err
		}
		if e.Recipient, err = scanPrincipal(recipient); err != nil {
			return nil, err
		}
		if tokenURI != nil {
			e.TokenURI = *tokenURI
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

// principalParam maps the zero principal to NULL.
func principalParam(p domain.Principal) *string {
	if p.IsZero() {
		return nil
	}
	s := p.String()
	return &s
}

func scanPrincipal(s *string) (domain.Principal, error) {
	if s == nil {
		return domain.Principal{}, nil
	}
	p, err := domain.ParsePrincipal(*s)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("scan principal: %w", err)
	}
	return p, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sortAccounts(accounts []domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Principal.Compare(accounts[j].Principal) < 0
	})
}
