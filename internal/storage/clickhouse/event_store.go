package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// It holds an analytical copy of the event log; the zero principal is stored
// as an empty string.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_events", time.Since(start).Seconds(), err)
	}()

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
	}

	// MergeTree does not enforce uniqueness, so check existing rows first
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	var count uint64
	err = s.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_events WHERE id IN (?)`, ids).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			id, sequence, kind, amount, sender, recipient, memo, token_uri, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.ID, e.Sequence, string(e.Kind), e.Amount,
			principalColumn(e.Sender), principalColumn(e.Recipient),
			string(e.Memo), e.TokenURI, uint64(e.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetAll retrieves all events ordered by sequence ASC.
func (s *EventStore) GetAll(ctx context.Context) ([]*domain.Event, error) {
	query := `
		SELECT id, sequence, kind, amount, sender, recipient, memo, token_uri, timestamp
		FROM ledger_events FINAL
		ORDER BY sequence ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByPrincipal retrieves events where p is sender or recipient, ordered by sequence ASC.
func (s *EventStore) GetByPrincipal(ctx context.Context, p domain.Principal) ([]*domain.Event, error) {
	query := `
		SELECT id, sequence, kind, amount, sender, recipient, memo, token_uri, timestamp
		FROM ledger_events FINAL
		WHERE sender = ? OR recipient = ?
		ORDER BY sequence ASC
	`

	key := principalColumn(p)
	rows, err := s.conn.Query(ctx, query, key, key)
	if err != nil {
		return nil, fmt.Errorf("query by principal: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.Event, error) {
	events := make([]*domain.Event, 0)

	for rows.Next() {
		var e domain.Event
		var kind, sender, recipient, memo string
		var timestamp uint64

		err := rows.Scan(
			&e.ID, &e.Sequence, &kind, &e.Amount,
			&sender, &recipient, &memo, &e.TokenURI, &timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.Timestamp = int64(timestamp)
		if memo != "" {
			e.Memo = []byte(memo)
		}
		if e.Sender, err = parsePrincipalColumn(sender); err != nil {
			return nil, err
		}
		if e.Recipient, err = parsePrincipalColumn(recipient); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func principalColumn(p domain.Principal) string {
	if p.IsZero() {
		return ""
	}
	return p.String()
}

func parsePrincipalColumn(s string) (domain.Principal, error) {
	if s == "" {
		return domain.Principal{}, nil
	}
	p, err := domain.ParsePrincipal(s)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("scan principal: %w", err)
	}
	return p, nil
}
