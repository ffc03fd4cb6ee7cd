package kv

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// EventStore implements storage.EventStore on Badger.
//
// Events are keyed by sequence. Two indexes sit next to them: event id to
// sequence for duplicate detection, and principal plus sequence for
// per-principal history.
type EventStore struct {
	db    *badger.DB
	codec *Codec
}

// NewEventStore creates an event store on db.
func NewEventStore(db *badger.DB, codec *Codec) *EventStore {
	return &EventStore{db: db, codec: codec}
}

// InsertBulk adds multiple events in one transaction. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := checkBatch(events); err != nil {
		return err
	}

	err := s.db.Update(appendEvents(s.codec, events))
	if err != nil {
		return fmt.Errorf("could not insert events: %w", err)
	}
	return nil
}

// checkBatch rejects nil events, empty ids and ids repeated within the batch.
func checkBatch(events []*domain.Event) error {
	batchIDs := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, ok := batchIDs[e.ID]; ok {
			return storage.ErrDuplicateKey
		}
		batchIDs[e.ID] = struct{}{}
	}
	return nil
}

// appendEvents fails on an id that is already stored, then writes every event
// with its indexes.
func appendEvents(codec *Codec, events []*domain.Event) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		for _, e := range events {
			var found bool
			err := exists(EncodeKey(PrefixEventID, e.ID), &found)(tx)
			if err != nil {
				return err
			}
			if found {
				return storage.ErrDuplicateKey
			}
		}

		for _, e := range events {
			err := Combine(indexEvent(codec, e)...)(tx)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

func indexEvent(codec *Codec, e *domain.Event) []func(*badger.Txn) error {
	ops := []func(*badger.Txn) error{
		codec.save(EncodeKey(PrefixEvent, e.Sequence), e),
		codec.save(EncodeKey(PrefixEventID, e.ID), e.Sequence),
	}
	if !e.Sender.IsZero() {
		ops = append(ops, mark(EncodeKey(PrefixPrincipalEvent, e.Sender, e.Sequence)))
	}
	if !e.Recipient.IsZero() && e.Recipient != e.Sender {
		ops = append(ops, mark(EncodeKey(PrefixPrincipalEvent, e.Recipient, e.Sequence)))
	}
	return ops
}

// GetAll retrieves all events ordered by sequence ASC.
func (s *EventStore) GetAll(_ context.Context) ([]*domain.Event, error) {
	result := make([]*domain.Event, 0)
	prefix := EncodeKey(PrefixEvent)

	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e domain.Event
			err := it.Item().Value(func(val []byte) error {
				return s.codec.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("could not decode event (key: %x): %w", it.Item().Key(), err)
			}
			result = append(result, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetByPrincipal retrieves events where p is sender or recipient, ordered by sequence ASC.
func (s *EventStore) GetByPrincipal(_ context.Context, p domain.Principal) ([]*domain.Event, error) {
	var result []*domain.Event
	prefix := EncodeKey(PrefixPrincipalEvent, p)

	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		defer it.Close()

		var sequences []uint64
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			sequences = append(sequences, binary.BigEndian.Uint64(it.Item().Key()[len(prefix):]))
		}

		for _, seq := range sequences {
			var e domain.Event
			err := s.codec.retrieve(EncodeKey(PrefixEvent, seq), &e)(tx)
			if err != nil {
				return err
			}
			result = append(result, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ storage.EventStore = (*EventStore)(nil)
