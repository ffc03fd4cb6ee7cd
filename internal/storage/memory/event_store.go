package memory

import (
	"context"
	"sort"
	"sync"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by event id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.Event),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track ids in this batch to detect intra-batch duplicates
	batchIDs := make(map[string]struct{}, len(events))

	// First pass: validate everything before touching the map
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchIDs[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchIDs[e.ID] = struct{}{}
	}

	// Second pass: insert copies
	for _, e := range events {
		s.data[e.ID] = copyEvent(e)
	}
	return nil
}

// GetAll retrieves all events ordered by sequence ASC.
func (s *EventStore) GetAll(_ context.Context) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Event, 0, len(s.data))
	for _, e := range s.data {
		result = append(result, copyEvent(e))
	}
	sortBySequence(result)
	return result, nil
}

// GetByPrincipal retrieves events touching p, ordered by sequence ASC.
func (s *EventStore) GetByPrincipal(_ context.Context, p domain.Principal) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Sender == p || e.Recipient == p {
			result = append(result, copyEvent(e))
		}
	}
	sortBySequence(result)
	return result, nil
}

func copyEvent(e *domain.Event) *domain.Event {
	c := *e
	if e.Memo != nil {
		c.Memo = append([]byte(nil), e.Memo...)
	}
	return &c
}

func sortBySequence(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})
}

var _ storage.EventStore = (*EventStore)(nil)
