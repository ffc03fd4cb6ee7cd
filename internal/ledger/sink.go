package ledger

import (
	"context"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// EventSink receives the events of every committed call, in commit order.
type EventSink interface {
	// Name labels the sink in logs and metrics.
	Name() string
	// Publish delivers events. A failure never undoes the committed call.
	Publish(ctx context.Context, events []*domain.Event) error
}

// StoreSink persists events into an append-only event store.
type StoreSink struct {
	name  string
	store storage.EventStore
}

// NewStoreSink creates a sink writing into store.
func NewStoreSink(name string, store storage.EventStore) *StoreSink {
	return &StoreSink{name: name, store: store}
}

// Name returns the sink label.
func (s *StoreSink) Name() string {
	return s.name
}

// Publish inserts events as one batch.
func (s *StoreSink) Publish(ctx context.Context, events []*domain.Event) error {
	return s.store.InsertBulk(ctx, events)
}
