package memory

import (
	"context"
	"errors"
	"testing"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

func TestEventStore_InsertBulkAndGetAll(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	events := []*domain.Event{
		{ID: "e2", Sequence: 2, Kind: domain.EventKindTransfer, Sender: domain.Principal{1}, Recipient: domain.Principal{2}, Amount: 10},
		{ID: "e1", Sequence: 1, Kind: domain.EventKindMint, Recipient: domain.Principal{1}, Amount: 100},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(all))
	}
	if all[0].Sequence != 1 || all[1].Sequence != 2 {
		t.Errorf("Events not ordered by sequence: %d, %d", all[0].Sequence, all[1].Sequence)
	}
}

func TestEventStore_DuplicateFailsWholeBatch(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Event{{ID: "e1", Sequence: 1}}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.Event{
		{ID: "e2", Sequence: 2},
		{ID: "e1", Sequence: 1},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 1 {
		t.Errorf("Batch should not be partially applied, got %d events", len(all))
	}
}

func TestEventStore_IntraBatchDuplicate(t *testing.T) {
	store := NewEventStore()

	err := store.InsertBulk(context.Background(), []*domain.Event{
		{ID: "e1", Sequence: 1},
		{ID: "e1", Sequence: 1},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Event{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.Event{{Sequence: 1}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty ID, got %v", err)
	}
}

func TestEventStore_GetByPrincipal(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	alice := domain.Principal{1}
	bob := domain.Principal{2}
	carol := domain.Principal{3}

	_ = store.InsertBulk(ctx, []*domain.Event{
		{ID: "e1", Sequence: 1, Kind: domain.EventKindMint, Recipient: alice, Amount: 100},
		{ID: "e2", Sequence: 2, Kind: domain.EventKindTransfer, Sender: alice, Recipient: bob, Amount: 10},
		{ID: "e3", Sequence: 3, Kind: domain.EventKindMint, Recipient: carol, Amount: 5},
	})

	got, err := store.GetByPrincipal(ctx, alice)
	if err != nil {
		t.Fatalf("GetByPrincipal failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events for alice, got %d", len(got))
	}

	got, _ = store.GetByPrincipal(ctx, bob)
	if len(got) != 1 || got[0].ID != "e2" {
		t.Errorf("Expected only e2 for bob, got %v", got)
	}
}

func TestEventStore_ReturnsCopy(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := &domain.Event{ID: "e1", Sequence: 1, Amount: 10, Memo: []byte("hi")}
	_ = store.InsertBulk(ctx, []*domain.Event{e})

	e.Amount = 99
	e.Memo[0] = 'X'

	all, _ := store.GetAll(ctx)
	if all[0].Amount != 10 || string(all[0].Memo) != "hi" {
		t.Error("Store should return copy, not reference")
	}
}
