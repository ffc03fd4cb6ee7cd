// Package lookup answers point-in-time questions from the event log.
package lookup

import (
	"errors"
	"sort"

	"token-ledger/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoEvents       = errors.New("no events available")
	ErrFutureSequence = errors.New("sequence is beyond the last event")
)

// BalanceAt returns the balance of p after the event with sequence target was
// applied. events must be ordered by sequence ASC and contain at least every
// event touching p (the whole log or its per-principal slice both work).
// The caller bounds target by the current sequence; a principal without
// events holds 0 at every point.
func BalanceAt(p domain.Principal, target uint64, events []*domain.Event) uint64 {
	var balance uint64
	for _, e := range upTo(target, events) {
		switch e.Kind {
		case domain.EventKindMint:
			if e.Recipient == p {
				balance += e.Amount
			}
		case domain.EventKindBurn:
			if e.Sender == p {
				balance -= e.Amount
			}
		case domain.EventKindTransfer:
			if e.Sender == p {
				balance -= e.Amount
			}
			if e.Recipient == p {
				balance += e.Amount
			}
		}
	}
	return balance
}

// SupplyAt returns the total supply after the event with sequence target.
// events must be the complete log ordered by sequence ASC.
func SupplyAt(target uint64, events []*domain.Event) (uint64, error) {
	if len(events) == 0 {
		if target == 0 {
			return 0, nil
		}
		return 0, ErrNoEvents
	}
	if target > events[len(events)-1].Sequence {
		return 0, ErrFutureSequence
	}

	var supply uint64
	for _, e := range upTo(target, events) {
		switch e.Kind {
		case domain.EventKindMint:
			supply += e.Amount
		case domain.EventKindBurn:
			supply -= e.Amount
		}
	}
	return supply, nil
}

// TokenURIAt returns the token URI in effect after the event with sequence
// target, or initial when no token-uri event precedes it.
func TokenURIAt(target uint64, initial string, events []*domain.Event) string {
	prefix := upTo(target, events)

	// Find the closest update at or before target
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i].Kind == domain.EventKindTokenURI {
			return prefix[i].TokenURI
		}
	}
	return initial
}

// upTo returns the prefix of events with sequence <= target.
func upTo(target uint64, events []*domain.Event) []*domain.Event {
	n := sort.Search(len(events), func(i int) bool {
		return events[i].Sequence > target
	})
	return events[:n]
}
