package replay

import (
	"sort"

	"token-ledger/internal/domain"
)

// SortEvents sorts events by sequence ASC in place.
func SortEvents(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})
}

// ValidateOrdering checks that sequences strictly increase.
func ValidateOrdering(events []*domain.Event) error {
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			return ErrInvalidOrdering
		}
	}
	return nil
}
