package ledger

import (
	"context"

	"token-ledger/internal/domain"
)

// TransferMany applies every item or none of them.
//
// Items are staged in order on one overlay; the first failing item aborts the
// whole batch and is reported as a *BatchError carrying its index. Each item's
// sender must equal the caller.
func (l *Ledger) TransferMany(ctx context.Context, caller domain.Principal, items []domain.TransferItem) error {
	return l.apply(ctx, domain.OpTransferMany, caller, func(st *stage) error {
		for i, item := range items {
			if err := checkedMove(st, caller, item); err != nil {
				return &BatchError{Index: i, Err: err}
			}
		}
		return nil
	})
}
