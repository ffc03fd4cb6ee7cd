package ledger

import (
	"context"

	"token-ledger/internal/domain"
)

// GetTokenURI returns the current metadata pointer.
func (l *Ledger) GetTokenURI(ctx context.Context) (string, error) {
	state, err := l.store.State(ctx)
	if err != nil {
		return "", err
	}
	return state.TokenURI, nil
}

// UpdateTokenURI replaces the metadata pointer. Only the DAO principal may do
// so; the minting owner is not implicitly allowed.
func (l *Ledger) UpdateTokenURI(ctx context.Context, caller domain.Principal, uri string) error {
	return l.apply(ctx, domain.OpUpdateTokenURI, caller, func(st *stage) error {
		if !l.policy.IsDAO(caller) {
			return ErrUnauthorized
		}
		st.setTokenURI(uri)
		return nil
	})
}
