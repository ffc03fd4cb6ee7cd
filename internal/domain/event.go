package domain

// EventKind classifies a ledger event.
type EventKind string

// Event kinds.
const (
	EventKindMint     EventKind = "mint"
	EventKindTransfer EventKind = "transfer"
	EventKindBurn     EventKind = "burn"
	EventKindTokenURI EventKind = "token-uri"
)

// Event is an observable effect of a committed call.
// Mint has no Sender, burn has no Recipient, token-uri carries only TokenURI.
type Event struct {
	ID        string    `json:"id"`       // deterministic hash, see idhash.ComputeEventID
	Sequence  uint64    `json:"sequence"` // 1-based, strictly increasing
	Kind      EventKind `json:"kind"`
	Amount    uint64    `json:"amount,omitempty"`
	Sender    Principal `json:"sender"`
	Recipient Principal `json:"recipient"`
	Memo      []byte    `json:"memo,omitempty"`
	TokenURI  string    `json:"token_uri,omitempty"`
	Timestamp int64     `json:"timestamp"` // Unix ms
}
