package domain

// Account is a principal with its balance.
// Absence from a store is equivalent to a zero balance.
type Account struct {
	Principal Principal `json:"principal"`
	Balance   uint64    `json:"balance"`
}

// LedgerState holds the ledger scalars stored next to balances.
type LedgerState struct {
	Supply      uint64 `json:"supply"`      // equals the sum of all balances
	TokenURI    string `json:"token_uri"`   // metadata pointer
	Sequence    uint64 `json:"sequence"`    // number of events emitted so far
	Initialized bool   `json:"initialized"` // initial distribution committed
}

// ChangeSet is the unit of atomic commit: absolute post-call balances of every
// touched account plus the post-call state. A store applies all of it or nothing.
type ChangeSet struct {
	Balances map[Principal]uint64
	State    LedgerState
}

// NewChangeSet creates an empty change set on top of state.
func NewChangeSet(state LedgerState) *ChangeSet {
	return &ChangeSet{
		Balances: make(map[Principal]uint64),
		State:    state,
	}
}

// Empty reports whether the change set touches no balances.
func (c *ChangeSet) Empty() bool {
	return len(c.Balances) == 0
}
