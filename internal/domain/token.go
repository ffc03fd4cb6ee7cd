package domain

// TokenInfo describes the fungible token served by a ledger.
type TokenInfo struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Allocation is one entry of the initial distribution.
type Allocation struct {
	Label     string    `json:"label"` // "dao" | "liquidity" | "airdrop"
	Recipient Principal `json:"recipient"`
	Amount    uint64    `json:"amount"`
}

// Allocation labels for the three distribution sub-accounts.
const (
	AllocationDAO       = "dao"
	AllocationLiquidity = "liquidity"
	AllocationAirdrop   = "airdrop"
)

// TransferItem is one transfer inside a transfer-many batch. Never persisted.
type TransferItem struct {
	Amount    uint64    `json:"amount"`
	Sender    Principal `json:"sender"`
	Recipient Principal `json:"to"`
	Memo      []byte    `json:"memo,omitempty"`
}
