package domain

// Operation names accepted by the ledger dispatcher.
const (
	OpMint           = "mint"
	OpTransfer       = "transfer"
	OpTransferMany   = "transfer-many"
	OpBurn           = "burn"
	OpGetBalance     = "get-balance"
	OpGetTokenURI    = "get-token-uri"
	OpUpdateTokenURI = "update-token-uri"
	OpGetName        = "get-name"
	OpGetSymbol      = "get-symbol"
	OpGetDecimals    = "get-decimals"
	OpGetTotalSupply = "get-total-supply"
)

// Call is one already-authenticated call into the ledger.
// Only the fields used by Op are read.
type Call struct {
	Op        string         `json:"op"`
	Caller    Principal      `json:"caller"`
	Amount    uint64         `json:"amount,omitempty"`
	Sender    Principal      `json:"sender"`
	Recipient Principal      `json:"recipient"`
	Memo      []byte         `json:"memo,omitempty"`
	Items     []TransferItem `json:"items,omitempty"`
	URI       string         `json:"uri,omitempty"`
	Principal Principal      `json:"principal"` // get-balance target
}

// Result is the outcome of a dispatched call: ok(Value) or err(Code).
type Result struct {
	Ok    bool   `json:"ok"`
	Value any    `json:"value,omitempty"`
	Code  uint32 `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
