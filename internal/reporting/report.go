package reporting

import (
	"time"

	"token-ledger/internal/domain"
)

// Report is a point-in-time view of the ledger.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Token       domain.TokenInfo
	TokenURI    string

	// Supply
	Supply   uint64
	Sequence uint64

	// Holders sorted by balance DESC, then principal ASC. Zero balances are omitted.
	Holders []HolderRow

	// Activity aggregated from the event log
	Activity ActivitySummary

	// Integrity results from verification
	Integrity IntegritySection
}

// HolderRow is one account in the holders table.
type HolderRow struct {
	Principal domain.Principal
	Label     string // configured role or allocation label, empty for plain holders
	Balance   uint64
	SharePct  float64 // Balance / Supply * 100, 0 if supply is 0
}

// ActivitySummary counts events and volumes per kind.
type ActivitySummary struct {
	Mints           int
	Transfers       int
	Burns           int
	URIUpdates      int
	MintedVolume    uint64
	TransferVolume  uint64 // saturates at max uint64
	BurnedVolume    uint64
	UniquePrincipal int // distinct principals appearing in any event
}

// IntegritySection contains verification outcomes.
type IntegritySection struct {
	Checked     bool
	Consistent  bool
	Divergences []string
	Errors      []string
}
