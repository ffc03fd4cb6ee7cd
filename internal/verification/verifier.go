// Package verification checks that persisted ledger state is consistent with
// itself and with the event log that produced it.
package verification

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/hashicorp/go-multierror"

	"token-ledger/internal/domain"
	"token-ledger/internal/idhash"
	"token-ledger/internal/storage"
)

// Divergence represents a mismatch between stored and replayed values.
type Divergence struct {
	Field    string      // what was compared
	Expected interface{} // stored value
	Actual   interface{} // replayed or recomputed value
}

func (d Divergence) String() string {
	return fmt.Sprintf("%s: stored=%v replayed=%v", d.Field, d.Expected, d.Actual)
}

// Report is the outcome of a full ledger verification.
type Report struct {
	Accounts      int          // accounts in the store
	Events        int          // events in the log
	StoredSupply  uint64       // supply held in ledger state
	BalanceSum    string       // sum of stored balances, decimal (may exceed uint64 if corrupted)
	ReplayedState Snapshot     // state rebuilt from the event log
	Divergences   []Divergence // every mismatch found
}

// Match reports whether no divergence was found.
func (r *Report) Match() bool {
	return len(r.Divergences) == 0
}

// Snapshot is ledger state rebuilt from events.
type Snapshot struct {
	Balances map[domain.Principal]uint64
	Supply   uint64
	Sequence uint64
	TokenURI string // empty if no token-uri event was seen
}

// Verifier compares the ledger store against the event log.
type Verifier struct {
	ledger storage.LedgerStore
	events storage.EventStore
}

// NewVerifier creates a verifier. events may be nil, in which case only the
// conservation law is checked.
func NewVerifier(ledger storage.LedgerStore, events storage.EventStore) *Verifier {
	return &Verifier{ledger: ledger, events: events}
}

// Verify loads both stores and reports every divergence.
// The error is reserved for storage failures and a malformed event log.
func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	state, err := v.ledger.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	accounts, err := v.ledger.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	report := &Report{
		Accounts:     len(accounts),
		StoredSupply: state.Supply,
	}

	// Conservation: sum(balances) == supply. Summed in big.Int so that a
	// corrupted store cannot wrap around and hide the problem.
	sum := new(big.Int)
	for _, a := range accounts {
		sum.Add(sum, new(big.Int).SetUint64(a.Balance))
	}
	report.BalanceSum = sum.String()
	if sum.Cmp(new(big.Int).SetUint64(state.Supply)) != 0 {
		report.Divergences = append(report.Divergences, Divergence{
			Field:    "Supply",
			Expected: state.Supply,
			Actual:   report.BalanceSum,
		})
	}

	if v.events == nil {
		return report, nil
	}

	events, err := v.events.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	report.Events = len(events)

	snap, err := Replay(events)
	if err != nil {
		return report, err
	}
	report.ReplayedState = *snap
	report.Divergences = append(report.Divergences, CompareState(state, accounts, snap)...)

	return report, nil
}

// Replay folds events into a snapshot. It checks that sequences are
// contiguous from 1, that ids match their content and that no balance or the
// supply leaves the uint64 range. All problems are collected into one error.
func Replay(events []*domain.Event) (*Snapshot, error) {
	snap := &Snapshot{Balances: make(map[domain.Principal]uint64)}
	var errs error

	for i, e := range events {
		want := uint64(i + 1)
		if e.Sequence != want {
			errs = multierror.Append(errs, fmt.Errorf("event %s: sequence %d, expected %d", e.ID, e.Sequence, want))
		}
		if id := idhash.EventID(e); id != e.ID {
			errs = multierror.Append(errs, fmt.Errorf("event %d: id %s does not match content hash %s", e.Sequence, e.ID, id))
		}
		snap.Sequence = e.Sequence

		switch e.Kind {
		case domain.EventKindMint:
			if snap.Supply > math.MaxUint64-e.Amount {
				errs = multierror.Append(errs, fmt.Errorf("event %d: supply overflow", e.Sequence))
				continue
			}
			snap.Supply += e.Amount
			snap.Balances[e.Recipient] += e.Amount

		case domain.EventKindTransfer:
			if snap.Balances[e.Sender] < e.Amount {
				errs = multierror.Append(errs, fmt.Errorf("event %d: sender %s overdrawn", e.Sequence, e.Sender))
				continue
			}
			snap.Balances[e.Sender] -= e.Amount
			snap.Balances[e.Recipient] += e.Amount

		case domain.EventKindBurn:
			if snap.Balances[e.Sender] < e.Amount {
				errs = multierror.Append(errs, fmt.Errorf("event %d: burner %s overdrawn", e.Sequence, e.Sender))
				continue
			}
			snap.Balances[e.Sender] -= e.Amount
			snap.Supply -= e.Amount

		case domain.EventKindTokenURI:
			snap.TokenURI = e.TokenURI

		default:
			errs = multierror.Append(errs, fmt.Errorf("event %d: unknown kind %q", e.Sequence, e.Kind))
		}
	}

	return snap, errs
}

// CompareState compares stored state and accounts with a replayed snapshot.
// Zero balances are equivalent to absent accounts on both sides.
func CompareState(state *domain.LedgerState, accounts []domain.Account, snap *Snapshot) []Divergence {
	var divergences []Divergence

	if state.Supply != snap.Supply {
		divergences = append(divergences, Divergence{Field: "ReplayedSupply", Expected: state.Supply, Actual: snap.Supply})
	}
	if state.Sequence != snap.Sequence {
		divergences = append(divergences, Divergence{Field: "Sequence", Expected: state.Sequence, Actual: snap.Sequence})
	}
	if snap.TokenURI != "" && state.TokenURI != snap.TokenURI {
		divergences = append(divergences, Divergence{Field: "TokenURI", Expected: state.TokenURI, Actual: snap.TokenURI})
	}

	seen := make(map[domain.Principal]struct{}, len(accounts))
	for _, a := range accounts {
		seen[a.Principal] = struct{}{}
		if replayed := snap.Balances[a.Principal]; replayed != a.Balance {
			divergences = append(divergences, Divergence{
				Field:    "Balance[" + a.Principal.String() + "]",
				Expected: a.Balance,
				Actual:   replayed,
			})
		}
	}
	for p, replayed := range snap.Balances {
		if _, ok := seen[p]; ok || replayed == 0 {
			continue
		}
		divergences = append(divergences, Divergence{
			Field:    "Balance[" + p.String() + "]",
			Expected: uint64(0),
			Actual:   replayed,
		})
	}

	return divergences
}
