package reporting

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
	"token-ledger/internal/verification"
)

// Generator produces reports from stored data.
type Generator struct {
	ledgerStore storage.LedgerStore
	eventStore  storage.EventStore
	token       domain.TokenInfo
	labels      map[domain.Principal]string
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. eventStore may be nil, in
// which case activity and integrity sections stay empty.
func NewGenerator(ledgerStore storage.LedgerStore, eventStore storage.EventStore, token domain.TokenInfo) *Generator {
	return &Generator{
		ledgerStore: ledgerStore,
		eventStore:  eventStore,
		token:       token,
		labels:      make(map[domain.Principal]string),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithLabel tags a principal in the holders table.
func (g *Generator) WithLabel(p domain.Principal, label string) *Generator {
	if existing, ok := g.labels[p]; ok && existing != label {
		label = existing + "," + label
	}
	g.labels[p] = label
	return g
}

// Generate produces a complete report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	state, err := g.ledgerStore.State(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := g.ledgerStore.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: g.now(),
		Token:       g.token,
		TokenURI:    state.TokenURI,
		Supply:      state.Supply,
		Sequence:    state.Sequence,
		Holders:     g.generateHolders(accounts, state.Supply),
	}

	if g.eventStore == nil {
		return r, nil
	}

	events, err := g.eventStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	r.Activity = summarizeActivity(events)

	vr, err := verification.NewVerifier(g.ledgerStore, g.eventStore).Verify(ctx)
	r.Integrity.Checked = true
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				r.Integrity.Errors = append(r.Integrity.Errors, e.Error())
			}
		} else {
			return nil, err
		}
	}
	if vr != nil {
		for _, d := range vr.Divergences {
			r.Integrity.Divergences = append(r.Integrity.Divergences, d.String())
		}
		sort.Strings(r.Integrity.Divergences)
	}
	r.Integrity.Consistent = len(r.Integrity.Errors) == 0 && len(r.Integrity.Divergences) == 0

	return r, nil
}

func (g *Generator) generateHolders(accounts []domain.Account, supply uint64) []HolderRow {
	rows := make([]HolderRow, 0, len(accounts))
	for _, a := range accounts {
		if a.Balance == 0 {
			continue
		}
		row := HolderRow{
			Principal: a.Principal,
			Label:     g.labels[a.Principal],
			Balance:   a.Balance,
		}
		if supply > 0 {
			row.SharePct = float64(a.Balance) / float64(supply) * 100
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Balance != rows[j].Balance {
			return rows[i].Balance > rows[j].Balance
		}
		return rows[i].Principal.Compare(rows[j].Principal) < 0
	})
	return rows
}

func summarizeActivity(events []*domain.Event) ActivitySummary {
	var s ActivitySummary
	seen := make(map[domain.Principal]struct{})

	for _, e := range events {
		switch e.Kind {
		case domain.EventKindMint:
			s.Mints++
			s.MintedVolume = saturatingAdd(s.MintedVolume, e.Amount)
		case domain.EventKindTransfer:
			s.Transfers++
			s.TransferVolume = saturatingAdd(s.TransferVolume, e.Amount)
		case domain.EventKindBurn:
			s.Burns++
			s.BurnedVolume = saturatingAdd(s.BurnedVolume, e.Amount)
		case domain.EventKindTokenURI:
			s.URIUpdates++
		}
		for _, p := range []domain.Principal{e.Sender, e.Recipient} {
			if !p.IsZero() {
				seen[p] = struct{}{}
			}
		}
	}
	s.UniquePrincipal = len(seen)
	return s
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// escapeCell keeps a value from breaking a Markdown table row.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
