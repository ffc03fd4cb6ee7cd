package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s (%s) Ledger Report\n\n", escapeCell(r.Token.Name), escapeCell(r.Token.Symbol)))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Supply | %d |\n", r.Supply))
	sb.WriteString(fmt.Sprintf("| Decimals | %d |\n", r.Token.Decimals))
	sb.WriteString(fmt.Sprintf("| Token URI | %s |\n", escapeCell(r.TokenURI)))
	sb.WriteString(fmt.Sprintf("| Events | %d |\n", r.Sequence))
	sb.WriteString(fmt.Sprintf("| Holders | %d |\n", len(r.Holders)))
	sb.WriteString("\n")

	// Holders
	sb.WriteString("## Holders\n\n")
	if len(r.Holders) > 0 {
		sb.WriteString("| Principal | Label | Balance | Share% |\n")
		sb.WriteString("|-----------|-------|---------|--------|\n")
		for _, h := range r.Holders {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f |\n",
				h.Principal, escapeCell(h.Label), h.Balance, h.SharePct))
		}
	} else {
		sb.WriteString("No holders.\n")
	}
	sb.WriteString("\n")

	// Activity
	sb.WriteString("## Activity\n\n")
	a := r.Activity
	sb.WriteString("| Kind | Count | Volume |\n")
	sb.WriteString("|------|-------|--------|\n")
	sb.WriteString(fmt.Sprintf("| mint | %d | %d |\n", a.Mints, a.MintedVolume))
	sb.WriteString(fmt.Sprintf("| transfer | %d | %d |\n", a.Transfers, a.TransferVolume))
	sb.WriteString(fmt.Sprintf("| burn | %d | %d |\n", a.Burns, a.BurnedVolume))
	sb.WriteString(fmt.Sprintf("| token-uri | %d | - |\n", a.URIUpdates))
	sb.WriteString(fmt.Sprintf("\nDistinct principals: %d\n\n", a.UniquePrincipal))

	// Integrity
	sb.WriteString("## Integrity\n\n")
	switch {
	case !r.Integrity.Checked:
		sb.WriteString("No event log available; integrity not checked.\n")
	case r.Integrity.Consistent:
		sb.WriteString("**Consistent.** Balances sum to supply and the event log replays to the stored state.\n")
	default:
		sb.WriteString("**Inconsistent.**\n\n")
		for _, d := range r.Integrity.Divergences {
			sb.WriteString(fmt.Sprintf("- divergence: %s\n", d))
		}
		for _, e := range r.Integrity.Errors {
			sb.WriteString(fmt.Sprintf("- error: %s\n", e))
		}
	}
	sb.WriteString("\n")

	return sb.String()
}
