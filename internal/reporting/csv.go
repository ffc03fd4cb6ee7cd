package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RenderCSV renders the holders table as CSV string.
func RenderCSV(holders []HolderRow) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write([]string{"principal", "label", "balance", "share_pct"})
	for _, h := range holders {
		_ = w.Write([]string{
			h.Principal.String(),
			h.Label,
			strconv.FormatUint(h.Balance, 10),
			strconv.FormatFloat(h.SharePct, 'f', 6, 64),
		})
	}
	w.Flush()

	return sb.String()
}

// WriteFiles writes report.md and holders.csv into dir.
func WriteFiles(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(RenderMarkdown(r)), 0o644); err != nil {
		return fmt.Errorf("write report.md: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "holders.csv"), []byte(RenderCSV(r.Holders)), 0o644); err != nil {
		return fmt.Errorf("write holders.csv: %w", err)
	}
	return nil
}
