package optimizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ktrade/sentinel/internal/analysis"
)

// writeReport renders the single dated markdown artifact for a run. A
// second run on the same date overwrites the file; there is exactly one
// report per date.
func writeReport(dir string, run *Run, cmp analysis.Comparison, transcript string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("optimization_%s.md", run.Date.Format("2006-01-02")))

	var b strings.Builder
	fmt.Fprintf(&b, "# Optimization Run %s\n\n", run.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Outcome: **%s**\n", run.Outcome)
	fmt.Fprintf(&b, "- Started: %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", run.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Phases completed: %s\n", strings.Join(run.Phases, ", "))
	if run.Err != "" {
		fmt.Fprintf(&b, "- Error: %s\n", run.Err)
	}

	b.WriteString("\n## Performance\n\n")
	b.WriteString("| Metric | Current window | Previous window |\n")
	b.WriteString("|---|---|---|\n")
	fmt.Fprintf(&b, "| Trades | %d | %d |\n", cmp.Current.TradeCount, cmp.Previous.TradeCount)
	fmt.Fprintf(&b, "| Win rate | %.1f%% | %.1f%% |\n", cmp.Current.WinRatePct, cmp.Previous.WinRatePct)
	fmt.Fprintf(&b, "| Realized P&L | %.2f | %.2f |\n", cmp.Current.RealizedPnL, cmp.Previous.RealizedPnL)
	fmt.Fprintf(&b, "| Profit factor | %.2f | %.2f |\n", cmp.Current.ProfitFactor, cmp.Previous.ProfitFactor)
	fmt.Fprintf(&b, "| Max drawdown | %.2f | %.2f |\n", cmp.Current.MaxDrawdown, cmp.Previous.MaxDrawdown)

	if run.Summary != "" {
		b.WriteString("\n## Agent summary\n\n")
		b.WriteString(run.Summary)
		b.WriteString("\n")
	}

	if len(run.Changes) > 0 {
		b.WriteString("\n## Applied changes\n\n")
		for _, c := range run.Changes {
			fmt.Fprintf(&b, "- `%s`: %s -> %s\n", c.Field, c.Old, c.New)
		}
	}
	if len(run.Violations) > 0 {
		b.WriteString("\n## Refused\n\n")
		for _, v := range run.Violations {
			fmt.Fprintf(&b, "- `%s`: %s\n", v.Field, v.Reason)
		}
	}
	if len(run.Changes) == 0 && len(run.Violations) == 0 {
		b.WriteString("\nNo changes needed.\n")
	}

	if transcript != "" {
		b.WriteString("\n## Agent transcript\n\n```\n")
		b.WriteString(trimTranscript(transcript))
		b.WriteString("\n```\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o640); err != nil {
		return "", err
	}
	return path, nil
}

// trimTranscript keeps the tail of long transcripts; the end carries the
// conclusion and any failure message.
func trimTranscript(s string) string {
	const keep = 8 * 1024
	s = strings.TrimSpace(s)
	if len(s) <= keep {
		return s
	}
	return "... (truncated) ...\n" + s[len(s)-keep:]
}
