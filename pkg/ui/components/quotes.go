// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRow is the latest quote of one watched pair.
type QuoteRow struct {
	Pair       string
	AmountIn   string
	Optimal    decimal.Decimal
	Executable decimal.Decimal
	Venue      string
	Pools      int
	Rate       decimal.Decimal
	Rejected   bool
	Err        string
	Block      uint64
	Latency    time.Duration
}

// DeviationBps is how far the executable quote falls short of the optimal one.
func (r QuoteRow) DeviationBps() decimal.Decimal {
	if r.Optimal.IsZero() || r.Executable.IsZero() {
		return decimal.Zero
	}
	return r.Optimal.Sub(r.Executable).Div(r.Optimal).Mul(decimal.NewFromInt(10000))
}

// QuotesComponent renders the quote table, one row per pair.
type QuotesComponent struct {
	rows        map[string]QuoteRow
	byDeviation bool
}

// NewQuotesComponent creates an empty quote table.
func NewQuotesComponent() *QuotesComponent {
	return &QuotesComponent{rows: make(map[string]QuoteRow)}
}

// Upsert replaces the row of r.Pair.
func (q *QuotesComponent) Upsert(r QuoteRow) {
	q.rows[r.Pair] = r
}

// Clear drops every row.
func (q *QuotesComponent) Clear() {
	q.rows = make(map[string]QuoteRow)
}

// Len returns the number of pairs shown.
func (q *QuotesComponent) Len() int {
	return len(q.rows)
}

// ToggleSort switches between pair order and widest deviation first.
func (q *QuotesComponent) ToggleSort() {
	q.byDeviation = !q.byDeviation
}

// Rows returns the rows in the current sort order. Pair name breaks deviation ties.
func (q *QuotesComponent) Rows() []QuoteRow {
	rows := make([]QuoteRow, 0, len(q.rows))
	for _, r := range q.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if q.byDeviation {
			if c := rows[i].DeviationBps().Cmp(rows[j].DeviationBps()); c != 0 {
				return c > 0
			}
		}
		return rows[i].Pair < rows[j].Pair
	})
	return rows
}

// View renders the quote table.
func (q *QuotesComponent) View() string {
	if len(q.rows) == 0 {
		return "Waiting for quotes..."
	}

	var sb strings.Builder
	sb.WriteString(headerText.Render(fmt.Sprintf("%-12s %10s %16s %16s %9s  %-16s %s",
		"PAIR", "IN", "ORACLE/BEST", "EXECUTABLE", "DEV bps", "VENUE", "LATENCY")))
	sb.WriteString("\n")

	for _, r := range q.Rows() {
		dev := r.DeviationBps()
		devStyle := goodText
		if dev.GreaterThan(decimal.NewFromInt(100)) {
			devStyle = cautionText
		}

		exec := r.Executable.StringFixed(4)
		execStyle := goodText
		switch {
		case r.Rejected:
			exec, execStyle = "REJECTED", badText
		case r.Executable.IsZero():
			exec, execStyle = "-", dimText
		}

		venue := r.Venue
		if r.Pools > 1 {
			venue = fmt.Sprintf("%s (%d hops)", venue, r.Pools)
		}

		fmt.Fprintf(&sb, "%-12s %10s %16s %s %s  %-16s %s\n",
			r.Pair,
			r.AmountIn,
			r.Optimal.StringFixed(4),
			execStyle.Render(fmt.Sprintf("%16s", exec)),
			devStyle.Render(fmt.Sprintf("%9s", dev.StringFixed(1))),
			venue,
			dimText.Render(r.Latency.Round(time.Millisecond).String()),
		)
		if r.Err != "" {
			sb.WriteString(dimText.Render("  └ " + truncate(r.Err, 90)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
