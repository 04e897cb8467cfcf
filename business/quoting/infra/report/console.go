// Package report renders watcher quotes for humans: plain console lines or the dashboard.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fd1az/quote-engine/business/quoting/app"
)

// ConsolePublisher prints one line per quote.
type ConsolePublisher struct {
	mu  sync.Mutex
	out io.Writer
}

var _ app.QuotePublisher = (*ConsolePublisher)(nil)

// NewConsolePublisher writes to w, or stdout when w is nil.
func NewConsolePublisher(w io.Writer) *ConsolePublisher {
	if w == nil {
		w = os.Stdout
	}
	return &ConsolePublisher{out: w}
}

// Publish implements app.QuotePublisher.
func (p *ConsolePublisher) Publish(_ context.Context, u app.QuoteUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stamp := u.At.Format("15:04:05")
	if u.Block > 0 {
		stamp = fmt.Sprintf("%s #%d", stamp, u.Block)
	}

	exec := u.Executable.String()
	switch {
	case u.Rejected:
		exec = "REJECTED"
	case u.Executable.IsZero():
		exec = "-"
	}

	_, err := fmt.Fprintf(p.out, "[%s] %-10s in=%s optimal=%s (%s) executable=%s (%s, %d pools) rate=%s %s\n",
		stamp,
		u.Pair,
		u.AmountIn.String(),
		u.Optimal.String(),
		venueOr(string(u.OptimalVenue)),
		exec,
		venueOr(string(u.ExecutableVenue)),
		u.Pools,
		u.Rate.StringFixed(6),
		u.Latency.Round(time.Millisecond),
	)
	if err != nil {
		return err
	}
	if u.Err != "" {
		_, err = fmt.Fprintf(p.out, "           └ %s\n", u.Err)
	}
	return err
}

func venueOr(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
