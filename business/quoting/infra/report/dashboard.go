package report

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/pkg/ui"
	"github.com/fd1az/quote-engine/pkg/ui/components"
)

// Sender is the part of *ui.Dashboard the publisher needs.
type Sender interface {
	Send(msg tea.Msg)
}

// DashboardPublisher forwards quotes to the terminal dashboard.
type DashboardPublisher struct {
	mu        sync.Mutex
	sender    Sender
	lastBlock uint64
	lastAt    time.Time
}

var _ app.QuotePublisher = (*DashboardPublisher)(nil)

// NewDashboardPublisher creates a publisher feeding sender.
func NewDashboardPublisher(sender Sender) *DashboardPublisher {
	return &DashboardPublisher{sender: sender}
}

// Publish implements app.QuotePublisher. Updates of one refresh share their tick, so a new
// (block, time) pair marks a new refresh.
func (p *DashboardPublisher) Publish(_ context.Context, u app.QuoteUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u.Block != p.lastBlock || !u.At.Equal(p.lastAt) {
		p.lastBlock, p.lastAt = u.Block, u.At
		p.sender.Send(ui.RefreshMsg{Block: u.Block, At: u.At})
	}
	p.sender.Send(ui.QuoteMsg{Row: ToRow(u)})
	return nil
}

// ToRow converts a watcher update to a dashboard row.
func ToRow(u app.QuoteUpdate) components.QuoteRow {
	venue := string(u.ExecutableVenue)
	if venue == "" {
		venue = string(u.OptimalVenue)
	}
	return components.QuoteRow{
		Pair:       u.Pair,
		AmountIn:   u.AmountIn.ToDecimal().String(),
		Optimal:    u.Optimal.ToDecimal(),
		Executable: u.Executable.ToDecimal(),
		Venue:      venue,
		Pools:      u.Pools,
		Rate:       u.Rate,
		Rejected:   u.Rejected,
		Err:        u.Err,
		Block:      u.Block,
		Latency:    u.Latency,
	}
}

// Compile-time check that the dashboard satisfies Sender.
var _ Sender = (*ui.Dashboard)(nil)
