package report

import (
	"context"
	"time"

	"github.com/fd1az/quote-engine/business/quoting/infra/ethereum"
	"github.com/fd1az/quote-engine/pkg/ui"
	"github.com/fd1az/quote-engine/pkg/ui/components"
)

// StatusSource is the part of *ethereum.HeadTrigger the forwarder reads.
type StatusSource interface {
	Status() ethereum.ConnectionStatus
}

var _ StatusSource = (*ethereum.HeadTrigger)(nil)

// StatusForwarder mirrors the head follower's connection onto the dashboard.
type StatusForwarder struct {
	name   string
	source StatusSource
	sender Sender

	sent bool
	last components.ConnectionStatus
}

func NewStatusForwarder(name string, source StatusSource, sender Sender) *StatusForwarder {
	return &StatusForwarder{name: name, source: source, sender: sender}
}

// Poll sends the current status when it differs from the last one sent.
func (f *StatusForwarder) Poll() {
	st := f.source.Status()

	mode := "ws"
	if st.UsingHTTP {
		mode = "http poll"
	}
	cur := components.ConnectionStatus{
		Name:      f.name,
		Connected: st.State == ethereum.StateConnected,
		Mode:      mode,
		LastBlock: st.LastBlock,
	}
	if f.sent && cur == f.last {
		return
	}
	f.sent, f.last = true, cur
	f.sender.Send(ui.ConnectionStatusMsg{Status: cur})
}

// Run polls every interval until ctx is done.
func (f *StatusForwarder) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	f.Poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Poll()
		}
	}
}
