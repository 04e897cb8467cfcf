// Package ui provides the Bubble Tea dashboard for the quote watcher.
package ui

import (
	"time"

	"github.com/fd1az/quote-engine/pkg/ui/components"
)

// QuoteMsg carries the latest quote of one pair.
type QuoteMsg struct {
	Row components.QuoteRow
}

// RefreshMsg is sent once per watcher tick.
type RefreshMsg struct {
	Block uint64
	At    time.Time
}

// ConnectionStatusMsg is sent when connection status changes.
type ConnectionStatusMsg struct {
	Status components.ConnectionStatus
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}
