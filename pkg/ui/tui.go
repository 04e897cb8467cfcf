// Package ui provides the Bubble Tea dashboard for the quote watcher.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/quote-engine/pkg/ui/components"
)

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

const maxErrors = 3

// Model is the main Bubble Tea model for the dashboard.
type Model struct {
	title string
	keys  KeyMap
	help  help.Model

	quotes *components.QuotesComponent
	status *components.StatusComponent
	stats  components.Stats

	quitting     bool
	paused       bool
	width        int
	currentBlock uint64
	lastUpdate   time.Time
	errors       []ErrorEntry
	logs         []string
}

// New creates a new dashboard model.
func New(title string) Model {
	return Model{
		title:  title,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		quotes: components.NewQuotesComponent(),
		status: components.NewStatusComponent(),
		errors: make([]ErrorEntry, 0, maxErrors),
		logs:   make([]string, 0, 5),
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd redraws once a second so "ago" labels stay current.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Sort):
			m.quotes.ToggleSort()
		case key.Matches(msg, m.keys.Clear):
			m.quotes.Clear()
		case key.Matches(msg, m.keys.Errors):
			m.errors = m.errors[:0]
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case TickMsg:
		return m, tickCmd()

	case RefreshMsg:
		m.stats.Refreshes++
		if msg.Block > 0 {
			m.currentBlock = msg.Block
		}

	case QuoteMsg:
		m.stats.Record(msg.Row.Rejected, msg.Row.Err != "" && !msg.Row.Rejected, msg.Row.Latency)
		if !m.paused {
			m.quotes.Upsert(msg.Row)
			m.lastUpdate = time.Now()
		}

	case ConnectionStatusMsg:
		m.status.Update(msg.Status)
		if msg.Status.LastBlock > m.currentBlock {
			m.currentBlock = msg.Status.LastBlock
		}

	case ErrorMsg:
		m.logs = addLog(m.logs, "error", msg.Error.Error())
		m.errors = append(m.errors, ErrorEntry{Message: msg.Error.Error(), Timestamp: time.Now()})
		if len(m.errors) > maxErrors {
			m.errors = m.errors[len(m.errors)-maxErrors:]
		}

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)
	}

	return m, nil
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	line := fmt.Sprintf("[%s] %s: %s", time.Now().Format("15:04:05"), level, message)
	logs = append(logs, line)
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	width := m.width
	if width < 40 {
		width = 120
	}

	var b strings.Builder
	b.WriteString(banner.Render(" " + m.title + " "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	b.WriteString(panel.Width(width - 4).Render(m.quotes.View()))
	b.WriteString("\n")

	stats := components.NewStatsComponent()
	stats.Update(m.stats)
	left := panel.Render(m.status.View())
	right := panel.Render(stats.View())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	b.WriteString("\n")

	if len(m.errors) > 0 {
		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(faint.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorLine.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(faint.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, line := range m.logs {
		b.WriteString(faint.Render("  " + line))
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(pausedBadge.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m Model) renderStatusBar() string {
	parts := []string{fmt.Sprintf("Block: #%d", m.currentBlock)}
	parts = append(parts, fmt.Sprintf("Pairs: %d", m.quotes.Len()))

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, faint.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}
	return strings.Join(parts, "  │  ")
}

// Dashboard owns the running Bubble Tea program.
type Dashboard struct {
	program *tea.Program
}

// NewDashboard creates a dashboard; opts are passed to tea.NewProgram.
func NewDashboard(title string, opts ...tea.ProgramOption) *Dashboard {
	return &Dashboard{program: tea.NewProgram(New(title), opts...)}
}

// Run blocks until the user quits.
func (d *Dashboard) Run() error {
	_, err := d.program.Run()
	return err
}

// Send delivers msg to the running program. It is safe to call from any goroutine.
func (d *Dashboard) Send(msg tea.Msg) {
	d.program.Send(msg)
}

// Quit stops the program.
func (d *Dashboard) Quit() {
	d.program.Quit()
}
