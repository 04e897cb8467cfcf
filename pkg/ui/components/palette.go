package components

import "github.com/charmbracelet/lipgloss"

// Palette shared by the dashboard frame and its panels.
var (
	Accent  = lipgloss.Color("#2563EB")
	Good    = lipgloss.Color("#16A34A")
	Bad     = lipgloss.Color("#DC2626")
	Caution = lipgloss.Color("#D97706")
	Dim     = lipgloss.Color("#6B7280")
	Frame   = lipgloss.Color("#374151")
	Bright  = lipgloss.Color("#F9FAFB")
)

var (
	headerText  = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	goodText    = lipgloss.NewStyle().Foreground(Good)
	badText     = lipgloss.NewStyle().Foreground(Bad)
	cautionText = lipgloss.NewStyle().Foreground(Caution)
	dimText     = lipgloss.NewStyle().Foreground(Dim)
	figure      = lipgloss.NewStyle().Foreground(Bright).Bold(true)
	alarm       = lipgloss.NewStyle().Foreground(Bad).Bold(true)
)
