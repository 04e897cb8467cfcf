package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/quote-engine/pkg/ui/components"
)

var (
	banner = lipgloss.NewStyle().
		Bold(true).
		Foreground(components.Bright).
		Background(components.Accent).
		Padding(0, 2)

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(components.Frame).
		Padding(0, 1)

	faint       = lipgloss.NewStyle().Foreground(components.Dim)
	errorLine   = lipgloss.NewStyle().Foreground(components.Bad)
	errorHeader = lipgloss.NewStyle().Bold(true).Foreground(components.Bad)
	pausedBadge = lipgloss.NewStyle().Bold(true).Foreground(components.Caution)
)
