package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/SamSkjord/uvc-radar-overlay/internal/projector"
)

var (
	colorStrip   = lipgloss.Color("#1c1c1c")
	colorDim     = lipgloss.Color("#6c6c6c")
	colorOK      = lipgloss.Color("#00c800")
	colorWarning = lipgloss.Color("#ffaa00")
	colorError   = lipgloss.Color("#ff3300")

	styleStrip = lipgloss.NewStyle().
			Background(colorStrip)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorDim)

	styleArrow = lipgloss.NewStyle().
			Foreground(lipgloss.Color(projector.Alert.Color())).
			Bold(true)

	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#262626")).
			Foreground(lipgloss.Color("#d0d0d0")).
			Padding(0, 1)

	styleStatusOK = lipgloss.NewStyle().
			Foreground(colorOK).
			Bold(true)

	styleStatusWarn = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	styleStatusError = lipgloss.NewStyle().
				Foreground(colorError).
				Bold(true)

	styleHelp = lipgloss.NewStyle().
			Foreground(colorDim)
)

// markerStyle colours a chevron by its alert class.
func markerStyle(c projector.Class) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Color())).Bold(true)
}
