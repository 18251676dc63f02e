// Package tui renders the overlay in a terminal: a camera strip with
// markers and overtake arrows, and a status bar.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/units"
)

// Model is the root bubbletea model. Frames arrive as FrameMsg via
// Program.Send.
type Model struct {
	width  int
	height int

	title      string
	speedUnits string
	health     func() session.Health

	frame      pipeline.RenderFrame
	lastHealth session.Health
}

// New returns a model showing speeds in speedUnits (kph when empty or
// unknown). health may be nil when there is no live session.
func New(title, speedUnits string, health func() session.Health) Model {
	if !units.IsValid(speedUnits) {
		speedUnits = units.KPH
	}
	return Model{title: title, speedUnits: speedUnits, health: health}
}

// Frame returns the last frame the model received.
func (m Model) Frame() pipeline.RenderFrame { return m.frame }

func (m Model) Init() tea.Cmd {
	if m.health == nil {
		return nil
	}
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case FrameMsg:
		m.frame = pipeline.RenderFrame(msg)
		return m, nil

	case HealthMsg:
		m.lastHealth = session.Health(msg)
		return m, nil

	case TickMsg:
		if m.health == nil {
			return m, nil
		}
		m.lastHealth = m.health()
		return m, tickCmd()
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Waiting for radar..."
	}
	header := styleHelp.Render(m.title + "  (q to quit)")
	stripH := max(labelRows+1, m.height-2)
	strip := RenderStrip(m.width, stripH, m.frame)
	status := RenderStatusBar(m.width, m.frame, m.lastHealth, m.speedUnits)
	return header + "\n" + strip + "\n" + status
}
