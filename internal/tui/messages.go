package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
)

// FrameMsg carries a render frame from the cadence loop.
type FrameMsg pipeline.RenderFrame

// HealthMsg carries a session health sample.
type HealthMsg session.Health

// TickMsg triggers a health poll.
type TickMsg time.Time

// healthInterval is how often the status bar polls session health.
const healthInterval = 500 * time.Millisecond

func tickCmd() tea.Cmd {
	return tea.Tick(healthInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}
