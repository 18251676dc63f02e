package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/SamSkjord/uvc-radar-overlay/internal/keepalive"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/units"
)

func keepAliveStatus(h *keepalive.Health) string {
	switch {
	case h == nil:
		return styleHelp.Render("[KA off]")
	case h.State == keepalive.Running:
		return styleStatusOK.Render("[KA running]")
	case h.LastError != "":
		return styleStatusError.Render("[KA failed]")
	default:
		return styleStatusWarn.Render("[KA stopped]")
	}
}

func busStatus(buses []session.BusHealth) string {
	if len(buses) == 0 {
		return styleHelp.Render("[replay]")
	}
	parts := make([]string, 0, len(buses))
	for _, b := range buses {
		st := styleStatusOK
		switch b.State {
		case session.BusDown:
			st = styleStatusError
		case session.BusIdle, session.BusEnded:
			st = styleStatusWarn
		}
		parts = append(parts, st.Render(fmt.Sprintf("[%s %s]", b.Name, b.State)))
	}
	return strings.Join(parts, " ")
}

// RenderStatusBar renders the bottom status line. Ego speed is shown in
// speedUnits.
func RenderStatusBar(width int, frame pipeline.RenderFrame, health session.Health, speedUnits string) string {
	decodeErrs := health.Counters[monitoring.CounterDecodeErrors] +
		health.Counters[monitoring.CounterInvalidTracks]
	info := fmt.Sprintf(" live: %d  shown: %d  decode errors: %d", frame.Live, len(frame.Markers), decodeErrs)
	if frame.EgoSpeedOK {
		ego := units.ConvertSpeed(units.KPHToMPS(frame.EgoSpeedKPH), speedUnits)
		info += fmt.Sprintf("  ego: %.0f %s", ego, speedUnits)
	}

	content := busStatus(health.Buses) + " " + keepAliveStatus(health.KeepAlive) + info
	gap := max(0, width-2-lipgloss.Width(content))
	return styleStatusBar.Width(width).Render(content + strings.Repeat(" ", gap))
}
