// Package pipeline runs the presentation cadence: sample the registry once
// per cycle, merge and select tracks, project them and update the overtake
// indicators.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SamSkjord/uvc-radar-overlay/internal/cluster"
	"github.com/SamSkjord/uvc-radar-overlay/internal/config"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/overtake"
	"github.com/SamSkjord/uvc-radar-overlay/internal/projector"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

var logf = monitoring.Subsystem("pipeline")

// RenderFrame is the output of one presentation cycle.
type RenderFrame struct {
	Timestamp   time.Time             `json:"timestamp"`
	Cycle       uint64                `json:"cycle"`
	Markers     []projector.Marker    `json:"markers"`
	Indicators  [2]overtake.Indicator `json:"indicators"`
	Live        int                   `json:"live"`
	Groups      int                   `json:"groups"`
	EgoSpeedKPH float64               `json:"ego_speed_kph"`
	EgoSpeedOK  bool                  `json:"ego_speed_ok"`
}

// Visible returns the indicators currently shown.
func (f RenderFrame) Visible() []overtake.Indicator {
	var out []overtake.Indicator
	for _, ind := range f.Indicators {
		if ind.Visible {
			out = append(out, ind)
		}
	}
	return out
}

// Pipeline owns the presentation-side state. Step must not be called
// concurrently; Latest and SetEgoSpeed are safe from any goroutine.
type Pipeline struct {
	registry  *tracks.Registry
	params    cluster.Params
	projector *projector.Projector
	overtake  *overtake.Monitor

	cycle uint64

	mu       sync.Mutex
	latest   RenderFrame
	egoKPH   float64
	egoKnown bool
}

// New wires a pipeline from resolved settings.
func New(s config.Settings, registry *tracks.Registry) (*Pipeline, error) {
	if registry == nil {
		return nil, fmt.Errorf("pipeline: nil registry")
	}
	vertical, err := projector.ParseVertical(s.MarkerVertical)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{
		registry: registry,
		params: cluster.Params{
			MergeRadius: s.MergeRadius,
			Count:       s.TrackCount,
			MaxDistance: s.MaxDistance,
		},
		projector: projector.New(projector.Options{
			FOVDegrees:  s.FOVDegrees,
			Mirror:      s.MirrorOutput,
			YellowKPH:   s.WarnYellowKPH,
			RedKPH:      s.WarnRedKPH,
			MaxDistance: s.MaxDistance,
			Vertical:    vertical,
		}),
		overtake: overtake.NewMonitor(overtake.Params{
			TimeThreshold: s.OvertakeTimeThreshold,
			MinClosingKPH: s.OvertakeMinClosingKPH,
			MinLateral:    s.OvertakeMinLateral,
			ArrowDuration: s.OvertakeArrowDuration,
		}, s.MirrorOutput),
	}, nil
}

// SetEgoSpeed records the latest vehicle speed for the status line.
func (p *Pipeline) SetEgoSpeed(kph float64) {
	p.mu.Lock()
	p.egoKPH, p.egoKnown = kph, true
	p.mu.Unlock()
}

// Step runs one cycle at now. The registry lock is held only while the
// snapshot is copied out. Overtake detection sees every live track, not
// just the selected representatives.
func (p *Pipeline) Step(now time.Time) RenderFrame {
	snap := p.registry.Sample(now)
	res := cluster.Select(snap, p.params)
	p.cycle++

	frame := RenderFrame{
		Timestamp:  now,
		Cycle:      p.cycle,
		Markers:    p.projector.ProjectAll(res.Selected),
		Indicators: p.overtake.Update(now, snap.Tracks()),
		Live:       snap.Len(),
		Groups:     len(res.Groups),
	}

	p.mu.Lock()
	frame.EgoSpeedKPH, frame.EgoSpeedOK = p.egoKPH, p.egoKnown
	p.latest = frame
	p.mu.Unlock()
	return frame
}

// Latest returns the most recent frame.
func (p *Pipeline) Latest() RenderFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// RunCadence calls Step at hz and hands every frame to sink until ctx is
// done. sink runs on the cadence goroutine and should not block.
func (p *Pipeline) RunCadence(ctx context.Context, clock timeutil.Clock, hz float64, sink func(RenderFrame)) error {
	if hz <= 0 {
		return fmt.Errorf("pipeline: refresh rate must be positive, got %g", hz)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	period := time.Duration(float64(time.Second) / hz)
	ticker := clock.NewTicker(period)
	defer ticker.Stop()

	logf("cadence started: %.1f Hz (%v)", hz, period)
	for {
		select {
		case <-ctx.Done():
			logf("cadence stopped after %d cycles", p.cycle)
			return nil
		case now := <-ticker.C():
			frame := p.Step(now)
			if sink != nil {
				sink(frame)
			}
		}
	}
}
