// Package projector maps radar tracks onto normalised screen coordinates of
// a forward camera and classifies them for colouring.
package projector

import (
	"fmt"
	"math"

	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
	"github.com/SamSkjord/uvc-radar-overlay/internal/units"
)

// fovEpsilon is the tolerance applied to the [0, 1] screen range before a
// track is treated as outside the field of view.
const fovEpsilon = 1e-9

// Class is the colour classification of a marker.
type Class int

const (
	Neutral Class = iota
	Caution
	Alert
)

func (c Class) String() string {
	switch c {
	case Neutral:
		return "neutral"
	case Caution:
		return "caution"
	case Alert:
		return "alert"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// MarshalText encodes the class name.
func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Color returns the marker colour as a hex RGB string.
func (c Class) Color() string {
	switch c {
	case Caution:
		return "#ffdc00"
	case Alert:
		return "#ff0000"
	}
	return "#00c800"
}

// Trend describes the sign of the relative speed.
type Trend string

const (
	TrendAway       Trend = "away"
	TrendClosing    Trend = "closing"
	TrendStationary Trend = "stationary"
)

// stationaryBand is the relative speed in m/s within which a target is
// shown as stationary.
const stationaryBand = 0.1

// TrendOf classifies a relative speed. Positive speeds move away.
func TrendOf(relSpeed float64) Trend {
	switch {
	case relSpeed > stationaryBand:
		return TrendAway
	case relSpeed < -stationaryBand:
		return TrendClosing
	}
	return TrendStationary
}

// Label is the text payload drawn under a marker.
type Label struct {
	RangeM      float64 `json:"range_m"`
	RelSpeedMPS float64 `json:"rel_speed_mps"`
	RelSpeedKPH float64 `json:"rel_speed_kph"`
	Trend       Trend   `json:"trend"`
}

// Range returns the first label line.
func (l Label) Range() string { return fmt.Sprintf("%.1f m", l.RangeM) }

// Speed returns the second label line.
func (l Label) Speed() string {
	return fmt.Sprintf("%+.1f m/s (%+.1f km/h)", l.RelSpeedMPS, l.RelSpeedKPH)
}

func (l Label) String() string { return l.Range() + "\n" + l.Speed() }

// Marker is one render primitive.
type Marker struct {
	TrackID int     `json:"track_id"`
	ScreenX float64 `json:"screen_x"`
	ScreenY float64 `json:"screen_y"`
	Class   Class   `json:"color_class"`
	Label   Label   `json:"label"`
}

// Vertical selects how ScreenY is placed.
type Vertical int

const (
	// VerticalFixed puts every marker on the top row.
	VerticalFixed Vertical = iota
	// VerticalDistance puts near targets low and far targets high.
	VerticalDistance
)

// ParseVertical maps a config name to a Vertical policy.
func ParseVertical(s string) (Vertical, error) {
	switch s {
	case "", "fixed":
		return VerticalFixed, nil
	case "distance":
		return VerticalDistance, nil
	}
	return 0, fmt.Errorf("unknown vertical policy %q", s)
}

// Options configures a Projector.
type Options struct {
	FOVDegrees  float64
	Mirror      bool
	YellowKPH   float64
	RedKPH      float64
	MaxDistance float64
	Vertical    Vertical
	// TopRow is the ScreenY used by VerticalFixed and as the far end of
	// VerticalDistance.
	TopRow float64
}

// Projector is stateless after construction and safe for concurrent use.
type Projector struct {
	opts   Options
	fovRad float64
	yellow float64
	red    float64
}

// DefaultTopRow matches the chevron margin of the overlay.
const DefaultTopRow = 0.05

// New builds a projector. A non-positive FOV is raised to a tiny positive
// value and red is never below yellow.
func New(opts Options) *Projector {
	fov := opts.FOVDegrees
	if fov <= 0 {
		fov = 1e-3
	}
	yellow := math.Max(opts.YellowKPH, 0)
	if opts.TopRow <= 0 {
		opts.TopRow = DefaultTopRow
	}
	return &Projector{
		opts:   opts,
		fovRad: fov * math.Pi / 180,
		yellow: yellow,
		red:    math.Max(opts.RedKPH, yellow),
	}
}

// Options returns the options in use.
func (p *Projector) Options() Options { return p.opts }

// ScreenX returns the unclamped horizontal position of a point.
func (p *Projector) ScreenX(longDist, latDist float64) float64 {
	angle := math.Atan2(latDist, longDist)
	if p.opts.Mirror {
		angle = -angle
	}
	return 0.5 + angle/p.fovRad
}

// Project places a track on screen. It reports false when the track is
// outside the field of view.
func (p *Projector) Project(t tracks.RadarTrack) (Marker, bool) {
	x := p.ScreenX(t.LongDist, t.LatDist)
	if x < -fovEpsilon || x > 1+fovEpsilon {
		return Marker{}, false
	}
	return Marker{
		TrackID: t.ID,
		ScreenX: math.Min(math.Max(x, 0), 1),
		ScreenY: p.screenY(t.LongDist),
		Class:   p.Classify(t.RelSpeed),
		Label:   LabelFor(t),
	}, true
}

func (p *Projector) screenY(longDist float64) float64 {
	if p.opts.Vertical != VerticalDistance || p.opts.MaxDistance <= 0 {
		return p.opts.TopRow
	}
	frac := math.Min(math.Max(longDist/p.opts.MaxDistance, 0), 1)
	return 1 - frac*(1-p.opts.TopRow)
}

// Classify buckets the absolute relative speed against the km/h thresholds.
func (p *Projector) Classify(relSpeed float64) Class {
	kph := units.MPSToKPH(math.Abs(relSpeed))
	switch {
	case kph < p.yellow:
		return Neutral
	case kph < p.red:
		return Caution
	}
	return Alert
}

// LabelFor builds the label payload of a track.
func LabelFor(t tracks.RadarTrack) Label {
	return Label{
		RangeM:      math.Hypot(t.LongDist, t.LatDist),
		RelSpeedMPS: t.RelSpeed,
		RelSpeedKPH: units.MPSToKPH(t.RelSpeed),
		Trend:       TrendOf(t.RelSpeed),
	}
}

// ProjectAll projects ts in order, skipping tracks outside the field of
// view.
func (p *Projector) ProjectAll(ts []tracks.RadarTrack) []Marker {
	out := make([]Marker, 0, len(ts))
	for _, t := range ts {
		if m, ok := p.Project(t); ok {
			out = append(out, m)
		}
	}
	return out
}
