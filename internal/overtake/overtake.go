// Package overtake tracks, per side, whether a vehicle is closing fast
// enough to warrant a passing warning.
package overtake

import (
	"fmt"
	"math"
	"time"

	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
	"github.com/SamSkjord/uvc-radar-overlay/internal/units"
)

// Side is the side of the vehicle a track is on.
type Side int

const (
	Left Side = iota
	Right
)

// SideOf returns Left for a negative lateral offset and Right otherwise.
func SideOf(latDist float64) Side {
	if latDist < 0 {
		return Left
	}
	return Right
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// MarshalText encodes the side name.
func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is the state of one side's machine.
type State int

const (
	Inactive State = iota
	Warning
	Persisting
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Warning:
		return "warning"
	case Persisting:
		return "persisting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Params are the trigger thresholds.
type Params struct {
	// TimeThreshold is the time-to-overtake in seconds below which a track
	// triggers.
	TimeThreshold float64
	MinClosingKPH float64
	// MinLateral is the minimum absolute lateral offset in metres.
	MinLateral    float64
	ArrowDuration time.Duration
}

// Qualifies reports whether t meets the trigger conditions and returns its
// time-to-overtake in seconds.
func Qualifies(t tracks.RadarTrack, p Params) (float64, bool) {
	lat := math.Abs(t.LatDist)
	if lat < p.MinLateral {
		return 0, false
	}
	closing := -t.RelSpeed
	if closing <= 0 || units.MPSToKPH(closing) < p.MinClosingKPH {
		return 0, false
	}
	tto := lat / closing
	if tto >= p.TimeThreshold {
		return tto, false
	}
	return tto, true
}

// Indicator is the per-side output of one cycle.
type Indicator struct {
	Side Side `json:"side"`
	// RenderSide is where the arrow is drawn, swapped when mirrored.
	RenderSide       Side      `json:"render_side"`
	Visible          bool      `json:"visible"`
	State            State     `json:"state"`
	TrackID          int       `json:"track_id"`
	TTO              float64   `json:"tto"`
	WarningStartedAt time.Time `json:"warning_started_at,omitzero"`
	TrackLostAt      time.Time `json:"track_lost_at,omitzero"`
}

// Machine is the state machine for one side. It is not safe for
// concurrent use.
type Machine struct {
	side   Side
	params Params
	mirror bool

	state     State
	trackID   int
	tto       float64
	startedAt time.Time
	lostAt    time.Time
}

// NewMachine returns an Inactive machine for side.
func NewMachine(side Side, p Params, mirror bool) *Machine {
	return &Machine{side: side, params: p, mirror: mirror, trackID: -1}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// best returns the qualifying track on this side with the lowest
// time-to-overtake, ties going to the lowest id.
func (m *Machine) best(ts []tracks.RadarTrack) (tracks.RadarTrack, float64, bool) {
	var (
		found   bool
		bestT   tracks.RadarTrack
		bestTTO float64
	)
	for _, t := range ts {
		if SideOf(t.LatDist) != m.side {
			continue
		}
		tto, ok := Qualifies(t, m.params)
		if !ok {
			continue
		}
		if !found || tto < bestTTO || (tto == bestTTO && t.ID < bestT.ID) {
			found, bestT, bestTTO = true, t, tto
		}
	}
	return bestT, bestTTO, found
}

func find(ts []tracks.RadarTrack, id int) (tracks.RadarTrack, bool) {
	for _, t := range ts {
		if t.ID == id {
			return t, true
		}
	}
	return tracks.RadarTrack{}, false
}

// Update advances the machine by one cycle.
func (m *Machine) Update(now time.Time, ts []tracks.RadarTrack) Indicator {
	switch m.state {
	case Inactive:
		if t, tto, ok := m.best(ts); ok {
			m.warn(now, t.ID, tto)
		}

	case Warning:
		cur, present := find(ts, m.trackID)
		if present && SideOf(cur.LatDist) == m.side {
			if tto, ok := Qualifies(cur, m.params); ok {
				m.tto = tto
				break
			}
		}
		if t, tto, ok := m.best(ts); ok {
			m.trackID, m.tto = t.ID, tto
			break
		}
		if present {
			m.reset()
			break
		}
		m.state = Persisting
		m.lostAt = now
		m.expire(now)

	case Persisting:
		if t, tto, ok := m.best(ts); ok {
			m.warn(now, t.ID, tto)
			break
		}
		m.expire(now)
	}
	return m.indicator()
}

func (m *Machine) warn(now time.Time, id int, tto float64) {
	m.state = Warning
	m.trackID = id
	m.tto = tto
	m.startedAt = now
	m.lostAt = time.Time{}
}

func (m *Machine) expire(now time.Time) {
	if now.Sub(m.lostAt) >= m.params.ArrowDuration {
		m.reset()
	}
}

func (m *Machine) reset() {
	m.state = Inactive
	m.trackID = -1
	m.tto = 0
	m.startedAt = time.Time{}
	m.lostAt = time.Time{}
}

func (m *Machine) indicator() Indicator {
	render := m.side
	if m.mirror {
		render = render.Opposite()
	}
	return Indicator{
		Side:             m.side,
		RenderSide:       render,
		Visible:          m.state != Inactive,
		State:            m.state,
		TrackID:          m.trackID,
		TTO:              m.tto,
		WarningStartedAt: m.startedAt,
		TrackLostAt:      m.lostAt,
	}
}

// Monitor runs one machine per side.
type Monitor struct {
	sides [2]*Machine
}

// NewMonitor returns a monitor with both sides Inactive.
func NewMonitor(p Params, mirror bool) *Monitor {
	return &Monitor{sides: [2]*Machine{
		Left:  NewMachine(Left, p, mirror),
		Right: NewMachine(Right, p, mirror),
	}}
}

// Update advances both sides and returns their indicators indexed by Side.
func (m *Monitor) Update(now time.Time, ts []tracks.RadarTrack) [2]Indicator {
	return [2]Indicator{
		Left:  m.sides[Left].Update(now, ts),
		Right: m.sides[Right].Update(now, ts),
	}
}

// Machine returns the machine for side.
func (m *Monitor) Machine(side Side) *Machine { return m.sides[side] }
