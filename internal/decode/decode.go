// Package decode turns raw CAN frames into typed radar track and vehicle
// state events using a signal catalog.
package decode

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/catalog"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

var (
	// ErrPayloadLength is returned when a payload disagrees with its layout.
	ErrPayloadLength = catalog.ErrPayloadLength
	// ErrSignalRange is returned when a signal falls outside its range.
	ErrSignalRange = catalog.ErrSignalRange
	// ErrInvalidTrack is returned for a track with an impossible position.
	ErrInvalidTrack = tracks.ErrInvalidTrack
	// ErrUnknownLayout is returned by Register for names not in the catalog.
	ErrUnknownLayout = catalog.ErrUnknownLayout
)

var logf = monitoring.Subsystem("decode")

// Event is a decoded TrackUpdate or VehicleState.
type Event interface {
	EventTime() time.Time
}

// TrackUpdate carries the fields of one radar track report.
type TrackUpdate struct {
	Bus       string    `json:"bus"`
	ID        int       `json:"track_id"`
	LongDist  float64   `json:"long_dist"`
	LatDist   float64   `json:"lat_dist"`
	RelSpeed  float64   `json:"rel_speed"`
	NewTrack  bool      `json:"new_track"`
	Timestamp time.Time `json:"timestamp"`
}

func (u TrackUpdate) EventTime() time.Time { return u.Timestamp }

// Fields returns the registry fields carried by the update.
func (u TrackUpdate) Fields() tracks.Fields {
	return tracks.Fields{LongDist: u.LongDist, LatDist: u.LatDist, RelSpeed: u.RelSpeed, NewTrack: u.NewTrack}
}

// VehicleState carries ego vehicle state from the chassis bus.
type VehicleState struct {
	Bus       string    `json:"bus"`
	SpeedKPH  float64   `json:"speed_kph"`
	Timestamp time.Time `json:"timestamp"`
}

func (v VehicleState) EventTime() time.Time { return v.Timestamp }

// Handler receives the signals of every successfully decoded frame for the
// layout it was registered against.
type Handler interface {
	Handle(layout string, frame canbus.Frame, signals catalog.Signals)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(layout string, frame canbus.Frame, signals catalog.Signals)

func (f HandlerFunc) Handle(layout string, frame canbus.Frame, signals catalog.Signals) {
	f(layout, frame, signals)
}

// Decoder maps arbitration ids to layouts and handlers. Registration
// resolves layout names to ids once; Decode is a map lookup.
type Decoder struct {
	counters *monitoring.Counters

	mu       sync.RWMutex
	layouts  map[uint32]catalog.Layout
	handlers map[uint32][]Handler
}

// New creates a decoder over cat. counters may be nil.
func New(cat *catalog.Catalog, counters *monitoring.Counters) *Decoder {
	d := &Decoder{
		counters: counters,
		layouts:  make(map[uint32]catalog.Layout, cat.Len()),
		handlers: make(map[uint32][]Handler),
	}
	for _, l := range cat.Layouts() {
		d.layouts[l.ID] = l
	}
	return d
}

// Register associates h with the named layout.
func (d *Decoder) Register(layout string, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, l := range d.layouts {
		if l.Name == layout {
			d.handlers[id] = append(d.handlers[id], h)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownLayout, layout)
}

// Decode unpacks f. Unknown ids and empty radar slots yield (nil, nil).
// Errors are never fatal; callers drop the frame and carry on.
func (d *Decoder) Decode(f canbus.Frame) (Event, error) {
	d.counters.Inc(monitoring.CounterFramesReceived)

	d.mu.RLock()
	layout, ok := d.layouts[f.ID]
	handlers := d.handlers[f.ID]
	d.mu.RUnlock()
	if !ok {
		d.counters.Inc(monitoring.CounterUnknownIDs)
		return nil, nil
	}

	signals, err := layout.Unpack(f.Data)
	if err != nil {
		d.counters.Inc(monitoring.CounterDecodeErrors)
		return nil, fmt.Errorf("%s 0x%03X: %w", f.Bus, f.ID, err)
	}

	var ev Event
	switch layout.Kind {
	case catalog.KindTrack:
		if signals[catalog.SigValid] != 1 {
			break
		}
		u := TrackUpdate{
			Bus:       f.Bus,
			ID:        layout.Slot,
			LongDist:  signals[catalog.SigLongDist],
			LatDist:   signals[catalog.SigLatDist],
			RelSpeed:  signals[catalog.SigRelSpeed],
			NewTrack:  signals[catalog.SigNewTrack] == 1,
			Timestamp: f.Timestamp,
		}
		if err := ValidateTrack(u); err != nil {
			d.counters.Inc(monitoring.CounterInvalidTracks)
			return nil, fmt.Errorf("%s 0x%03X: %w", f.Bus, f.ID, err)
		}
		ev = u
	case catalog.KindVehicleState:
		ev = VehicleState{Bus: f.Bus, SpeedKPH: signals[catalog.SigSpeed], Timestamp: f.Timestamp}
	}

	for _, h := range handlers {
		h.Handle(layout.Name, f, signals)
	}
	return ev, nil
}

// ValidateTrack rejects impossible positions: negative or non-finite
// distance and non-finite lateral offset or speed.
func ValidateTrack(u TrackUpdate) error {
	switch {
	case math.IsNaN(u.LongDist) || math.IsInf(u.LongDist, 0) || u.LongDist < 0:
		return fmt.Errorf("%w: track %d long_dist %g", ErrInvalidTrack, u.ID, u.LongDist)
	case math.IsNaN(u.LatDist) || math.IsInf(u.LatDist, 0):
		return fmt.Errorf("%w: track %d lat_dist %g", ErrInvalidTrack, u.ID, u.LatDist)
	case math.IsNaN(u.RelSpeed) || math.IsInf(u.RelSpeed, 0):
		return fmt.Errorf("%w: track %d rel_speed %g", ErrInvalidTrack, u.ID, u.RelSpeed)
	}
	return nil
}

// DecodeAll decodes frames in order, logging and skipping failures.
func (d *Decoder) DecodeAll(frames []canbus.Frame) []Event {
	var out []Event
	for _, f := range frames {
		ev, err := d.Decode(f)
		if err != nil {
			logf("dropped frame: %v", err)
			continue
		}
		if ev != nil {
			out = append(out, ev)
		}
	}
	return out
}
