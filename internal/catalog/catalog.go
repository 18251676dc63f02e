// Package catalog describes how known CAN arbitration ids unpack into named
// physical signals. A Catalog is immutable once built and safe for
// concurrent use.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"go.einride.tech/can"
)

// Kind says what a layout carries.
type Kind int

const (
	KindOther Kind = iota
	KindTrack
	KindVehicleState
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindVehicleState:
		return "vehicle_state"
	case KindControl:
		return "control"
	default:
		return "other"
	}
}

var (
	ErrPayloadLength = errors.New("payload length mismatch")
	ErrSignalRange   = errors.New("signal out of range")
	ErrUnknownLayout = errors.New("unknown layout")
)

// Signals maps signal names to physical values.
type Signals map[string]float64

// Layout is the unpacking recipe for one arbitration id.
type Layout struct {
	Name     string   `json:"name"`
	ID       uint32   `json:"id"`
	Extended bool     `json:"extended,omitempty"`
	Length   int      `json:"length"`
	Kind     Kind     `json:"kind"`
	Slot     int      `json:"slot"` // radar track slot for KindTrack layouts
	Signals  []Signal `json:"signals"`
}

func (l *Layout) clone() Layout {
	out := *l
	out.Signals = append([]Signal(nil), l.Signals...)
	return out
}

// Signal returns the named signal definition.
func (l Layout) Signal(name string) (Signal, bool) {
	for _, s := range l.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}

// Unpack decodes every signal in data. The payload must be exactly Length
// bytes and every value must sit inside its documented range.
func (l Layout) Unpack(data []byte) (Signals, error) {
	if len(data) != l.Length {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrPayloadLength, l.Name, l.Length, len(data))
	}
	d := toData(data)
	out := make(Signals, len(l.Signals))
	for _, s := range l.Signals {
		v := s.Decode(&d)
		if !s.InRange(v) {
			return nil, fmt.Errorf("%w: %s.%s = %g outside [%g, %g]", ErrSignalRange, l.Name, s.Name, v, s.Min, s.Max)
		}
		out[s.Name] = v
	}
	return out, nil
}

// Pack encodes values into a Length-byte payload. Signals absent from values
// are zero. Unknown names are an error.
func (l Layout) Pack(values Signals) ([]byte, error) {
	var d can.Data
	for name, v := range values {
		s, ok := l.Signal(name)
		if !ok {
			return nil, fmt.Errorf("%s has no signal %q", l.Name, name)
		}
		if !s.InRange(v) {
			return nil, fmt.Errorf("%w: %s.%s = %g outside [%g, %g]", ErrSignalRange, l.Name, name, v, s.Min, s.Max)
		}
	}
	// deterministic order so overlapping definitions resolve the same way
	for _, s := range l.Signals {
		if v, ok := values[s.Name]; ok {
			s.Encode(&d, v)
		}
	}
	return append([]byte(nil), d[:l.Length]...), nil
}

// Catalog is an immutable set of layouts indexed by id and name.
type Catalog struct {
	byID   map[uint32]*Layout
	byName map[string]*Layout
	order  []*Layout
}

// New builds a catalog. Duplicate ids or names are rejected.
func New(layouts ...Layout) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[uint32]*Layout, len(layouts)),
		byName: make(map[string]*Layout, len(layouts)),
	}
	for i := range layouts {
		l := layouts[i]
		if l.Length < 0 || l.Length > 8 {
			return nil, fmt.Errorf("layout %s: length %d out of range", l.Name, l.Length)
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("layout %s: duplicate id 0x%X", l.Name, l.ID)
		}
		if _, dup := c.byName[l.Name]; dup {
			return nil, fmt.Errorf("duplicate layout name %s", l.Name)
		}
		l.Signals = append([]Signal(nil), l.Signals...)
		c.byID[l.ID] = &l
		c.byName[l.Name] = &l
		c.order = append(c.order, &l)
	}
	sort.Slice(c.order, func(i, j int) bool { return c.order[i].ID < c.order[j].ID })
	return c, nil
}

// ByID returns the layout for an arbitration id.
func (c *Catalog) ByID(id uint32) (Layout, bool) {
	l, ok := c.byID[id]
	if !ok {
		return Layout{}, false
	}
	return l.clone(), true
}

// ByName returns the layout with the given name.
func (c *Catalog) ByName(name string) (Layout, bool) {
	l, ok := c.byName[name]
	if !ok {
		return Layout{}, false
	}
	return l.clone(), true
}

// Layouts returns all layouts ordered by id.
func (c *Catalog) Layouts() []Layout {
	out := make([]Layout, len(c.order))
	for i, l := range c.order {
		out[i] = l.clone()
	}
	return out
}

// Len returns the number of layouts.
func (c *Catalog) Len() int { return len(c.order) }

// Merge combines catalogs. Later catalogs may not redefine ids or names.
func Merge(cats ...*Catalog) (*Catalog, error) {
	var all []Layout
	for _, c := range cats {
		if c != nil {
			all = append(all, c.Layouts()...)
		}
	}
	return New(all...)
}
