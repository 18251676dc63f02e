package keepalive

import (
	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/catalog"
)

// Entry is one periodic frame. It is sent on every tick whose counter is a
// multiple of Step.
type Entry struct {
	Name string
	ID   uint32
	Bus  string
	Step uint64
	Data []byte
}

// Frame builds the wire frame for e.
func (e Entry) Frame() canbus.Frame {
	return canbus.Frame{Bus: e.Bus, ID: e.ID, Data: append([]byte(nil), e.Data...)}
}

// dsuStatic are the frames the radar expects from the driving support unit
// it replaces. Radar-bound frames go to the radar bus, the rest to the car.
var dsuStatic = []Entry{
	{ID: 0x141, Bus: canbus.BusRadar, Step: 2, Data: []byte{0x00, 0x00, 0x00, 0x46}},
	{ID: 0x128, Bus: canbus.BusRadar, Step: 3, Data: []byte{0xf4, 0x01, 0x90, 0x83, 0x00, 0x37}},
	{ID: 0x283, Bus: canbus.BusCar, Step: 3, Data: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x8c}},
	{ID: 0x344, Bus: canbus.BusCar, Step: 5, Data: []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x50}},
	{ID: 0x160, Bus: canbus.BusRadar, Step: 7, Data: []byte{0x00, 0x00, 0x08, 0x12, 0x01, 0x31, 0x9c, 0x51}},
	{ID: 0x161, Bus: canbus.BusRadar, Step: 7, Data: []byte{0x00, 0x1e, 0x00, 0x00, 0x00, 0x80, 0x07}},
	{ID: 0x365, Bus: canbus.BusCar, Step: 20, Data: []byte{0x00, 0x00, 0x00, 0x80, 0xfc, 0x00, 0x08}},
	{ID: 0x366, Bus: canbus.BusCar, Step: 20, Data: []byte{0x00, 0x72, 0x07, 0xff, 0x09, 0xfe, 0x00}},
	{ID: 0x4CB, Bus: canbus.BusCar, Step: 100, Data: []byte{0x0c, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
}

// ACCControlValues is the idle ACC command that keeps the radar tracking.
var ACCControlValues = catalog.Signals{
	catalog.SigAccelCmd:  0,
	catalog.SigSetMeX63:  0x63,
	catalog.SigSetMe1:    1,
	catalog.SigRelease:   1,
	catalog.SigCancelReq: 0,
	catalog.SigChecksum:  113,
}

// ToyotaSchedule returns ACC_CONTROL on every tick followed by the static
// DSU frames. ACC_CONTROL is omitted when cat has no such layout.
func ToyotaSchedule(cat *catalog.Catalog) ([]Entry, error) {
	var out []Entry
	if l, ok := cat.ByName(catalog.LayoutACCControl); ok {
		data, err := l.Pack(ACCControlValues)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Name: l.Name, ID: l.ID, Bus: canbus.BusCar, Step: 1, Data: data})
	}
	for _, e := range dsuStatic {
		e.Data = append([]byte(nil), e.Data...)
		out = append(out, e)
	}
	return out, nil
}

var initialValues = []struct {
	layout string
	values catalog.Signals
}{
	{catalog.LayoutSpeed, catalog.Signals{catalog.SigEncoder: 0, catalog.SigSpeed: 1.44, catalog.SigChecksum: 0}},
	{catalog.LayoutPCMCruise, catalog.Signals{"CRUISE_STATE": 9, "GAS_RELEASED": 0, "STANDSTILL_ON": 0, "ACCEL_NET": 0, catalog.SigChecksum: 0}},
	{catalog.LayoutPCMCruise2, catalog.Signals{"MAIN_ON": 0, "LOW_SPEED_LOCKOUT": 0, "SET_SPEED": 0, catalog.SigChecksum: 0}},
	{catalog.LayoutACCControl, catalog.Signals{catalog.SigAccelCmd: 0, catalog.SigSetMeX63: 0, catalog.SigRelease: 0, catalog.SigSetMe1: 0, catalog.SigCancelReq: 0, catalog.SigChecksum: 0}},
	{catalog.LayoutPCMCruiseSM, catalog.Signals{"MAIN_ON": 0, "CRUISE_CONTROL_STATE": 0, "UI_SET_SPEED": 0}},
}

// InitialFrames returns the one-shot start-up burst sent on the car bus
// before the periodic schedule begins. Layouts missing from cat, or whose
// signals do not match, are skipped.
func InitialFrames(cat *catalog.Catalog) []Entry {
	var out []Entry
	for _, iv := range initialValues {
		l, ok := cat.ByName(iv.layout)
		if !ok {
			continue
		}
		data, err := l.Pack(iv.values)
		if err != nil {
			logf("skipping initial %s: %v", iv.layout, err)
			continue
		}
		out = append(out, Entry{Name: l.Name, ID: l.ID, Bus: canbus.BusCar, Step: 1, Data: data})
	}
	return out
}
