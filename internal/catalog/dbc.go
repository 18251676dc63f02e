package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"go.einride.tech/can/pkg/dbc"
)

var trackName = regexp.MustCompile(`^TRACK_A_(\d+)$`)

// LoadDBC builds a catalog from a DBC file such as opendbc's
// toyota_prius_2017_adas.dbc.
func LoadDBC(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read DBC: %w", err)
	}
	return ParseDBC(filepath.Base(path), data)
}

// ParseDBC builds a catalog from DBC source. Multiplexed signals are
// skipped. Layout kinds are inferred from message names.
func ParseDBC(name string, data []byte) (*Catalog, error) {
	p := dbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("failed to parse DBC %s: %w", name, err)
	}

	var layouts []Layout
	for _, def := range p.Defs() {
		msg, ok := def.(*dbc.MessageDef)
		if !ok {
			continue
		}
		l := Layout{
			Name:     string(msg.Name),
			ID:       msg.MessageID.ToCAN(),
			Extended: msg.MessageID.IsExtended(),
			Length:   int(msg.Size),
		}
		l.Kind, l.Slot = kindFor(l.Name)
		for _, sd := range msg.Signals {
			if sd.IsMultiplexed {
				continue
			}
			l.Signals = append(l.Signals, Signal{
				Name:      string(sd.Name),
				Start:     uint8(sd.StartBit),
				Size:      uint8(sd.Size),
				BigEndian: sd.IsBigEndian,
				Signed:    sd.IsSigned,
				Factor:    sd.Factor,
				Offset:    sd.Offset,
				Min:       sd.Minimum,
				Max:       sd.Maximum,
				Unit:      sd.Unit,
			})
		}
		layouts = append(layouts, l)
	}
	return New(layouts...)
}

func kindFor(name string) (Kind, int) {
	if m := trackName.FindStringSubmatch(name); m != nil {
		slot, _ := strconv.Atoi(m[1])
		return KindTrack, slot
	}
	switch name {
	case LayoutSpeed:
		return KindVehicleState, 0
	case LayoutACCControl, LayoutPCMCruise, LayoutPCMCruise2, LayoutPCMCruiseSM:
		return KindControl, 0
	}
	return KindOther, 0
}
