package canbus

import (
	"context"
	"fmt"
	"strings"

	"github.com/SamSkjord/uvc-radar-overlay/internal/serialmux"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

// Interface kinds accepted by Open.
const (
	KindSocketCAN = "socketcan"
	KindSLCAN     = "slcan"
	KindPcap      = "pcap"
	KindVirtual   = "virtual"
)

// DefaultBitrate is the Toyota radar and chassis bus rate.
const DefaultBitrate = 500000

// Options describes one bus endpoint.
type Options struct {
	// Name is the logical bus name (radar or car).
	Name string `json:"name"`
	// Kind selects the transport.
	Kind string `json:"kind"`
	// Channel is the interface name (can0), serial device path or pcap path.
	Channel string `json:"channel"`
	Bitrate int    `json:"bitrate"`
	// Serial carries the UART settings for SLCAN adapters.
	Serial serialmux.PortOptions `json:"serial"`
	// Speed scales pcap replay timing.
	Speed float64 `json:"speed"`
	// SetupLink brings SocketCAN interfaces up before opening.
	SetupLink bool      `json:"setup_link"`
	Link      LinkSetup `json:"-"`
}

// Normalise validates the options and applies defaults for any unset values.
func (o Options) Normalise() (Options, error) {
	opts := o
	opts.Kind = strings.ToLower(strings.TrimSpace(opts.Kind))
	if opts.Kind == "" {
		opts.Kind = KindSocketCAN
	}
	switch opts.Kind {
	case KindSocketCAN, KindSLCAN, KindPcap, KindVirtual:
	default:
		return opts, fmt.Errorf("unsupported bus kind %q: expected socketcan, slcan, pcap or virtual", o.Kind)
	}
	if opts.Name == "" {
		return opts, fmt.Errorf("bus name is required")
	}
	if opts.Channel == "" && opts.Kind != KindVirtual {
		return opts, fmt.Errorf("%s bus: channel is required for %s", opts.Name, opts.Kind)
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = DefaultBitrate
	}
	if opts.Kind == KindSLCAN {
		serial, err := opts.Serial.Normalise()
		if err != nil {
			return opts, fmt.Errorf("%s bus: %w", opts.Name, err)
		}
		opts.Serial = serial
	}
	return opts, nil
}

// Open creates the bus described by opts.
func Open(ctx context.Context, o Options, clock timeutil.Clock) (Bus, error) {
	opts, err := o.Normalise()
	if err != nil {
		return nil, err
	}
	switch opts.Kind {
	case KindSocketCAN:
		if opts.SetupLink {
			if err := SetupLink(ctx, opts.Channel, opts.Bitrate, opts.Link); err != nil {
				return nil, err
			}
		}
		return NewSocketCANBus(opts.Name, opts.Channel, clock)
	case KindSLCAN:
		mux, err := serialmux.NewRealSerialMux(opts.Channel, opts.Serial)
		if err != nil {
			return nil, err
		}
		if err := mux.Initialise(opts.Bitrate); err != nil {
			mux.Close()
			return nil, err
		}
		return NewSLCANBus(opts.Name, mux, clock), nil
	case KindPcap:
		return NewPcapSource(opts.Name, opts.Channel, opts.Speed, clock), nil
	default:
		return NewMockBus(opts.Name), nil
	}
}
