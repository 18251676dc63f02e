package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/serialmux"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

// busFlags selects the radar and car channels shared by run and capture.
type busFlags struct {
	kind       string
	radar      string
	car        string
	bitrate    int
	baud       int
	setupLink  bool
	useSudo    bool
	linkPrefix string
}

func (b *busFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&b.kind, "interface", canbus.KindSocketCAN, "Bus transport: socketcan, slcan, pcap or virtual")
	f.StringVar(&b.radar, "radar-channel", "can1", "Channel (interface, serial device or pcap file) the radar is on")
	f.StringVar(&b.car, "car-channel", "can0", "Channel the car side is on; empty disables it and the keep-alive")
	f.IntVar(&b.bitrate, "bitrate", canbus.DefaultBitrate, "CAN bitrate")
	f.IntVar(&b.baud, "baud", serialmux.DefaultBaudRate, "UART rate for slcan adapters")
	f.BoolVar(&b.setupLink, "setup-can", false, "Bring socketcan interfaces up with ip link before opening")
	f.BoolVar(&b.useSudo, "use-sudo", false, "Run ip link through sudo")
	f.StringVar(&b.linkPrefix, "link-prefix", "", "Space-separated command prefix for ip link (e.g. \"nsenter -t 1 -n\")")
}

func (b *busFlags) options(name, channel string) canbus.Options {
	return canbus.Options{
		Name:      name,
		Kind:      b.kind,
		Channel:   channel,
		Bitrate:   b.bitrate,
		Serial:    serialmux.PortOptions{BaudRate: b.baud},
		Speed:     1,
		SetupLink: b.setupLink,
		Link: canbus.LinkSetup{
			UseSudo: b.useSudo,
			Prefix:  strings.Fields(b.linkPrefix),
		},
	}
}

// open opens the radar bus and, when configured, the car bus. Anything
// already opened is closed on failure.
func (b *busFlags) open(ctx context.Context, clock timeutil.Clock) ([]canbus.Bus, error) {
	radar, err := canbus.Open(ctx, b.options(canbus.BusRadar, b.radar), clock)
	if err != nil {
		return nil, fmt.Errorf("open radar bus %s: %w", b.radar, err)
	}
	logf("radar bus on %s (%s)", b.radar, b.kind)
	buses := []canbus.Bus{radar}
	if b.car == "" {
		return buses, nil
	}
	car, err := canbus.Open(ctx, b.options(canbus.BusCar, b.car), clock)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open car bus %s: %w", b.car, err), radar.Close())
	}
	logf("car bus on %s (%s)", b.car, b.kind)
	return append(buses, car), nil
}

// hasCar reports whether the car side is configured, which the keep-alive
// needs.
func (b *busFlags) hasCar() bool { return b.car != "" }

// attachSerialRoutes mounts the serial debug routes of the first SLCAN
// adapter. The routes have fixed names, so only one adapter can own them.
func attachSerialRoutes(mux *http.ServeMux, buses []canbus.Bus) {
	for _, b := range buses {
		if s, ok := b.(*canbus.SLCANBus); ok {
			s.Mux().AttachAdminRoutes(mux)
			logf("serial debug routes attached for %s", b.Name())
			return
		}
	}
}
