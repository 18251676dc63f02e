// Package canbus moves raw CAN frames between the overlay and the outside
// world: SocketCAN interfaces, serial SLCAN adapters, pcap captures and an
// in-memory bus for tests.
package canbus

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Bus names used throughout the overlay.
const (
	BusRadar = "radar"
	BusCar   = "car"
)

// Identifier masks.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

var (
	// ErrBusClosed is returned by Send and Run once a bus has been closed.
	ErrBusClosed = errors.New("canbus: bus closed")
	// ErrInvalidFrame is returned when a frame cannot be put on the wire.
	ErrInvalidFrame = errors.New("canbus: invalid frame")
)

// Frame is one classic CAN frame as seen by the overlay.
type Frame struct {
	Bus       string    `json:"bus"`
	ID        uint32    `json:"id"`
	Data      []byte    `json:"data"`
	Extended  bool      `json:"extended,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the identifier range and payload length.
func (f Frame) Validate() error {
	if len(f.Data) > 8 {
		return fmt.Errorf("%w: payload of %d bytes", ErrInvalidFrame, len(f.Data))
	}
	max := uint32(MaxStandardID)
	if f.Extended {
		max = MaxExtendedID
	}
	if f.ID > max {
		return fmt.Errorf("%w: id 0x%X out of range", ErrInvalidFrame, f.ID)
	}
	return nil
}

func (f Frame) String() string {
	return fmt.Sprintf("%s 0x%03X [%d] %s", f.Bus, f.ID, len(f.Data), hex.EncodeToString(f.Data))
}

// Bus is a bidirectional CAN channel.
type Bus interface {
	// Name returns the logical bus name stamped on received frames.
	Name() string
	// Send writes one frame to the bus.
	Send(Frame) error
	// Run delivers received frames to fn until ctx is done or the bus fails.
	// It returns nil on clean end of stream or cancellation.
	Run(ctx context.Context, fn func(Frame)) error
	// Close releases the underlying handle.
	Close() error
}
