package canbus

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/SamSkjord/uvc-radar-overlay/internal/serialmux"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

// EncodeSLCAN renders a data frame as an SLCAN transmit command without the
// trailing CR.
func EncodeSLCAN(f Frame) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "T%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "t%03X", f.ID)
	}
	fmt.Fprintf(&b, "%d", len(f.Data))
	b.WriteString(strings.ToUpper(hex.EncodeToString(f.Data)))
	return b.String(), nil
}

// DecodeSLCAN parses a received t/T line. Remote frames (r/R) and any other
// line are rejected.
func DecodeSLCAN(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Frame{}, fmt.Errorf("%w: empty SLCAN line", ErrInvalidFrame)
	}
	var idLen int
	var f Frame
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
		f.Extended = true
	default:
		return Frame{}, fmt.Errorf("%w: not a data frame %q", ErrInvalidFrame, line)
	}
	if len(line) < 1+idLen+1 {
		return Frame{}, fmt.Errorf("%w: short SLCAN line %q", ErrInvalidFrame, line)
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad id in %q", ErrInvalidFrame, line)
	}
	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > 8 {
		return Frame{}, fmt.Errorf("%w: bad length in %q", ErrInvalidFrame, line)
	}
	payload := line[2+idLen:]
	// Adapters with timestamping enabled append four hex digits.
	if len(payload) == dlc*2+4 {
		payload = payload[:dlc*2]
	}
	if len(payload) != dlc*2 {
		return Frame{}, fmt.Errorf("%w: length %d does not match payload in %q", ErrInvalidFrame, dlc, line)
	}
	data, err := hex.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad payload in %q", ErrInvalidFrame, line)
	}
	f.ID = uint32(id)
	f.Data = data
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// SLCANBus is a CAN channel behind a serial SLCAN adapter.
type SLCANBus struct {
	name  string
	mux   serialmux.SerialMuxInterface
	clock timeutil.Clock

	mu     sync.Mutex
	closed bool
}

// NewSLCANBus wraps an initialised serial mux.
func NewSLCANBus(name string, mux serialmux.SerialMuxInterface, clock timeutil.Clock) *SLCANBus {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SLCANBus{name: name, mux: mux, clock: clock}
}

func (b *SLCANBus) Name() string { return b.name }

// Mux returns the serial multiplexer behind the bus.
func (b *SLCANBus) Mux() serialmux.SerialMuxInterface { return b.mux }

// Send writes one frame as an SLCAN transmit command.
func (b *SLCANBus) Send(f Frame) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}
	line, err := EncodeSLCAN(f)
	if err != nil {
		return err
	}
	return b.mux.SendCommand(line)
}

// Run reads adapter lines and delivers every data frame. Malformed lines are
// logged and skipped.
func (b *SLCANBus) Run(ctx context.Context, fn func(Frame)) error {
	id, lines := b.mux.Subscribe()
	defer b.mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- b.mux.Monitor(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) || (errors.Is(err, io.EOF) && b.isClosed()) {
				return nil
			}
			return fmt.Errorf("%s read: %w", b.name, err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch serialmux.ClassifyLine(line) {
			case serialmux.LineTypeFrame:
				f, err := DecodeSLCAN(line)
				if err != nil {
					logf("%s: %v", b.name, err)
					continue
				}
				f.Bus = b.name
				f.Timestamp = b.clock.Now()
				fn(f)
			case serialmux.LineTypeError:
				logf("%s: adapter rejected command", b.name)
			}
		}
	}
}

func (b *SLCANBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close closes the adapter channel and port.
func (b *SLCANBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.mux.Close()
}
