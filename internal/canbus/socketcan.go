package canbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brutella/can"

	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

const (
	socketcanEFF = 0x80000000 // extended frame format flag
	socketcanRTR = 0x40000000
	socketcanERR = 0x20000000
)

// SocketCANBus is a Linux SocketCAN interface such as can0.
type SocketCANBus struct {
	name    string
	channel string
	clock   timeutil.Clock

	mu     sync.Mutex
	bus    *can.Bus
	closed bool
}

// NewSocketCANBus opens the named SocketCAN interface.
func NewSocketCANBus(name, channel string, clock timeutil.Clock) (*SocketCANBus, error) {
	bus, err := can.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", channel, err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logf("opened SocketCAN %s as %s bus", channel, name)
	return &SocketCANBus{name: name, channel: channel, clock: clock, bus: bus}, nil
}

func (b *SocketCANBus) Name() string { return b.name }

// Send publishes one frame.
func (b *SocketCANBus) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	return b.bus.Publish(toBrutella(f))
}

// Run subscribes to the interface and blocks until ctx is cancelled or the
// socket read fails.
func (b *SocketCANBus) Run(ctx context.Context, fn func(Frame)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	bus := b.bus
	b.mu.Unlock()

	bus.SubscribeFunc(func(cf can.Frame) {
		if cf.ID&socketcanERR != 0 || cf.ID&socketcanRTR != 0 {
			return
		}
		fn(fromBrutella(b.name, cf, b.clock.Now()))
	})

	errCh := make(chan error, 1)
	go func() { errCh <- bus.ConnectAndPublish() }()

	select {
	case <-ctx.Done():
		b.Close()
		<-errCh
		return nil
	case err := <-errCh:
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return nil
		}
		return fmt.Errorf("%s read: %w", b.channel, err)
	}
}

// Close disconnects the socket. It is safe to call more than once.
func (b *SocketCANBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.bus.Disconnect()
}

func toBrutella(f Frame) can.Frame {
	var data [8]uint8
	copy(data[:], f.Data)
	id := f.ID
	if f.Extended {
		id |= socketcanEFF
	}
	return can.Frame{
		ID:     id,
		Length: uint8(len(f.Data)),
		Data:   data,
	}
}

func fromBrutella(bus string, cf can.Frame, ts time.Time) Frame {
	n := int(cf.Length)
	if n > 8 {
		n = 8
	}
	data := make([]byte, n)
	copy(data, cf.Data[:n])
	f := Frame{Bus: bus, Data: data, Timestamp: ts}
	if cf.ID&socketcanEFF != 0 {
		f.Extended = true
		f.ID = cf.ID & MaxExtendedID
	} else {
		f.ID = cf.ID & MaxStandardID
	}
	return f
}
