package canbus

import (
	"context"
	"sync"
)

// MockBus is an in-memory bus for tests and demos. Frames passed to Inject
// are delivered by Run; frames passed to Send are recorded.
type MockBus struct {
	name string

	mu       sync.Mutex
	sent     []Frame
	sendErr  error
	failAt   int // fail the n-th Send (1-based) when > 0
	sends    int
	closed   bool
	incoming chan Frame
	readErr  chan error
	done     chan struct{}
}

// NewMockBus creates a mock bus with a small inbound buffer.
func NewMockBus(name string) *MockBus {
	return &MockBus{
		name:     name,
		incoming: make(chan Frame, 256),
		readErr:  make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (m *MockBus) Name() string { return m.name }

// Send records f, or fails as configured by FailSends/FailSendAt.
func (m *MockBus) Send(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBusClosed
	}
	m.sends++
	if m.sendErr != nil && (m.failAt == 0 || m.sends >= m.failAt) {
		return m.sendErr
	}
	f.Data = append([]byte(nil), f.Data...)
	m.sent = append(m.sent, f)
	return nil
}

// FailSends makes every subsequent Send return err. A nil err clears it.
func (m *MockBus) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	m.failAt = 0
}

// FailSendAt makes the n-th and later Send calls return err.
func (m *MockBus) FailSendAt(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	m.failAt = n
}

// Sent returns a copy of every frame sent so far.
func (m *MockBus) Sent() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.sent))
	copy(out, m.sent)
	return out
}

// Inject queues a frame for delivery by Run. The bus name is stamped on it.
func (m *MockBus) Inject(f Frame) {
	f.Bus = m.name
	m.incoming <- f
}

// FailRead makes Run return err.
func (m *MockBus) FailRead(err error) {
	select {
	case m.readErr <- err:
	default:
	}
}

// Run delivers injected frames until ctx is done, the bus is closed or a
// read failure is injected.
func (m *MockBus) Run(ctx context.Context, fn func(Frame)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case err := <-m.readErr:
			return err
		case f := <-m.incoming:
			fn(f)
		}
	}
}

// Close stops Run and rejects further sends.
func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (m *MockBus) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
