package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// TestableSerialPort implements SerialPorter with scripted reads and
// captured writes. Reads block until data is added or the port is closed,
// after which they return io.EOF.
type TestableSerialPort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	readCond *sync.Cond

	// WriteError is returned by every Write call while set.
	WriteError error
	// CloseError is returned by Close if set.
	CloseError error

	closed     bool
	writeCalls int
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read blocks until data is available or the port is closed.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.closed && t.readBuf.Len() == 0 {
		t.readCond.Wait()
	}
	if t.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return t.readBuf.Read(p)
}

// Write records p unless a write error is configured.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeCalls++
	if t.closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		return 0, t.WriteError
	}
	return t.writeBuf.Write(p)
}

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// SetWriteError configures the error returned by subsequent writes.
func (t *TestableSerialPort) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteError = err
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf.Write(data)
	t.readCond.Broadcast()
}

// Written returns everything written to the port so far.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBuf.String()
}

// Closed reports whether Close was called.
func (t *TestableSerialPort) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
