// Package keepalive emits the periodic frames that keep a Toyota radar
// streaming tracks when its driving support unit is absent.
package keepalive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

var (
	// ErrBusDown is returned by Run when a send fails. The emitter is
	// Stopped and does not retry.
	ErrBusDown = errors.New("keepalive: bus down")
	// ErrAlreadyRunning is returned by Run while another Run is active.
	ErrAlreadyRunning = errors.New("keepalive: already running")
)

var logf = monitoring.Subsystem("keepalive")

// State is the emitter state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Sender is the write side of a bus.
type Sender interface {
	Send(canbus.Frame) error
}

// Health is a point-in-time view of the emitter.
type Health struct {
	State     State     `json:"state"`
	TxCount   uint64    `json:"tx_count"`
	Cycles    uint64    `json:"cycles"`
	LastError string    `json:"last_error,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
}

// Emitter sends a schedule of frames at a fixed rate.
type Emitter struct {
	schedule []Entry
	senders  map[string]Sender
	period   time.Duration
	clock    timeutil.Clock
	counters *monitoring.Counters

	mu        sync.Mutex
	state     State
	frame     uint64
	txCount   uint64
	lastErr   error
	stoppedAt time.Time
}

// New creates a Stopped emitter. Every bus named by the schedule must have a
// sender.
func New(schedule []Entry, senders map[string]Sender, rateHz float64, clock timeutil.Clock, counters *monitoring.Counters) (*Emitter, error) {
	if rateHz <= 0 {
		return nil, fmt.Errorf("keepalive rate must be positive, got %g", rateHz)
	}
	for _, e := range schedule {
		if e.Step == 0 {
			return nil, fmt.Errorf("keepalive entry 0x%03X: step must be at least 1", e.ID)
		}
		if _, ok := senders[e.Bus]; !ok {
			return nil, fmt.Errorf("keepalive entry 0x%03X: no sender for bus %q", e.ID, e.Bus)
		}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Emitter{
		schedule: schedule,
		senders:  senders,
		period:   time.Duration(float64(time.Second) / rateHz),
		clock:    clock,
		counters: counters,
	}, nil
}

// Period returns the tick interval.
func (e *Emitter) Period() time.Duration { return e.period }

// Run moves the emitter to Running and sends the schedule on every tick
// until ctx is done (returns nil) or a send fails (returns an error wrapping
// ErrBusDown). Either way the emitter ends Stopped. Calling Run again
// restarts it.
func (e *Emitter) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state == Running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = Running
	e.frame = 0
	e.lastErr = nil
	e.stoppedAt = time.Time{}
	e.mu.Unlock()
	logf("started at %v period", e.period)

	ticker := e.clock.NewTicker(e.period)
	defer ticker.Stop()

	err := e.tick()
	for err == nil {
		select {
		case <-ctx.Done():
			e.stop(nil)
			logf("stopped")
			return nil
		case <-ticker.C():
			err = e.tick()
		}
	}
	e.stop(err)
	logf("stopped after send failure: %v", err)
	return err
}

func (e *Emitter) stop(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Stopped
	e.lastErr = err
	e.stoppedAt = e.clock.Now()
}

// tick sends every entry due on the current cycle and advances the cycle
// counter.
func (e *Emitter) tick() error {
	e.mu.Lock()
	frame := e.frame
	e.frame++
	e.mu.Unlock()

	for _, entry := range e.schedule {
		if frame%entry.Step != 0 {
			continue
		}
		if err := e.send(entry); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) send(entry Entry) error {
	s, ok := e.senders[entry.Bus]
	if !ok {
		return fmt.Errorf("no sender for bus %q", entry.Bus)
	}
	if err := s.Send(entry.Frame()); err != nil {
		e.counters.Inc(monitoring.CounterBusErrors)
		return fmt.Errorf("%w: %s 0x%03X: %v", ErrBusDown, entry.Bus, entry.ID, err)
	}
	e.mu.Lock()
	e.txCount++
	e.mu.Unlock()
	e.counters.Inc(monitoring.CounterKeepAliveTx)
	return nil
}

// SendOnce sends entries immediately, stopping at the first failure.
func (e *Emitter) SendOnce(entries []Entry) error {
	for _, entry := range entries {
		if err := e.send(entry); err != nil {
			return err
		}
	}
	return nil
}

// State returns the current state.
func (e *Emitter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Health returns the current health report.
func (e *Emitter) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := Health{
		State:     e.state,
		TxCount:   e.txCount,
		Cycles:    e.frame,
		StoppedAt: e.stoppedAt,
	}
	if e.lastErr != nil {
		h.LastError = e.lastErr.Error()
	}
	return h
}
