// Package session holds the live state of one radar connection: the buses,
// decoder, track registry and keep-alive emitter.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/catalog"
	"github.com/SamSkjord/uvc-radar-overlay/internal/decode"
	"github.com/SamSkjord/uvc-radar-overlay/internal/keepalive"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

var logf = monitoring.Subsystem("session")

// BusState is the health of one bus.
type BusState int

const (
	BusIdle BusState = iota
	BusUp
	// BusEnded means the source ran out of frames.
	BusEnded
	BusDown
)

func (s BusState) String() string {
	switch s {
	case BusIdle:
		return "idle"
	case BusUp:
		return "up"
	case BusEnded:
		return "ended"
	case BusDown:
		return "down"
	}
	return fmt.Sprintf("bus_state(%d)", int(s))
}

// MarshalText encodes the state name.
func (s BusState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// BusHealth reports one bus.
type BusHealth struct {
	Name      string    `json:"name"`
	State     BusState  `json:"state"`
	Frames    uint64    `json:"frames"`
	LastError string    `json:"last_error,omitempty"`
	DownAt    time.Time `json:"down_at,omitzero"`
}

// Health is a point-in-time view of the session.
type Health struct {
	Buses     []BusHealth          `json:"buses"`
	KeepAlive *keepalive.Health    `json:"keepalive,omitempty"`
	Live      int                  `json:"live_tracks"`
	Vehicle   *decode.VehicleState `json:"vehicle,omitempty"`
	Counters  map[string]uint64    `json:"counters"`
}

// Options configures Open.
type Options struct {
	Catalog      *catalog.Catalog
	TrackTimeout time.Duration
	// KeepAliveHz enables the DSU keep-alive emitter when positive. Both the
	// radar and car buses must be present.
	KeepAliveHz float64
	Clock       timeutil.Clock
	Counters    *monitoring.Counters
	// OnEvent is called for every ingested event after the registry has
	// been updated. It runs on the bus goroutine.
	OnEvent func(decode.Event)
	// OnFrame sees every received frame before decoding.
	OnFrame func(canbus.Frame)
}

type busEntry struct {
	bus canbus.Bus

	mu     sync.Mutex
	health BusHealth
}

func (b *busEntry) set(state BusState, err error, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health.State = state
	if err != nil {
		b.health.LastError = err.Error()
		b.health.DownAt = at
	}
}

func (b *busEntry) snapshot() BusHealth {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.health
}

// Session owns the buses for the duration of Run.
type Session struct {
	opts     Options
	clock    timeutil.Clock
	counters *monitoring.Counters
	decoder  *decode.Decoder
	registry *tracks.Registry
	emitter  *keepalive.Emitter
	buses    []*busEntry
	logLimit *rate.Limiter

	mu      sync.Mutex
	vehicle *decode.VehicleState
	running bool
	closed  bool
}

// Open builds a session over buses. Bus names must be unique. A session
// without buses only accepts events through Ingest, as replay does.
func Open(opts Options, buses ...canbus.Bus) (*Session, error) {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Toyota()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Counters == nil {
		opts.Counters = monitoring.NewCounters()
	}
	if opts.TrackTimeout <= 0 {
		return nil, fmt.Errorf("track timeout must be positive, got %v", opts.TrackTimeout)
	}

	s := &Session{
		opts:     opts,
		clock:    opts.Clock,
		counters: opts.Counters,
		decoder:  decode.New(opts.Catalog, opts.Counters),
		registry: tracks.NewRegistry(opts.TrackTimeout, opts.Counters),
		logLimit: rate.NewLimiter(rate.Every(time.Second), 5),
	}

	senders := make(map[string]keepalive.Sender, len(buses))
	for _, b := range buses {
		if _, dup := senders[b.Name()]; dup {
			return nil, fmt.Errorf("duplicate bus name %q", b.Name())
		}
		senders[b.Name()] = b
		s.buses = append(s.buses, &busEntry{bus: b, health: BusHealth{Name: b.Name()}})
	}

	if opts.KeepAliveHz > 0 {
		schedule, err := keepalive.ToyotaSchedule(opts.Catalog)
		if err != nil {
			return nil, fmt.Errorf("keepalive schedule: %w", err)
		}
		s.emitter, err = keepalive.New(schedule, senders, opts.KeepAliveHz, opts.Clock, opts.Counters)
		if err != nil {
			return nil, fmt.Errorf("keepalive: %w", err)
		}
	}
	return s, nil
}

// Registry returns the track registry.
func (s *Session) Registry() *tracks.Registry { return s.registry }

// Decoder returns the frame decoder. Handlers should be registered before
// Run.
func (s *Session) Decoder() *decode.Decoder { return s.decoder }

// Counters returns the session counters.
func (s *Session) Counters() *monitoring.Counters { return s.counters }

// Emitter returns the keep-alive emitter, or nil when disabled.
func (s *Session) Emitter() *keepalive.Emitter { return s.emitter }

// Run reads every bus and runs the keep-alive emitter until ctx is done or
// every bus has stopped. A failing bus is marked down on its own; the
// others keep decoding. Buses are closed before Run returns, and the first
// bus failure is returned once they have all stopped.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.running = true
	s.mu.Unlock()
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.emitter != nil {
		if err := s.emitter.SendOnce(keepalive.InitialFrames(s.opts.Catalog)); err != nil {
			logf("initial keep-alive burst failed: %v", err)
		}
	}

	var buses errgroup.Group
	for _, b := range s.buses {
		buses.Go(func() error {
			return s.runBus(ctx, b)
		})
	}

	var background errgroup.Group
	if s.emitter != nil {
		background.Go(func() error {
			if err := s.emitter.Run(ctx); err != nil {
				logf("keep-alive stopped: %v", err)
			}
			return nil
		})
	}

	busErr := buses.Wait()
	cancel()
	_ = background.Wait()
	logf("session finished")
	return busErr
}

// runBus reads one bus until it stops. Only a read failure is returned; an
// exhausted source or a cancelled ctx is a clean stop.
func (s *Session) runBus(ctx context.Context, b *busEntry) error {
	b.set(BusUp, nil, time.Time{})
	logf("%s bus up", b.bus.Name())
	err := b.bus.Run(ctx, func(f canbus.Frame) {
		b.mu.Lock()
		b.health.Frames++
		b.mu.Unlock()
		if s.opts.OnFrame != nil {
			s.opts.OnFrame(f)
		}
		s.HandleFrame(f)
	})
	switch {
	case err != nil:
		s.counters.Inc(monitoring.CounterBusErrors)
		b.set(BusDown, err, s.clock.Now())
		logf("%s bus down: %v", b.bus.Name(), err)
		return fmt.Errorf("%s bus: %w", b.bus.Name(), err)
	case ctx.Err() == nil:
		b.set(BusEnded, nil, time.Time{})
		logf("%s bus ended", b.bus.Name())
	default:
		b.set(BusIdle, nil, time.Time{})
	}
	return nil
}

// HandleFrame decodes one frame and ingests the resulting event. Decode
// failures are counted and dropped.
func (s *Session) HandleFrame(f canbus.Frame) {
	ev, err := s.decoder.Decode(f)
	if err != nil {
		if s.logLimit.Allow() {
			logf("dropped %s: %v", f, err)
		}
		return
	}
	if ev == nil {
		return
	}
	if err := s.Ingest(ev); err != nil && s.logLimit.Allow() {
		logf("rejected %s: %v", f, err)
	}
}

// Ingest applies one decoded event. Live decoding and replay both enter
// through here.
func (s *Session) Ingest(ev decode.Event) error {
	switch e := ev.(type) {
	case decode.TrackUpdate:
		if err := s.registry.Upsert(e.ID, e.Fields(), e.Timestamp); err != nil {
			return err
		}
	case *decode.TrackUpdate:
		return s.Ingest(*e)
	case decode.VehicleState:
		s.mu.Lock()
		s.vehicle = &e
		s.mu.Unlock()
		s.counters.Inc(monitoring.CounterVehicleStates)
	case *decode.VehicleState:
		return s.Ingest(*e)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
	return nil
}

// Vehicle returns the last vehicle state.
func (s *Session) Vehicle() (decode.VehicleState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vehicle == nil {
		return decode.VehicleState{}, false
	}
	return *s.vehicle, true
}

// Health reports every bus, the keep-alive emitter and the counters.
func (s *Session) Health() Health {
	h := Health{
		Live:     s.registry.Len(),
		Counters: s.counters.Snapshot(),
	}
	for _, b := range s.buses {
		h.Buses = append(h.Buses, b.snapshot())
	}
	if s.emitter != nil {
		ka := s.emitter.Health()
		h.KeepAlive = &ka
	}
	if v, ok := s.Vehicle(); ok {
		h.Vehicle = &v
	}
	return h
}

// Close closes every bus. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, b := range s.buses {
		if err := b.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", b.bus.Name(), err))
		}
	}
	return errors.Join(errs...)
}
