package monitoring

import (
	"sort"
	"sync"
)

// Well-known counter names shared by the decoder, session and replay code.
const (
	CounterFramesReceived = "frames_received"
	CounterDecodeErrors   = "decode_errors"
	CounterUnknownIDs     = "unknown_ids"
	CounterInvalidTracks  = "invalid_tracks"
	CounterOutOfOrder     = "out_of_order_updates"
	CounterTrackUpdates   = "track_updates"
	CounterVehicleStates  = "vehicle_states"
	CounterBusErrors      = "bus_errors"
	CounterKeepAliveTx    = "keepalive_tx"
)

// Counters is a concurrency-safe set of named monotonic counters.
// The zero value is ready to use.
type Counters struct {
	mu     sync.Mutex
	values map[string]uint64
}

// NewCounters returns an empty counter set.
func NewCounters() *Counters {
	return &Counters{values: make(map[string]uint64)}
}

// Inc adds one to the named counter.
func (c *Counters) Inc(name string) {
	c.Add(name, 1)
}

// Add adds delta to the named counter.
func (c *Counters) Add(name string, delta uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]uint64)
	}
	c.values[name] += delta
}

// Get returns the current value of the named counter.
func (c *Counters) Get(name string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Snapshot returns a copy of all counters.
func (c *Counters) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if c == nil {
		return out
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Names returns the counter names in sorted order.
func (c *Counters) Names() []string {
	snap := c.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
