package tracks

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
)

var (
	// ErrInvalidTrack is returned for negative or non-finite values.
	ErrInvalidTrack = errors.New("invalid track")
	// ErrOutOfOrder is returned for an update older than the stored one.
	ErrOutOfOrder = errors.New("out of order track update")
)

// Registry is the single owner of live tracks. One mutex guards the map and
// is held only for mutation or copy-out.
type Registry struct {
	timeout  time.Duration
	counters *monitoring.Counters

	mu     sync.Mutex
	tracks map[int]*RadarTrack
}

// NewRegistry creates a registry expiring tracks older than timeout.
// counters may be nil.
func NewRegistry(timeout time.Duration, counters *monitoring.Counters) *Registry {
	return &Registry{
		timeout:  timeout,
		counters: counters,
		tracks:   make(map[int]*RadarTrack),
	}
}

// Timeout returns the expiry age.
func (r *Registry) Timeout() time.Duration { return r.timeout }

func validate(id int, f Fields) error {
	for _, v := range []float64{f.LongDist, f.LatDist, f.RelSpeed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: track %d has non-finite field", ErrInvalidTrack, id)
		}
	}
	if f.LongDist < 0 {
		return fmt.Errorf("%w: track %d long_dist %g", ErrInvalidTrack, id, f.LongDist)
	}
	return nil
}

// Upsert inserts a track or updates its fields and LastSeen. Invalid fields
// and stale timestamps leave the registry untouched.
func (r *Registry) Upsert(id int, f Fields, ts time.Time) error {
	if err := validate(id, f); err != nil {
		r.counters.Inc(monitoring.CounterInvalidTracks)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tracks[id]; ok {
		if ts.Before(existing.LastSeen) {
			r.counters.Inc(monitoring.CounterOutOfOrder)
			return fmt.Errorf("%w: track %d at %s before %s", ErrOutOfOrder, id,
				ts.Format(time.RFC3339Nano), existing.LastSeen.Format(time.RFC3339Nano))
		}
		existing.LongDist = f.LongDist
		existing.LatDist = f.LatDist
		existing.RelSpeed = f.RelSpeed
		existing.NewTrack = f.NewTrack
		existing.LastSeen = ts
	} else {
		r.tracks[id] = &RadarTrack{
			ID:       id,
			LongDist: f.LongDist,
			LatDist:  f.LatDist,
			RelSpeed: f.RelSpeed,
			NewTrack: f.NewTrack,
			LastSeen: ts,
		}
	}
	r.counters.Inc(monitoring.CounterTrackUpdates)
	return nil
}

// Expire removes every track whose age at now exceeds the timeout and
// returns how many were removed.
func (r *Registry) Expire(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expireLocked(now)
}

func (r *Registry) expireLocked(now time.Time) int {
	n := 0
	for id, t := range r.tracks {
		if now.Sub(t.LastSeen) > r.timeout {
			delete(r.tracks, id)
			n++
		}
	}
	return n
}

// Snapshot copies out the live tracks. Its Taken time is the newest
// LastSeen.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest time.Time
	for _, t := range r.tracks {
		if t.LastSeen.After(newest) {
			newest = t.LastSeen
		}
	}
	return r.snapshotLocked(newest)
}

// Sample expires and snapshots under one lock hold. It is the once-per-cycle
// call of the presentation loop.
func (r *Registry) Sample(now time.Time) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireLocked(now)
	return r.snapshotLocked(now)
}

func (r *Registry) snapshotLocked(taken time.Time) Snapshot {
	out := make([]RadarTrack, 0, len(r.tracks))
	for _, t := range r.tracks {
		out = append(out, *t)
	}
	SortByDistance(out)
	return Snapshot{taken: taken, tracks: out}
}

// Len returns the number of live tracks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}

// Reset drops every track.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = make(map[int]*RadarTrack)
}
