package tracks

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
)

var t0 = time.Unix(1700000000, 0)

func TestRegistryUpsertInsertAndUpdate(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, nil)
	require.NoError(t, r.Upsert(3, Fields{LongDist: 20, LatDist: 1, RelSpeed: -2, NewTrack: true}, t0))
	require.NoError(t, r.Upsert(3, Fields{LongDist: 19, LatDist: 1.2, RelSpeed: -2.5}, t0.Add(50*time.Millisecond)))

	snap := r.Snapshot()
	require.Equal(t, 1, snap.Len())
	got, ok := snap.Get(3)
	require.True(t, ok)
	assert.Equal(t, RadarTrack{ID: 3, LongDist: 19, LatDist: 1.2, RelSpeed: -2.5, LastSeen: t0.Add(50 * time.Millisecond)}, got)
	assert.Equal(t, t0.Add(50*time.Millisecond), snap.Taken())
}

func TestRegistryRejectsInvalid(t *testing.T) {
	counters := monitoring.NewCounters()
	r := NewRegistry(time.Second, counters)
	require.NoError(t, r.Upsert(1, Fields{LongDist: 10}, t0))

	cases := []Fields{
		{LongDist: -0.5},
		{LongDist: math.NaN()},
		{LongDist: 5, LatDist: math.Inf(1)},
		{LongDist: 5, RelSpeed: math.Inf(-1)},
	}
	for _, f := range cases {
		err := r.Upsert(1, f, t0.Add(time.Millisecond))
		assert.True(t, errors.Is(err, ErrInvalidTrack), "fields %+v: %v", f, err)
	}
	got, _ := r.Snapshot().Get(1)
	assert.Equal(t, 10.0, got.LongDist)
	assert.Equal(t, t0, got.LastSeen)
	assert.Equal(t, uint64(len(cases)), counters.Get(monitoring.CounterInvalidTracks))
}

func TestRegistryOutOfOrder(t *testing.T) {
	counters := monitoring.NewCounters()
	r := NewRegistry(time.Second, counters)
	require.NoError(t, r.Upsert(7, Fields{LongDist: 10}, t0))
	err := r.Upsert(7, Fields{LongDist: 12}, t0.Add(-time.Millisecond))
	require.ErrorIs(t, err, ErrOutOfOrder)

	got, _ := r.Snapshot().Get(7)
	assert.Equal(t, 10.0, got.LongDist)
	assert.Equal(t, uint64(1), counters.Get(monitoring.CounterOutOfOrder))

	// Equal timestamps are accepted.
	require.NoError(t, r.Upsert(7, Fields{LongDist: 11}, t0))
}

func TestRegistryExpire(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, nil)
	require.NoError(t, r.Upsert(1, Fields{LongDist: 10}, t0))
	require.NoError(t, r.Upsert(2, Fields{LongDist: 20}, t0.Add(300*time.Millisecond)))

	// Exactly at the timeout is still live.
	assert.Equal(t, 0, r.Expire(t0.Add(500*time.Millisecond)))
	assert.Equal(t, 1, r.Expire(t0.Add(501*time.Millisecond)))
	assert.Equal(t, 1, r.Len())
	_, ok := r.Snapshot().Get(2)
	assert.True(t, ok)
}

func TestSnapshotOrdering(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	require.NoError(t, r.Upsert(9, Fields{LongDist: 15}, t0))
	require.NoError(t, r.Upsert(4, Fields{LongDist: 15}, t0))
	require.NoError(t, r.Upsert(2, Fields{LongDist: 30}, t0))
	require.NoError(t, r.Upsert(11, Fields{LongDist: 5}, t0))

	var got []int
	for _, tr := range r.Snapshot().Tracks() {
		got = append(got, tr.ID)
	}
	assert.Equal(t, []int{11, 4, 9, 2}, got)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	require.NoError(t, r.Upsert(1, Fields{LongDist: 10}, t0))
	snap := r.Snapshot()

	ts := snap.Tracks()
	ts[0].LongDist = 99
	require.NoError(t, r.Upsert(1, Fields{LongDist: 12}, t0.Add(time.Millisecond)))

	assert.Equal(t, 10.0, snap.At(0).LongDist)
	assert.Equal(t, 12.0, r.Snapshot().At(0).LongDist)
}

// TestSampleAgeBound checks that no sampled track is older than the timeout
// under a random stream of updates and samples.
func TestSampleAgeBound(t *testing.T) {
	const timeout = 500 * time.Millisecond
	r := NewRegistry(timeout, nil)
	rng := rand.New(rand.NewSource(1))
	now := t0
	last := map[int]time.Time{}

	for i := 0; i < 5000; i++ {
		now = now.Add(time.Duration(rng.Intn(40)) * time.Millisecond)
		if rng.Intn(3) > 0 {
			id := rng.Intn(16)
			if err := r.Upsert(id, Fields{LongDist: rng.Float64() * 100}, now); err == nil {
				last[id] = now
			}
			continue
		}
		snap := r.Sample(now)
		assert.Equal(t, now, snap.Taken())
		for _, tr := range snap.Tracks() {
			require.LessOrEqual(t, tr.Age(now), timeout, "track %d", tr.ID)
			require.Equal(t, last[tr.ID], tr.LastSeen)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = r.Upsert(w*4+i%4, Fields{LongDist: float64(i)}, t0.Add(time.Duration(i)*time.Millisecond))
				_ = r.Sample(t0.Add(time.Duration(i) * time.Millisecond))
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 16)
}

func TestNewSnapshotSortsCopy(t *testing.T) {
	in := []RadarTrack{{ID: 2, LongDist: 8}, {ID: 1, LongDist: 3}}
	s := NewSnapshot(t0, in)
	assert.Equal(t, 1, s.At(0).ID)
	assert.Equal(t, 2, in[0].ID)

	r := NewRegistry(time.Second, nil)
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, time.Second, r.Timeout())
}
