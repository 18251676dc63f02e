package monitoring

import (
	"sync"
	"testing"
)

func TestCounters_IncAndSnapshot(t *testing.T) {
	c := NewCounters()
	c.Inc(CounterDecodeErrors)
	c.Inc(CounterDecodeErrors)
	c.Add(CounterFramesReceived, 10)

	if got := c.Get(CounterDecodeErrors); got != 2 {
		t.Errorf("decode errors = %d, want 2", got)
	}
	snap := c.Snapshot()
	if snap[CounterFramesReceived] != 10 {
		t.Errorf("frames received = %d, want 10", snap[CounterFramesReceived])
	}

	// Mutating the snapshot must not leak back.
	snap[CounterFramesReceived] = 0
	if c.Get(CounterFramesReceived) != 10 {
		t.Error("snapshot aliases internal map")
	}
}

func TestCounters_ZeroValueAndNil(t *testing.T) {
	var c Counters
	c.Inc("x")
	if c.Get("x") != 1 {
		t.Errorf("zero value counter = %d, want 1", c.Get("x"))
	}

	var nilCounters *Counters
	nilCounters.Inc("x") // must not panic
	if nilCounters.Get("x") != 0 {
		t.Error("nil counters should report zero")
	}
	if len(nilCounters.Snapshot()) != 0 {
		t.Error("nil counters snapshot should be empty")
	}
}

func TestCounters_Concurrent(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(CounterTrackUpdates)
			}
		}()
	}
	wg.Wait()
	if got := c.Get(CounterTrackUpdates); got != 8000 {
		t.Errorf("track updates = %d, want 8000", got)
	}
}

func TestCounters_Names(t *testing.T) {
	c := NewCounters()
	c.Inc("b")
	c.Inc("a")
	names := c.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
}
