package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/decode"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

var logf = monitoring.Subsystem("replay")

// DefaultLoopGap separates passes of a single-record loop.
const DefaultLoopGap = 100 * time.Millisecond

// Player paces records onto a clock. Event timestamps are rebased so the
// first record lands at the clock time Run starts, which keeps the track
// registry's expiry meaningful.
type Player struct {
	Records []Record
	// Loop restarts at the first record after the last one, with
	// timestamps shifted forward so they stay monotonic.
	Loop bool
	// Rate scales playback speed; values <= 0 mean 1.
	Rate float64
	// Bus is stamped on emitted events.
	Bus string
	// OnLoop is called before every pass after the first.
	OnLoop func(pass int)
}

// Stats summarises one Run.
type Stats struct {
	Passes  int
	Records int
	Events  int
}

func (p *Player) rate() float64 {
	if p.Rate <= 0 {
		return 1
	}
	return p.Rate
}

func (p *Player) scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) / p.rate())
}

// loopGap is the pause between the last record of one pass and the first
// of the next: the mean record interval.
func (p *Player) loopGap() time.Duration {
	n := len(p.Records)
	if n < 2 {
		return DefaultLoopGap
	}
	span := p.Records[n-1].Time().Sub(p.Records[0].Time())
	if span <= 0 {
		return DefaultLoopGap
	}
	return p.scale(span / time.Duration(n-1))
}

// Run emits every track of every record to sink, waiting on clock between
// records. A record stamped earlier than its predecessor is emitted straight
// after it rather than back in time. It returns when the records are exhausted (without Loop) or ctx
// is done.
func (p *Player) Run(ctx context.Context, clock timeutil.Clock, sink func(decode.Event)) (Stats, error) {
	var st Stats
	if len(p.Records) == 0 {
		return st, fmt.Errorf("replay: no records")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	bus := p.Bus
	if bus == "" {
		bus = canbus.BusRadar
	}

	base := p.Records[0].Time()
	passStart := clock.Now()
	for {
		if st.Passes > 0 && p.OnLoop != nil {
			p.OnLoop(st.Passes)
		}
		st.Passes++

		lastEmit := passStart
		for _, rec := range p.Records {
			recTime := rec.Time()
			offset := recTime.Sub(base)
			if offset < 0 {
				offset = 0
			}
			emitAt := passStart.Add(p.scale(offset))
			if emitAt.Before(lastEmit) {
				emitAt = lastEmit
			}
			if wait := emitAt.Sub(clock.Now()); wait > 0 {
				select {
				case <-ctx.Done():
					return st, nil
				case <-clock.After(wait):
				}
			} else if ctx.Err() != nil {
				return st, nil
			}

			for _, tr := range rec.Tracks {
				ev := tr.Update(bus)
				ev.Timestamp = emitAt.Add(-p.scale(recTime.Sub(ev.Timestamp)))
				sink(ev)
				st.Events++
			}
			st.Records++
			lastEmit = emitAt
		}

		if !p.Loop {
			logf("replay finished: %d records, %d events", st.Records, st.Events)
			return st, nil
		}
		passStart = lastEmit.Add(p.loopGap())
	}
}

// Events flattens records into events with their recorded timestamps, in
// stream order.
func Events(recs []Record, bus string) []decode.TrackUpdate {
	var out []decode.TrackUpdate
	for _, rec := range recs {
		for _, tr := range rec.Tracks {
			out = append(out, tr.Update(bus))
		}
	}
	return out
}
