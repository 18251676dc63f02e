// Package tracks holds the live radar track registry and the immutable
// snapshots handed to the presentation stages.
package tracks

import (
	"sort"
	"time"
)

// Fields are the sensor-reported values of one track update.
type Fields struct {
	LongDist float64 `json:"long_dist"`
	LatDist  float64 `json:"lat_dist"`
	RelSpeed float64 `json:"rel_speed"`
	NewTrack bool    `json:"new_track"`
}

// RadarTrack is one live radar object. LongDist is metres ahead, LatDist is
// signed metres to the side (negative left), RelSpeed is signed m/s
// (negative closing).
type RadarTrack struct {
	ID       int       `json:"track_id"`
	LongDist float64   `json:"long_dist"`
	LatDist  float64   `json:"lat_dist"`
	RelSpeed float64   `json:"rel_speed"`
	NewTrack bool      `json:"new_track"`
	LastSeen time.Time `json:"last_seen"`
}

// Age returns how long ago the track was last updated.
func (t RadarTrack) Age(now time.Time) time.Duration {
	return now.Sub(t.LastSeen)
}

// Less orders tracks by distance, then id.
func Less(a, b RadarTrack) bool {
	if a.LongDist != b.LongDist {
		return a.LongDist < b.LongDist
	}
	return a.ID < b.ID
}

// SortByDistance sorts ts in place, nearest first.
func SortByDistance(ts []RadarTrack) {
	sort.Slice(ts, func(i, j int) bool { return Less(ts[i], ts[j]) })
}

// Snapshot is an immutable, distance-ordered view of the live tracks.
type Snapshot struct {
	taken  time.Time
	tracks []RadarTrack
}

// NewSnapshot copies and sorts ts into a snapshot taken at taken.
func NewSnapshot(taken time.Time, ts []RadarTrack) Snapshot {
	cp := append([]RadarTrack(nil), ts...)
	SortByDistance(cp)
	return Snapshot{taken: taken, tracks: cp}
}

// Taken returns the sampling instant.
func (s Snapshot) Taken() time.Time { return s.taken }

// Len returns the number of tracks.
func (s Snapshot) Len() int { return len(s.tracks) }

// At returns the i-th nearest track.
func (s Snapshot) At(i int) RadarTrack { return s.tracks[i] }

// Tracks returns a copy of the tracks, nearest first.
func (s Snapshot) Tracks() []RadarTrack {
	return append([]RadarTrack(nil), s.tracks...)
}

// Get returns the track with the given id.
func (s Snapshot) Get(id int) (RadarTrack, bool) {
	for _, t := range s.tracks {
		if t.ID == id {
			return t, true
		}
	}
	return RadarTrack{}, false
}
