// Package cluster merges radar tracks that sit within a merge radius of each
// other and picks one representative per group.
package cluster

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

// Params controls Select.
type Params struct {
	// MergeRadius is the planar distance in metres at or below which two
	// tracks are joined. Negative values are treated as zero.
	MergeRadius float64
	// Count is the maximum number of representatives kept.
	Count int
	// MaxDistance drops representatives further away than this, in metres.
	MaxDistance float64
}

// Group is one connected set of tracks.
type Group struct {
	// Members are the track ids in the group, ascending.
	Members        []int
	Representative tracks.RadarTrack
}

// Result is the outcome of one Select call.
type Result struct {
	// Groups are ordered by representative, nearest first.
	Groups []Group
	// Representatives has one entry per group in the same order.
	Representatives []tracks.RadarTrack
	// Selected is Representatives truncated to Count and filtered by
	// MaxDistance.
	Selected []tracks.RadarTrack
}

func point(t tracks.RadarTrack) r2.Vec {
	return r2.Vec{X: t.LongDist, Y: t.LatDist}
}

// Groups returns the connected components of the graph joining tracks
// whose planar distance is at most radius. Membership is transitive.
func Groups(ts []tracks.RadarTrack, radius float64) []Group {
	if len(ts) == 0 {
		return nil
	}
	if radius < 0 {
		radius = 0
	}

	byID := make(map[int64]tracks.RadarTrack, len(ts))
	g := simple.NewUndirectedGraph()
	for _, t := range ts {
		id := int64(t.ID)
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = t
		g.AddNode(simple.Node(id))
	}

	for i := range ts {
		for j := i + 1; j < len(ts); j++ {
			if ts[i].ID == ts[j].ID {
				continue
			}
			if r2.Norm(r2.Sub(point(ts[i]), point(ts[j]))) <= radius {
				g.SetEdge(simple.Edge{F: simple.Node(ts[i].ID), T: simple.Node(ts[j].ID)})
			}
		}
	}

	components := topo.ConnectedComponents(g)
	groups := make([]Group, 0, len(components))
	for _, comp := range components {
		grp := Group{Members: make([]int, 0, len(comp))}
		first := true
		for _, n := range comp {
			t := byID[n.ID()]
			grp.Members = append(grp.Members, t.ID)
			if first || tracks.Less(t, grp.Representative) {
				grp.Representative = t
				first = false
			}
		}
		sort.Ints(grp.Members)
		groups = append(groups, grp)
	}
	sort.Slice(groups, func(i, j int) bool {
		return tracks.Less(groups[i].Representative, groups[j].Representative)
	})
	return groups
}

// Select groups the snapshot, keeps one representative per group, sorts
// them by distance, truncates to p.Count and then drops those beyond
// p.MaxDistance.
func Select(snap tracks.Snapshot, p Params) Result {
	groups := Groups(snap.Tracks(), p.MergeRadius)
	res := Result{Groups: groups}
	for _, g := range groups {
		res.Representatives = append(res.Representatives, g.Representative)
	}

	n := p.Count
	if n < 0 {
		n = 0
	}
	if n > len(res.Representatives) {
		n = len(res.Representatives)
	}
	for _, t := range res.Representatives[:n] {
		if t.LongDist > p.MaxDistance {
			continue
		}
		res.Selected = append(res.Selected, t)
	}
	return res
}
