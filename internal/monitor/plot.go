package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/SamSkjord/uvc-radar-overlay/internal/replay"
)

// trackSeries is one track's samples in record order.
type trackSeries struct {
	id   int
	dist plotter.XYs // seconds since start, distance
	path plotter.XYs // lateral, distance
}

func collectSeries(recs []replay.Record) []*trackSeries {
	if len(recs) == 0 {
		return nil
	}
	start := recs[0].Time()
	byID := map[int]*trackSeries{}
	for _, rec := range recs {
		sec := rec.Time().Sub(start).Seconds()
		for _, tr := range rec.Tracks {
			s, ok := byID[tr.TrackID]
			if !ok {
				s = &trackSeries{id: tr.TrackID}
				byID[tr.TrackID] = s
			}
			s.dist = append(s.dist, plotter.XY{X: sec, Y: tr.LongDist})
			s.path = append(s.path, plotter.XY{X: tr.LatDist, Y: tr.LongDist})
		}
	}
	out := make([]*trackSeries, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// PlotSession writes range-over-time and top-down trajectory PNGs for a
// capture into outDir and returns their paths.
func PlotSession(recs []replay.Record, outDir string) ([]string, error) {
	series := collectSeries(recs)
	if len(series) == 0 {
		return nil, fmt.Errorf("no tracks to plot")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot directory: %w", err)
	}

	pRange := plot.New()
	pRange.Title.Text = "Track distance over time"
	pRange.X.Label.Text = "Time (s)"
	pRange.Y.Label.Text = "Distance (m)"

	pPath := plot.New()
	pPath.Title.Text = "Track trajectories (top-down)"
	pPath.X.Label.Text = "Lateral (m)"
	pPath.Y.Label.Text = "Distance (m)"

	for i, s := range series {
		label := fmt.Sprintf("id %d", s.id)

		rangeLine, err := plotter.NewLine(s.dist)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", s.id, err)
		}
		rangeLine.Color = plotutil.Color(i)
		rangeLine.Width = vg.Points(1)
		pRange.Add(rangeLine)
		pRange.Legend.Add(label, rangeLine)

		pathPts, err := plotter.NewScatter(s.path)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", s.id, err)
		}
		pathPts.Color = plotutil.Color(i)
		pathPts.Radius = vg.Points(1.5)
		pPath.Add(pathPts)
		pPath.Legend.Add(label, pathPts)
	}
	for _, p := range []*plot.Plot{pRange, pPath} {
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
		p.Add(plotter.NewGrid())
	}

	rangeFile := filepath.Join(outDir, "tracks_range.png")
	if err := pRange.Save(14*vg.Inch, 6*vg.Inch, rangeFile); err != nil {
		return nil, fmt.Errorf("save range plot: %w", err)
	}
	pathFile := filepath.Join(outDir, "tracks_topdown.png")
	if err := pPath.Save(8*vg.Inch, 10*vg.Inch, pathFile); err != nil {
		return nil, fmt.Errorf("save trajectory plot: %w", err)
	}
	return []string{rangeFile, pathFile}, nil
}
