package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/SamSkjord/uvc-radar-overlay/internal/projector"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

// chartAssetsHost serves the echarts script; the default CDN is used when
// empty.
var chartAssetsHost = ""

// renderOverlayChart draws live tracks top-down, lateral offset against
// distance. Tracks with a marker are coloured by its class.
func renderOverlayChart(snap tracks.Snapshot, selected map[int]projector.Class) (*bytes.Buffer, error) {
	series := map[projector.Class][]opts.ScatterData{}
	var others []opts.ScatterData
	maxLong, maxLat := 10.0, 5.0
	for _, t := range snap.Tracks() {
		maxLong = math.Max(maxLong, t.LongDist)
		maxLat = math.Max(maxLat, math.Abs(t.LatDist))
		pt := opts.ScatterData{
			Name:  fmt.Sprintf("id %d", t.ID),
			Value: []interface{}{t.LatDist, t.LongDist, t.RelSpeed},
		}
		c, ok := selected[t.ID]
		if !ok {
			others = append(others, pt)
			continue
		}
		series[c] = append(series[c], pt)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radar overlay", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: chartAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Radar tracks", Subtitle: fmt.Sprintf("live=%d selected=%d", snap.Len(), len(selected))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -maxLat * 1.1, Max: maxLat * 1.1, Name: "lateral (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: maxLong * 1.05, Name: "distance (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	for _, c := range []projector.Class{projector.Neutral, projector.Caution, projector.Alert} {
		scatter.AddSeries(c.String(), series[c], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: c.Color()}))
	}
	scatter.AddSeries("merged or out of range", others, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#888888"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (s *Server) handleOverlayChart(w http.ResponseWriter, r *http.Request) {
	snap := s.registry.Snapshot()
	selected := map[int]projector.Class{}
	if s.frames != nil {
		for _, m := range s.frames.Latest().Markers {
			selected[m.TrackID] = m.Class
		}
	}
	buf, err := renderOverlayChart(snap, selected)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
