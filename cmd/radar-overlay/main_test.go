package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/catalog"
	"github.com/SamSkjord/uvc-radar-overlay/internal/config"
	"github.com/SamSkjord/uvc-radar-overlay/internal/decode"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/overtake"
	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
	"github.com/SamSkjord/uvc-radar-overlay/internal/replay"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
	"github.com/SamSkjord/uvc-radar-overlay/internal/units"
)

func writeSession(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "drive"+replay.TracksSuffix)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := replay.NewEncoder(f)
	start := time.Now()
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * 20 * time.Millisecond)
		snap := tracks.NewSnapshot(ts, []tracks.RadarTrack{
			{ID: 1, LongDist: 20, LatDist: -2.5, RelSpeed: -8, LastSeen: ts},
			{ID: 2, LongDist: 45, LatDist: 0.5, RelSpeed: 1, LastSeen: ts},
		})
		require.NoError(t, enc.Encode(replay.NewRecord(i, snap)))
	}
	return path
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "capture", "replay", "plot", "catalog"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "dbc", "quiet"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadSettings("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOverlayConfig().Settings(), s)

	_, err = loadSettings(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	cat, err := loadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, catalog.Toyota().Len(), cat.Len())

	_, err = loadCatalog(filepath.Join(t.TempDir(), "missing.dbc"))
	assert.Error(t, err)
}

func TestCatalogCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"catalog", "--signals"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "0x210")
	assert.Contains(t, text, "TRACK_A_0")
	assert.Contains(t, text, "LONG_DIST")
	assert.Contains(t, text, "start=")
}

func TestPlotCommand(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, 20)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"plot", dir})
	require.NoError(t, root.Execute())

	files := strings.Fields(out.String())
	require.Len(t, files, 2)
	for _, f := range files {
		assert.FileExists(t, f)
		assert.Equal(t, filepath.Join(dir, "plots"), filepath.Dir(f))
	}
}

func TestDefaultPlotDir(t *testing.T) {
	assert.Equal(t, filepath.Join("caps", "s1", "plots"), defaultPlotDir(filepath.Join("caps", "s1")))
	assert.Equal(t, filepath.Join("caps", "s1", "plots"), defaultPlotDir(filepath.Join("caps", "s1", "s1_tracks.jsonl")))
}

func TestIsPcap(t *testing.T) {
	assert.True(t, isPcap("drive_frames.pcap"))
	assert.True(t, isPcap("DRIVE.PCAP"))
	assert.False(t, isPcap("drive_tracks.jsonl"))
	assert.False(t, isPcap("captures/drive"))
}

func TestBusOptions(t *testing.T) {
	bf := busFlags{kind: canbus.KindSLCAN, radar: "/dev/ttyACM0", bitrate: 500000, baud: 115200, useSudo: true, linkPrefix: "nsenter -t 1 -n"}
	opts := bf.options(canbus.BusRadar, bf.radar)
	assert.Equal(t, canbus.BusRadar, opts.Name)
	assert.Equal(t, "/dev/ttyACM0", opts.Channel)
	assert.Equal(t, 115200, opts.Serial.BaudRate)
	assert.Equal(t, []string{"nsenter", "-t", "1", "-n"}, opts.Link.Prefix)
	assert.True(t, opts.Link.UseSudo)

	_, err := opts.Normalise()
	require.NoError(t, err)
}

func TestOpenVirtualBuses(t *testing.T) {
	bf := busFlags{kind: canbus.KindVirtual, car: "vcan0"}
	buses, err := bf.open(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, buses, 2)
	assert.Equal(t, canbus.BusRadar, buses[0].Name())
	assert.Equal(t, canbus.BusCar, buses[1].Name())
	closeAll(buses)

	bf.car = ""
	assert.False(t, bf.hasCar())
	buses, err = bf.open(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, buses, 1)
	closeAll(buses)
}

func TestWarningLog(t *testing.T) {
	var w warningLog
	frame := pipeline.RenderFrame{}
	frame.Indicators[overtake.Left] = overtake.Indicator{Side: overtake.Left, Visible: true, TrackID: 4, TTO: 1.2, State: overtake.Warning}
	w.observe(frame)
	assert.Equal(t, [2]bool{true, false}, w.visible)

	frame.Indicators[overtake.Left].Visible = false
	w.observe(frame)
	assert.Equal(t, [2]bool{false, false}, w.visible)
}

func TestReplayHeadless(t *testing.T) {
	dir := t.TempDir()
	path := writeSession(t, dir, 10)
	recDir := filepath.Join(dir, "rec")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := runReplay(ctx, path, presentFlags{headless: true, record: recDir, speedUnits: units.KPH}, replayFlags{rate: 4})
	require.NoError(t, err)
	assert.NoError(t, ctx.Err(), "replay should end on its own")

	entries, err := os.ReadDir(recDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestOverlayRecordingReplays tests that --record captures are stamped with
// the cadence time, including cycles with no live tracks, and play back.
func TestOverlayRecordingReplays(t *testing.T) {
	settings := config.DefaultOverlayConfig().Settings()
	sess, err := session.Open(session.Options{TrackTimeout: settings.TrackTimeout})
	require.NoError(t, err)
	ov, err := newOverlay("test", settings, sess)
	require.NoError(t, err)
	ov.rec, err = newRecorder(t.TempDir(), busFlags{radar: "can1"}, settings, captureFlags{name: "drive"})
	require.NoError(t, err)

	start := time.Unix(1700000000, 0)
	sink := ov.sink(nil, nil)
	sink(pipeline.RenderFrame{Timestamp: start})
	require.NoError(t, sess.Registry().Upsert(1, tracks.Fields{LongDist: 20, LatDist: 1}, start.Add(50*time.Millisecond)))
	sink(pipeline.RenderFrame{Timestamp: start.Add(100 * time.Millisecond)})
	sink(pipeline.RenderFrame{Timestamp: start.Add(200 * time.Millisecond)})
	require.NoError(t, ov.rec.Close())

	recs, err := replay.Open(ov.rec.Dir())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		want := start.Add(time.Duration(i) * 100 * time.Millisecond)
		assert.WithinDuration(t, want, rec.Time(), time.Microsecond, "record %d", i)
	}
	assert.Empty(t, recs[0].Tracks)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events int
	st, err := (&replay.Player{Records: recs}).Run(ctx, nil, func(decode.Event) { events++ })
	require.NoError(t, err)
	assert.NoError(t, ctx.Err(), "playback should finish well inside the timeout")
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 2, events)
}

func TestQuietMutesCommandLogs(t *testing.T) {
	prev := monitoring.Logf
	t.Cleanup(func() {
		monitoring.Logf = prev
		flagQuiet = false
	})
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	logf("capture written to %s", "captures/drive")
	assert.Equal(t, []string{"capture written to captures/drive"}, lines)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--quiet", "catalog"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "TRACK_A_0")

	logf("graceful shutdown complete")
	assert.Len(t, lines, 1)
}

func TestPresentFlagsValidate(t *testing.T) {
	assert.NoError(t, presentFlags{speedUnits: units.MPH}.validate())
	err := presentFlags{speedUnits: "furlongs"}.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), units.GetValidUnitsString())

	err = runReplay(context.Background(), "unused.jsonl", presentFlags{speedUnits: "furlongs"}, replayFlags{})
	assert.Error(t, err)
}
