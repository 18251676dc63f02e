package replay

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

const sample = `{"timestamp": 1700000000.0, "frame_index": 0, "tracks": [{"track_id": 5, "long_dist": 30.0, "lat_dist": -2.0, "rel_speed": -15.0, "new_track": 1, "timestamp": 1699999999.98, "raw": {"VALID": 1}}]}

{"timestamp": 1700000000.05, "frame_index": 1, "tracks": []}
{"timestamp": 1700000000.1, "frame_index": 2, "tracks": [{"track_id": 2, "long_dist": 12.5, "lat_dist": 0.4, "rel_speed": 0.0, "new_track": false}]}
`

func TestLoad(t *testing.T) {
	recs, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, 0, first.FrameIndex)
	require.Len(t, first.Tracks, 1)
	u := first.Tracks[0].Update("radar")
	assert.Equal(t, 5, u.ID)
	assert.True(t, u.NewTrack)
	assert.Equal(t, "radar", u.Bus)
	assert.WithinDuration(t, time.Unix(1699999999, 980000000), u.Timestamp, time.Microsecond)

	// A track without its own timestamp inherits the record's.
	assert.Equal(t, recs[2].Timestamp, recs[2].Tracks[0].Timestamp)
	assert.Len(t, Events(recs, "radar"), 2)
}

func TestLoadMalformed(t *testing.T) {
	good := `{"timestamp": 1, "frame_index": 0, "tracks": []}`
	cases := []struct {
		name string
		line string
		want string
	}{
		{"not json", `{"timestamp": 1,`, "line 2"},
		{"missing tracks", `{"timestamp": 1, "frame_index": 1}`, "missing tracks"},
		{"missing timestamp", `{"frame_index": 1, "tracks": []}`, "missing timestamp"},
		{"unknown field", `{"timestamp": 1, "frame_index": 1, "tracks": [], "video": "x"}`, "unknown field"},
		{"track missing distance", `{"timestamp": 1, "frame_index": 1, "tracks": [{"track_id": 1, "lat_dist": 0, "rel_speed": 0}]}`, "track 0"},
		{"bad new_track", `{"timestamp": 1, "frame_index": 1, "tracks": [{"track_id": 1, "long_dist": 1, "lat_dist": 0, "rel_speed": 0, "new_track": 7}]}`, "new_track"},
		{"wrong type", `{"timestamp": "now", "frame_index": 1, "tracks": []}`, "line 2"},
		{"timestamp goes backwards", `{"timestamp": 0.5, "frame_index": 1, "tracks": []}`, "earlier than the previous"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(good + "\n" + c.line + "\n" + good + "\n"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord), "%v", err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestResolveSessionAndOpen(t *testing.T) {
	dir := t.TempDir()
	_, err := ResolveSession(dir)
	assert.ErrorContains(t, err, "no _tracks.jsonl")

	path := filepath.Join(dir, "drive_tracks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	got, err := ResolveSession(dir)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	recs, err := Open(dir)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other_tracks.jsonl"), []byte(sample), 0o644))
	_, err = ResolveSession(dir)
	assert.ErrorContains(t, err, "expected one")

	bad := filepath.Join(t.TempDir(), "bad_tracks.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{}\n"), 0o644))
	_, err = Open(bad)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestEncodeRoundTrip(t *testing.T) {
	taken := time.Unix(1700000000, 250000000).UTC()
	snap := tracks.NewSnapshot(taken, []tracks.RadarTrack{
		{ID: 3, LongDist: 20, LatDist: 1, RelSpeed: -1, NewTrack: true, LastSeen: taken.Add(-20 * time.Millisecond)},
	})
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(NewRecord(7, snap)))

	recs, err := Load(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 7, recs[0].FrameIndex)
	assert.WithinDuration(t, taken, recs[0].Time(), time.Microsecond)
	u := recs[0].Tracks[0].Update("radar")
	assert.True(t, u.NewTrack)
	assert.WithinDuration(t, taken.Add(-20*time.Millisecond), u.Timestamp, time.Microsecond)
}
