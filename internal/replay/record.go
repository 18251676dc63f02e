// Package replay reads captured track sessions and plays them back as
// decoded track events.
package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SamSkjord/uvc-radar-overlay/internal/decode"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

// ErrMalformedRecord is returned when a line does not match the record
// schema. It is fatal for the whole stream.
var ErrMalformedRecord = errors.New("malformed replay record")

// TracksSuffix names the track file inside a capture session directory.
const TracksSuffix = "_tracks.jsonl"

// maxLine bounds one JSON line.
const maxLine = 4 << 20

// TrackRecord is one track inside a Record. Timestamps are Unix seconds.
type TrackRecord struct {
	TrackID   int             `json:"track_id"`
	LongDist  float64         `json:"long_dist"`
	LatDist   float64         `json:"lat_dist"`
	RelSpeed  float64         `json:"rel_speed"`
	NewTrack  int             `json:"new_track"`
	Timestamp float64         `json:"timestamp"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Record is one line of a track capture: every live track at one instant.
type Record struct {
	Timestamp  float64       `json:"timestamp"`
	FrameIndex int           `json:"frame_index"`
	Tracks     []TrackRecord `json:"tracks"`
}

// Time returns the record timestamp.
func (r Record) Time() time.Time { return FromUnixSeconds(r.Timestamp) }

// FromUnixSeconds converts fractional Unix seconds to a time.
func FromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// UnixSeconds converts a time to fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// NewRecord builds a record from a registry snapshot.
func NewRecord(frameIndex int, snap tracks.Snapshot) Record {
	rec := Record{
		Timestamp:  UnixSeconds(snap.Taken()),
		FrameIndex: frameIndex,
		Tracks:     make([]TrackRecord, 0, snap.Len()),
	}
	for _, t := range snap.Tracks() {
		tr := TrackRecord{
			TrackID:   t.ID,
			LongDist:  t.LongDist,
			LatDist:   t.LatDist,
			RelSpeed:  t.RelSpeed,
			Timestamp: UnixSeconds(t.LastSeen),
		}
		if t.NewTrack {
			tr.NewTrack = 1
		}
		rec.Tracks = append(rec.Tracks, tr)
	}
	return rec
}

// Update converts a track entry to a decoded event.
func (t TrackRecord) Update(bus string) decode.TrackUpdate {
	return decode.TrackUpdate{
		Bus:       bus,
		ID:        t.TrackID,
		LongDist:  t.LongDist,
		LatDist:   t.LatDist,
		RelSpeed:  t.RelSpeed,
		NewTrack:  t.NewTrack != 0,
		Timestamp: FromUnixSeconds(t.Timestamp),
	}
}

// wire types use pointers so missing required fields can be detected.
type wireTrack struct {
	TrackID   *int            `json:"track_id"`
	LongDist  *float64        `json:"long_dist"`
	LatDist   *float64        `json:"lat_dist"`
	RelSpeed  *float64        `json:"rel_speed"`
	NewTrack  json.RawMessage `json:"new_track"`
	Timestamp *float64        `json:"timestamp"`
	Raw       json.RawMessage `json:"raw"`
}

type wireRecord struct {
	Timestamp  *float64     `json:"timestamp"`
	FrameIndex *int         `json:"frame_index"`
	Tracks     *[]wireTrack `json:"tracks"`
}

func malformed(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedRecord, line, fmt.Sprintf(format, args...))
}

// newTrackFlag accepts 0/1 integers and booleans.
func newTrackFlag(raw json.RawMessage) (int, bool) {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "0", "false":
		return 0, true
	case "1", "true":
		return 1, true
	}
	return 0, false
}

func parseLine(n int, line []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return Record{}, malformed(n, "%v", err)
	}
	if dec.More() {
		return Record{}, malformed(n, "trailing data")
	}
	switch {
	case w.Timestamp == nil:
		return Record{}, malformed(n, "missing timestamp")
	case w.FrameIndex == nil:
		return Record{}, malformed(n, "missing frame_index")
	case w.Tracks == nil:
		return Record{}, malformed(n, "missing tracks")
	}
	rec := Record{Timestamp: *w.Timestamp, FrameIndex: *w.FrameIndex, Tracks: make([]TrackRecord, 0, len(*w.Tracks))}
	for i, wt := range *w.Tracks {
		if wt.TrackID == nil || wt.LongDist == nil || wt.LatDist == nil || wt.RelSpeed == nil {
			return Record{}, malformed(n, "track %d: missing track_id, long_dist, lat_dist or rel_speed", i)
		}
		flag, ok := newTrackFlag(wt.NewTrack)
		if !ok {
			return Record{}, malformed(n, "track %d: bad new_track %s", i, wt.NewTrack)
		}
		ts := rec.Timestamp
		if wt.Timestamp != nil {
			ts = *wt.Timestamp
		}
		rec.Tracks = append(rec.Tracks, TrackRecord{
			TrackID:   *wt.TrackID,
			LongDist:  *wt.LongDist,
			LatDist:   *wt.LatDist,
			RelSpeed:  *wt.RelSpeed,
			NewTrack:  flag,
			Timestamp: ts,
			Raw:       wt.Raw,
		})
	}
	return rec, nil
}

// Load reads and validates a whole JSON Lines stream. Blank lines are
// skipped. Any schema mismatch or record timestamp going backwards fails
// the load with the offending line number.
func Load(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	var out []Record
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := parseLine(n, line)
		if err != nil {
			return nil, err
		}
		if k := len(out); k > 0 && rec.Timestamp < out[k-1].Timestamp {
			return nil, malformed(n, "timestamp %.6f is earlier than the previous record (%.6f)", rec.Timestamp, out[k-1].Timestamp)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay stream: %w", err)
	}
	return out, nil
}

// Open loads the track file at path. A session directory is resolved to
// its track file first.
func Open(path string) ([]Record, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path, err = ResolveSession(path)
		if err != nil {
			return nil, err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close()
	recs, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return recs, nil
}

// ResolveSession finds the single *_tracks.jsonl file in dir.
func ResolveSession(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+TracksSuffix))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s file in %s", TracksSuffix, dir)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%d %s files in %s, expected one", len(matches), TracksSuffix, dir)
}

// Encoder writes records as JSON Lines.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one record followed by a newline.
func (e *Encoder) Encode(rec Record) error {
	return e.enc.Encode(rec)
}
