// Package capture records live track snapshots, and optionally the raw CAN
// frames behind them, into a session directory that replay can read back.
package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/config"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/replay"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

var logf = monitoring.Subsystem("capture")

// ErrSessionExists is returned when the session directory already exists
// and Overwrite is not set.
var ErrSessionExists = errors.New("capture session already exists")

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("recorder is closed")

// ErrInvalidSessionName is returned for names that would leave the output
// directory.
var ErrInvalidSessionName = errors.New("invalid capture session name")

// validSessionName accepts a single local path element: no separators, no
// "..", not absolute.
func validSessionName(name string) bool {
	return filepath.IsLocal(name) && filepath.Base(name) == name && name != "."
}

// MetaVersion is the meta file format version.
const MetaVersion = "1.0"

// DefaultFlushEvery is the number of records between flushes.
const DefaultFlushEvery = 30

// Meta describes a capture session.
type Meta struct {
	Version      string           `json:"version"`
	SessionID    string           `json:"session_id"`
	CreatedUTC   string           `json:"created_utc"`
	RadarChannel string           `json:"radar_channel,omitempty"`
	CarChannel   string           `json:"car_channel,omitempty"`
	TrackTimeout float64          `json:"track_timeout"`
	Duration     float64          `json:"duration_limit,omitempty"`
	Settings     *config.Settings `json:"settings,omitempty"`
	FramesFile   string           `json:"frames_file,omitempty"`
	TotalRecords int              `json:"total_records"`
	TotalFrames  int              `json:"total_frames"`
	Start        float64          `json:"start,omitempty"`
	End          float64          `json:"end,omitempty"`
}

// Options configures NewRecorder.
type Options struct {
	OutputDir string
	// SessionName defaults to the UTC start time, e.g. 20260301_120000.
	SessionName string
	Overwrite   bool
	// RawFrames also writes every CAN frame to <session>_frames.pcap.
	RawFrames    bool
	RadarChannel string
	CarChannel   string
	Duration     time.Duration
	Settings     *config.Settings
	TrackTimeout time.Duration
	FlushEvery   int
	Now          func() time.Time
}

// Recorder writes one capture session.
type Recorder struct {
	dir        string
	name       string
	meta       Meta
	flushEvery int

	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	enc     *replay.Encoder
	frames  *canbus.PcapWriter
	records int
	closed  bool
}

// NewRecorder creates <OutputDir>/<SessionName>/ and opens the track file.
func NewRecorder(opts Options) (*Recorder, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	created := now().UTC()
	name := opts.SessionName
	if name == "" {
		name = created.Format("20060102_150405")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "captures"
	}
	if !validSessionName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionName, name)
	}
	dir := filepath.Join(opts.OutputDir, name)
	if _, err := os.Stat(dir); err == nil && !opts.Overwrite {
		return nil, fmt.Errorf("%w: %s (use overwrite to replace it)", ErrSessionExists, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, name+replay.TracksSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to create track file: %w", err)
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	r := &Recorder{
		dir:        dir,
		name:       name,
		flushEvery: flushEvery,
		file:       f,
		buf:        bufio.NewWriter(f),
		meta: Meta{
			Version:      MetaVersion,
			SessionID:    uuid.NewString(),
			CreatedUTC:   created.Format(time.RFC3339Nano),
			RadarChannel: opts.RadarChannel,
			CarChannel:   opts.CarChannel,
			TrackTimeout: opts.TrackTimeout.Seconds(),
			Duration:     opts.Duration.Seconds(),
			Settings:     opts.Settings,
		},
	}
	r.enc = replay.NewEncoder(r.buf)

	if opts.RawFrames {
		r.meta.FramesFile = name + "_frames.pcap"
		r.frames, err = canbus.CreatePcapWriter(filepath.Join(dir, r.meta.FramesFile))
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	// Meta is written up front so an interrupted capture is still readable.
	if err := r.writeMeta(); err != nil {
		r.Close()
		return nil, err
	}
	logf("recording to %s (session %s)", dir, r.meta.SessionID)
	return r, nil
}

// Dir returns the session directory.
func (r *Recorder) Dir() string { return r.dir }

// SessionID returns the generated session id.
func (r *Recorder) SessionID() string { return r.meta.SessionID }

// Record appends one snapshot as the next record.
func (r *Recorder) Record(snap tracks.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	rec := replay.NewRecord(r.records, snap)
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if r.records == 0 {
		r.meta.Start = rec.Timestamp
	}
	r.meta.End = rec.Timestamp
	r.records++
	if r.records%r.flushEvery == 0 {
		return r.buf.Flush()
	}
	return nil
}

// RecordFrame writes a raw frame when raw capture is enabled.
func (r *Recorder) RecordFrame(f canbus.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.frames == nil {
		return nil
	}
	return r.frames.WriteFrame(f)
}

// Records returns how many records have been written.
func (r *Recorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

func (r *Recorder) writeMeta() error {
	data, err := json.MarshalIndent(r.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	path := filepath.Join(r.dir, r.name+"_meta.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}
	return nil
}

// Close flushes the track file and finalises the meta file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.buf.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.frames != nil {
		r.meta.TotalFrames = r.frames.Frames()
		if err := r.frames.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.meta.TotalRecords = r.records
	if err := r.writeMeta(); err != nil {
		errs = append(errs, err)
	}
	logf("capture closed: %d records in %s", r.records, r.dir)
	return errors.Join(errs...)
}
