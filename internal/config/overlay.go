package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical overlay defaults file.
const DefaultConfigPath = "config/overlay.defaults.json"

// OverlayConfig is the on-disk configuration for the radar overlay. Every
// field is optional; the Get* accessors fall back to the documented default
// so partial configs are safe.
type OverlayConfig struct {
	// Projection
	FOVDegrees   *float64 `json:"fov_degrees,omitempty"`
	MirrorOutput *bool    `json:"mirror_output,omitempty"`
	// MarkerVertical is "fixed" (top row) or "distance" (near is low).
	MarkerVertical *string `json:"marker_vertical,omitempty"`

	// Track selection
	TrackCount   *int     `json:"track_count,omitempty"`
	MaxDistance  *float64 `json:"max_distance,omitempty"`
	MergeRadius  *float64 `json:"merge_radius,omitempty"`
	TrackTimeout *string  `json:"track_timeout,omitempty"` // duration string like "500ms"

	// Marker colouring
	WarnYellowKPH *float64 `json:"warn_yellow_kph,omitempty"`
	WarnRedKPH    *float64 `json:"warn_red_kph,omitempty"`

	// Overtake warning
	OvertakeTimeThreshold *float64 `json:"overtake_time_threshold,omitempty"` // seconds
	OvertakeMinClosingKPH *float64 `json:"overtake_min_closing_kph,omitempty"`
	OvertakeMinLateral    *float64 `json:"overtake_min_lateral,omitempty"`
	OvertakeArrowDuration *string  `json:"overtake_arrow_duration,omitempty"` // duration string like "1s"

	// Cadence
	RefreshHz       *float64 `json:"refresh_hz,omitempty"`
	KeepAliveRateHz *float64 `json:"keepalive_rate_hz,omitempty"`
}

// Settings is the resolved, read-only configuration injected into the
// pipeline. It carries no optional fields.
type Settings struct {
	FOVDegrees            float64       `json:"fov_degrees"`
	MirrorOutput          bool          `json:"mirror_output"`
	MarkerVertical        string        `json:"marker_vertical"`
	TrackCount            int           `json:"track_count"`
	MaxDistance           float64       `json:"max_distance"`
	MergeRadius           float64       `json:"merge_radius"`
	TrackTimeout          time.Duration `json:"track_timeout"`
	WarnYellowKPH         float64       `json:"warn_yellow_kph"`
	WarnRedKPH            float64       `json:"warn_red_kph"`
	OvertakeTimeThreshold float64       `json:"overtake_time_threshold"`
	OvertakeMinClosingKPH float64       `json:"overtake_min_closing_kph"`
	OvertakeMinLateral    float64       `json:"overtake_min_lateral"`
	OvertakeArrowDuration time.Duration `json:"overtake_arrow_duration"`
	RefreshHz             float64       `json:"refresh_hz"`
	KeepAliveRateHz       float64       `json:"keepalive_rate_hz"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyOverlayConfig returns an OverlayConfig with all fields set to nil.
func EmptyOverlayConfig() *OverlayConfig {
	return &OverlayConfig{}
}

// DefaultOverlayConfig returns a config with every field populated from the
// built-in defaults. It matches config/overlay.defaults.json.
func DefaultOverlayConfig() *OverlayConfig {
	return &OverlayConfig{
		FOVDegrees:            ptrFloat64(defaultFOVDegrees),
		MirrorOutput:          ptrBool(defaultMirrorOutput),
		MarkerVertical:        ptrString(defaultMarkerVertical),
		TrackCount:            ptrInt(defaultTrackCount),
		MaxDistance:           ptrFloat64(defaultMaxDistance),
		MergeRadius:           ptrFloat64(defaultMergeRadius),
		TrackTimeout:          ptrString(defaultTrackTimeout.String()),
		WarnYellowKPH:         ptrFloat64(defaultWarnYellowKPH),
		WarnRedKPH:            ptrFloat64(defaultWarnRedKPH),
		OvertakeTimeThreshold: ptrFloat64(defaultOvertakeTimeThreshold),
		OvertakeMinClosingKPH: ptrFloat64(defaultOvertakeMinClosingKPH),
		OvertakeMinLateral:    ptrFloat64(defaultOvertakeMinLateral),
		OvertakeArrowDuration: ptrString(defaultOvertakeArrowDuration.String()),
		RefreshHz:             ptrFloat64(defaultRefreshHz),
		KeepAliveRateHz:       ptrFloat64(defaultKeepAliveRateHz),
	}
}

const (
	defaultFOVDegrees            = 106.0
	defaultMirrorOutput          = true
	defaultMarkerVertical        = "fixed"
	defaultTrackCount            = 3
	defaultMaxDistance           = 120.0
	defaultMergeRadius           = 1.0
	defaultTrackTimeout          = 500 * time.Millisecond
	defaultWarnYellowKPH         = 10.0
	defaultWarnRedKPH            = 20.0
	defaultOvertakeTimeThreshold = 1.0
	defaultOvertakeMinClosingKPH = 5.0
	defaultOvertakeMinLateral    = 0.5
	defaultOvertakeArrowDuration = time.Second
	defaultRefreshHz             = 30.0
	defaultKeepAliveRateHz       = 100.0
)

// LoadOverlayConfig loads an OverlayConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadOverlayConfig(path string) (*OverlayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyOverlayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical overlay defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *OverlayConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/radar-overlay/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadOverlayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *OverlayConfig) Validate() error {
	if c.FOVDegrees != nil {
		if v := *c.FOVDegrees; !finite(v) || v <= 0 || v >= 180 {
			return fmt.Errorf("fov_degrees must be in (0, 180), got %f", v)
		}
	}
	if c.MarkerVertical != nil {
		switch *c.MarkerVertical {
		case "fixed", "distance":
		default:
			return fmt.Errorf("marker_vertical must be \"fixed\" or \"distance\", got %q", *c.MarkerVertical)
		}
	}
	if c.TrackCount != nil && *c.TrackCount < 1 {
		return fmt.Errorf("track_count must be at least 1, got %d", *c.TrackCount)
	}
	if c.MaxDistance != nil {
		if v := *c.MaxDistance; !finite(v) || v <= 0 {
			return fmt.Errorf("max_distance must be positive, got %f", v)
		}
	}
	if c.MergeRadius != nil {
		if v := *c.MergeRadius; !finite(v) || v < 0 {
			return fmt.Errorf("merge_radius must be non-negative, got %f", v)
		}
	}
	if c.WarnYellowKPH != nil && *c.WarnYellowKPH < 0 {
		return fmt.Errorf("warn_yellow_kph must be non-negative, got %f", *c.WarnYellowKPH)
	}
	if c.GetWarnRedKPH() < c.GetWarnYellowKPH() {
		return fmt.Errorf("warn_red_kph (%f) must not be below warn_yellow_kph (%f)", c.GetWarnRedKPH(), c.GetWarnYellowKPH())
	}
	if c.OvertakeTimeThreshold != nil {
		if v := *c.OvertakeTimeThreshold; !finite(v) || v <= 0 {
			return fmt.Errorf("overtake_time_threshold must be positive, got %f", v)
		}
	}
	if c.OvertakeMinClosingKPH != nil && *c.OvertakeMinClosingKPH < 0 {
		return fmt.Errorf("overtake_min_closing_kph must be non-negative, got %f", *c.OvertakeMinClosingKPH)
	}
	if c.OvertakeMinLateral != nil && *c.OvertakeMinLateral < 0 {
		return fmt.Errorf("overtake_min_lateral must be non-negative, got %f", *c.OvertakeMinLateral)
	}
	if err := validateDuration("track_timeout", c.TrackTimeout); err != nil {
		return err
	}
	if err := validateDuration("overtake_arrow_duration", c.OvertakeArrowDuration); err != nil {
		return err
	}
	if c.RefreshHz != nil {
		if v := *c.RefreshHz; !finite(v) || v <= 0 {
			return fmt.Errorf("refresh_hz must be positive, got %f", v)
		}
	}
	if c.KeepAliveRateHz != nil {
		if v := *c.KeepAliveRateHz; !finite(v) || v <= 0 {
			return fmt.Errorf("keepalive_rate_hz must be positive, got %f", v)
		}
	}
	return nil
}

func validateDuration(name string, s *string) error {
	if s == nil || *s == "" {
		return nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", name, d)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Settings resolves the config into the read-only form consumed by the
// pipeline.
func (c *OverlayConfig) Settings() Settings {
	return Settings{
		FOVDegrees:            c.GetFOVDegrees(),
		MirrorOutput:          c.GetMirrorOutput(),
		MarkerVertical:        c.GetMarkerVertical(),
		TrackCount:            c.GetTrackCount(),
		MaxDistance:           c.GetMaxDistance(),
		MergeRadius:           c.GetMergeRadius(),
		TrackTimeout:          c.GetTrackTimeout(),
		WarnYellowKPH:         c.GetWarnYellowKPH(),
		WarnRedKPH:            c.GetWarnRedKPH(),
		OvertakeTimeThreshold: c.GetOvertakeTimeThreshold(),
		OvertakeMinClosingKPH: c.GetOvertakeMinClosingKPH(),
		OvertakeMinLateral:    c.GetOvertakeMinLateral(),
		OvertakeArrowDuration: c.GetOvertakeArrowDuration(),
		RefreshHz:             c.GetRefreshHz(),
		KeepAliveRateHz:       c.GetKeepAliveRateHz(),
	}
}

// GetFOVDegrees returns the fov_degrees value or the default.
func (c *OverlayConfig) GetFOVDegrees() float64 {
	if c.FOVDegrees == nil {
		return defaultFOVDegrees
	}
	return *c.FOVDegrees
}

// GetMirrorOutput returns the mirror_output value or the default.
func (c *OverlayConfig) GetMirrorOutput() bool {
	if c.MirrorOutput == nil {
		return defaultMirrorOutput
	}
	return *c.MirrorOutput
}

// GetMarkerVertical returns the marker_vertical value or the default.
func (c *OverlayConfig) GetMarkerVertical() string {
	if c.MarkerVertical == nil || *c.MarkerVertical == "" {
		return defaultMarkerVertical
	}
	return *c.MarkerVertical
}

// GetTrackCount returns the track_count value or the default.
func (c *OverlayConfig) GetTrackCount() int {
	if c.TrackCount == nil {
		return defaultTrackCount
	}
	return *c.TrackCount
}

// GetMaxDistance returns the max_distance value or the default.
func (c *OverlayConfig) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return defaultMaxDistance
	}
	return *c.MaxDistance
}

// GetMergeRadius returns the merge_radius value or the default.
func (c *OverlayConfig) GetMergeRadius() float64 {
	if c.MergeRadius == nil {
		return defaultMergeRadius
	}
	return *c.MergeRadius
}

// GetTrackTimeout parses and returns the TrackTimeout as a time.Duration.
func (c *OverlayConfig) GetTrackTimeout() time.Duration {
	return parseDurationOr(c.TrackTimeout, defaultTrackTimeout)
}

// GetWarnYellowKPH returns the warn_yellow_kph value or the default.
func (c *OverlayConfig) GetWarnYellowKPH() float64 {
	if c.WarnYellowKPH == nil {
		return defaultWarnYellowKPH
	}
	return *c.WarnYellowKPH
}

// GetWarnRedKPH returns the warn_red_kph value or the default.
func (c *OverlayConfig) GetWarnRedKPH() float64 {
	if c.WarnRedKPH == nil {
		return defaultWarnRedKPH
	}
	return *c.WarnRedKPH
}

// GetOvertakeTimeThreshold returns the overtake_time_threshold value (seconds) or the default.
func (c *OverlayConfig) GetOvertakeTimeThreshold() float64 {
	if c.OvertakeTimeThreshold == nil {
		return defaultOvertakeTimeThreshold
	}
	return *c.OvertakeTimeThreshold
}

// GetOvertakeMinClosingKPH returns the overtake_min_closing_kph value or the default.
func (c *OverlayConfig) GetOvertakeMinClosingKPH() float64 {
	if c.OvertakeMinClosingKPH == nil {
		return defaultOvertakeMinClosingKPH
	}
	return *c.OvertakeMinClosingKPH
}

// GetOvertakeMinLateral returns the overtake_min_lateral value or the default.
func (c *OverlayConfig) GetOvertakeMinLateral() float64 {
	if c.OvertakeMinLateral == nil {
		return defaultOvertakeMinLateral
	}
	return *c.OvertakeMinLateral
}

// GetOvertakeArrowDuration parses and returns the OvertakeArrowDuration as a time.Duration.
func (c *OverlayConfig) GetOvertakeArrowDuration() time.Duration {
	return parseDurationOr(c.OvertakeArrowDuration, defaultOvertakeArrowDuration)
}

// GetRefreshHz returns the refresh_hz value or the default.
func (c *OverlayConfig) GetRefreshHz() float64 {
	if c.RefreshHz == nil {
		return defaultRefreshHz
	}
	return *c.RefreshHz
}

// GetKeepAliveRateHz returns the keepalive_rate_hz value or the default.
func (c *OverlayConfig) GetKeepAliveRateHz() float64 {
	if c.KeepAliveRateHz == nil {
		return defaultKeepAliveRateHz
	}
	return *c.KeepAliveRateHz
}

func parseDurationOr(s *string, fallback time.Duration) time.Duration {
	if s == nil || *s == "" {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback // default on parse error
	}
	return d
}
