package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultOverlayConfig(t *testing.T) {
	cfg := DefaultOverlayConfig()

	if cfg.FOVDegrees == nil || *cfg.FOVDegrees != 106 {
		t.Errorf("Expected FOVDegrees 106, got %v", cfg.FOVDegrees)
	}
	if cfg.TrackTimeout == nil || *cfg.TrackTimeout != "500ms" {
		t.Errorf("Expected TrackTimeout '500ms', got %v", cfg.TrackTimeout)
	}
	if cfg.OvertakeArrowDuration == nil || *cfg.OvertakeArrowDuration != "1s" {
		t.Errorf("Expected OvertakeArrowDuration '1s', got %v", cfg.OvertakeArrowDuration)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestEmptyConfigFallsBackToDefaults tests that every getter falls back when unset.
func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	got := EmptyOverlayConfig().Settings()
	want := DefaultOverlayConfig().Settings()
	if got != want {
		t.Errorf("Settings() mismatch:\n got  %+v\n want %+v", got, want)
	}

	if got.TrackCount != 3 {
		t.Errorf("TrackCount = %d, want 3", got.TrackCount)
	}
	if got.TrackTimeout != 500*time.Millisecond {
		t.Errorf("TrackTimeout = %v, want 500ms", got.TrackTimeout)
	}
	if !got.MirrorOutput {
		t.Error("MirrorOutput should default to true")
	}
	if got.MarkerVertical != "fixed" {
		t.Errorf("MarkerVertical = %q, want fixed", got.MarkerVertical)
	}
	if got.KeepAliveRateHz != 100 {
		t.Errorf("KeepAliveRateHz = %f, want 100", got.KeepAliveRateHz)
	}
}

func TestLoadOverlayConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "overlay.json")

	testJSON := `{
  "fov_degrees": 90,
  "mirror_output": false,
  "track_count": 5,
  "merge_radius": 2.5,
  "track_timeout": "250ms",
  "overtake_arrow_duration": "2s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadOverlayConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	s := cfg.Settings()
	if s.FOVDegrees != 90 {
		t.Errorf("FOVDegrees = %f, want 90", s.FOVDegrees)
	}
	if s.MirrorOutput {
		t.Error("MirrorOutput should be false")
	}
	if s.TrackCount != 5 {
		t.Errorf("TrackCount = %d, want 5", s.TrackCount)
	}
	if s.MergeRadius != 2.5 {
		t.Errorf("MergeRadius = %f, want 2.5", s.MergeRadius)
	}
	if s.TrackTimeout != 250*time.Millisecond {
		t.Errorf("TrackTimeout = %v, want 250ms", s.TrackTimeout)
	}
	if s.OvertakeArrowDuration != 2*time.Second {
		t.Errorf("OvertakeArrowDuration = %v, want 2s", s.OvertakeArrowDuration)
	}
	// Unset fields keep defaults.
	if s.MaxDistance != 120 {
		t.Errorf("MaxDistance = %f, want 120", s.MaxDistance)
	}
}

func TestLoadOverlayConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "overlay.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{`, "failed to parse"},
		{"fov too wide", "fov.json", `{"fov_degrees": 200}`, "fov_degrees"},
		{"zero track count", "count.json", `{"track_count": 0}`, "track_count"},
		{"negative radius", "radius.json", `{"merge_radius": -1}`, "merge_radius"},
		{"red below yellow", "warn.json", `{"warn_yellow_kph": 30, "warn_red_kph": 20}`, "warn_red_kph"},
		{"bad duration", "dur.json", `{"track_timeout": "soon"}`, "track_timeout"},
		{"negative duration", "neg.json", `{"overtake_arrow_duration": "-1s"}`, "overtake_arrow_duration"},
		{"zero refresh", "hz.json", `{"refresh_hz": 0}`, "refresh_hz"},
		{"unknown vertical", "vert.json", `{"marker_vertical": "diagonal"}`, "marker_vertical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := LoadOverlayConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOverlayConfig_MissingFile(t *testing.T) {
	if _, err := LoadOverlayConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOverlayConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(path, big, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadOverlayConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

// TestMustLoadDefaultConfig tests that the checked-in defaults match the built-in defaults.
func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if got, want := cfg.Settings(), DefaultOverlayConfig().Settings(); got != want {
		t.Errorf("defaults file drifted from built-in defaults:\n file %+v\n code %+v", got, want)
	}
}

func TestGetDuration_InvalidFallsBack(t *testing.T) {
	bad := "not-a-duration"
	cfg := &OverlayConfig{TrackTimeout: &bad}
	if got := cfg.GetTrackTimeout(); got != 500*time.Millisecond {
		t.Errorf("GetTrackTimeout() = %v, want fallback 500ms", got)
	}
}
