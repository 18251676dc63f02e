// Package monitor exposes the live overlay state over HTTP: debug JSON
// endpoints, an echarts view of the current frame and a websocket stream of
// render frames.
package monitor

import (
	"encoding/json"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

var logf = monitoring.Subsystem("monitor")

// FramePath is where the websocket stream is mounted.
const FramePath = "/ws/frames"

// FrameSource provides the most recent render frame.
type FrameSource interface {
	Latest() pipeline.RenderFrame
}

// HealthSource provides session health.
type HealthSource interface {
	Health() session.Health
}

// Server holds the sources behind the debug routes.
type Server struct {
	registry *tracks.Registry
	frames   FrameSource
	health   HealthSource
	hub      *Hub
}

// NewServer builds a server. health may be nil.
func NewServer(registry *tracks.Registry, frames FrameSource, health HealthSource) *Server {
	return &Server{registry: registry, frames: frames, health: health, hub: NewHub()}
}

// Hub returns the websocket hub; the cadence loop broadcasts into it.
func (s *Server) Hub() *Hub { return s.hub }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logf("write json: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// AttachAdminRoutes registers the debug endpoints under /debug/ and the
// frame stream at FramePath.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("tracks", "live radar tracks (JSON)", func(w http.ResponseWriter, r *http.Request) {
		snap := s.registry.Snapshot()
		writeJSON(w, map[string]any{
			"taken":  snap.Taken(),
			"count":  snap.Len(),
			"tracks": snap.Tracks(),
		})
	})

	debug.HandleFunc("frame", "latest render frame (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if s.frames == nil {
			writeJSONError(w, http.StatusNotFound, "no frame source")
			return
		}
		writeJSON(w, s.frames.Latest())
	})

	debug.HandleFunc("health", "bus, keep-alive and decoder health (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if s.health == nil {
			writeJSONError(w, http.StatusNotFound, "no live session")
			return
		}
		writeJSON(w, s.health.Health())
	})

	debug.HandleFunc("overlay-chart", "top-down chart of the latest frame", s.handleOverlayChart)

	mux.Handle(FramePath, s.hub)
}
