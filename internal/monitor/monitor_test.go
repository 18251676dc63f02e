package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
	"github.com/SamSkjord/uvc-radar-overlay/internal/projector"
	"github.com/SamSkjord/uvc-radar-overlay/internal/replay"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

var t0 = time.Unix(1700000000, 0)

type fixedFrames struct{ frame pipeline.RenderFrame }

func (f fixedFrames) Latest() pipeline.RenderFrame { return f.frame }

type fixedHealth struct{ h session.Health }

func (f fixedHealth) Health() session.Health { return f.h }

// loopbackRequest sets a loopback RemoteAddr so tsweb allows debug access.
func loopbackRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	reg := tracks.NewRegistry(time.Second, nil)
	require.NoError(t, reg.Upsert(3, tracks.Fields{LongDist: 12, LatDist: -1.5, RelSpeed: -4}, t0))
	require.NoError(t, reg.Upsert(9, tracks.Fields{LongDist: 40, LatDist: 2, RelSpeed: 1}, t0))

	frame := pipeline.RenderFrame{
		Timestamp: t0,
		Live:      2,
		Markers: []projector.Marker{
			{TrackID: 3, ScreenX: 0.3, ScreenY: 0.05, Class: projector.Caution},
		},
	}
	health := session.Health{Live: 2, Buses: []session.BusHealth{{Name: "radar", State: session.BusUp, Frames: 10}}}
	s := NewServer(reg, fixedFrames{frame}, fixedHealth{health})
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)
	return s, mux
}

func TestDebugTracks(t *testing.T) {
	_, mux := newTestServer(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/tracks"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count  int                 `json:"count"`
		Tracks []tracks.RadarTrack `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Tracks, 2)
	assert.Equal(t, 3, body.Tracks[0].ID)
}

func TestDebugFrameAndHealth(t *testing.T) {
	_, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/frame"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"color_class": "caution"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/health"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"radar"`)
}

func TestDebugHealthWithoutSession(t *testing.T) {
	s := NewServer(tracks.NewRegistry(time.Second, nil), nil, nil)
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/health", "/debug/frame"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, path))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestDebugRoutesRejectRemote(t *testing.T) {
	_, mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/debug/tracks", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOverlayChart(t *testing.T) {
	_, mux := newTestServer(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/overlay-chart"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "id 3")
	assert.Contains(t, body, "merged or out of range")
	assert.Contains(t, body, projector.Caution.Color())
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + FramePath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	s, mux := newTestServer(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Hub().Broadcast(pipeline.RenderFrame{Timestamp: t0, Cycle: 7, Live: 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got pipeline.RenderFrame
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, uint64(7), got.Cycle)
	assert.Equal(t, 1, got.Live)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub()
	c := &client{send: make(chan []byte, clientBuffer)}
	h.clients[c] = struct{}{}

	// Nobody drains c.send, so the queue fills and the client is dropped
	// instead of blocking the broadcaster.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < clientBuffer+1; i++ {
			h.Broadcast(pipeline.RenderFrame{Cycle: uint64(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Equal(t, 0, h.ClientCount())
	assert.Equal(t, uint64(1), h.Dropped())
}

func TestPlotSession(t *testing.T) {
	var recs []replay.Record
	for i := 0; i < 10; i++ {
		ts := t0.Add(time.Duration(i) * 100 * time.Millisecond)
		snap := tracks.NewSnapshot(ts, []tracks.RadarTrack{
			{ID: 1, LongDist: 30 - float64(i), LatDist: -2, RelSpeed: -5, LastSeen: ts},
			{ID: 2, LongDist: 50, LatDist: 1, RelSpeed: 0, LastSeen: ts},
		})
		recs = append(recs, replay.NewRecord(i, snap))
	}

	dir := t.TempDir()
	files, err := PlotSession(recs, dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, dir, filepath.Dir(f))
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestPlotSessionEmpty(t *testing.T) {
	_, err := PlotSession(nil, t.TempDir())
	assert.Error(t, err)
}
