package serialmux

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackRequest appears to come from localhost so tsweb allows debug
// access.
func loopbackRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func postCommand(t *testing.T, h http.Handler, command *string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	if command != nil {
		form.Set("command", *command)
	}
	req := loopbackRequest(http.MethodPost, "/debug/slcan-command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func ptr(s string) *string { return &s }

func TestSLCANCommandRoute(t *testing.T) {
	port := NewTestableSerialPort()
	httpMux := http.NewServeMux()
	NewSerialMux(port).AttachAdminRoutes(httpMux)

	tests := []struct {
		name    string
		command *string
		status  int
		body    string
	}{
		{"version query", ptr("V"), http.StatusOK, `sent "V" to adapter`},
		{"transmit line", ptr("t1410400000046"), http.StatusOK, "t1410400000046"},
		{"surrounding whitespace", ptr("  O \r\n"), http.StatusOK, `sent "O"`},
		{"empty", ptr(""), http.StatusBadRequest, "Missing command"},
		{"whitespace only", ptr("   "), http.StatusBadRequest, "Missing command"},
		{"missing parameter", nil, http.StatusBadRequest, "Missing command"},
		{"two commands", ptr("C\rO"), http.StatusBadRequest, "One command per request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postCommand(t, httpMux, tt.command)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
	assert.Equal(t, "V\rt1410400000046\rO\r", port.Written())
}

func TestSLCANCommandRouteMethods(t *testing.T) {
	httpMux := http.NewServeMux()
	NewSerialMux(NewTestableSerialPort()).AttachAdminRoutes(httpMux)

	for _, method := range []string{http.MethodGet, http.MethodPut} {
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, loopbackRequest(method, "/debug/slcan-command", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
	}

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, loopbackRequest(http.MethodPost, "/debug/slcan-tail", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSLCANCommandRouteWriteError(t *testing.T) {
	port := NewTestableSerialPort()
	port.SetWriteError(io.ErrShortWrite)
	httpMux := http.NewServeMux()
	NewSerialMux(port).AttachAdminRoutes(httpMux)

	w := postCommand(t, httpMux, ptr("V"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), io.ErrShortWrite.Error())
}

func TestSLCANTailStreamsAdapterLines(t *testing.T) {
	port := NewTestableSerialPort()
	sm := NewSerialMux(port)
	httpMux := http.NewServeMux()
	sm.AttachAdminRoutes(httpMux)
	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sm.Monitor(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/slcan-tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": ping\n", line)

	// The handler subscribed before the ping, so this line reaches it.
	port.AddReadData([]byte("t21080001020304050607\r"))
	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	assert.Equal(t, "data: t21080001020304050607\n", line)
}
