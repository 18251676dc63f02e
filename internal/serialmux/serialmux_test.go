package serialmux

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// TestNewSerialMux tests creation of a new SerialMux
func TestNewSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if mux == nil {
		t.Fatal("NewSerialMux returned nil")
	}
	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SerialMux subscribers map not initialized")
	}
}

// TestSerialMux_SubscribeUnsubscribe tests subscription bookkeeping
func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, _ := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("expected unique non-empty ids, got %q and %q", id1, id2)
	}

	mux.Unsubscribe(id2)
	if _, ok := <-ch2; ok {
		t.Error("Expected channel to be closed after Unsubscribe")
	}
	mux.Unsubscribe("non-existent-id")

	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 1 {
		t.Errorf("Expected 1 subscriber, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

// TestSerialMux_SendCommand tests CR termination of commands
func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	for _, cmd := range []string{"V", "O\r", "t1230\n"} {
		if err := mux.SendCommand(cmd); err != nil {
			t.Fatalf("SendCommand(%q) error = %v", cmd, err)
		}
	}
	if got, want := port.Written(), "V\rO\rt1230\r"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

// TestSerialMux_SendCommand_WriteError tests error handling in SendCommand
func TestSerialMux_SendCommand_WriteError(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	port.SetWriteError(errors.New("write failed"))

	if err := mux.SendCommand("O"); err == nil {
		t.Error("Expected error when write fails")
	}
}

// TestSerialMux_Initialise tests the adapter start-up sequence
func TestSerialMux_Initialise(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.Initialise(500000); err != nil {
		t.Fatalf("Initialise returned error: %v", err)
	}
	if got, want := port.Written(), "C\rS6\rO\r"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}

	if err := mux.Initialise(123); err == nil {
		t.Error("expected error for unsupported bitrate")
	}
}

// TestSerialMux_Monitor tests fan-out of CR-delimited lines
func TestSerialMux_Monitor(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.AddReadData([]byte("\rt21080102030405060708\r\az\r"))

	want := []string{"t21080102030405060708", "\a", "z"}
	for _, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("line = %q, want %q", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %q", w)
		}
	}

	port.Close()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Monitor() = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after port close")
	}
}

// TestSerialMux_Monitor_ContextCancel tests that Monitor honours cancellation
func TestSerialMux_Monitor_ContextCancel(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	port.Close()
}

// TestSerialMux_Close tests closing the serial mux
func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.Closed() {
		t.Error("port should be closed")
	}
	if !strings.HasSuffix(port.Written(), "C\r") {
		t.Errorf("expected channel close command, got %q", port.Written())
	}
	// second close is a no-op
	if err := mux.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"t1230", LineTypeFrame},
		{"T0000012380102030405060708", LineTypeFrame},
		{"z", LineTypeAck},
		{"\a", LineTypeError},
		{"F00", LineTypeStatus},
		{"V1013", LineTypeStatus},
		{"", LineTypeUnknown},
		{"hello", LineTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyLine(tt.line); got != tt.want {
			t.Errorf("ClassifyLine(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestBitrateCommand(t *testing.T) {
	if got, err := BitrateCommand(500000); err != nil || got != "S6" {
		t.Errorf("BitrateCommand(500000) = %q, %v", got, err)
	}
	if _, err := BitrateCommand(42); err == nil {
		t.Error("expected error for unsupported bitrate")
	}
}
