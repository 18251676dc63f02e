package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	if got.BaudRate != DefaultBaudRate {
		t.Errorf("BaudRate = %d, want %d", got.BaudRate, DefaultBaudRate)
	}
	if got.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", got.DataBits)
	}
	if got.StopBits != 1 {
		t.Errorf("StopBits = %d, want 1", got.StopBits)
	}
	if got.Parity != "N" {
		t.Errorf("Parity = %q, want %q", got.Parity, "N")
	}
}

func TestPortOptions_Normalise_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalise(); err == nil {
				t.Errorf("Normalise(%+v) expected error", tt.opts)
			}
		})
	}
}

func TestPortOptions_Normalise_ParityVariations(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "N"},
		{"none", "N"},
		{" e ", "E"},
		{"EVEN", "E"},
		{"odd", "O"},
	}
	for _, tt := range tests {
		got, err := PortOptions{Parity: tt.in}.Normalise()
		if err != nil {
			t.Fatalf("Normalise(%q) error = %v", tt.in, err)
		}
		if got.Parity != tt.want {
			t.Errorf("Normalise(%q).Parity = %q, want %q", tt.in, got.Parity, tt.want)
		}
	}
}

func TestPortOptions_Equal(t *testing.T) {
	a := PortOptions{}
	b := PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "none"}
	if !a.Equal(b) {
		t.Error("defaults should equal explicit defaults")
	}
	if a.Equal(PortOptions{BaudRate: 9600}) {
		t.Error("different baud rates should not be equal")
	}
	if a.Equal(PortOptions{DataBits: 42}) {
		t.Error("invalid options should never be equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{Parity: "E", StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != DefaultBaudRate {
		t.Errorf("BaudRate = %d, want %d", mode.BaudRate, DefaultBaudRate)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want EvenParity", mode.Parity)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want 2", mode.StopBits)
	}

	if _, err := (PortOptions{Parity: "Q"}).SerialMode(); err == nil {
		t.Error("expected error for invalid parity")
	}
}
