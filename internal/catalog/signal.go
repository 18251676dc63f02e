package catalog

import (
	"math"

	"go.einride.tech/can"
)

func toData(b []byte) can.Data {
	var d can.Data
	copy(d[:], b)
	return d
}

// Signal describes one bit field inside a payload. Start follows DBC
// numbering: for big-endian (Motorola) signals it is the most significant
// bit.
type Signal struct {
	Name      string  `json:"name"`
	Start     uint8   `json:"start"`
	Size      uint8   `json:"size"`
	BigEndian bool    `json:"big_endian"`
	Signed    bool    `json:"signed"`
	Factor    float64 `json:"factor"`
	Offset    float64 `json:"offset"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Unit      string  `json:"unit,omitempty"`
}

func (s Signal) factor() float64 {
	if s.Factor == 0 {
		return 1
	}
	return s.Factor
}

// Raw extracts the raw integer value.
func (s Signal) Raw(d *can.Data) int64 {
	switch {
	case s.BigEndian && s.Signed:
		return d.SignedBitsBigEndian(s.Start, s.Size)
	case s.BigEndian:
		return int64(d.UnsignedBitsBigEndian(s.Start, s.Size))
	case s.Signed:
		return d.SignedBitsLittleEndian(s.Start, s.Size)
	default:
		return int64(d.UnsignedBitsLittleEndian(s.Start, s.Size))
	}
}

// Decode returns the physical value.
func (s Signal) Decode(d *can.Data) float64 {
	return float64(s.Raw(d))*s.factor() + s.Offset
}

// Encode writes the physical value v, rounded to the nearest raw step.
func (s Signal) Encode(d *can.Data, v float64) {
	raw := int64(math.Round((v - s.Offset) / s.factor()))
	switch {
	case s.BigEndian && s.Signed:
		d.SetSignedBitsBigEndian(s.Start, s.Size, raw)
	case s.BigEndian:
		d.SetUnsignedBitsBigEndian(s.Start, s.Size, uint64(raw))
	case s.Signed:
		d.SetSignedBitsLittleEndian(s.Start, s.Size, raw)
	default:
		d.SetUnsignedBitsLittleEndian(s.Start, s.Size, uint64(raw))
	}
}

// InRange reports whether v lies in [Min, Max]. A zero range means the
// signal is unbounded.
func (s Signal) InRange(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if s.Min == 0 && s.Max == 0 {
		return true
	}
	const eps = 1e-9
	return v >= s.Min-eps && v <= s.Max+eps
}
