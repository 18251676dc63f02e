package canbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN, the format written by
// candump -l and Wireshark for SocketCAN captures.
const LinkTypeCANSocketCAN = layers.LinkType(227)

const socketcanRecordLen = 16

// EncodeSocketCAN renders a frame in the 16-byte LINKTYPE_CAN_SOCKETCAN layout.
func EncodeSocketCAN(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, socketcanRecordLen)
	id := f.ID
	if f.Extended {
		id |= socketcanEFF
	}
	binary.BigEndian.PutUint32(buf[0:4], id)
	buf[4] = uint8(len(f.Data))
	copy(buf[8:], f.Data)
	return buf, nil
}

// DecodeSocketCAN parses a LINKTYPE_CAN_SOCKETCAN record. Error and remote
// frames are reported as ErrInvalidFrame.
func DecodeSocketCAN(b []byte) (Frame, error) {
	if len(b) < 8 {
		return Frame{}, fmt.Errorf("%w: record of %d bytes", ErrInvalidFrame, len(b))
	}
	raw := binary.BigEndian.Uint32(b[0:4])
	if raw&(socketcanERR|socketcanRTR) != 0 {
		return Frame{}, fmt.Errorf("%w: error or remote frame 0x%08X", ErrInvalidFrame, raw)
	}
	n := int(b[4])
	if n > 8 || 8+n > len(b) {
		return Frame{}, fmt.Errorf("%w: length %d in %d byte record", ErrInvalidFrame, n, len(b))
	}
	f := Frame{Data: append([]byte(nil), b[8:8+n]...)}
	if raw&socketcanEFF != 0 {
		f.Extended = true
		f.ID = raw & MaxExtendedID
	} else {
		f.ID = raw & MaxStandardID
	}
	return f, nil
}

// PcapSource replays a SocketCAN pcap as a read-only bus.
type PcapSource struct {
	name string
	path string
	// Speed scales inter-frame delays. Zero or negative delivers frames as
	// fast as possible.
	Speed float64
	clock timeutil.Clock

	mu     sync.Mutex
	closed bool
}

// NewPcapSource creates a replay bus for the given capture file.
func NewPcapSource(name, path string, speed float64, clock timeutil.Clock) *PcapSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PcapSource{name: name, path: path, Speed: speed, clock: clock}
}

func (p *PcapSource) Name() string { return p.name }

// Send is accepted and discarded so keep-alive traffic can target a replay.
func (p *PcapSource) Send(Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrBusClosed
	}
	return nil
}

// Run delivers every CAN frame in the capture stamped with its capture time.
func (p *PcapSource) Run(ctx context.Context, fn func(Frame)) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", p.path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read PCAP header %s: %w", p.path, err)
	}
	if r.LinkType() != LinkTypeCANSocketCAN {
		return fmt.Errorf("%s: unsupported link type %v", p.path, r.LinkType())
	}

	var last time.Time
	count, skipped := 0, 0
	for {
		if ctx.Err() != nil || p.isClosed() {
			return nil
		}
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			logf("PCAP replay of %s complete: %d frames, %d skipped", p.path, count, skipped)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", p.path, err)
		}

		if p.Speed > 0 && !last.IsZero() {
			delay := time.Duration(float64(ci.Timestamp.Sub(last)) / p.Speed)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-p.clock.After(delay):
				}
			}
		}
		last = ci.Timestamp

		frame, err := DecodeSocketCAN(data)
		if err != nil {
			skipped++
			continue
		}
		frame.Bus = p.name
		frame.Timestamp = ci.Timestamp
		count++
		fn(frame)
	}
}

func (p *PcapSource) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops an in-progress replay.
func (p *PcapSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// PcapWriter records frames to a SocketCAN pcap file.
type PcapWriter struct {
	mu     sync.Mutex
	file   *os.File
	w      *pcapgo.Writer
	frames int
}

// CreatePcapWriter creates path and writes the pcap file header.
func CreatePcapWriter(path string) (*PcapWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap %s: %w", path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, LinkTypeCANSocketCAN); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &PcapWriter{file: f, w: w}, nil
}

// WriteFrame appends one frame using its timestamp as the capture time.
func (pw *PcapWriter) WriteFrame(f Frame) error {
	rec, err := EncodeSocketCAN(f)
	if err != nil {
		return err
	}
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.file == nil {
		return ErrBusClosed
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     f.Timestamp,
		CaptureLength: len(rec),
		Length:        len(rec),
	}
	if err := pw.w.WritePacket(ci, rec); err != nil {
		return err
	}
	pw.frames++
	return nil
}

// Frames returns the number of frames written.
func (pw *PcapWriter) Frames() int {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.frames
}

// Close flushes and closes the file.
func (pw *PcapWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.file == nil {
		return nil
	}
	err := pw.file.Close()
	pw.file = nil
	return err
}
