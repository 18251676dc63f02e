package serialmux

import "fmt"

// Line classes emitted by an SLCAN adapter.
const (
	LineTypeFrame   = "frame"  // t/T/r/R received frame
	LineTypeAck     = "ack"    // z/Z transmit acknowledgement
	LineTypeError   = "error"  // BEL
	LineTypeStatus  = "status" // F/V/N responses
	LineTypeUnknown = "unknown"
)

// ClassifyLine inspects a line read from the adapter and returns a line type
// token.
func ClassifyLine(line string) string {
	if line == "\a" {
		return LineTypeError
	}
	if line == "" {
		return LineTypeUnknown
	}
	switch line[0] {
	case 't', 'T', 'r', 'R':
		return LineTypeFrame
	case 'z', 'Z':
		return LineTypeAck
	case 'F', 'V', 'v', 'N':
		return LineTypeStatus
	}
	return LineTypeUnknown
}

var bitrateCodes = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// BitrateCommand returns the SLCAN setup command for a standard CAN bitrate.
func BitrateCommand(bitrate int) (string, error) {
	code, ok := bitrateCodes[bitrate]
	if !ok {
		return "", fmt.Errorf("unsupported SLCAN bitrate %d", bitrate)
	}
	return code, nil
}
