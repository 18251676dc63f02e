// Package units provides shared constants and conversions for speed units.
// The radar reports relative speed in m/s; thresholds are configured in km/h.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// mpsToKPH is the exact m/s to km/h factor.
const mpsToKPH = 3.6

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// MPSToKPH converts metres per second to kilometres per hour.
func MPSToKPH(mps float64) float64 { return mps * mpsToKPH }

// KPHToMPS converts kilometres per hour to metres per second.
func KPHToMPS(kph float64) float64 { return kph / mpsToKPH }

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units return the input unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return MPSToKPH(speedMPS)
	default:
		return speedMPS
	}
}
