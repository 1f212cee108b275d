// Package units provides shared constants and conversions for the length,
// speed and angle units that appear in telemetry and configuration.
package units

import "math"

// Length unit constants
const (
	CM   = "cm"
	IN   = "in"
	M    = "m"
	FEET = "ft"
)

// CMPerInch is the exact international inch.
const CMPerInch = 2.54

// ValidLengthUnits contains all valid length unit values
var ValidLengthUnits = []string{CM, IN, M, FEET}

// IsValid checks if the given unit is in the list of valid length units
func IsValid(unit string) bool {
	for _, validUnit := range ValidLengthUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "cm, in, m, ft"
}

// ToCM converts a length (or a length per second) in the given units to
// centimetres. Unknown units are returned unchanged.
func ToCM(value float64, unit string) float64 {
	switch unit {
	case CM:
		return value
	case IN:
		return value * CMPerInch
	case M:
		return value * 100
	case FEET:
		return value * 12 * CMPerInch
	default:
		return value
	}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// HeadingDegrees maps an unbounded heading in radians onto [0, 360) degrees
// for display. The sign follows floored modulo, so -90° reads as 270°.
func HeadingDegrees(rad float64) float64 {
	deg := math.Mod(Degrees(rad), 360)
	if deg < 0 {
		deg += 360
	}
	// -1e-15 + 360 rounds to 360 in float64
	if deg >= 360 {
		deg = 0
	}
	return deg
}
