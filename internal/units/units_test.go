package units

import (
	"math"
	"testing"
)

func TestToCM(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		unit     string
		expected float64
	}{
		{"nominal rover speed in/s", 18.3, IN, 46.482},
		{"cm passthrough", 12.5, CM, 12.5},
		{"metres", 1.2, M, 120},
		{"feet", 1, FEET, 30.48},
		{"unknown units unchanged", 7, "furlong", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToCM(tt.value, tt.unit)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ToCM(%f, %s) = %f, want %f", tt.value, tt.unit, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidLengthUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	if IsValid("mph") {
		t.Error("IsValid(\"mph\") = true, want false")
	}
	if GetValidUnitsString() == "" {
		t.Error("GetValidUnitsString() returned empty string")
	}
}

func TestHeadingDegrees(t *testing.T) {
	tests := []struct {
		name string
		rad  float64
		want float64
	}{
		{"zero", 0, 0},
		{"quarter turn left", math.Pi / 2, 90},
		{"quarter turn right wraps", -math.Pi / 2, 270},
		{"full turn wraps to zero", 2 * math.Pi, 0},
		{"several turns", 5*math.Pi + math.Pi/2, 270},
		{"tiny negative stays in range", -1e-17, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeadingDegrees(tt.rad)
			if got < 0 || got >= 360 {
				t.Fatalf("HeadingDegrees(%v) = %v, outside [0,360)", tt.rad, got)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("HeadingDegrees(%v) = %v, want %v", tt.rad, got, tt.want)
			}
		})
	}
}

func TestRadiansDegreesRoundTrip(t *testing.T) {
	for _, deg := range []float64{-720, -90, 0, 45, 180, 1234.5} {
		if got := Degrees(Radians(deg)); math.Abs(got-deg) > 1e-9 {
			t.Errorf("Degrees(Radians(%v)) = %v", deg, got)
		}
	}
}
