package pose

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/rovermap/internal/units"
)

// Status is the read-only view of the estimator published to the UI, HTTP
// and MQTT sinks. It is a value copy and never aliases estimator state.
type Status struct {
	X             float64   `json:"x_cm"`
	Y             float64   `json:"y_cm"`
	HeadingDeg    float64   `json:"heading_deg"`
	RangeCM       *float64  `json:"range_cm"`
	Temp          *float64  `json:"temp"`
	Moving        bool      `json:"moving"`
	Obstacles     int       `json:"obstacles"`
	TempLabels    int       `json:"temp_labels"`
	TrailSegments int       `json:"trail_segments"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Status builds the display snapshot. Heading is normalised to [0, 360).
func (e *Estimator) Status(obstacles int) Status {
	s := e.Sensors()
	return Status{
		X:          e.pose.Position.X,
		Y:          e.pose.Position.Y,
		HeadingDeg: units.HeadingDegrees(e.pose.Heading),
		RangeCM:    s.RangeCM,
		Temp:       s.Temp,
		Moving:     e.pose.Moving,
		Obstacles:  obstacles,
		UpdatedAt:  e.pose.LastUpdate,
	}
}

// String renders the one-line status text shown under the map.
func (s Status) String() string {
	line := fmt.Sprintf("x=%.1fcm  y=%.1fcm  heading=%.1f°  range=%.1fcm  temp=%.1fF  points=%d  moving=%t",
		s.X, s.Y, s.HeadingDeg, orNaN(s.RangeCM), orNaN(s.Temp), s.Obstacles, s.Moving)
	if s.LastError != "" {
		line += "  serial error: " + s.LastError
	}
	return line
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
