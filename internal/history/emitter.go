package history

import (
	"math"
	"time"

	"github.com/banshee-data/rovermap/internal/pose"
)

// Obstacle is a sensed object located at the moment the rover stopped.
type Obstacle struct {
	X          float64   `json:"x_cm"`
	Y          float64   `json:"y_cm"`
	RangeCM    float64   `json:"range_cm"`
	HeadingRad float64   `json:"heading_rad"`
	At         time.Time `json:"at"`
}

// TempLabel is a temperature reading pinned to the rover's stop position.
type TempLabel struct {
	X     float64   `json:"x_cm"`
	Y     float64   `json:"y_cm"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// TrailSegment is one integration step of driven path.
type TrailSegment struct {
	X0 float64 `json:"x0_cm"`
	Y0 float64 `json:"y0_cm"`
	X1 float64 `json:"x1_cm"`
	Y1 float64 `json:"y1_cm"`
}

// Emission reports which records a stop produced.
type Emission struct {
	Obstacle *Obstacle
	Temp     *TempLabel
}

// Snapshot is a point-in-time copy of every sequence.
type Snapshot struct {
	Obstacles []Obstacle     `json:"obstacles"`
	Temps     []TempLabel    `json:"temps"`
	Trail     []TrailSegment `json:"trail"`
	Version   uint64         `json:"version"`
}

// Emitter derives observation records on stop events and keeps them, along
// with the trail, in bounded FIFO sequences. Like the estimator it is owned
// by one goroutine.
type Emitter struct {
	obstacles *Ring[Obstacle]
	temps     *Ring[TempLabel]
	trail     *Ring[TrailSegment]
	version   uint64
}

// NewEmitter returns an Emitter whose sequences share the same cap.
func NewEmitter(capacity int) *Emitter {
	return &Emitter{
		obstacles: NewRing[Obstacle](capacity),
		temps:     NewRing[TempLabel](capacity),
		trail:     NewRing[TrailSegment](capacity),
	}
}

// EmitStop derives records from the pose and sensors as of a stop. The
// obstacle needs a positive range; the temperature label needs any reading.
// Either may be skipped independently.
func (e *Emitter) EmitStop(p pose.Pose, s pose.SensorState, at time.Time) Emission {
	var em Emission

	if s.RangeCM != nil && *s.RangeCM > 0 {
		r := *s.RangeCM
		o := Obstacle{
			X:          p.Position.X + r*math.Cos(p.Heading),
			Y:          p.Position.Y + r*math.Sin(p.Heading),
			RangeCM:    r,
			HeadingRad: p.Heading,
			At:         at,
		}
		e.obstacles.Push(o)
		e.version++
		em.Obstacle = &o
	}

	if s.Temp != nil {
		l := TempLabel{X: p.Position.X, Y: p.Position.Y, Value: *s.Temp, At: at}
		e.temps.Push(l)
		e.version++
		em.Temp = &l
	}

	return em
}

// AddTrail records a driven segment. Segments that did not move are ignored.
func (e *Emitter) AddTrail(seg pose.Segment) {
	if !seg.Moved {
		return
	}
	e.trail.Push(TrailSegment{X0: seg.From.X, Y0: seg.From.Y, X1: seg.To.X, Y1: seg.To.Y})
	e.version++
}

// Obstacles returns the number of retained obstacle records.
func (e *Emitter) Obstacles() int { return e.obstacles.Len() }

// Temps returns the number of retained temperature labels.
func (e *Emitter) Temps() int { return e.temps.Len() }

// TrailLen returns the number of retained trail segments.
func (e *Emitter) TrailLen() int { return e.trail.Len() }

// Version increases on every appended record.
func (e *Emitter) Version() uint64 { return e.version }

// Snapshot copies all sequences out.
func (e *Emitter) Snapshot() Snapshot {
	return Snapshot{
		Obstacles: e.obstacles.Items(),
		Temps:     e.temps.Items(),
		Trail:     e.trail.Items(),
		Version:   e.version,
	}
}
