// Package pose dead-reckons a rover's 2D pose from discrete drive and turn
// events.
//
// The controller reports only "started driving", "stopped" and completed
// turn angles. While driving, the Estimator extrapolates position along the
// current heading at a fixed nominal speed. There is no velocity feedback,
// so drift is expected.
package pose

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/rovermap/internal/telemetry"
	"github.com/banshee-data/rovermap/internal/units"
)

// Pose is the rover's position in centimetres (world frame, arbitrary
// origin) and heading in radians, counter-clockwise positive. Heading is
// never normalised.
type Pose struct {
	Position   r2.Vec
	Heading    float64
	Moving     bool
	LastUpdate time.Time
}

// SensorState caches the last value of each reading. A nil field has not
// been seen yet.
type SensorState struct {
	RangeCM *float64
	Temp    *float64
}

// Segment is the straight path covered by one integration step.
type Segment struct {
	From, To r2.Vec
	Moved    bool
}

// Transition reports what an applied event did.
type Transition struct {
	Kind    telemetry.Kind
	Started bool
	// Stopped is set for every Stop event, including one received while
	// already idle. The caller derives observations from it.
	Stopped bool
	Turned  bool
}

// Estimator owns the pose and sensor cache. It is not safe for concurrent
// use; a single control goroutine drives it.
type Estimator struct {
	speed   float64 // cm/s
	pose    Pose
	sensors SensorState
}

// New returns an idle Estimator at the origin with heading 0. speedCMPerS is
// the rover's nominal straight-line speed.
func New(speedCMPerS float64, now time.Time) *Estimator {
	return &Estimator{
		speed: speedCMPerS,
		pose:  Pose{LastUpdate: now},
	}
}

// Pose returns a copy of the current pose.
func (e *Estimator) Pose() Pose { return e.pose }

// Sensors returns a copy of the sensor cache.
func (e *Estimator) Sensors() SensorState {
	s := SensorState{}
	if e.sensors.RangeCM != nil {
		v := *e.sensors.RangeCM
		s.RangeCM = &v
	}
	if e.sensors.Temp != nil {
		v := *e.sensors.Temp
		s.Temp = &v
	}
	return s
}

// Integrate advances the clock reference to now and, while moving, the
// position by speed * elapsed along the heading. A clock that stepped
// backwards yields no displacement.
func (e *Estimator) Integrate(now time.Time) Segment {
	elapsed := now.Sub(e.pose.LastUpdate).Seconds()
	e.pose.LastUpdate = now

	from := e.pose.Position
	if !e.pose.Moving || elapsed <= 0 {
		return Segment{From: from, To: from}
	}

	d := e.speed * elapsed
	step := r2.Vec{X: d * math.Cos(e.pose.Heading), Y: d * math.Sin(e.pose.Heading)}
	e.pose.Position = r2.Add(from, step)
	return Segment{From: from, To: e.pose.Position, Moved: true}
}

// Apply folds one decoded event into the state.
func (e *Estimator) Apply(ev telemetry.Event, now time.Time) Transition {
	tr := Transition{Kind: ev.Kind()}

	switch ev := ev.(type) {
	case telemetry.DriveStart:
		e.pose.Moving = true
		// re-anchor so a resume does not integrate the idle gap
		e.pose.LastUpdate = now
		tr.Started = true
	case telemetry.Stop:
		e.pose.Moving = false
		tr.Stopped = true
	case telemetry.TurnRight:
		e.pose.Heading -= units.Radians(ev.Degrees)
		tr.Turned = true
	case telemetry.TurnLeft:
		e.pose.Heading += units.Radians(ev.Degrees)
		tr.Turned = true
	case telemetry.Turn180:
		e.pose.Heading += units.Radians(ev.Degrees)
		tr.Turned = true
	case telemetry.Range:
		v := ev.CM
		e.sensors.RangeCM = &v
	case telemetry.Temp:
		v := ev.Value
		e.sensors.Temp = &v
	case telemetry.Unrecognized:
	}

	return tr
}
