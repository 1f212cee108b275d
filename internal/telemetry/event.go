// Package telemetry decodes the rover controller's comma-delimited line
// protocol into typed events.
//
// The grammar is small and fixed:
//
//	RANGE,<float>          last ultrasonic range in centimetres
//	TEMP,<float>           last temperature reading
//	EV,TURN_R,<deg>        clockwise turn completed
//	EV,TURN_L,<deg>        counter-clockwise turn completed
//	EV,TURN_180,<deg>      about-face completed
//	EV,DRIVE_START         wheels started driving straight
//	EV,STOP                wheels stopped
//
// The serial link is noisy, so a recognised line whose numeric field does not
// parse is dropped rather than reported.
package telemetry

import "fmt"

// Kind identifies an Event variant.
type Kind string

const (
	KindRange        Kind = "range"
	KindTemp         Kind = "temp"
	KindTurnRight    Kind = "turn_right"
	KindTurnLeft     Kind = "turn_left"
	KindTurn180      Kind = "turn_180"
	KindDriveStart   Kind = "drive_start"
	KindStop         Kind = "stop"
	KindUnrecognized Kind = "unrecognized"
)

// Event is a decoded telemetry line. The set of implementations is closed;
// consumers switch on the concrete type.
type Event interface {
	Kind() Kind
	fmt.Stringer

	event()
}

// Range is a RANGE reading in centimetres.
type Range struct{ CM float64 }

// Temp is a TEMP reading. The unit is whatever the controller sends.
type Temp struct{ Value float64 }

// TurnRight is a completed clockwise turn.
type TurnRight struct{ Degrees float64 }

// TurnLeft is a completed counter-clockwise turn.
type TurnLeft struct{ Degrees float64 }

// Turn180 is a completed about-face. Degrees is added like a left turn.
type Turn180 struct{ Degrees float64 }

// DriveStart marks the start of straight-line driving.
type DriveStart struct{}

// Stop marks the end of driving.
type Stop struct{}

// Unrecognized carries any line that is not part of the grammar, including
// EV lines with unknown names.
type Unrecognized struct{ Raw string }

func (Range) Kind() Kind        { return KindRange }
func (Temp) Kind() Kind         { return KindTemp }
func (TurnRight) Kind() Kind    { return KindTurnRight }
func (TurnLeft) Kind() Kind     { return KindTurnLeft }
func (Turn180) Kind() Kind      { return KindTurn180 }
func (DriveStart) Kind() Kind   { return KindDriveStart }
func (Stop) Kind() Kind         { return KindStop }
func (Unrecognized) Kind() Kind { return KindUnrecognized }

func (e Range) String() string        { return fmt.Sprintf("range(%gcm)", e.CM) }
func (e Temp) String() string         { return fmt.Sprintf("temp(%g)", e.Value) }
func (e TurnRight) String() string    { return fmt.Sprintf("turn_right(%g°)", e.Degrees) }
func (e TurnLeft) String() string     { return fmt.Sprintf("turn_left(%g°)", e.Degrees) }
func (e Turn180) String() string      { return fmt.Sprintf("turn_180(%g°)", e.Degrees) }
func (DriveStart) String() string     { return "drive_start" }
func (Stop) String() string           { return "stop" }
func (e Unrecognized) String() string { return fmt.Sprintf("unrecognized(%q)", e.Raw) }

func (Range) event()        {}
func (Temp) event()         {}
func (TurnRight) event()    {}
func (TurnLeft) event()     {}
func (Turn180) event()      {}
func (DriveStart) event()   {}
func (Stop) event()         {}
func (Unrecognized) event() {}
