package telemetry

import (
	"math"
	"strconv"
	"strings"
)

// Line prefixes and EV names understood by Decode.
const (
	prefixRange = "RANGE"
	prefixTemp  = "TEMP"
	prefixEvent = "EV"

	evTurnRight  = "TURN_R"
	evTurnLeft   = "TURN_L"
	evTurn180    = "TURN_180"
	evDriveStart = "DRIVE_START"
	evStop       = "STOP"
)

// Decode classifies one raw line. ok is false when the line has a recognised
// shape but its numeric payload is missing or does not parse; the caller
// should drop such lines and leave its state unchanged. Every other line
// decodes to an event, with Unrecognized for anything outside the grammar.
func Decode(line string) (ev Event, ok bool) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ",")

	switch fields[0] {
	case prefixRange:
		if len(fields) < 2 {
			return unrecognized(line)
		}
		v, ok := parseNumber(fields[1])
		if !ok {
			return nil, false
		}
		return Range{CM: v}, true

	case prefixTemp:
		if len(fields) < 2 {
			return unrecognized(line)
		}
		v, ok := parseNumber(fields[1])
		if !ok {
			return nil, false
		}
		return Temp{Value: v}, true

	case prefixEvent:
		if len(fields) < 2 {
			return unrecognized(line)
		}
		return decodeEvent(line, fields[1], fields[2:])
	}

	return unrecognized(line)
}

func decodeEvent(line, name string, args []string) (Event, bool) {
	switch name {
	case evDriveStart:
		return DriveStart{}, true
	case evStop:
		return Stop{}, true
	case evTurnRight, evTurnLeft, evTurn180:
		if len(args) == 0 {
			return nil, false
		}
		deg, ok := parseNumber(args[0])
		if !ok {
			return nil, false
		}
		switch name {
		case evTurnRight:
			return TurnRight{Degrees: deg}, true
		case evTurnLeft:
			return TurnLeft{Degrees: deg}, true
		default:
			return Turn180{Degrees: deg}, true
		}
	}
	return unrecognized(line)
}

func unrecognized(line string) (Event, bool) {
	return Unrecognized{Raw: line}, true
}

// parseNumber accepts anything strconv.ParseFloat does once surrounding
// spaces are trimmed, except NaN and infinities.
func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
