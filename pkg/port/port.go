// Package port holds the definition of a physical port
package port

import (
	"fmt"
	"strings"
	"time"
)

// Level is the logical state of a pin.
//
// Unknown is returned whenever the level can't be determined, e.g. the pin
// isn't claimed or the value resource can't be read.
type Level int

const (
	// Unknown indicates an unknown or invalid state.
	Unknown Level = iota
	// Low indicates a logical 0.
	Low
	// High indicates a logical 1.
	High
)

// String returns the payload written to a value resource ("0" or "1").
func (l Level) String() string {
	switch l {
	case Low:
		return "0"
	case High:
		return "1"
	default:
		return "unknown"
	}
}

// ParseLevel converts "0", "1", "low" or "high" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "low":
		return Low, nil
	case "1", "high":
		return High, nil
	}
	return Unknown, fmt.Errorf("invalid level %q", s)
}

// Direction indicates how a pin is claimed.
type Direction int

const (
	// Unclaimed pins have no open OS resource and no valid level.
	Unclaimed Direction = iota
	// Input pins sense a level.
	Input
	// Output pins drive a level.
	Output
)

// String returns the direction payload ("in" or "out"), "none" for unclaimed pins.
func (d Direction) String() string {
	switch d {
	case Input:
		return "in"
	case Output:
		return "out"
	default:
		return "none"
	}
}

// ParseDirection converts "in", "input", "out" or "output" to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "input":
		return Input, nil
	case "out", "output":
		return Output, nil
	case "none", "":
		return Unclaimed, nil
	}
	return Unclaimed, fmt.Errorf("invalid direction %q", s)
}

// EventType indicates the type of change to the line level.
type EventType int

const (
	_ EventType = iota
	// RisingEdge indicates a low to high event.
	RisingEdge
	// FallingEdge indicates a high to low event.
	FallingEdge
	// OtherEdge is any change to or from Unknown.
	OtherEdge
)

// Event is an observed level change of a pin.
type Event struct {
	// Pin is the identifier of the pin.
	Pin int
	// Old is the level seen in the previous poll cycle.
	Old Level
	// New is the level seen now.
	New Level
	// Time indicates the time the change was detected.
	Time time.Time
}

// Type classifies the event.
func (e Event) Type() EventType {
	switch {
	case e.Old == Low && e.New == High:
		return RisingEdge
	case e.Old == High && e.New == Low:
		return FallingEdge
	default:
		return OtherEdge
	}
}
