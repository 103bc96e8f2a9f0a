package iodriver

import (
	"github.com/matthewSorensen/printipi/pkg/event"
)

// LevelReader samples an input line; satisfied by the GPIO pin backend.
type LevelReader interface {
	ReadLevel(pin event.PinID) (event.Level, error)
}

// Endstop is a homing switch on one mechanical axis, polled during
// homing. A failed read reports "not triggered".
type Endstop struct {
	name     string
	pin      event.PinID
	axis     int
	inverted bool
	reader   LevelReader
}

// NewEndstop creates an endstop on the given input pin. inverted selects
// active-low switches.
func NewEndstop(name string, pin event.PinID, axis int, inverted bool, reader LevelReader) *Endstop {
	return &Endstop{name: name, pin: pin, axis: axis, inverted: inverted, reader: reader}
}

// Name returns the driver name.
func (e *Endstop) Name() string {
	return e.name
}

// Axis returns the mechanical axis this endstop references.
func (e *Endstop) Axis() int {
	return e.axis
}

// IsTriggered samples the switch.
func (e *Endstop) IsTriggered() bool {
	lvl, err := e.reader.ReadLevel(e.pin)
	if err != nil {
		return false
	}
	if e.inverted {
		return lvl == event.Low
	}
	return lvl == event.High
}
