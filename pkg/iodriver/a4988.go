package iodriver

import (
	"time"

	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/pins"
)

// A4988 translates planner steps into the pin sequence an A4988-class
// stepper driver IC expects: a direction level that must be stable
// before the step pulse, then a high edge held for at least the IC's
// minimum pulse width, then the low edge.
type A4988 struct {
	name      string
	stepPin   event.PinID
	dirPin    event.PinID
	enablePin event.PinID
	hasEnable bool
	pulse     time.Duration
	writer    pins.Writer

	lastDir event.StepDirection
}

// NewA4988 creates a stepper channel. The enable pin is optional; pass
// hasEnable false for boards that hard-wire it. writer is used for the
// immediate lock/unlock writes, which do not go through the timed queue.
func NewA4988(name string, stepPin, dirPin, enablePin event.PinID, hasEnable bool, pulse time.Duration, writer pins.Writer) *A4988 {
	return &A4988{
		name:      name,
		stepPin:   stepPin,
		dirPin:    dirPin,
		enablePin: enablePin,
		hasEnable: hasEnable,
		pulse:     pulse,
		writer:    writer,
	}
}

// Name returns the driver name.
func (a *A4988) Name() string {
	return a.name
}

// AppendStepEvents appends the output events realizing one step to buf
// and returns the extended slice. Events share the step's time except
// the trailing low edge, one pulse width later.
func (a *A4988) AppendStepEvents(buf []event.Event, step event.Step) []event.Event {
	if step.Direction != a.lastDir {
		lvl := event.Low
		if step.Direction == event.Forward {
			lvl = event.High
		}
		buf = append(buf, event.Edge(step.Time, a.dirPin, lvl))
		a.lastDir = step.Direction
	}
	buf = append(buf, event.Edge(step.Time, a.stepPin, event.High))
	buf = append(buf, event.Edge(step.Time.Add(a.pulse), a.stepPin, event.Low))
	return buf
}

// Lock energizes the motor so it holds position. A4988 enable is active
// low.
func (a *A4988) Lock() {
	if a.hasEnable {
		a.writer.WriteLevel(a.enablePin, event.Low)
	}
}

// Unlock releases the motor.
func (a *A4988) Unlock() {
	if a.hasEnable {
		a.writer.WriteLevel(a.enablePin, event.High)
	}
}
