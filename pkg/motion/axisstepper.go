// Package motion turns commanded linear moves into per-axis step events.
// An AxisStepper is instantiated per mechanical axis for each move; it
// answers "when does this axis step next, and which way" for a constant
// cartesian velocity. The planner selects the earliest stepper, emits its
// step, and advances it, yielding the interleaved step stream for the
// whole machine.
package motion

import (
	"math"

	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/kinematics"
)

// AxisStepper generates successive step times for one mechanical axis
// over a single move. Times are float64 seconds measured from the start
// of the move; NaN or a non-positive time means "no further step".
type AxisStepper interface {
	// Axis returns the mechanical axis index this stepper drives.
	Axis() int

	// Time returns the time of the pending step.
	Time() float64

	// Direction returns the mechanical direction of the pending step.
	Direction() event.StepDirection

	// Init prepares the stepper for a move at constant cartesian
	// velocity (vx, vy, vz, ve) from the given mechanical position, and
	// computes the first step.
	Init(pos kinematics.Position, vx, vy, vz, ve float64)

	// InitHome prepares the stepper for a homing pass toward its
	// endstop at scalar velocity vHome.
	InitHome(vHome float64)

	// Advance replaces the pending step with the one after it.
	Advance()

	// Cancel marks the stepper exhausted for the rest of the move.
	Cancel()
}

// exhausted reports whether t is the "no further step" sentinel.
func exhausted(t float64) bool {
	return math.IsNaN(t) || t <= 0
}

// NextToFire selects the stepper with the smallest pending step time.
// NaN and non-positive times are treated as +infinity; ties go to the
// lower axis index. Returns nil when every stepper is exhausted.
func NextToFire(steppers []AxisStepper) AxisStepper {
	var best AxisStepper
	for _, s := range steppers {
		t := s.Time()
		if exhausted(t) {
			continue
		}
		if best == nil || t < best.Time() {
			best = s
		}
	}
	return best
}
