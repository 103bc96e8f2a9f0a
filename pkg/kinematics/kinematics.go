// Package kinematics maps cartesian intent (X, Y, Z, E in mm) to
// mechanical stepper positions (integer step counts per motor) and back.
// Two machine styles are supported: cartesian, where the mapping is a
// per-axis scale, and linear delta, where three vertical carriages drive
// rods meeting at a shared effector.
package kinematics

import (
	"math"

	"github.com/matthewSorensen/printipi/pkg/errors"
)

// Mechanical axis indices. For a cartesian machine the first three are
// X, Y, Z; for a delta machine they are the A, B, C towers. E is always
// the extruder.
const (
	AxisA = 0
	AxisB = 1
	AxisC = 2
	AxisE = 3

	// AxisCount is the number of mechanical axes on both machine styles.
	AxisCount = 4
)

// Position is a mechanical position: one integer step count per axis.
// It is the authoritative record of where the machine believes it is.
type Position [AxisCount]int

// CoordMap converts between cartesian and mechanical coordinates.
type CoordMap interface {
	// CartesianToMechanical maps (x, y, z, e) in mm to step counts.
	// Returns an UNREACHABLE_TARGET error when no mechanical position
	// can realize the target.
	CartesianToMechanical(x, y, z, e float64) (Position, error)

	// MechanicalToCartesian maps step counts back to (x, y, z, e) in mm.
	MechanicalToCartesian(pos Position) (x, y, z, e float64)

	// HomePosition is the mechanical position established by homing.
	HomePosition() Position

	// HomingAxes lists the axes that home to endstops.
	HomingAxes() []int
}

// roundSteps converts a length in mm to a step count. NaN input is
// reported as unreachable by the callers before rounding.
func roundSteps(mm, stepsPerMM float64) int {
	return int(math.Round(mm * stepsPerMM))
}

func unreachable(x, y, z float64) error {
	return errors.Unreachable(x, y, z)
}
