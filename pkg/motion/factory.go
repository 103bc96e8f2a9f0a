package motion

import (
	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/kinematics"
)

// CartesianSteppers builds the stepper tuple for a cartesian machine:
// three linear axes plus the extruder. The linear axes home backward
// toward their minimum endstops.
func CartesianSteppers(m *kinematics.CartesianMap) (move, home []AxisStepper) {
	tr := m.Transform()
	for axis := 0; axis < 3; axis++ {
		s := NewLinearStepper(axis, axis, m.StepsPerMM(axis), event.Backward, tr)
		move = append(move, s)
		home = append(home, s)
	}
	move = append(move, NewLinearStepper(kinematics.AxisE, ComponentE, m.StepsPerMM(kinematics.AxisE), event.Forward, nil))
	return move, home
}

// DeltaSteppers builds the stepper tuple for a linear-delta machine:
// three tower carriages plus the extruder. Towers home upward to the
// column-top endstops.
func DeltaSteppers(m *kinematics.DeltaMap) (move, home []AxisStepper) {
	for tower := 0; tower < 3; tower++ {
		s := NewDeltaStepper(m, tower)
		move = append(move, s)
		home = append(home, s)
	}
	move = append(move, NewLinearStepper(kinematics.AxisE, ComponentE, m.StepsPerMM(kinematics.AxisE), event.Forward, nil))
	return move, home
}
