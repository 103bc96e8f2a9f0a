package motion

import (
	"math"

	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/kinematics"
)

// Cartesian velocity components a LinearStepper can follow.
const (
	ComponentX = 0
	ComponentY = 1
	ComponentZ = 2
	ComponentE = 3
)

// LinearStepper steps a mechanical axis whose speed is a single
// cartesian velocity component: the axes of a cartesian machine and the
// extruder on any machine. Steps are evenly spaced at
// 1/(stepsPerMM * |v|).
type LinearStepper struct {
	axis       int
	component  int
	stepsPerMM float64
	homeDir    event.StepDirection
	transform  *kinematics.Transform

	period    float64
	time      float64
	direction event.StepDirection
}

// NewLinearStepper creates a stepper for one mechanical axis. transform
// is applied to the XYZ velocity vector before selecting the component;
// pass nil for the extruder. homeDir is the direction toward the
// endstop.
func NewLinearStepper(axis, component int, stepsPerMM float64, homeDir event.StepDirection, transform *kinematics.Transform) *LinearStepper {
	return &LinearStepper{
		axis:       axis,
		component:  component,
		stepsPerMM: stepsPerMM,
		homeDir:    homeDir,
		transform:  transform,
	}
}

// Axis returns the mechanical axis index.
func (s *LinearStepper) Axis() int {
	return s.axis
}

// Time returns the pending step time.
func (s *LinearStepper) Time() float64 {
	return s.time
}

// Direction returns the pending step direction.
func (s *LinearStepper) Direction() event.StepDirection {
	return s.direction
}

// Init computes the first evenly spaced step for the move.
func (s *LinearStepper) Init(_ kinematics.Position, vx, vy, vz, ve float64) {
	if s.transform != nil {
		vx, vy, vz = s.transform.Apply(vx, vy, vz)
	}
	var v float64
	switch s.component {
	case ComponentX:
		v = vx
	case ComponentY:
		v = vy
	case ComponentZ:
		v = vz
	default:
		v = ve
	}
	if v == 0 || math.IsNaN(v) {
		s.time = math.NaN()
		return
	}
	if v > 0 {
		s.direction = event.Forward
	} else {
		s.direction = event.Backward
	}
	s.period = 1 / (s.stepsPerMM * math.Abs(v))
	s.time = s.period
}

// InitHome computes the first step of a homing pass.
func (s *LinearStepper) InitHome(vHome float64) {
	if vHome <= 0 || math.IsNaN(vHome) {
		s.time = math.NaN()
		return
	}
	s.direction = s.homeDir
	s.period = 1 / (s.stepsPerMM * vHome)
	s.time = s.period
}

// Advance schedules the next evenly spaced step.
func (s *LinearStepper) Advance() {
	if exhausted(s.time) {
		return
	}
	s.time += s.period
}

// Cancel exhausts the stepper.
func (s *LinearStepper) Cancel() {
	s.time = math.NaN()
}
