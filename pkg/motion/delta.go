package motion

import (
	"math"

	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/kinematics"
)

// DeltaStepper steps one tower carriage of a linear-delta machine. The
// effector moves in a straight cartesian line at constant velocity; the
// carriage height that keeps the rod constraint satisfied is not linear
// in time, so each step time is the smaller positive root of a quadratic:
// the rod-length sphere equation with the carriage pinned at the next
// step level above or below the current one.
type DeltaStepper struct {
	m     *kinematics.DeltaMap
	tower int

	// Move state: leveled start point and velocity, current carriage
	// step count, and the time of the last emitted step.
	x0, y0, z0 float64
	vx, vy, vz float64
	steps      int
	lastT      float64

	// Homing runs the carriage at a fixed period instead of the
	// quadratic solve.
	homing     bool
	homePeriod float64

	time      float64
	direction event.StepDirection
}

// NewDeltaStepper creates a stepper for one tower. The tower index is
// also the mechanical axis index.
func NewDeltaStepper(m *kinematics.DeltaMap, tower int) *DeltaStepper {
	return &DeltaStepper{m: m, tower: tower}
}

// Axis returns the tower's mechanical axis index.
func (s *DeltaStepper) Axis() int {
	return s.tower
}

// Time returns the pending step time.
func (s *DeltaStepper) Time() float64 {
	return s.time
}

// Direction returns the pending step direction.
func (s *DeltaStepper) Direction() event.StepDirection {
	return s.direction
}

// Init captures the move's leveled trajectory and computes the first
// carriage step.
func (s *DeltaStepper) Init(pos kinematics.Position, vx, vy, vz, _ float64) {
	x, y, z, _ := s.m.MechanicalToCartesian(pos)
	s.x0, s.y0, s.z0 = s.m.Transform().Apply(x, y, z)
	s.vx, s.vy, s.vz = s.m.Transform().Apply(vx, vy, vz)
	s.steps = pos[s.tower]
	s.lastT = 0
	s.next()
}

// InitHome runs the carriage straight up toward the column-top endstop.
func (s *DeltaStepper) InitHome(vHome float64) {
	if vHome <= 0 || math.IsNaN(vHome) {
		s.time = math.NaN()
		return
	}
	// Homing is pure vertical carriage motion: evenly spaced steps.
	s.direction = event.Forward
	s.homePeriod = 1 / (s.m.StepsPerMM(s.tower) * vHome)
	s.lastT = 0
	s.time = s.homePeriod
	s.homing = true
}

// Advance moves to the step after the pending one.
func (s *DeltaStepper) Advance() {
	if exhausted(s.time) {
		return
	}
	if s.homing {
		s.time += s.homePeriod
		return
	}
	s.steps += int(s.direction)
	s.lastT = s.time
	s.next()
}

// Cancel exhausts the stepper; during homing this is how an endstop
// trigger stops the carriage.
func (s *DeltaStepper) Cancel() {
	s.time = math.NaN()
}

// next computes the earliest future time the carriage crosses a step
// level, trying one step up and one step down and keeping the sooner.
func (s *DeltaStepper) next() {
	s.homing = false
	spm := s.m.StepsPerMM(s.tower)
	upT := s.rootFor(float64(s.steps+1) / spm)
	downT := s.rootFor(float64(s.steps-1) / spm)

	switch {
	case math.IsNaN(upT) && math.IsNaN(downT):
		s.time = math.NaN()
	case math.IsNaN(downT) || upT < downT:
		s.time = upT
		s.direction = event.Forward
	default:
		s.time = downT
		s.direction = event.Backward
	}
}

// rootFor solves for the earliest time after the last step at which the
// carriage sits at height h while the rod constraint holds. Returns NaN
// when the trajectory never reaches that height.
func (s *DeltaStepper) rootFor(h float64) float64 {
	towers := s.m.Towers()
	dx := s.x0 - towers[s.tower][0]
	dy := s.y0 - towers[s.tower][1]
	dz := h - s.z0

	a := s.vx*s.vx + s.vy*s.vy + s.vz*s.vz
	b := 2 * (dx*s.vx + dy*s.vy - dz*s.vz)
	c := dx*dx + dy*dy + dz*dz - s.m.RodLengthSquared()

	if a == 0 {
		return math.NaN()
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return math.NaN()
	}
	sq := math.Sqrt(disc)
	r1 := (-b - sq) / (2 * a)
	r2 := (-b + sq) / (2 * a)

	// Earliest root strictly after the previous step; a tiny guard
	// keeps the root that produced the previous step from repeating.
	// Roots where the carriage would sit below the effector solve the
	// sphere equation on the wrong branch and are rejected.
	const eps = 1e-12
	if r1 > s.lastT+eps && dz-s.vz*r1 >= 0 {
		return r1
	}
	if r2 > s.lastT+eps && dz-s.vz*r2 >= 0 {
		return r2
	}
	return math.NaN()
}
