package motion

import (
	"math"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/errors"
	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/kinematics"
	"github.com/matthewSorensen/printipi/pkg/log"
)

// PlannerState is the planner's move state.
type PlannerState int

const (
	Idle PlannerState = iota
	Moving
	Homing
)

func (s PlannerState) String() string {
	switch s {
	case Moving:
		return "moving"
	case Homing:
		return "homing"
	default:
		return "idle"
	}
}

// HomedFunc reports whether a mechanical axis has reached its endstop.
// Polled while homing.
type HomedFunc func(axis int) bool

// Planner owns the mechanical position and produces the step stream for
// one move at a time. It is not safe for concurrent use; all calls come
// from the command-interpreting goroutine.
type Planner struct {
	coordMap     kinematics.CoordMap
	moveSteppers []AxisStepper
	homeSteppers []AxisStepper
	accel        AccelerationProfile
	hasHomed     HomedFunc
	logger       *log.Logger

	pos       kinematics.Position
	state     PlannerState
	active    []AxisStepper
	moveStart clock.TimePoint
	duration  float64 // seconds; 0 while homing
}

// NewPlanner creates a planner over the given stepper tuple. moveSteppers
// carries one stepper per mechanical axis; homeSteppers covers only the
// axes that home to endstops.
func NewPlanner(cm kinematics.CoordMap, moveSteppers, homeSteppers []AxisStepper, accel AccelerationProfile, hasHomed HomedFunc) *Planner {
	return &Planner{
		coordMap:     cm,
		moveSteppers: moveSteppers,
		homeSteppers: homeSteppers,
		accel:        accel,
		hasHomed:     hasHomed,
		logger:       log.GetLogger("planner"),
	}
}

// SetHasHomed installs the endstop query after construction, for wiring
// orders where the query closes over the planner's owner. Must be set
// before the first homing pass.
func (p *Planner) SetHasHomed(fn HomedFunc) {
	p.hasHomed = fn
}

// State returns the planner state.
func (p *Planner) State() PlannerState {
	return p.state
}

// IsHoming reports whether a homing pass is in progress.
func (p *Planner) IsHoming() bool {
	return p.state == Homing
}

// ReadyForNextMove reports whether MoveTo may be called.
func (p *Planner) ReadyForNextMove() bool {
	return p.state == Idle
}

// MechanicalPosition returns the authoritative mechanical position.
func (p *Planner) MechanicalPosition() kinematics.Position {
	return p.pos
}

// CartesianPosition returns the current position in cartesian terms.
func (p *Planner) CartesianPosition() (x, y, z, e float64) {
	return p.coordMap.MechanicalToCartesian(p.pos)
}

// EndTime returns the scheduled end of the current move, valid in
// Moving state.
func (p *Planner) EndTime() clock.TimePoint {
	return p.moveStart + clock.FromSeconds(p.duration)
}

// MoveTo plans a linear move from the current position to the absolute
// cartesian target (x, y, z, e) in mm, starting at startTime. vXYZ is the
// commanded cartesian speed; the extrusion rate is clamped to
// [vEMin, vEMax] (vEMin negative allows retraction).
func (p *Planner) MoveTo(startTime clock.TimePoint, x, y, z, e float64, vXYZ, vEMin, vEMax float64) error {
	if p.state != Idle {
		return errors.Busy("MoveTo")
	}
	if _, err := p.coordMap.CartesianToMechanical(x, y, z, e); err != nil {
		return err
	}

	cx, cy, cz, ce := p.coordMap.MechanicalToCartesian(p.pos)
	dx, dy, dz, de := x-cx, y-cy, z-cz, e-ce
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)

	var vx, vy, vz, ve, duration float64
	switch {
	case dist > 0:
		v := p.accel.CruiseVelocity(vXYZ, dist)
		duration = dist / v
		vx, vy, vz = dx/duration, dy/duration, dz/duration
		ve = clamp(de/duration, vEMin, vEMax)
	case de != 0:
		if de > 0 {
			ve = vEMax
		} else {
			ve = vEMin
		}
		duration = de / ve
	default:
		// Zero-length move; nothing to plan.
		return nil
	}

	for _, s := range p.moveSteppers {
		s.Init(p.pos, vx, vy, vz, ve)
	}
	p.state = Moving
	p.active = p.moveSteppers
	p.moveStart = startTime
	p.duration = duration
	p.logger.Debug("move to (%.3f, %.3f, %.3f, %.3f) over %.3fs", x, y, z, e, duration)
	return nil
}

// HomeEndstops begins a homing pass at scalar velocity vHome. Steps are
// produced until every homing axis's endstop reports triggered; the
// mechanical position is then reset to the coordinate map's home
// position.
func (p *Planner) HomeEndstops(startTime clock.TimePoint, vHome float64) error {
	if p.state != Idle {
		return errors.Busy("HomeEndstops")
	}
	for _, s := range p.homeSteppers {
		s.InitHome(vHome)
	}
	p.state = Homing
	p.active = p.homeSteppers
	p.moveStart = startTime
	p.duration = 0
	p.logger.Debug("homing at %.2f mm/s", vHome)
	return nil
}

// NextStep returns the next step of the current move as an absolute-time
// step record, advancing the mechanical position and the owning stepper.
// Returns the null step and transitions to Idle when the move is
// exhausted, or immediately when already Idle.
func (p *Planner) NextStep() event.Step {
	switch p.state {
	case Idle:
		return event.NullStep
	case Homing:
		for _, s := range p.active {
			if !exhausted(s.Time()) && p.hasHomed != nil && p.hasHomed(s.Axis()) {
				s.Cancel()
			}
		}
	}

	s := NextToFire(p.active)
	if s == nil || (p.state == Moving && s.Time() > p.duration*(1+1e-9)+1e-9) {
		p.finishMove()
		return event.NullStep
	}

	step := event.Step{
		Time:      p.moveStart + clock.FromSeconds(s.Time()),
		Axis:      s.Axis(),
		Direction: s.Direction(),
	}
	p.pos[s.Axis()] += int(s.Direction())
	s.Advance()
	return step
}

func (p *Planner) finishMove() {
	if p.state == Homing {
		p.pos = p.coordMap.HomePosition()
	}
	p.state = Idle
	p.active = nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
