// Package state interprets host G/M-codes and drives the motion
// pipeline. It owns the host-visible position model (primitive
// coordinates, host-zero offsets, unit and position modes) and the
// command-source stack, and runs as the producer goroutine: reading
// commands, planning moves, and feeding translated step events into the
// scheduler.
package state

import (
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/config"
	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/gcode"
	"github.com/matthewSorensen/printipi/pkg/iodriver"
	"github.com/matthewSorensen/printipi/pkg/kinematics"
	"github.com/matthewSorensen/printipi/pkg/log"
	"github.com/matthewSorensen/printipi/pkg/motion"
	"github.com/matthewSorensen/printipi/pkg/safety"
	"github.com/matthewSorensen/printipi/pkg/sched"
)

// PositionMode selects absolute or relative interpretation of host
// coordinates.
type PositionMode int

const (
	Absolute PositionMode = iota
	Relative
)

// LengthUnit selects the host's coordinate unit.
type LengthUnit int

const (
	UnitMM LengthUnit = iota
	UnitInch
)

// MMPerInch converts inch-mode coordinates.
const MMPerInch = 25.4

// idlePause bounds the producer's spin when nothing is pending.
const idlePause = 500 * time.Microsecond

// sourceState pairs a command source with a deferred motion command
// that arrived while the planner was busy.
type sourceState struct {
	src  gcode.Source
	held *gcode.Command
}

// State is the command interpreter and producer loop.
type State struct {
	clk       clock.Clock
	scheduler *sched.Scheduler
	planner   *motion.Planner
	drivers   []iodriver.Driver
	safetyMgr *safety.Manager
	cfg       *config.Machine
	logger    *log.Logger

	// steppers[axis] translates that axis's steps into pin events.
	steppers []*iodriver.A4988
	endstops map[int]*iodriver.Endstop
	evbuf    []event.Event

	// Host position model.
	positionMode    PositionMode
	extruderPosMode PositionMode
	unitMode        LengthUnit
	destX, destY    float64
	destZ, destE    float64
	hostZeroX       float64
	hostZeroY       float64
	hostZeroZ       float64
	hostZeroE       float64
	destMoveRate    float64 // mm/s
	isHomed         bool

	lastMotionPlannedTime clock.TimePoint
	lastQueuedEvent       clock.TimePoint

	root  *sourceState
	stack []*sourceState

	exiting    bool
	exitReason safety.ShutdownReason
}

// New creates a State over an assembled machine. steppers carries one
// translation driver per mechanical axis, in axis order; endstops maps
// homing axes to their switches.
func New(clk clock.Clock, scheduler *sched.Scheduler, planner *motion.Planner,
	drivers []iodriver.Driver, steppers []*iodriver.A4988, endstops map[int]*iodriver.Endstop,
	safetyMgr *safety.Manager, cfg *config.Machine, root gcode.Source) *State {

	return &State{
		clk:          clk,
		scheduler:    scheduler,
		planner:      planner,
		drivers:      drivers,
		steppers:     steppers,
		endstops:     endstops,
		safetyMgr:    safetyMgr,
		cfg:          cfg,
		logger:       log.GetLogger("state"),
		destMoveRate: cfg.MaxVelocity,
		root:         &sourceState{src: root},
	}
}

// HasHomed reports whether an axis's endstop is triggered; the planner
// polls this during homing.
func (s *State) HasHomed(axis int) bool {
	e, ok := s.endstops[axis]
	return ok && e.IsTriggered()
}

// IsHomed reports whether a homing pass has completed.
func (s *State) IsHomed() bool {
	return s.isHomed
}

// Run is the producer loop body. It returns the shutdown reason when
// the host asks to exit or every source runs dry.
func (s *State) Run() safety.ShutdownReason {
	for {
		if s.safetyMgr.IsShutdown() {
			return s.safetyMgr.Reason()
		}
		if s.exiting {
			if s.exitReason != safety.ReasonCleanExit {
				// Emergency exits abandon queued motion.
				return s.exitReason
			}
			if s.planner.ReadyForNextMove() {
				s.scheduler.Drain()
				return s.exitReason
			}
		}

		worked := s.pumpPlanner()

		// The root channel is tended every cycle so emergency commands
		// always land; the stack top is tended alongside it.
		worked = s.tend(s.root) || worked
		if top := s.top(); top != nil {
			worked = s.tend(top) || worked
		}
		s.popExhausted()

		if !s.exiting && s.rootDry() {
			s.exiting = true
			s.exitReason = safety.ReasonCleanExit
		}

		if !worked {
			time.Sleep(idlePause)
		}
	}
}

// top returns the top of the M32 file stack, or nil.
func (s *State) top() *sourceState {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// rootDry reports that there is no further work anywhere: the root
// stream ended, the stack is empty, and no command is deferred.
func (s *State) rootDry() bool {
	return len(s.stack) == 0 && s.root.held == nil && s.root.src.Exhausted() &&
		s.planner.ReadyForNextMove()
}

// popExhausted drops finished file sources, as if each had ended in M99.
func (s *State) popExhausted() {
	for {
		top := s.top()
		if top == nil || top.held != nil || !top.src.Exhausted() {
			return
		}
		s.logger.Debug("file source %s exhausted, popping", top.src.Name())
		top.src.Close()
		s.stack = s.stack[:len(s.stack)-1]
	}
}

// pumpPlanner moves one planned step into the scheduler, honoring
// buffer room and the homing pacing rule: while homing, the next step
// is not planned until the previous one has actually fired.
func (s *State) pumpPlanner() bool {
	if s.planner.ReadyForNextMove() {
		return false
	}
	if !s.scheduler.IsRoomInBuffer() {
		return false
	}
	if s.planner.IsHoming() && s.lastMotionPlannedTime > s.clk.Now() {
		return false
	}

	step := s.planner.NextStep()
	if step.IsNull() {
		s.scheduler.SetDefaultMaxSleep()
		return true
	}
	s.evbuf = s.steppers[step.Axis].AppendStepEvents(s.evbuf[:0], step)
	for i := range s.evbuf {
		// Steps on different axes can coincide; their pulse trains are
		// serialized by nudging edges forward onto the queue's
		// non-decreasing timeline. The error is bounded by one pulse
		// width.
		if s.evbuf[i].Time < s.lastQueuedEvent {
			s.evbuf[i].Time = s.lastQueuedEvent
		}
		s.lastQueuedEvent = s.evbuf[i].Time
		s.scheduler.Queue(s.evbuf[i])
	}
	s.lastMotionPlannedTime = step.Time
	return true
}

// tend reads and executes one command from a source. A motion command
// arriving while the planner is busy is held and retried; the source is
// not read past it.
func (s *State) tend(ss *sourceState) bool {
	if ss.held != nil {
		if !s.readyForMotion() {
			return false
		}
		cmd := *ss.held
		ss.held = nil
		s.dispatch(cmd, ss)
		return true
	}

	line, ok := ss.src.ReadLine()
	if !ok {
		return false
	}
	cmd, ok, err := gcode.Parse(line)
	if err != nil {
		ss.src.Reply(gcode.Error(err.Error()))
		return true
	}
	if !ok {
		return true
	}

	if s.isMotion(cmd) && !s.readyForMotion() {
		ss.held = &cmd
		return true
	}
	s.dispatch(cmd, ss)
	return true
}

// isMotion reports whether a command needs the planner idle.
func (s *State) isMotion(cmd gcode.Command) bool {
	switch cmd.Opcode {
	case "G0", "G1", "G28":
		return true
	}
	return false
}

// readyForMotion gates motion commands on planner and buffer state.
func (s *State) readyForMotion() bool {
	return s.planner.ReadyForNextMove() && s.scheduler.IsRoomInBuffer()
}

// dispatch executes a command and sends its reply.
func (s *State) dispatch(cmd gcode.Command, ss *sourceState) {
	resp := s.execute(cmd, ss)
	if !resp.IsNull() {
		ss.src.Reply(resp)
	}
}

// Unit and offset conversions, host value to primitive (absolute
// machine mm).

func (s *State) unitScale() float64 {
	if s.unitMode == UnitInch {
		return MMPerInch
	}
	return 1
}

func (s *State) xToPrimitive(v float64) float64 {
	if s.positionMode == Relative {
		return s.destX + v*s.unitScale()
	}
	return v*s.unitScale() + s.hostZeroX
}

func (s *State) yToPrimitive(v float64) float64 {
	if s.positionMode == Relative {
		return s.destY + v*s.unitScale()
	}
	return v*s.unitScale() + s.hostZeroY
}

func (s *State) zToPrimitive(v float64) float64 {
	if s.positionMode == Relative {
		return s.destZ + v*s.unitScale()
	}
	return v*s.unitScale() + s.hostZeroZ
}

func (s *State) eToPrimitive(v float64) float64 {
	if s.extruderPosMode == Relative {
		return s.destE + v*s.unitScale()
	}
	return v*s.unitScale() + s.hostZeroE
}

// feedToPrimitive converts a feed rate. Feed is mm/min regardless of
// unit mode, clamped to the machine maximum.
func (s *State) feedToPrimitive(f float64) float64 {
	rate := f / 60
	if rate > s.cfg.MaxVelocity {
		rate = s.cfg.MaxVelocity
	}
	return rate
}

// setHostZero re-anchors the host-zero offsets so the current primitive
// position reads as the given values.
func (s *State) setHostZero(x, y, z, e float64) {
	s.hostZeroX = s.destX - x
	s.hostZeroY = s.destY - y
	s.hostZeroZ = s.destZ - z
	s.hostZeroE = s.destE - e
}

// queueMovement plans a move to absolute primitive coordinates.
func (s *State) queueMovement(x, y, z, e float64) error {
	s.destX, s.destY, s.destZ, s.destE = x, y, z, e

	start := s.clk.Now()
	if s.lastMotionPlannedTime > start {
		start = s.lastMotionPlannedTime
	}
	return s.planner.MoveTo(start, x, y, z, e,
		s.destMoveRate, -s.cfg.MaxRetractRate, s.cfg.MaxExtrudeRate)
}

// homeEndstops runs a homing pass to completion, pumping steps and
// keeping the root channel tended while it runs.
func (s *State) homeEndstops() error {
	s.scheduler.SetMaxSleep(sched.HomingMaxSleep)
	start := s.clk.Now()
	if s.lastMotionPlannedTime > start {
		start = s.lastMotionPlannedTime
	}
	if err := s.planner.HomeEndstops(start, s.cfg.HomeRate); err != nil {
		s.scheduler.SetDefaultMaxSleep()
		return err
	}

	for !s.planner.ReadyForNextMove() {
		if s.safetyMgr.IsShutdown() || s.exiting {
			break
		}
		if !s.pumpPlanner() {
			s.tend(s.root)
			time.Sleep(idlePause)
		}
	}
	s.scheduler.SetDefaultMaxSleep()
	s.isHomed = true

	// Re-anchor the host position model on the homed reference.
	x, y, z, e := s.planner.CartesianPosition()
	s.destX, s.destY, s.destZ, s.destE = x, y, z, e
	return nil
}

// Position reports the current primitive destination, for M114 and
// tests.
func (s *State) Position() (x, y, z, e float64) {
	return s.destX, s.destY, s.destZ, s.destE
}

// MechanicalPosition exposes the planner's step-count truth.
func (s *State) MechanicalPosition() kinematics.Position {
	return s.planner.MechanicalPosition()
}
