package state

import (
	"fmt"

	"github.com/matthewSorensen/printipi/pkg/errors"
	"github.com/matthewSorensen/printipi/pkg/gcode"
	"github.com/matthewSorensen/printipi/pkg/iodriver"
	"github.com/matthewSorensen/printipi/pkg/safety"
)

// execute runs one command and returns the reply. A null reply means
// "send nothing" (M99 popping its own source).
func (s *State) execute(cmd gcode.Command, ss *sourceState) gcode.Response {
	switch cmd.Opcode {
	case "G0", "G1":
		return s.execMove(cmd)

	case "G20":
		s.unitMode = UnitInch
		return gcode.Ok("")

	case "G21":
		s.unitMode = UnitMM
		return gcode.Ok("")

	case "G28":
		if err := s.homeEndstops(); err != nil {
			return gcode.Error(err.Error())
		}
		return gcode.Ok("")

	case "G90":
		s.positionMode = Absolute
		s.extruderPosMode = Absolute
		return gcode.Ok("")

	case "G91":
		s.positionMode = Relative
		s.extruderPosMode = Relative
		return gcode.Ok("")

	case "G92":
		return s.execSetZero(cmd)

	case "M0":
		s.logger.Info("M0 received, exiting")
		s.exiting = true
		s.exitReason = safety.ReasonCleanExit
		return gcode.Ok("")

	case "M17":
		iodriver.LockAll(s.drivers)
		return gcode.Ok("")

	case "M18", "M84":
		iodriver.UnlockAll(s.drivers)
		return gcode.Ok("")

	case "M21":
		// SD init: nothing to do on a real filesystem.
		return gcode.Ok("")

	case "M32":
		src, err := gcode.OpenFile(cmd.FilePath)
		if err != nil {
			return gcode.Error(fmt.Sprintf("M32: %v", err))
		}
		s.logger.Info("running %s", cmd.FilePath)
		s.stack = append(s.stack, &sourceState{src: src})
		return gcode.Ok("")

	case "M82":
		s.extruderPosMode = Absolute
		return gcode.Ok("")

	case "M83":
		s.extruderPosMode = Relative
		return gcode.Ok("")

	case "M99":
		return s.execReturn(ss)

	case "M104", "M109":
		if t, ok := cmd.Float('S'); ok {
			iodriver.SetHotendTemp(s.drivers, t)
		}
		return gcode.Ok("")

	case "M105":
		t := iodriver.GetHotendTemp(s.drivers)
		b := iodriver.GetBedTemp(s.drivers)
		return gcode.Ok(fmt.Sprintf("T:%.1f B:%.1f", t, b))

	case "M106":
		return s.execFan(cmd.FloatOr('S', 1))

	case "M107":
		return s.execFan(0)

	case "M110", "M117":
		return gcode.Ok("")

	case "M112":
		s.logger.Error("emergency stop")
		s.exiting = true
		s.exitReason = safety.ReasonEmergencyStop
		return gcode.Ok("")

	case "M114":
		return gcode.Ok(fmt.Sprintf("X:%.3f Y:%.3f Z:%.3f E:%.3f",
			s.destX-s.hostZeroX, s.destY-s.hostZeroY, s.destZ-s.hostZeroZ, s.destE-s.hostZeroE))

	case "M115":
		return gcode.Ok("FIRMWARE_NAME:printipi MACHINE_TYPE:" + s.cfg.Kinematics)

	case "M140":
		if t, ok := cmd.Float('S'); ok {
			iodriver.SetBedTemp(s.drivers, t)
		}
		return gcode.Ok("")
	}

	if cmd.IsTool() {
		// Single tool; selects are accepted and ignored.
		return gcode.Ok("")
	}

	err := errors.UnknownOpcode(cmd.Opcode)
	s.logger.Warn("%v", err)
	return gcode.Error(err.Error())
}

// execMove handles G0/G1.
func (s *State) execMove(cmd gcode.Command) gcode.Response {
	if !s.isHomed && s.cfg.HomeBeforeFirstMove {
		if err := s.homeEndstops(); err != nil {
			return gcode.Error(err.Error())
		}
	}

	x, y, z, e := s.destX, s.destY, s.destZ, s.destE
	if v, ok := cmd.Float('X'); ok {
		x = s.xToPrimitive(v)
	}
	if v, ok := cmd.Float('Y'); ok {
		y = s.yToPrimitive(v)
	}
	if v, ok := cmd.Float('Z'); ok {
		z = s.zToPrimitive(v)
	}
	if v, ok := cmd.Float('E'); ok {
		e = s.eToPrimitive(v)
	}
	if f, ok := cmd.Float('F'); ok {
		s.destMoveRate = s.feedToPrimitive(f)
	}

	if err := s.queueMovement(x, y, z, e); err != nil {
		return gcode.Error(err.Error())
	}
	return gcode.Ok("")
}

// execSetZero handles G92: re-anchor host zero so the current position
// reads as the given values. Bare G92 zeroes all four.
func (s *State) execSetZero(cmd gcode.Command) gcode.Response {
	if len(cmd.Args) == 0 {
		s.setHostZero(0, 0, 0, 0)
		return gcode.Ok("")
	}
	x := s.destX - s.hostZeroX
	y := s.destY - s.hostZeroY
	z := s.destZ - s.hostZeroZ
	e := s.destE - s.hostZeroE
	if v, ok := cmd.Float('X'); ok {
		x = v * s.unitScale()
	}
	if v, ok := cmd.Float('Y'); ok {
		y = v * s.unitScale()
	}
	if v, ok := cmd.Float('Z'); ok {
		z = v * s.unitScale()
	}
	if v, ok := cmd.Float('E'); ok {
		e = v * s.unitScale()
	}
	s.setHostZero(x, y, z, e)
	return gcode.Ok("")
}

// execReturn handles M99: pop the current source. Popping the source
// that sent the command suppresses the reply; returning from the root
// exits.
func (s *State) execReturn(ss *sourceState) gcode.Response {
	top := s.top()
	if top == nil {
		// Return from the root stream ends the program.
		s.exiting = true
		s.exitReason = safety.ReasonCleanExit
		return gcode.Null
	}
	top.src.Close()
	s.stack = s.stack[:len(s.stack)-1]
	if top == ss {
		return gcode.Null
	}
	return gcode.Ok("")
}

// execFan handles M106/M107. Duties above 1 are read on the 0-255
// scale.
func (s *State) execFan(duty float64) gcode.Response {
	if duty > 1 {
		duty = duty / 255
	}
	if duty < 0 {
		duty = 0
	} else if duty > 1 {
		duty = 1
	}
	for _, d := range s.drivers {
		if f, ok := d.(*iodriver.Fan); ok {
			f.SetDuty(s.scheduler, float32(duty))
		}
	}
	return gcode.Ok("")
}
