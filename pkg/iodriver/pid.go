package iodriver

import (
	"github.com/matthewSorensen/printipi/pkg/config"
)

// PID is a proportional-integral-derivative controller producing a PWM
// duty in [0, 1] from a temperature error. The integral term is clamped
// so it can never demand more than full power on its own.
type PID struct {
	kp, ki, kd float64
	integral   float64
	prevErr    float64
	primed     bool
}

// NewPID creates a controller from configured gains.
func NewPID(g config.PIDGains) *PID {
	return &PID{kp: g.Kp, ki: g.Ki, kd: g.Kd}
}

// Feed advances the controller by dt seconds with the given setpoint and
// measurement, returning the new duty.
func (p *PID) Feed(setpoint, measured, dt float64) float64 {
	if dt <= 0 {
		return clampDuty(p.kp*(setpoint-measured) + p.ki*p.integral)
	}

	err := setpoint - measured

	p.integral += err * dt
	if p.ki > 0 {
		limit := 1 / p.ki
		if p.integral > limit {
			p.integral = limit
		} else if p.integral < -limit {
			p.integral = -limit
		}
	}

	d := 0.0
	if p.primed {
		d = (err - p.prevErr) / dt
	}
	p.prevErr = err
	p.primed = true

	return clampDuty(p.kp*err + p.ki*p.integral + p.kd*d)
}

// Reset clears accumulated state, for setpoint changes after a long off
// period.
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.primed = false
}

func clampDuty(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
