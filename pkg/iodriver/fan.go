package iodriver

import (
	"time"

	"github.com/matthewSorensen/printipi/pkg/event"
)

// Fan is a PWM-driven cooling fan.
type Fan struct {
	name   string
	pin    event.PinID
	period time.Duration
}

// NewFan creates a fan with its PWM period.
func NewFan(name string, pin event.PinID, period time.Duration) *Fan {
	return &Fan{name: name, pin: pin, period: period}
}

// Name returns the driver name.
func (f *Fan) Name() string {
	return f.name
}

// SetDuty schedules the fan's PWM target.
func (f *Fan) SetDuty(pwm PwmScheduler, duty float32) {
	pwm.SchedPwm(f.pin, duty, f.period)
}
