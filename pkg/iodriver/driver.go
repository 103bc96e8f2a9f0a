// Package iodriver holds the device drivers the motion core talks to:
// stepper drivers, endstops, fans, and temperature controllers. The set
// of devices is fixed at startup and addressed by index; capabilities
// are discovered through predicates so the command interpreter can
// broadcast to "all fans" or "the hotend" without knowing the topology.
package iodriver

import (
	"time"

	"github.com/matthewSorensen/printipi/pkg/event"
)

// Driver is the common surface of every device.
type Driver interface {
	Name() string
}

// PwmScheduler schedules PWM updates; satisfied by the scheduler.
type PwmScheduler interface {
	SchedPwm(pin event.PinID, duty float32, period time.Duration)
}

// Capability predicates.

// IsStepper reports whether d drives a stepper motor.
func IsStepper(d Driver) bool {
	_, ok := d.(*A4988)
	return ok
}

// IsEndstop reports whether d is an endstop switch.
func IsEndstop(d Driver) bool {
	_, ok := d.(*Endstop)
	return ok
}

// IsFan reports whether d is a fan.
func IsFan(d Driver) bool {
	_, ok := d.(*Fan)
	return ok
}

// IsHotend reports whether d is the hotend temperature controller.
func IsHotend(d Driver) bool {
	tc, ok := d.(*TempControl)
	return ok && tc.kind == Hotend
}

// IsHeatedBed reports whether d is the heated-bed temperature controller.
func IsHeatedBed(d Driver) bool {
	tc, ok := d.(*TempControl)
	return ok && tc.kind == HeatedBed
}

// Broadcast helpers over the driver set.

// LockAll enables holding torque on every stepper.
func LockAll(drivers []Driver) {
	for _, d := range drivers {
		if s, ok := d.(*A4988); ok {
			s.Lock()
		}
	}
}

// UnlockAll releases every stepper.
func UnlockAll(drivers []Driver) {
	for _, d := range drivers {
		if s, ok := d.(*A4988); ok {
			s.Unlock()
		}
	}
}

// SetHotendTemp sets the hotend setpoint, if a hotend exists.
func SetHotendTemp(drivers []Driver, celsius float64) {
	for _, d := range drivers {
		if IsHotend(d) {
			d.(*TempControl).SetTargetTemperature(celsius)
		}
	}
}

// SetBedTemp sets the heated-bed setpoint, if a bed exists.
func SetBedTemp(drivers []Driver, celsius float64) {
	for _, d := range drivers {
		if IsHeatedBed(d) {
			d.(*TempControl).SetTargetTemperature(celsius)
		}
	}
}

// NoReading is reported when no measurement is available; it is below
// absolute zero so it can never be confused for a real temperature.
const NoReading = -300.0

// GetHotendTemp returns the last hotend reading, or NoReading.
func GetHotendTemp(drivers []Driver) float64 {
	for _, d := range drivers {
		if IsHotend(d) {
			return d.(*TempControl).MeasuredTemperature()
		}
	}
	return NoReading
}

// GetBedTemp returns the last bed reading, or NoReading.
func GetBedTemp(drivers []Driver) float64 {
	for _, d := range drivers {
		if IsHeatedBed(d) {
			return d.(*TempControl).MeasuredTemperature()
		}
	}
	return NoReading
}
