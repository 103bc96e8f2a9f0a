package iodriver

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/log"
	"github.com/matthewSorensen/printipi/pkg/sched"
)

// TempKind selects which G-codes a TempControl responds to.
type TempKind int

const (
	Hotend TempKind = iota
	HeatedBed
)

// Thermistor service timing.
const (
	// readInterval spaces conversions.
	readInterval = 3 * time.Second

	// maxRead bounds one conversion; past it the read is aborted and
	// retried on the next interval.
	maxRead = time.Second

	// latencyThresh bounds the gap between idle callbacks while a
	// conversion is pending. A sample that sat unserviced longer than
	// this is stale and gets dropped.
	latencyThresh = 40 * time.Millisecond

	// latencyThreshInstrumented relaxes the bound under emulation or
	// instrumented runs.
	latencyThreshInstrumented = 2 * time.Second
)

// TempControl closes the loop between a thermistor and a heater pin:
// on each idle callback it either starts a conversion or completes one,
// feeds fresh readings through the low-pass filter into the PID, and
// schedules the resulting PWM duty. It serves either the hotend or the
// heated bed.
type TempControl struct {
	name      string
	kind      TempKind
	heaterPin event.PinID
	pwmPeriod time.Duration
	therm     Thermistor
	pid       *PID
	filter    *LowPassFilter
	pwm       PwmScheduler
	clk       clock.Clock
	logger    *log.Logger

	// Setpoint and last reading are word-sized shared state: written by
	// the producer (setpoint) and consumer (reading) without locks.
	destTemp atomic.Uint64
	lastTemp atomic.Uint64

	// Consumer-side read state machine.
	isReading    bool
	readStart    clock.TimePoint
	lastIdleCall clock.TimePoint
	nextReadTime clock.TimePoint
	lastPIDTime  clock.TimePoint

	latencyLimit time.Duration
}

// NewTempControl creates a temperature controller. instrumented relaxes
// the sample-latency bound for emulated or profiled runs.
func NewTempControl(name string, kind TempKind, heaterPin event.PinID, pwmPeriod time.Duration,
	therm Thermistor, pid *PID, filter *LowPassFilter, pwm PwmScheduler, clk clock.Clock, instrumented bool) *TempControl {

	tc := &TempControl{
		name:      name,
		kind:      kind,
		heaterPin: heaterPin,
		pwmPeriod: pwmPeriod,
		therm:     therm,
		pid:       pid,
		filter:    filter,
		pwm:       pwm,
		clk:       clk,
		logger:    log.GetLogger(name),

		latencyLimit: latencyThresh,
	}
	if instrumented {
		tc.latencyLimit = latencyThreshInstrumented
	}
	tc.destTemp.Store(math.Float64bits(NoReading))
	tc.lastTemp.Store(math.Float64bits(NoReading))
	tc.nextReadTime = clk.Now()
	return tc
}

// Name returns the driver name.
func (tc *TempControl) Name() string {
	return tc.name
}

// SetTargetTemperature sets the setpoint in °C. Safe from any goroutine.
func (tc *TempControl) SetTargetTemperature(celsius float64) {
	tc.destTemp.Store(math.Float64bits(celsius))
}

// TargetTemperature returns the setpoint.
func (tc *TempControl) TargetTemperature() float64 {
	return math.Float64frombits(tc.destTemp.Load())
}

// MeasuredTemperature returns the last good reading, or NoReading.
func (tc *TempControl) MeasuredTemperature() float64 {
	return math.Float64frombits(tc.lastTemp.Load())
}

// HeaterPin returns the controlled output pin.
func (tc *TempControl) HeaterPin() event.PinID {
	return tc.heaterPin
}

// OnIdleCpu services the read state machine. Returns true while a
// conversion is pending and needs further polling.
func (tc *TempControl) OnIdleCpu(_ sched.IdleInterval) bool {
	now := tc.clk.Now()
	gap := now.Sub(tc.lastIdleCall)
	tc.lastIdleCall = now

	if tc.isReading {
		if tc.therm.IsReady() {
			tc.isReading = false
			if gap > tc.latencyLimit {
				// Sample sat unserviced too long; drop it and restart.
				tc.logger.Debug("thermistor sample dropped (%.1fms latency)", float64(gap)/float64(time.Millisecond))
				tc.therm.StartRead()
				tc.isReading = true
				tc.readStart = now
				return true
			}
			tc.recordReading(now, tc.therm.Value())
			return false
		}
		if now.Sub(tc.readStart) > maxRead {
			tc.logger.Error("thermistor read timed out")
			tc.isReading = false
			return false
		}
		return true
	}

	if tc.nextReadTime <= now {
		tc.nextReadTime = now.Add(readInterval)
		tc.therm.StartRead()
		tc.isReading = true
		tc.readStart = now
		return true
	}
	return false
}

// recordReading folds a fresh reading into the control loop and
// schedules the heater PWM.
func (tc *TempControl) recordReading(now clock.TimePoint, celsius float64) {
	tc.lastTemp.Store(math.Float64bits(celsius))

	target := tc.TargetTemperature()
	if target <= NoReading {
		return
	}

	dt := 0.0
	if tc.lastPIDTime != 0 {
		dt = now.Sub(tc.lastPIDTime).Seconds()
	}
	tc.lastPIDTime = now

	filtered := tc.filter.Feed(celsius, dt)
	duty := tc.pid.Feed(target, filtered, dt)
	tc.logger.Debug("pwm=%.3f temp=%.1fC target=%.1fC", duty, filtered, target)
	tc.pwm.SchedPwm(tc.heaterPin, float32(duty), tc.pwmPeriod)
}
