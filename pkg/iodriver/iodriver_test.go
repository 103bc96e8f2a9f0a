package iodriver

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/config"
	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/pins"
)

func TestA4988StepTranslation(t *testing.T) {
	clk := clock.NewFake(0)
	rec := pins.NewRecorder(clk)
	a := NewA4988("stepper_a", 10, 11, 12, true, 2*time.Microsecond, rec)

	var buf []event.Event
	step := event.Step{Time: clock.FromSeconds(0.5), Axis: 0, Direction: event.Forward}
	buf = a.AppendStepEvents(buf[:0], step)

	if len(buf) != 3 {
		t.Fatalf("got %d events, want dir + pulse pair", len(buf))
	}
	if buf[0].Pin != 11 || buf[0].Level != event.High {
		t.Errorf("dir edge = %v", buf[0])
	}
	if buf[1].Pin != 10 || buf[1].Level != event.High || buf[1].Time != step.Time {
		t.Errorf("pulse high = %v", buf[1])
	}
	if buf[2].Pin != 10 || buf[2].Level != event.Low {
		t.Errorf("pulse low = %v", buf[2])
	}
	if got := buf[2].Time - buf[1].Time; got != clock.TimePoint(2*time.Microsecond) {
		t.Errorf("pulse width = %v", got)
	}

	// Same direction again: no dir edge.
	step.Time = clock.FromSeconds(0.6)
	buf = a.AppendStepEvents(buf[:0], step)
	if len(buf) != 2 {
		t.Errorf("repeat step emitted %d events, want 2", len(buf))
	}

	// Reversal re-emits the dir edge at the new level.
	step.Time = clock.FromSeconds(0.7)
	step.Direction = event.Backward
	buf = a.AppendStepEvents(buf[:0], step)
	if len(buf) != 3 || buf[0].Pin != 11 || buf[0].Level != event.Low {
		t.Errorf("reversal events = %v", buf)
	}
}

func TestA4988LockUnlock(t *testing.T) {
	clk := clock.NewFake(0)
	rec := pins.NewRecorder(clk)
	a := NewA4988("stepper_a", 10, 11, 12, true, 2*time.Microsecond, rec)

	a.Lock()
	a.Unlock()
	writes := rec.Writes()
	if len(writes) != 2 {
		t.Fatalf("got %d writes", len(writes))
	}
	// Enable is active low.
	if writes[0].Pin != 12 || writes[0].Level != event.Low {
		t.Errorf("lock write = %+v", writes[0])
	}
	if writes[1].Level != event.High {
		t.Errorf("unlock write = %+v", writes[1])
	}
}

type stubReader struct {
	level event.Level
	err   error
}

func (r *stubReader) ReadLevel(event.PinID) (event.Level, error) {
	return r.level, r.err
}

func TestEndstop(t *testing.T) {
	r := &stubReader{level: event.High}
	e := NewEndstop("endstop_a", 5, 0, false, r)
	if !e.IsTriggered() {
		t.Error("high level not reported as triggered")
	}
	r.level = event.Low
	if e.IsTriggered() {
		t.Error("low level reported as triggered")
	}

	inv := NewEndstop("endstop_b", 6, 1, true, r)
	if !inv.IsTriggered() {
		t.Error("inverted endstop not triggered on low")
	}

	r.err = errors.New("bus fault")
	if e.IsTriggered() {
		t.Error("failed read reported as triggered")
	}
}

func TestPIDSteadyStateIsIntegralOnly(t *testing.T) {
	pid := NewPID(config.PIDGains{Kp: 0.05, Ki: 0.005, Kd: 0.25})

	// Accumulate some integral with a real error, then hold at setpoint.
	pid.Feed(200, 190, 1.0)
	pid.Feed(200, 200, 1.0)

	want := pid.integral * 0.005
	for i := 0; i < 5; i++ {
		got := pid.Feed(200, 200, 1.0)
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("duty at zero error = %v, want integral-only %v", got, want)
		}
	}
}

func TestPIDClampsOutput(t *testing.T) {
	pid := NewPID(config.PIDGains{Kp: 10, Ki: 0.1, Kd: 0})
	if got := pid.Feed(300, 20, 1.0); got != 1 {
		t.Errorf("duty = %v, want clamp at 1", got)
	}
	pid.Reset()
	if got := pid.Feed(0, 100, 1.0); got != 0 {
		t.Errorf("duty = %v, want clamp at 0", got)
	}
}

func TestPIDIntegralWindupBound(t *testing.T) {
	pid := NewPID(config.PIDGains{Kp: 0, Ki: 0.01, Kd: 0})
	for i := 0; i < 10000; i++ {
		pid.Feed(300, 20, 1.0)
	}
	if pid.integral > 1/0.01+1e-9 {
		t.Errorf("integral %v exceeds anti-windup bound", pid.integral)
	}
}

func TestLowPassFilterConverges(t *testing.T) {
	f := NewLowPassFilter(3.0)
	if got := f.Feed(100, 1.0); got != 100 {
		t.Errorf("first sample = %v, want passthrough", got)
	}
	var last float64
	for i := 0; i < 100; i++ {
		last = f.Feed(200, 1.0)
	}
	if math.Abs(last-200) > 0.01 {
		t.Errorf("filter did not converge: %v", last)
	}

	disabled := NewLowPassFilter(0)
	if got := disabled.Feed(42, 1.0); got != 42 {
		t.Errorf("disabled filter = %v", got)
	}
}

// fakeTiming replays a fixed charge time.
type fakeTiming struct {
	elapsed time.Duration
	started bool
}

func (f *fakeTiming) Start()                 { f.started = true }
func (f *fakeTiming) Ready() bool            { return f.started }
func (f *fakeTiming) Elapsed() time.Duration { return f.elapsed }

func TestRCThermistorRoundTrip(t *testing.T) {
	params := config.ThermistorParams{
		T0: 25, R0: 100000, Beta: 3950,
		Ra: 665, CapPico: 2200000, VccMV: 3300, VThreshMV: 1600,
	}
	for _, celsius := range []float64{25, 60, 190, 240} {
		timing := &fakeTiming{elapsed: ChargeTimeFor(params, celsius)}
		th := NewRCThermistor(params, timing)
		th.StartRead()
		if !th.IsReady() {
			t.Fatal("conversion not ready")
		}
		if got := th.Value(); math.Abs(got-celsius) > 0.5 {
			t.Errorf("converted %v°C as %v°C", celsius, got)
		}
	}
}

// pwmRecorder captures SchedPwm calls.
type pwmRecorder struct {
	pins   []event.PinID
	duties []float32
}

func (p *pwmRecorder) SchedPwm(pin event.PinID, duty float32, _ time.Duration) {
	p.pins = append(p.pins, pin)
	p.duties = append(p.duties, duty)
}

func newTestTempControl(clk clock.Clock, therm Thermistor, pwm PwmScheduler) *TempControl {
	pid := NewPID(config.PIDGains{Kp: 0.05, Ki: 0.005, Kd: 0.25})
	return NewTempControl("extruder", Hotend, 20, 100*time.Millisecond,
		therm, pid, NewLowPassFilter(0), pwm, clk, true)
}

func TestTempControlReadCycle(t *testing.T) {
	clk := clock.NewFake(clock.FromSeconds(1))
	therm := NewSyntheticThermistor(50)
	pwm := &pwmRecorder{}
	tc := newTestTempControl(clk, therm, pwm)
	tc.SetTargetTemperature(200)

	if !tc.OnIdleCpu(0) {
		t.Fatal("starting a read should request more CPU")
	}
	if tc.OnIdleCpu(0) {
		t.Error("completed read should release CPU")
	}

	if got := tc.MeasuredTemperature(); got != 50 {
		t.Errorf("measured = %v", got)
	}
	if len(pwm.duties) != 1 || pwm.pins[0] != 20 {
		t.Fatalf("pwm calls = %v %v", pwm.pins, pwm.duties)
	}
	if pwm.duties[0] <= 0 {
		t.Errorf("duty %v for 150°C of error", pwm.duties[0])
	}

	// Next read waits for the interval.
	if tc.OnIdleCpu(0) {
		t.Error("idle before read interval requested CPU")
	}
	clk.Advance(clock.FromSeconds(3.5))
	if !tc.OnIdleCpu(0) {
		t.Error("read not restarted after interval")
	}
}

func TestTempControlNoTargetNoPwm(t *testing.T) {
	clk := clock.NewFake(clock.FromSeconds(1))
	pwm := &pwmRecorder{}
	tc := newTestTempControl(clk, NewSyntheticThermistor(22), pwm)

	tc.OnIdleCpu(0)
	tc.OnIdleCpu(0)
	if len(pwm.duties) != 0 {
		t.Errorf("pwm scheduled with no setpoint: %v", pwm.duties)
	}
	if got := tc.MeasuredTemperature(); got != 22 {
		t.Errorf("reading not recorded: %v", got)
	}
}

// neverReady is a thermistor whose conversion never completes.
type neverReady struct{}

func (neverReady) StartRead()     {}
func (neverReady) IsReady() bool  { return false }
func (neverReady) Value() float64 { return 0 }

func TestTempControlReadTimeout(t *testing.T) {
	clk := clock.NewFake(clock.FromSeconds(1))
	pwm := &pwmRecorder{}
	tc := newTestTempControl(clk, neverReady{}, pwm)
	tc.SetTargetTemperature(100)

	if !tc.OnIdleCpu(0) {
		t.Fatal("read did not start")
	}
	clk.Advance(clock.FromSeconds(2))
	if tc.OnIdleCpu(0) {
		t.Error("timed-out read still requesting CPU")
	}
	if len(pwm.duties) != 0 {
		t.Error("pwm scheduled from failed read")
	}
	// Last good value is retained.
	if got := tc.MeasuredTemperature(); got != NoReading {
		t.Errorf("measured = %v", got)
	}
}

func TestTempControlLatencyDrop(t *testing.T) {
	clk := clock.NewFake(clock.FromSeconds(1))
	therm := NewSyntheticThermistor(80)
	pwm := &pwmRecorder{}
	pid := NewPID(config.PIDGains{Kp: 0.05, Ki: 0.005, Kd: 0.25})
	// Not instrumented: the 40ms latency bound applies.
	tc := NewTempControl("extruder", Hotend, 20, 100*time.Millisecond,
		therm, pid, NewLowPassFilter(0), pwm, clk, false)
	tc.SetTargetTemperature(200)

	tc.OnIdleCpu(0)
	clk.Advance(clock.FromSeconds(0.5))
	if !tc.OnIdleCpu(0) {
		t.Error("stale sample should restart the read")
	}
	if len(pwm.duties) != 0 {
		t.Error("stale sample reached the PID")
	}
	// Prompt follow-up completes the restarted read.
	if tc.OnIdleCpu(0) {
		t.Error("restarted read did not complete")
	}
	if len(pwm.duties) != 1 {
		t.Errorf("pwm calls after clean read = %d", len(pwm.duties))
	}
}

func TestCapabilityPredicates(t *testing.T) {
	clk := clock.NewFake(0)
	rec := pins.NewRecorder(clk)
	pwm := &pwmRecorder{}

	stepper := NewA4988("stepper_a", 1, 2, 3, true, time.Microsecond, rec)
	stop := NewEndstop("endstop_a", 4, 0, false, &stubReader{})
	fan := NewFan("fan", 5, 10*time.Millisecond)
	hot := newTestTempControl(clk, NewSyntheticThermistor(20), pwm)
	bed := NewTempControl("heater_bed", HeatedBed, 21, 100*time.Millisecond,
		NewSyntheticThermistor(20), NewPID(config.PIDGains{Ki: 1}), NewLowPassFilter(0), pwm, clk, true)

	drivers := []Driver{stepper, stop, fan, hot, bed}

	if !IsStepper(drivers[0]) || IsStepper(drivers[1]) {
		t.Error("IsStepper predicate wrong")
	}
	if !IsEndstop(drivers[1]) || !IsFan(drivers[2]) {
		t.Error("IsEndstop/IsFan predicate wrong")
	}
	if !IsHotend(drivers[3]) || IsHotend(drivers[4]) {
		t.Error("IsHotend predicate wrong")
	}
	if !IsHeatedBed(drivers[4]) || IsHeatedBed(drivers[3]) {
		t.Error("IsHeatedBed predicate wrong")
	}

	SetHotendTemp(drivers, 210)
	SetBedTemp(drivers, 60)
	if hot.TargetTemperature() != 210 || bed.TargetTemperature() != 60 {
		t.Error("setpoint broadcast missed")
	}

	LockAll(drivers)
	if rec.Level(3) != event.Low {
		t.Error("LockAll did not energize the stepper")
	}
}
