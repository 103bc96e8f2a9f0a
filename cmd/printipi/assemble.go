package main

import (
	"fmt"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/config"
	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/iodriver"
	"github.com/matthewSorensen/printipi/pkg/kinematics"
	"github.com/matthewSorensen/printipi/pkg/motion"
	"github.com/matthewSorensen/printipi/pkg/pins"
	"github.com/matthewSorensen/printipi/pkg/safety"
	"github.com/matthewSorensen/printipi/pkg/sched"
)

// heaterPwmPeriod is the soft-PWM period for heater outputs.
const heaterPwmPeriod = 100 * time.Millisecond

// machineRig is the assembled device graph.
type machineRig struct {
	scheduler *sched.Scheduler
	planner   *motion.Planner
	drivers   []iodriver.Driver
	steppers  []*iodriver.A4988
	endstops  map[int]*iodriver.Endstop
}

// pinTable allocates PinIDs for configured pin names.
type pinTable struct {
	next    event.PinID
	outputs map[event.PinID]string
	inputs  map[event.PinID]string
}

func newPinTable() *pinTable {
	return &pinTable{
		outputs: make(map[event.PinID]string),
		inputs:  make(map[event.PinID]string),
	}
}

func (p *pinTable) output(name string) event.PinID {
	id := p.next
	p.next++
	p.outputs[id] = name
	return id
}

func (p *pinTable) input(name string) event.PinID {
	id := p.next
	p.next++
	p.inputs[id] = name
	return id
}

// emulatedInputs answers every endstop poll as triggered, so emulated
// homing completes immediately.
type emulatedInputs struct{}

func (emulatedInputs) ReadLevel(event.PinID) (event.Level, error) {
	return event.High, nil
}

// assemble builds the full device graph from the machine description.
func assemble(clk clock.Clock, m *config.Machine, safetyMgr *safety.Manager, emulate bool) (*machineRig, error) {
	table := newPinTable()

	type stepperPins struct {
		step, dir, enable event.PinID
		hasEnable         bool
	}
	var spins []stepperPins
	var endstopPins []event.PinID

	allSteppers := append(append([]config.StepperConfig{}, m.Steppers...), m.Extruder)
	for _, sc := range allSteppers {
		sp := stepperPins{
			step: table.output(sc.StepPin),
			dir:  table.output(sc.DirPin),
		}
		if sc.EnablePin != "" {
			sp.enable = table.output(sc.EnablePin)
			sp.hasEnable = true
		}
		spins = append(spins, sp)
	}
	for _, sc := range m.Steppers {
		if sc.EndstopPin != "" {
			endstopPins = append(endstopPins, table.input(sc.EndstopPin))
		} else {
			endstopPins = append(endstopPins, -1)
		}
	}

	var fanPin, hotendPin, bedPin event.PinID
	if m.FanPin != "" {
		fanPin = table.output(m.FanPin)
	}
	if m.Hotend != nil {
		hotendPin = table.output(m.Hotend.Pin)
	}
	if m.Bed != nil {
		bedPin = table.output(m.Bed.Pin)
	}

	// Pin backend.
	var writer pins.Writer
	var reader iodriver.LevelReader
	if emulate {
		rec := pins.NewRecorder(clk)
		writer = rec
		reader = emulatedInputs{}
	} else {
		gp, err := pins.NewGPIO(table.outputs, table.inputs)
		if err != nil {
			return nil, err
		}
		writer = gp
		reader = gp
	}
	safetyMgr.RegisterFunc("pins", writer.Close)

	scheduler := sched.New(clk, writer, m.SchedCapacity)

	// Kinematics and steppers.
	var coordMap kinematics.CoordMap
	var move, home []motion.AxisStepper
	switch m.Kinematics {
	case "delta":
		dm := kinematics.NewDelta(m.Delta, m.ExtruderSteps, m.BedLevel)
		coordMap = dm
		move, home = motion.DeltaSteppers(dm)
	case "cartesian":
		cm := kinematics.NewCartesian(m.CartesianSteps, m.ExtruderSteps, [3]float64{}, m.BedLevel)
		coordMap = cm
		move, home = motion.CartesianSteppers(cm)
	default:
		return nil, fmt.Errorf("unknown kinematics %q", m.Kinematics)
	}

	planner := motion.NewPlanner(coordMap, move, home,
		motion.NewConstantAcceleration(m.MaxAccel), nil)

	// Device drivers, axis steppers first so driver index matches axis.
	var drivers []iodriver.Driver
	var steppers []*iodriver.A4988
	for i, sc := range allSteppers {
		sp := spins[i]
		a := iodriver.NewA4988(sc.Name, sp.step, sp.dir, sp.enable, sp.hasEnable, m.StepPulse, writer)
		steppers = append(steppers, a)
		drivers = append(drivers, a)
	}

	endstops := make(map[int]*iodriver.Endstop)
	for axis, pin := range endstopPins {
		if pin < 0 {
			continue
		}
		e := iodriver.NewEndstop(m.Steppers[axis].Name+"_endstop", pin, axis, false, reader)
		endstops[axis] = e
		drivers = append(drivers, e)
	}

	if m.FanPin != "" {
		drivers = append(drivers, iodriver.NewFan("fan", fanPin, m.FanCycle))
	}

	addHeater := func(name string, kind iodriver.TempKind, hc *config.HeaterConfig, pin event.PinID) {
		timing := iodriver.NewEmulatedTiming(hc.Thermistor, 22)
		tc := iodriver.NewTempControl(name, kind, pin, heaterPwmPeriod,
			iodriver.NewRCThermistor(hc.Thermistor, timing),
			iodriver.NewPID(hc.PID),
			iodriver.NewLowPassFilter(hc.FilterRC),
			scheduler, clk, emulate)
		drivers = append(drivers, tc)
		scheduler.AddIdleHandler(tc)
		safetyMgr.RegisterFunc(name, func() error {
			tc.SetTargetTemperature(iodriver.NoReading)
			return writer.WritePwm(pin, 0, heaterPwmPeriod)
		})
	}
	if m.Hotend != nil {
		addHeater("extruder", iodriver.Hotend, m.Hotend, hotendPin)
	}
	if m.Bed != nil {
		addHeater("heater_bed", iodriver.HeatedBed, m.Bed, bedPin)
	}

	return &machineRig{
		scheduler: scheduler,
		planner:   planner,
		drivers:   drivers,
		steppers:  steppers,
		endstops:  endstops,
	}, nil
}
