package config

import (
	"fmt"
	"time"
)

// PIDGains are the controller gains for a heater loop.
type PIDGains struct {
	Kp float64
	Ki float64
	Kd float64
}

// ThermistorParams describe an RC-timed thermistor channel.
type ThermistorParams struct {
	T0        float64 // reference temperature, °C
	R0        float64 // resistance at T0, ohms
	Beta      float64 // beta coefficient
	Ra        float64 // series resistance, ohms
	CapPico   float64 // timing capacitor, picofarads
	VccMV     float64 // supply, millivolts
	VThreshMV float64 // input threshold, millivolts
}

// HeaterConfig describes one temperature-controlled output.
type HeaterConfig struct {
	Pin        string
	MaxTemp    float64
	PID        PIDGains
	Thermistor ThermistorParams
	FilterRC   float64 // low-pass time constant in seconds; 0 disables
}

// StepperConfig describes one stepper channel's pins.
type StepperConfig struct {
	Name       string
	StepPin    string
	DirPin     string
	EnablePin  string
	EndstopPin string  // empty when the axis has no endstop
	StepsPerMM float64 // 0 means "use the kinematics default"
}

// DeltaGeometry is the linear-delta machine geometry, all lengths in mm.
type DeltaGeometry struct {
	Radius      float64
	RodLength   float64
	Height      float64
	BuildRadius float64
	StepsPerMM  float64
}

// BedMatrix is the integer-ratio bed-leveling matrix: row-major
// numerators over a shared denominator.
type BedMatrix struct {
	Num   [9]int64
	Denom int64
}

// Identity reports whether the matrix is the identity transform.
func (m BedMatrix) Identity() bool {
	for i, n := range m.Num {
		want := int64(0)
		if i%4 == 0 {
			want = m.Denom
		}
		if n != want {
			return false
		}
	}
	return true
}

// IdentityMatrix returns the identity bed matrix.
func IdentityMatrix() BedMatrix {
	return BedMatrix{
		Num:   [9]int64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Denom: 1,
	}
}

// Machine is the fully resolved machine description.
type Machine struct {
	Kinematics string // "delta" or "cartesian"

	MaxVelocity    float64 // mm/s
	MaxAccel       float64 // mm/s^2
	HomeRate       float64 // mm/s
	MaxExtrudeRate float64 // mm/s
	MaxRetractRate float64 // mm/s

	StepPulse     time.Duration
	SchedCapacity int

	Delta               DeltaGeometry
	CartesianSteps      [3]float64 // steps/mm for X, Y, Z
	ExtruderSteps       float64    // steps/mm for E
	BedLevel            BedMatrix
	HomeBeforeFirstMove bool

	Steppers []StepperConfig // one per mechanical XYZ axis, in axis order
	Extruder StepperConfig
	Hotend   *HeaterConfig
	Bed      *HeaterConfig
	FanPin   string
	FanCycle time.Duration
}

// LoadMachine resolves a parsed Config into a Machine description.
func LoadMachine(c *Config) (*Machine, error) {
	printer, err := c.Section("printer")
	if err != nil {
		return nil, err
	}

	m := &Machine{BedLevel: IdentityMatrix()}
	if m.Kinematics, err = printer.Get("kinematics"); err != nil {
		return nil, err
	}
	if m.MaxVelocity, err = printer.GetFloat("max_velocity", 120); err != nil {
		return nil, err
	}
	if m.MaxAccel, err = printer.GetFloat("max_accel", 900); err != nil {
		return nil, err
	}
	if m.HomeRate, err = printer.GetFloat("home_rate", 10); err != nil {
		return nil, err
	}
	if m.MaxExtrudeRate, err = printer.GetFloat("max_extrude_rate", 150); err != nil {
		return nil, err
	}
	if m.MaxRetractRate, err = printer.GetFloat("max_retract_rate", 150); err != nil {
		return nil, err
	}
	pulseUS, err := printer.GetFloat("step_pulse_us", 2)
	if err != nil {
		return nil, err
	}
	m.StepPulse = time.Duration(pulseUS * float64(time.Microsecond))
	if m.SchedCapacity, err = printer.GetInt("scheduler_capacity", 1024); err != nil {
		return nil, err
	}
	if m.HomeBeforeFirstMove, err = printer.GetBool("home_before_first_move", true); err != nil {
		return nil, err
	}

	switch m.Kinematics {
	case "delta":
		if err := loadDelta(c, m); err != nil {
			return nil, err
		}
	case "cartesian":
		if err := loadCartesian(c, m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config: unknown kinematics %q", m.Kinematics)
	}

	if err := loadBedLevel(c, m); err != nil {
		return nil, err
	}
	if err := loadExtruder(c, m); err != nil {
		return nil, err
	}
	if c.HasSection("heater_bed") {
		bed, err := loadHeater(c, "heater_bed")
		if err != nil {
			return nil, err
		}
		m.Bed = bed
	}
	if c.HasSection("fan") {
		fan, err := c.Section("fan")
		if err != nil {
			return nil, err
		}
		if m.FanPin, err = fan.Get("pin"); err != nil {
			return nil, err
		}
		cycleMS, err := fan.GetFloat("cycle_time_ms", 10)
		if err != nil {
			return nil, err
		}
		m.FanCycle = time.Duration(cycleMS * float64(time.Millisecond))
	}
	return m, nil
}

func loadDelta(c *Config, m *Machine) error {
	sec, err := c.Section("delta")
	if err != nil {
		return err
	}
	g := &m.Delta
	if g.Radius, err = sec.GetFloat("radius"); err != nil {
		return err
	}
	if g.RodLength, err = sec.GetFloat("rod_length"); err != nil {
		return err
	}
	if g.Height, err = sec.GetFloat("height"); err != nil {
		return err
	}
	if g.BuildRadius, err = sec.GetFloat("build_radius", g.Radius); err != nil {
		return err
	}
	if g.StepsPerMM, err = sec.GetFloat("steps_per_mm"); err != nil {
		return err
	}
	if g.RodLength <= g.Radius {
		return fmt.Errorf("config: [delta] rod_length must exceed radius")
	}
	for _, name := range []string{"stepper_a", "stepper_b", "stepper_c"} {
		sc, err := loadStepper(c, name, true)
		if err != nil {
			return err
		}
		m.Steppers = append(m.Steppers, sc)
	}
	return nil
}

func loadCartesian(c *Config, m *Machine) error {
	for i, name := range []string{"stepper_x", "stepper_y", "stepper_z"} {
		sc, err := loadStepper(c, name, false)
		if err != nil {
			return err
		}
		if sc.StepsPerMM <= 0 {
			return fmt.Errorf("config: [%s] requires steps_per_mm", name)
		}
		m.CartesianSteps[i] = sc.StepsPerMM
		m.Steppers = append(m.Steppers, sc)
	}
	return nil
}

func loadStepper(c *Config, name string, endstopRequired bool) (StepperConfig, error) {
	sec, err := c.Section(name)
	if err != nil {
		return StepperConfig{}, err
	}
	sc := StepperConfig{Name: name}
	if sc.StepPin, err = sec.Get("step_pin"); err != nil {
		return sc, err
	}
	if sc.DirPin, err = sec.Get("dir_pin"); err != nil {
		return sc, err
	}
	if sc.EnablePin, err = sec.Get("enable_pin", ""); err != nil {
		return sc, err
	}
	if endstopRequired {
		if sc.EndstopPin, err = sec.Get("endstop_pin"); err != nil {
			return sc, err
		}
	} else {
		if sc.EndstopPin, err = sec.Get("endstop_pin", ""); err != nil {
			return sc, err
		}
	}
	if sc.StepsPerMM, err = sec.GetFloat("steps_per_mm", 0); err != nil {
		return sc, err
	}
	return sc, nil
}

func loadExtruder(c *Config, m *Machine) error {
	sec, err := c.Section("extruder")
	if err != nil {
		return err
	}
	e := StepperConfig{Name: "extruder"}
	if e.StepPin, err = sec.Get("step_pin"); err != nil {
		return err
	}
	if e.DirPin, err = sec.Get("dir_pin"); err != nil {
		return err
	}
	if e.EnablePin, err = sec.Get("enable_pin", ""); err != nil {
		return err
	}
	if e.StepsPerMM, err = sec.GetFloat("steps_per_mm"); err != nil {
		return err
	}
	m.Extruder = e
	m.ExtruderSteps = e.StepsPerMM

	if sec.HasOption("heater_pin") {
		hot, err := loadHeater(c, "extruder")
		if err != nil {
			return err
		}
		m.Hotend = hot
	}
	return nil
}

func loadHeater(c *Config, section string) (*HeaterConfig, error) {
	sec, err := c.Section(section)
	if err != nil {
		return nil, err
	}
	h := &HeaterConfig{}
	if h.Pin, err = sec.Get("heater_pin"); err != nil {
		return nil, err
	}
	if h.MaxTemp, err = sec.GetFloat("max_temp", 300); err != nil {
		return nil, err
	}
	if h.PID.Kp, err = sec.GetFloat("pid_kp", 18.0); err != nil {
		return nil, err
	}
	if h.PID.Ki, err = sec.GetFloat("pid_ki", 0.25); err != nil {
		return nil, err
	}
	if h.PID.Kd, err = sec.GetFloat("pid_kd", 1.0); err != nil {
		return nil, err
	}
	if h.FilterRC, err = sec.GetFloat("filter_rc", 3.0); err != nil {
		return nil, err
	}
	t := &h.Thermistor
	if t.T0, err = sec.GetFloat("therm_t0", 25); err != nil {
		return nil, err
	}
	if t.R0, err = sec.GetFloat("therm_r0", 100000); err != nil {
		return nil, err
	}
	if t.Beta, err = sec.GetFloat("therm_beta", 3950); err != nil {
		return nil, err
	}
	if t.Ra, err = sec.GetFloat("therm_ra", 665); err != nil {
		return nil, err
	}
	if t.CapPico, err = sec.GetFloat("therm_cap_pico", 2200000); err != nil {
		return nil, err
	}
	if t.VccMV, err = sec.GetFloat("therm_vcc_mv", 3300); err != nil {
		return nil, err
	}
	if t.VThreshMV, err = sec.GetFloat("therm_thresh_mv", 1600); err != nil {
		return nil, err
	}
	return h, nil
}

func loadBedLevel(c *Config, m *Machine) error {
	if !c.HasSection("bed_level") {
		return nil
	}
	sec, err := c.Section("bed_level")
	if err != nil {
		return err
	}
	nums, err := sec.GetIntList("matrix")
	if err != nil {
		return err
	}
	if len(nums) != 9 {
		return fmt.Errorf("config: [bed_level] matrix needs 9 integers, got %d", len(nums))
	}
	denom, err := sec.GetInt("denominator", 1)
	if err != nil {
		return err
	}
	if denom == 0 {
		return fmt.Errorf("config: [bed_level] denominator must be nonzero")
	}
	for i, n := range nums {
		m.BedLevel.Num[i] = int64(n)
	}
	m.BedLevel.Denom = int64(denom)
	return nil
}
