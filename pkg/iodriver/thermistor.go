package iodriver

import (
	"math"
	"sync"
	"time"

	"github.com/matthewSorensen/printipi/pkg/config"
)

// Thermistor is an asynchronous temperature channel. StartRead begins a
// conversion; IsReady polls for completion; Value returns the last
// completed conversion in °C.
type Thermistor interface {
	StartRead()
	IsReady() bool
	Value() float64
}

// TimingSource measures the charge time of the RC sense circuit. The
// hardware mechanism (GPIO charge/discharge sequencing) lives behind
// this contract.
type TimingSource interface {
	// Start begins a timing cycle.
	Start()

	// Ready reports whether the cycle has completed.
	Ready() bool

	// Elapsed returns the measured charge time of the completed cycle.
	Elapsed() time.Duration
}

const zeroCelsiusK = 273.15

// RCThermistor converts RC charge times to temperature. The thermistor
// and a known series resistance Ra discharge a capacitor; the time for
// the sense line to cross the input threshold gives the combined
// resistance, and the beta equation gives the temperature.
type RCThermistor struct {
	params config.ThermistorParams
	timing TimingSource
	// ln(Vcc / Vthresh), precomputed
	logVRatio float64
	capFarads float64
	last      float64
}

// NewRCThermistor creates a converter over the given timing source.
func NewRCThermistor(params config.ThermistorParams, timing TimingSource) *RCThermistor {
	return &RCThermistor{
		params:    params,
		timing:    timing,
		logVRatio: math.Log(params.VccMV / params.VThreshMV),
		capFarads: params.CapPico * 1e-12,
		last:      NoReading,
	}
}

// StartRead begins a conversion.
func (t *RCThermistor) StartRead() {
	t.timing.Start()
}

// IsReady reports whether the conversion completed; on completion the
// value is latched.
func (t *RCThermistor) IsReady() bool {
	if !t.timing.Ready() {
		return false
	}
	t.last = t.convert(t.timing.Elapsed())
	return true
}

// Value returns the last completed conversion.
func (t *RCThermistor) Value() float64 {
	return t.last
}

// convert maps a measured charge time to °C.
func (t *RCThermistor) convert(elapsed time.Duration) float64 {
	total := elapsed.Seconds() / (t.capFarads * t.logVRatio)
	r := total - t.params.Ra
	if r <= 0 {
		return NoReading
	}
	t0K := t.params.T0 + zeroCelsiusK
	invT := 1/t0K + math.Log(r/t.params.R0)/t.params.Beta
	return 1/invT - zeroCelsiusK
}

// ChargeTimeFor returns the charge time a given temperature would
// produce; the inverse of convert, used by the emulated timing source.
func ChargeTimeFor(params config.ThermistorParams, celsius float64) time.Duration {
	t0K := params.T0 + zeroCelsiusK
	tK := celsius + zeroCelsiusK
	r := params.R0 * math.Exp(params.Beta*(1/tK-1/t0K))
	seconds := (r + params.Ra) * (params.CapPico * 1e-12) * math.Log(params.VccMV/params.VThreshMV)
	return time.Duration(seconds * float64(time.Second))
}

// EmulatedTiming is a loopback TimingSource: it replays the charge time
// a configured temperature would produce, standing in for the hardware
// timing circuit under emulation.
type EmulatedTiming struct {
	mu      sync.Mutex
	params  config.ThermistorParams
	temp    float64
	started bool
}

// NewEmulatedTiming creates a loopback timing source at the given
// ambient temperature.
func NewEmulatedTiming(params config.ThermistorParams, celsius float64) *EmulatedTiming {
	return &EmulatedTiming{params: params, temp: celsius}
}

// SetTemperature changes the emulated temperature.
func (e *EmulatedTiming) SetTemperature(celsius float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.temp = celsius
}

// Start begins a cycle.
func (e *EmulatedTiming) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
}

// Ready reports completion; emulated cycles are immediate.
func (e *EmulatedTiming) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Elapsed returns the charge time for the emulated temperature.
func (e *EmulatedTiming) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ChargeTimeFor(e.params, e.temp)
}

// SyntheticThermistor reports a settable temperature and completes every
// read immediately. It backs tests; emulated runs use an RCThermistor
// over EmulatedTiming instead.
type SyntheticThermistor struct {
	mu   sync.Mutex
	temp float64
}

// NewSyntheticThermistor creates a synthetic channel at the given
// temperature.
func NewSyntheticThermistor(celsius float64) *SyntheticThermistor {
	return &SyntheticThermistor{temp: celsius}
}

// SetTemperature changes the reported temperature.
func (s *SyntheticThermistor) SetTemperature(celsius float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temp = celsius
}

// StartRead is immediate for the synthetic channel.
func (s *SyntheticThermistor) StartRead() {}

// IsReady always reports completion.
func (s *SyntheticThermistor) IsReady() bool {
	return true
}

// Value returns the configured temperature.
func (s *SyntheticThermistor) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp
}
