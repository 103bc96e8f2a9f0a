package pins

import (
	"sync"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/event"
)

// Write is one recorded pin operation.
type Write struct {
	Time   clock.TimePoint
	Pin    event.PinID
	Kind   event.Kind
	Level  event.Level
	Duty   float32
	Period time.Duration
}

// Recorder is a Writer that records every operation with the time it was
// applied. It backs tests and `-emulate` runs.
type Recorder struct {
	mu     sync.Mutex
	clk    clock.Clock
	writes []Write
	levels map[event.PinID]event.Level
	closed bool
}

// NewRecorder creates a Recorder stamping writes from clk.
func NewRecorder(clk clock.Clock) *Recorder {
	return &Recorder{clk: clk, levels: make(map[event.PinID]event.Level)}
}

// WriteLevel records a digital edge.
func (r *Recorder) WriteLevel(pin event.PinID, level event.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, Write{Time: r.clk.Now(), Pin: pin, Kind: event.KindEdge, Level: level})
	r.levels[pin] = level
	return nil
}

// WritePwm records a PWM update. The pin's effective level tracks
// whether any power is being delivered.
func (r *Recorder) WritePwm(pin event.PinID, duty float32, period time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, Write{Time: r.clk.Now(), Pin: pin, Kind: event.KindPwm, Duty: duty, Period: period})
	if duty > 0 {
		r.levels[pin] = event.High
	} else {
		r.levels[pin] = event.Low
	}
	return nil
}

// Close records the shutdown and drives all known pins low.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for pin := range r.levels {
		r.writes = append(r.writes, Write{Time: r.clk.Now(), Pin: pin, Kind: event.KindEdge, Level: event.Low})
		r.levels[pin] = event.Low
	}
	return nil
}

// Writes returns a copy of the recorded operations in application order.
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Write, len(r.writes))
	copy(out, r.writes)
	return out
}

// Level returns the last level driven on pin.
func (r *Recorder) Level(pin event.PinID) event.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[pin]
}
