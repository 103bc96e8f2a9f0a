// Package pins maps abstract pin IDs to physical output lines. The motion
// core only ever talks to the Writer interface; the periph.io backend
// drives real GPIO on an SBC, and the Recorder backs tests and emulation.
package pins

import (
	"errors"
	"time"

	"github.com/matthewSorensen/printipi/pkg/event"
)

// Common errors
var (
	ErrUnknownPin = errors.New("pins: pin not registered")
)

// Writer drives output pins. Implementations must be safe to call from
// the real-time dispatch goroutine: no allocation, no blocking I/O.
type Writer interface {
	// WriteLevel drives a pin to a digital level.
	WriteLevel(pin event.PinID, level event.Level) error

	// WritePwm updates a pin's PWM duty cycle and period.
	WritePwm(pin event.PinID, duty float32, period time.Duration) error

	// Close releases the pins, driving every output low first.
	Close() error
}

// Apply routes an event to the writer. Null events are ignored.
func Apply(w Writer, e event.Event) error {
	switch e.Kind {
	case event.KindEdge:
		return w.WriteLevel(e.Pin, e.Level)
	case event.KindPwm:
		return w.WritePwm(e.Pin, e.Duty, e.Period)
	default:
		return nil
	}
}
