package pins

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/log"
)

var hostInitOnce sync.Once
var hostInitErr error

// GPIO is a Writer backed by periph.io, driving real GPIO lines on the
// SBC. Pins are resolved by name ("GPIO22", "P1_15", ...) once at
// construction so the dispatch hot path is a plain register write.
type GPIO struct {
	out    map[event.PinID]gpio.PinIO
	in     map[event.PinID]gpio.PinIO
	logger *log.Logger
}

// NewGPIO initializes the periph host once and resolves the given
// pin-name mappings. outputs are driven low immediately; inputs are
// configured with a pull-down.
func NewGPIO(outputs map[event.PinID]string, inputs map[event.PinID]string) (*GPIO, error) {
	hostInitOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	if hostInitErr != nil {
		return nil, fmt.Errorf("pins: periph host init: %w", hostInitErr)
	}

	g := &GPIO{
		out:    make(map[event.PinID]gpio.PinIO, len(outputs)),
		in:     make(map[event.PinID]gpio.PinIO, len(inputs)),
		logger: log.GetLogger("pins"),
	}
	for id, name := range outputs {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("pins: output %q: %w", name, ErrUnknownPin)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("pins: output %q: %w", name, err)
		}
		g.out[id] = p
	}
	for id, name := range inputs {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("pins: input %q: %w", name, ErrUnknownPin)
		}
		if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("pins: input %q: %w", name, err)
		}
		g.in[id] = p
	}
	return g, nil
}

// WriteLevel drives an output pin.
func (g *GPIO) WriteLevel(pin event.PinID, level event.Level) error {
	p, ok := g.out[pin]
	if !ok {
		return ErrUnknownPin
	}
	return p.Out(gpio.Level(level == event.High))
}

// WritePwm updates an output pin's PWM. Falls back to a plain level when
// the line has no PWM support and the duty is saturated.
func (g *GPIO) WritePwm(pin event.PinID, duty float32, period time.Duration) error {
	p, ok := g.out[pin]
	if !ok {
		return ErrUnknownPin
	}
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	freq := physic.Frequency(float64(physic.Hertz) * float64(time.Second) / float64(period))
	d := gpio.Duty(float64(gpio.DutyMax) * float64(duty))
	if err := p.PWM(d, freq); err != nil {
		// Some lines only do digital IO; saturated duties still work.
		if duty <= 0 {
			return p.Out(gpio.Low)
		}
		if duty >= 1 {
			return p.Out(gpio.High)
		}
		return err
	}
	return nil
}

// ReadLevel samples an input pin.
func (g *GPIO) ReadLevel(pin event.PinID) (event.Level, error) {
	p, ok := g.in[pin]
	if !ok {
		return event.Low, ErrUnknownPin
	}
	if p.Read() == gpio.High {
		return event.High, nil
	}
	return event.Low, nil
}

// Close drives every output low and releases the lines.
func (g *GPIO) Close() error {
	var firstErr error
	for id, p := range g.out {
		if err := p.Out(gpio.Low); err != nil && firstErr == nil {
			g.logger.Warn("failed to drive pin %d low on close: %v", id, err)
			firstErr = err
		}
	}
	for _, p := range g.out {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
