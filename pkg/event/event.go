// Package event defines the value types that flow between the motion
// planner, the IO drivers, and the scheduler. Events are small, trivially
// copyable records; the scheduler queue holds them by value so the
// dispatch hot path never allocates.
package event

import (
	"fmt"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
)

// PinID identifies an output pin. The mapping to a physical line is owned
// by the pins package.
type PinID int

// Level is a digital output level.
type Level uint8

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Kind discriminates the event union.
type Kind uint8

const (
	// KindNull marks the zero Event; it carries no output action.
	KindNull Kind = iota

	// KindEdge drives a pin to a digital level at Time.
	KindEdge

	// KindPwm updates a pin's PWM duty and period at Time.
	KindPwm
)

// Event is a timestamped output action. The zero value is the null event.
type Event struct {
	Time   clock.TimePoint
	Pin    PinID
	Kind   Kind
	Level  Level
	Duty   float32
	Period time.Duration
}

// Edge builds a pin-edge event.
func Edge(t clock.TimePoint, pin PinID, level Level) Event {
	return Event{Time: t, Pin: pin, Kind: KindEdge, Level: level}
}

// Pwm builds a PWM-update event. Duty is clamped to [0, 1].
func Pwm(t clock.TimePoint, pin PinID, duty float32, period time.Duration) Event {
	if duty < 0 {
		duty = 0
	} else if duty > 1 {
		duty = 1
	}
	return Event{Time: t, Pin: pin, Kind: KindPwm, Duty: duty, Period: period}
}

// IsNull reports whether the event carries no action.
func (e Event) IsNull() bool {
	return e.Kind == KindNull
}

// Before orders events by time only.
func (e Event) Before(o Event) bool {
	return e.Time < o.Time
}

func (e Event) String() string {
	switch e.Kind {
	case KindEdge:
		return fmt.Sprintf("edge{t=%d pin=%d %s}", e.Time, e.Pin, e.Level)
	case KindPwm:
		return fmt.Sprintf("pwm{t=%d pin=%d duty=%.3f period=%s}", e.Time, e.Pin, e.Duty, e.Period)
	default:
		return "null"
	}
}

// StepDirection is the mechanical direction of a step.
type StepDirection int8

const (
	Backward StepDirection = -1
	Forward  StepDirection = 1
)

func (d StepDirection) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Step is a planner-side step request for one mechanical axis: the axis
// index, the absolute time the step fires, and its direction. The zero
// value is the null step, meaning "no more steps in this move".
type Step struct {
	Time      clock.TimePoint
	Axis      int
	Direction StepDirection
}

// NullStep is the "no more steps" sentinel.
var NullStep = Step{}

// IsNull reports whether this is the null step.
func (s Step) IsNull() bool {
	return s.Direction == 0
}
