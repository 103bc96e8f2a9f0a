package event

import (
	"testing"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
)

func TestNullEvent(t *testing.T) {
	var e Event
	if !e.IsNull() {
		t.Error("zero event is not null")
	}
	if Edge(0, 1, High).IsNull() {
		t.Error("edge event reports null")
	}
}

func TestPwmClampsDuty(t *testing.T) {
	if got := Pwm(0, 1, 1.5, time.Millisecond).Duty; got != 1 {
		t.Errorf("duty = %v", got)
	}
	if got := Pwm(0, 1, -0.5, time.Millisecond).Duty; got != 0 {
		t.Errorf("duty = %v", got)
	}
}

func TestOrderingComparesTimeOnly(t *testing.T) {
	a := Edge(clock.FromSeconds(1), 9, High)
	b := Pwm(clock.FromSeconds(2), 1, 0.5, time.Millisecond)
	if !a.Before(b) || b.Before(a) {
		t.Error("ordering wrong")
	}
}

func TestStepSentinel(t *testing.T) {
	if !NullStep.IsNull() {
		t.Error("NullStep not null")
	}
	s := Step{Time: 1, Axis: 2, Direction: Forward}
	if s.IsNull() {
		t.Error("real step reports null")
	}
	if Forward.String() != "forward" || Backward.String() != "backward" {
		t.Error("direction strings wrong")
	}
}
