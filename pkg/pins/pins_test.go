package pins

import (
	"testing"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/event"
)

func TestRecorderTracksLevels(t *testing.T) {
	clk := clock.NewFake(0)
	r := NewRecorder(clk)

	r.WriteLevel(3, event.High)
	clk.Advance(clock.FromSeconds(1))
	r.WriteLevel(3, event.Low)
	r.WritePwm(4, 0.5, 10*time.Millisecond)

	writes := r.Writes()
	if len(writes) != 3 {
		t.Fatalf("got %d writes", len(writes))
	}
	if writes[0].Time != 0 || writes[1].Time != clock.FromSeconds(1) {
		t.Errorf("timestamps = %v %v", writes[0].Time, writes[1].Time)
	}
	if r.Level(3) != event.Low {
		t.Errorf("level = %v", r.Level(3))
	}
	if r.Level(4) != event.High {
		t.Errorf("pwm pin level = %v", r.Level(4))
	}
}

func TestRecorderCloseDrivesLow(t *testing.T) {
	clk := clock.NewFake(0)
	r := NewRecorder(clk)
	r.WriteLevel(7, event.High)
	r.WritePwm(8, 0.9, 10*time.Millisecond)

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.Level(7) != event.Low || r.Level(8) != event.Low {
		t.Error("close did not drive pins low")
	}
	// Close is idempotent.
	n := len(r.Writes())
	r.Close()
	if len(r.Writes()) != n {
		t.Error("second close emitted writes")
	}
}

func TestApplyRoutesByKind(t *testing.T) {
	clk := clock.NewFake(0)
	r := NewRecorder(clk)

	Apply(r, event.Edge(0, 1, event.High))
	Apply(r, event.Pwm(0, 2, 0.25, time.Millisecond))
	Apply(r, event.Event{}) // null: ignored

	writes := r.Writes()
	if len(writes) != 2 {
		t.Fatalf("got %d writes", len(writes))
	}
	if writes[0].Kind != event.KindEdge || writes[1].Kind != event.KindPwm {
		t.Errorf("kinds = %v %v", writes[0].Kind, writes[1].Kind)
	}
}
