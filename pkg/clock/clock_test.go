package clock

import (
	"testing"
	"time"
)

func TestTimePointArithmetic(t *testing.T) {
	tp := FromSeconds(1.5)
	if tp != TimePoint(1500*time.Millisecond) {
		t.Errorf("FromSeconds(1.5) = %d", tp)
	}
	if got := tp.Add(500 * time.Millisecond); got.Seconds() != 2.0 {
		t.Errorf("Add = %v", got.Seconds())
	}
	if got := tp.Sub(FromSeconds(1.0)); got != 500*time.Millisecond {
		t.Errorf("Sub = %v", got)
	}
	// Differences are signed.
	if got := FromSeconds(1.0).Sub(tp); got != -500*time.Millisecond {
		t.Errorf("negative Sub = %v", got)
	}
}

func TestMonotonicAdvances(t *testing.T) {
	c := NewMonotonic()
	t1 := c.Now()
	time.Sleep(5 * time.Millisecond)
	t2 := c.Now()
	if t2 <= t1 {
		t.Errorf("clock not advancing: %d <= %d", t2, t1)
	}
}

func TestMonotonicSleepUntil(t *testing.T) {
	c := NewMonotonic()
	target := c.Now().Add(20 * time.Millisecond)
	c.SleepUntil(target)
	if now := c.Now(); now < target {
		t.Errorf("woke %v early", target.Sub(now))
	}

	// A target in the past returns immediately.
	past := c.Now().Add(-time.Second)
	start := c.Now()
	c.SleepUntil(past)
	if elapsed := c.Now().Sub(start); elapsed > 10*time.Millisecond {
		t.Errorf("sleep on past target took %v", elapsed)
	}
}

func TestFakeClock(t *testing.T) {
	c := NewFake(FromSeconds(1))
	if c.Now() != FromSeconds(1) {
		t.Errorf("start = %v", c.Now())
	}

	c.SleepUntil(FromSeconds(2))
	if c.Now() != FromSeconds(2) {
		t.Errorf("after sleep = %v", c.Now())
	}

	// Past targets are recorded but do not move the clock back.
	c.SleepUntil(FromSeconds(1.5))
	if c.Now() != FromSeconds(2) {
		t.Errorf("clock moved backward to %v", c.Now())
	}

	c.Advance(FromSeconds(1))
	if c.Now() != FromSeconds(3) {
		t.Errorf("after advance = %v", c.Now())
	}

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != FromSeconds(2) || sleeps[1] != FromSeconds(1.5) {
		t.Errorf("sleeps = %v", sleeps)
	}
}
