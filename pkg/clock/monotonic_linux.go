//go:build linux

package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// Monotonic is the production Clock, backed by CLOCK_MONOTONIC.
// SleepUntil uses an absolute clock_nanosleep so that a preempted sleep
// resumes against the clock rather than accumulating drift.
type Monotonic struct{}

// NewMonotonic creates a Monotonic clock.
func NewMonotonic() *Monotonic {
	return &Monotonic{}
}

// Now returns the current CLOCK_MONOTONIC reading.
func (c *Monotonic) Now() TimePoint {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// clock_gettime on CLOCK_MONOTONIC cannot fail on Linux; fall
		// back to the runtime clock anyway.
		return TimePoint(time.Now().UnixNano())
	}
	return TimePoint(ts.Nano())
}

// SleepUntil blocks until CLOCK_MONOTONIC reaches t.
func (c *Monotonic) SleepUntil(t TimePoint) {
	ts := unix.NsecToTimespec(int64(t))
	for {
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
		if err != unix.EINTR {
			return
		}
	}
}
