//go:build linux

package sched

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/matthewSorensen/printipi/pkg/log"
)

// rtPriority is the SCHED_FIFO priority for the dispatch thread. High
// enough to preempt normal work, below kernel IRQ threads.
const rtPriority = 30

// initSchedThread pins the consumer goroutine to its OS thread, moves
// the thread into the FIFO real-time class, and locks the process
// address space to avoid page-fault stalls on the hot path. Each step
// can fail without sufficient privileges; that degrades timing accuracy
// but is not fatal.
func initSchedThread(logger *log.Logger) {
	runtime.LockOSThread()

	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: rtPriority,
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		logger.Warn("unable to enter SCHED_FIFO class (run with CAP_SYS_NICE for accurate step timing): %v", err)
	}

	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		logger.Warn("unable to lock memory: %v", err)
	}
}
