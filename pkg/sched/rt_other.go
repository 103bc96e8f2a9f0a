//go:build !linux

package sched

import (
	"runtime"

	"github.com/matthewSorensen/printipi/pkg/log"
)

// initSchedThread pins the consumer goroutine to its OS thread. This
// platform has no portable real-time scheduling class; timing accuracy
// depends on the OS scheduler.
func initSchedThread(logger *log.Logger) {
	runtime.LockOSThread()
	logger.Warn("no real-time scheduling on this platform; step timing is best-effort")
}
