package safety

import (
	"errors"
	"testing"
)

func TestShutdownRunsOnceInReverseOrder(t *testing.T) {
	m := New()
	var order []string
	m.RegisterFunc("heaters", func() error {
		order = append(order, "heaters")
		return nil
	})
	m.RegisterFunc("pins", func() error {
		order = append(order, "pins")
		return nil
	})

	m.Shutdown(ReasonEmergencyStop)
	m.Shutdown(ReasonCleanExit)

	if len(order) != 2 || order[0] != "pins" || order[1] != "heaters" {
		t.Errorf("cleanup order = %v", order)
	}
	if m.Reason() != ReasonEmergencyStop {
		t.Errorf("reason = %q, first shutdown should win", m.Reason())
	}
	if !m.IsShutdown() {
		t.Error("IsShutdown false after shutdown")
	}
}

func TestCleanupErrorDoesNotStopOthers(t *testing.T) {
	m := New()
	ran := false
	m.RegisterFunc("first", func() error {
		ran = true
		return nil
	})
	m.RegisterFunc("failing", func() error {
		return errors.New("gpio gone")
	})

	m.Shutdown(ReasonFirmwareError)
	if !ran {
		t.Error("cleanup after a failing one did not run")
	}
}

func TestExitCodes(t *testing.T) {
	if ReasonCleanExit.ExitCode() != 0 {
		t.Error("clean exit code nonzero")
	}
	if ReasonEmergencyStop.ExitCode() == 0 {
		t.Error("emergency stop exit code zero")
	}
}
