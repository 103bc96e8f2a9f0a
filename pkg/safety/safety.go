// Package safety owns the shutdown path: a scoped cleanup registry that
// drives outputs to their safe states exactly once, whether the process
// ends by M0, M112, a fatal error, or a signal.
package safety

import (
	"sync"

	"github.com/matthewSorensen/printipi/pkg/log"
)

// ShutdownReason describes why the machine was shut down.
type ShutdownReason string

const (
	ReasonNone          ShutdownReason = ""
	ReasonCleanExit     ShutdownReason = "clean_exit"
	ReasonEmergencyStop ShutdownReason = "emergency_stop"
	ReasonFirmwareError ShutdownReason = "firmware_error"
	ReasonSignal        ShutdownReason = "signal"
)

// ExitCode maps a reason to the process exit status.
func (r ShutdownReason) ExitCode() int {
	switch r {
	case ReasonNone, ReasonCleanExit:
		return 0
	default:
		return 1
	}
}

// Cleanup drives one subsystem to its safe state.
type Cleanup interface {
	// Name identifies the subsystem in logs.
	Name() string

	// Shutdown drives the subsystem safe. Called at most once.
	Shutdown() error
}

// CleanupFunc adapts a function to the Cleanup interface.
type CleanupFunc struct {
	Label string
	Fn    func() error
}

// Name returns the label.
func (c CleanupFunc) Name() string {
	return c.Label
}

// Shutdown calls the function.
func (c CleanupFunc) Shutdown() error {
	return c.Fn()
}

// Manager runs registered cleanups exactly once, in reverse
// registration order.
type Manager struct {
	mu       sync.Mutex
	cleanups []Cleanup
	done     bool
	reason   ShutdownReason
	logger   *log.Logger
}

// New creates a Manager.
func New() *Manager {
	return &Manager{logger: log.GetLogger("safety")}
}

// Register adds a cleanup. Registration order is boot order; shutdown
// runs in reverse.
func (m *Manager) Register(c Cleanup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, c)
}

// RegisterFunc adds a function cleanup.
func (m *Manager) RegisterFunc(label string, fn func() error) {
	m.Register(CleanupFunc{Label: label, Fn: fn})
}

// Shutdown runs every cleanup once and records the reason. Later calls
// are no-ops; the first reason wins.
func (m *Manager) Shutdown(reason ShutdownReason) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.reason = reason
	cleanups := m.cleanups
	m.mu.Unlock()

	m.logger.Info("shutting down: %s", reason)
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].Shutdown(); err != nil {
			m.logger.Error("cleanup %s failed: %v", cleanups[i].Name(), err)
		}
	}
}

// Reason returns the recorded shutdown reason.
func (m *Manager) Reason() ShutdownReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// IsShutdown reports whether Shutdown has run.
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}
