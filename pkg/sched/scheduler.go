// Package sched dispatches timestamped output events against the
// monotonic clock. A single consumer goroutine owns the event queue: it
// sleeps until each event's time, emits the pin action, and spends any
// slack before the next event servicing idle handlers (thermal control,
// host I/O fan-out). The producer side queues events in non-decreasing
// time order and blocks when the buffer is full.
package sched

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/errors"
	"github.com/matthewSorensen/printipi/pkg/event"
	"github.com/matthewSorensen/printipi/pkg/log"
	"github.com/matthewSorensen/printipi/pkg/pins"
)

// DefaultCapacity bounds the event queue when no capacity is configured.
const DefaultCapacity = 1024

// DefaultMaxSleep keeps the consumer waking often enough for smooth PWM
// and thermistor service even with no motion queued.
const DefaultMaxSleep = 40 * time.Millisecond

// HomingMaxSleep tightens the wakeup interval while homing so endstop
// polling stays responsive.
const HomingMaxSleep = time.Millisecond

// IdleInterval tells an idle handler how much slack the consumer has.
type IdleInterval int

const (
	// IntervalShort is the common case: a brief gap before the next event.
	IntervalShort IdleInterval = iota

	// IntervalWide is passed on every wideEvery-th idle call; handlers do
	// their less frequent work (host I/O polling) on wide intervals.
	IntervalWide
)

// wideEvery spaces IntervalWide callbacks among short ones.
const wideEvery = 8

// IdleHandler receives spare consumer CPU. Returning true requests an
// immediate follow-up call instead of sleep.
type IdleHandler interface {
	OnIdleCpu(interval IdleInterval) bool
}

// IdleFunc adapts a function to the IdleHandler interface.
type IdleFunc func(interval IdleInterval) bool

// OnIdleCpu calls the function.
func (f IdleFunc) OnIdleCpu(interval IdleInterval) bool {
	return f(interval)
}

// Scheduler is the timed dispatch queue plus its consumer loop.
type Scheduler struct {
	clk    clock.Clock
	writer pins.Writer
	logger *log.Logger

	events chan event.Event
	stop   chan struct{}
	done   chan struct{}

	// maxSleep is nanoseconds, accessed from both threads.
	maxSleep        atomic.Int64
	defaultMaxSleep time.Duration

	// lastQueuedTime guards producer-side time monotonicity.
	queueMu        sync.Mutex
	lastQueuedTime clock.TimePoint

	// lastEventHandledTime tracks dispatch progress; updated only from
	// the event's own timestamp so inter-event spacing survives a late
	// scheduler.
	lastEventHandledTime atomic.Int64

	idleMu       sync.Mutex
	idleHandlers []IdleHandler
	idleCount    uint64
}

// New creates a Scheduler dispatching to the given pin writer. capacity
// <= 0 selects DefaultCapacity.
func New(clk clock.Clock, writer pins.Writer, capacity int) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Scheduler{
		clk:             clk,
		writer:          writer,
		logger:          log.GetLogger("sched"),
		events:          make(chan event.Event, capacity),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		defaultMaxSleep: DefaultMaxSleep,
	}
	s.maxSleep.Store(int64(DefaultMaxSleep))
	return s
}

// AddIdleHandler registers a handler for spare consumer CPU. Handlers
// must be registered before Run.
func (s *Scheduler) AddIdleHandler(h IdleHandler) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	s.idleHandlers = append(s.idleHandlers, h)
}

// SetMaxSleep caps how long the consumer sleeps in one call.
func (s *Scheduler) SetMaxSleep(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	s.maxSleep.Store(int64(d))
}

// SetDefaultMaxSleep restores the default sleep cap.
func (s *Scheduler) SetDefaultMaxSleep() {
	s.maxSleep.Store(int64(s.defaultMaxSleep))
}

// Queue appends an event, blocking when the buffer is at capacity until
// the consumer drains it. Events must arrive in non-decreasing time
// order; violating that is a contract breach.
func (s *Scheduler) Queue(evt event.Event) {
	if evt.IsNull() {
		return
	}
	s.queueMu.Lock()
	if s.lastQueuedTime != 0 && evt.Time < s.lastQueuedTime {
		last := s.lastQueuedTime
		s.queueMu.Unlock()
		panic(errors.OutOfOrder(int64(last), int64(evt.Time)))
	}
	s.lastQueuedTime = evt.Time
	if len(s.events) == 0 {
		// Idle-to-active transition: re-anchor progress at the present
		// so stale bookkeeping cannot burst-emit.
		s.lastEventHandledTime.Store(int64(s.clk.Now()))
	}
	s.queueMu.Unlock()

	select {
	case s.events <- evt:
	case <-s.stop:
	}
}

// IsRoomInBuffer reports, without blocking, whether Queue would accept
// an event immediately.
func (s *Scheduler) IsRoomInBuffer() bool {
	return len(s.events) < cap(s.events)
}

// QueueLen returns the number of undispatched events.
func (s *Scheduler) QueueLen() int {
	return len(s.events)
}

// LastEventHandledTime returns the timestamp of the most recently
// dispatched event.
func (s *Scheduler) LastEventHandledTime() clock.TimePoint {
	return clock.TimePoint(s.lastEventHandledTime.Load())
}

// SchedPwm routes a PWM update straight to the pin backend. PWM changes
// come from the control loops rather than the motion timeline, so they
// bypass the timed queue.
func (s *Scheduler) SchedPwm(pin event.PinID, duty float32, period time.Duration) {
	if duty < 0 {
		duty = 0
	} else if duty > 1 {
		duty = 1
	}
	if err := s.writer.WritePwm(pin, duty, period); err != nil {
		s.logger.Error("pwm update on pin %d failed: %v", pin, err)
	}
}

// Run starts the consumer goroutine.
func (s *Scheduler) Run() {
	go s.eventLoop()
}

// Stop terminates the consumer after the event in flight.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Drain blocks until every queued event has been dispatched.
func (s *Scheduler) Drain() {
	s.queueMu.Lock()
	last := s.lastQueuedTime
	s.queueMu.Unlock()
	// An empty queue is not enough: the consumer may still be waiting to
	// emit the last event it popped.
	for len(s.events) > 0 || s.LastEventHandledTime() < last {
		select {
		case <-s.stop:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// eventLoop is the consumer body: pop, sleep until due, emit.
func (s *Scheduler) eventLoop() {
	defer close(s.done)
	initSchedThread(s.logger)

	for {
		select {
		case <-s.stop:
			return
		case evt := <-s.events:
			if !s.waitUntilDue(evt.Time) {
				return
			}
			s.emit(evt)
		default:
			// Queue empty: service idle work, then wait for either an
			// event or the next idle tick.
			if s.runIdle() {
				continue
			}
			select {
			case <-s.stop:
				return
			case evt := <-s.events:
				if !s.waitUntilDue(evt.Time) {
					return
				}
				s.emit(evt)
			case <-time.After(s.sleepCap()):
			}
		}
	}
}

func (s *Scheduler) sleepCap() time.Duration {
	return time.Duration(s.maxSleep.Load())
}

// waitUntilDue sleeps toward t in maxSleep-bounded slices, handing the
// slack to idle handlers. Returns false when stopped.
func (s *Scheduler) waitUntilDue(t clock.TimePoint) bool {
	for {
		select {
		case <-s.stop:
			return false
		default:
		}
		now := s.clk.Now()
		if now >= t {
			return true
		}
		if s.runIdle() {
			continue
		}
		target := t
		if capped := now.Add(s.sleepCap()); capped < target {
			target = capped
		}
		s.clk.SleepUntil(target)
	}
}

// emit applies the event to the pins and records progress.
func (s *Scheduler) emit(evt event.Event) {
	if err := pins.Apply(s.writer, evt); err != nil {
		s.logger.Error("emit %v failed: %v", evt, err)
	}
	s.lastEventHandledTime.Store(int64(evt.Time))
}

// runIdle fans out one round of idle callbacks. Returns true if any
// handler wants more CPU.
func (s *Scheduler) runIdle() bool {
	s.idleMu.Lock()
	handlers := s.idleHandlers
	s.idleCount++
	interval := IntervalShort
	if s.idleCount%wideEvery == 0 {
		interval = IntervalWide
	}
	s.idleMu.Unlock()

	more := false
	for _, h := range handlers {
		if h.OnIdleCpu(interval) {
			more = true
		}
	}
	return more
}
