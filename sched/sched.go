// Package sched is the cooperative task scheduler (spec.md §4.C): the base
// tick-gating contract every task shares, and the ServiceManager that drives
// message dispatch and periodic service ticks. Styled on the teacher's
// xaction lifecycle (aistore's xact.Base: embeddable state + self-contained
// run gating) generalized from "one-shot xaction" to "periodically reticked
// task."
package sched

import (
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/xreg"
)

// Task is implemented by every concrete scheduler task: the xreg.Task
// registration contract plus the tick-gated HandleTask (spec §4.C: "every
// task exposes handleTask()... registerTask... unregisterTask").
type Task interface {
	xreg.Task
	HandleTask(nowMs uint32)
}

// Base provides the interval/shift tick-gating every task kind shares
// (spec §3: "Task. Attributes: {interval_ms, last_tick_ms, shift_ms...}.
// Invariants: handleTaskImpl runs iff now ≥ last_tick + interval; on
// successful run, last_tick ← now"). Concrete tasks embed Base and call
// Tick from their HandleTask method with their own handleTaskImpl.
type Base struct {
	IntervalMs uint32
	ShiftMs    uint32

	lastTickMs uint32
	started    bool
}

// Tick runs impl(nowMs) iff the task is due, then advances last_tick. The
// shift offset is folded into the very first due-check via modular
// arithmetic, so tasks with equal intervals and different shifts naturally
// stagger which tick each first becomes eligible on (spec §3: "shift is an
// initial phase offset so tasks with equal intervals don't collide").
func (b *Base) Tick(nowMs uint32, impl func(nowMs uint32)) {
	if !b.started {
		b.lastTickMs = b.ShiftMs - b.IntervalMs
		b.started = true
	}
	if nowMs-b.lastTickMs < b.IntervalMs {
		return
	}
	impl(nowMs)
	b.lastTickMs = nowMs
}

// taskState pairs a registered Task with its position in the tick order.
type taskState struct {
	task Task
}

// ServiceManager is the spec's "Service manager": given the handler list the
// registration manager maintains, it provides handleMessage and
// handleServices per scheduler tick (spec §4.C).
type ServiceManager struct {
	reg   *xreg.Manager
	tasks []taskState
}

// NewServiceManager constructs a ServiceManager over reg.
func NewServiceManager(reg *xreg.Manager) *ServiceManager {
	return &ServiceManager{reg: reg}
}

// AddTask registers task with the registration manager and appends it to
// the tick list in registration order (spec §5: "services execute in
// registration order within a tick").
func (s *ServiceManager) AddTask(task Task) {
	s.reg.Register(task)
	s.tasks = append(s.tasks, taskState{task: task})
}

// RemoveTask unregisters task and drops it from the tick list.
func (s *ServiceManager) RemoveTask(task Task) {
	s.reg.Unregister(task)
	for i, ts := range s.tasks {
		if ts.task == task {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// HandleMessage delivers tr to every matching handler in registration order
// (spec §4.C: "handleMessage(transfer): iterate handlers, deliver to every
// handler whose port_id matches the incoming transfer").
func (s *ServiceManager) HandleMessage(tr *cyphal.RxTransfer) {
	s.reg.HandleMessage(tr)
}

// HandleServices calls HandleTask on every registered task in registration
// order; each task self-gates by its own interval (spec §4.C:
// "handleServices(): iterate handlers, call handleTask on each").
func (s *ServiceManager) HandleServices(nowMs uint32) {
	for _, ts := range s.tasks {
		ts.task.HandleTask(nowMs)
	}
}

// Registry exposes the underlying registration manager, e.g. for the
// port-list advertisement task to read the four port sets.
func (s *ServiceManager) Registry() *xreg.Manager { return s.reg }
