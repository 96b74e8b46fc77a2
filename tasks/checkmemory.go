package tasks

import (
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"

	"github.com/cubesat-core/flightsw/cmn/nlog"
)

// CheckMemory periodically checks the allocator's health invariant
// (allocated <= peak allocated <= capacity) and logs its diagnostics,
// escalating to critical when the invariant fails
// (spec §4.A's health-check hook, grounded on TaskCheckMemory.cpp/.hpp,
// which called o1heapDoInvariantsHold/o1heapGetDiagnostics on the same
// cadence).
type CheckMemory struct {
	sched.Base
	sched.BareHandler
	alloc *memsys.Allocator
}

var _ sched.Task = (*CheckMemory)(nil)

func NewCheckMemory(alloc *memsys.Allocator, intervalMs, shiftMs uint32) *CheckMemory {
	return &CheckMemory{
		Base:  sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		alloc: alloc,
	}
}

func (*CheckMemory) Name() string { return "tasks.CheckMemory" }
func (t *CheckMemory) RegisterTask(m *xreg.Manager) {
	t.BareHandler.Register(m, t, func(tr *cyphal.RxTransfer) { tr.Release() })
}
func (t *CheckMemory) UnregisterTask(*xreg.Manager) {}

func (t *CheckMemory) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.check() })
}

func (t *CheckMemory) check() {
	d := t.alloc.Diagnostics()
	if !t.alloc.Healthy() {
		nlog.Criticalf("tasks: CheckMemory: allocator invariants violated: capacity=%d allocated=%d peak=%d oom=%d",
			d.Capacity, d.Allocated, d.PeakAllocated, d.OOMCount)
		return
	}
	nlog.Infof("tasks: CheckMemory: capacity=%d allocated=%d peak=%d", d.Capacity, d.Allocated, d.PeakAllocated)
}
