package tasks

import (
	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// ProcessHeartBeat logs every peer heartbeat it receives (spec §4.J,
// grounded on TaskProcessHeartBeat.hpp).
type ProcessHeartBeat struct {
	sched.Base
	inbox *sched.Inbox
}

var _ sched.Task = (*ProcessHeartBeat)(nil)

func NewProcessHeartBeat(intervalMs, shiftMs uint32, inboxCapacity int) *ProcessHeartBeat {
	return &ProcessHeartBeat{
		Base:  sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		inbox: sched.NewInbox(inboxCapacity),
	}
}

func (*ProcessHeartBeat) Name() string { return "tasks.ProcessHeartBeat" }
func (t *ProcessHeartBeat) RegisterTask(m *xreg.Manager) {
	m.Subscribe(t, PortHeartbeat, t.inbox.Push)
}
func (t *ProcessHeartBeat) UnregisterTask(*xreg.Manager) {}

func (t *ProcessHeartBeat) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.drain() })
}

func (t *ProcessHeartBeat) drain() {
	for {
		tr, ok := t.inbox.Pop()
		if !ok {
			return
		}
		m := tr.Get()
		if len(m.Payload) >= HeartbeatPayloadSize {
			uptime := cos.GetU32BE(m.Payload[0:4])
			nlog.Debugf("tasks: heartbeat from node %d, uptime=%d", m.Metadata.RemoteNodeID, uptime)
		}
		tr.Release()
	}
}
