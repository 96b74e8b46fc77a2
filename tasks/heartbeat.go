package tasks

import (
	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// HeartbeatPayloadSize matches uavcan.node.Heartbeat's serialized layout:
// uptime(u32) + health(u8) + mode(u8) + vendor_specific_status_code(u16).
const HeartbeatPayloadSize = 4 + 1 + 1 + 2

// SendHeartBeat publishes an uptime/health/mode heartbeat every interval
// tick (spec §4.J, grounded on TaskSendHeartBeat.hpp). Uptime is the
// scheduler's monotonic tick divided by 1024, per spec §8 scenario 1
// ("if the task's interval is I ms, its uptime field advances by exactly I
// ÷ 1024 per consecutive publication").
type SendHeartBeat struct {
	sched.Base
	sched.Publisher
	payload [HeartbeatPayloadSize]byte
}

var _ sched.Task = (*SendHeartBeat)(nil)

func NewSendHeartBeat(intervalMs, shiftMs uint32, adapters []cyphal.CommonAdapter) *SendHeartBeat {
	return &SendHeartBeat{
		Base:      sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		Publisher: sched.Publisher{Adapters: adapters},
	}
}

func (*SendHeartBeat) Name() string { return "tasks.SendHeartBeat" }

func (t *SendHeartBeat) RegisterTask(m *xreg.Manager) { m.Publish(t, PortHeartbeat) }
func (t *SendHeartBeat) UnregisterTask(m *xreg.Manager) {
	// Unregister has no direct xreg counterpart for a bare Publish claim
	// beyond Unregister(task) itself; RegisterTask/UnregisterTask exist so
	// concrete tasks can declare additional claims symmetrically, per
	// xreg.Task's contract. SendHeartBeat makes only the one Publish claim,
	// which xreg.Manager.Unregister already reverses from byTask bookkeeping.
}

func (t *SendHeartBeat) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(now uint32) { t.publish(now) })
}

func (t *SendHeartBeat) publish(nowMs uint32) {
	uptime := nowMs / 1024
	cos.PutU32BE(t.payload[0:4], uptime)
	t.payload[4] = byte(HealthNominal)
	t.payload[5] = byte(ModeOperational)
	cos.PutU16BE(t.payload[6:8], 0)
	t.Publish(PortHeartbeat, cyphal.PriorityNominal, t.payload[:])
}
