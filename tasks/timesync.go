package tasks

import (
	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/timemodel"
	"github.com/cubesat-core/flightsw/xreg"
)

// TimeSyncPayloadSize matches uavcan.time.Synchronization's single u64
// field.
const TimeSyncPayloadSize = 8

// SendTimeSynchronization publishes the RTC's previous-transmission
// timestamp every interval tick (spec §4.J, §4.G; grounded on
// TaskSendTimeSynchronization.hpp). An RTC read failure is signaled by
// publishing timemodel.NoTimestamp, which listeners are expected to ignore
// (spec §7).
type SendTimeSynchronization struct {
	sched.Base
	sched.Publisher
	clock    *timemodel.Clock
	previous timemodel.LastTxTimestamp
}

var _ sched.Task = (*SendTimeSynchronization)(nil)

func NewSendTimeSynchronization(clock *timemodel.Clock, intervalMs, shiftMs uint32, adapters []cyphal.CommonAdapter) *SendTimeSynchronization {
	return &SendTimeSynchronization{
		Base:      sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		Publisher: sched.Publisher{Adapters: adapters},
		clock:     clock,
		previous:  timemodel.NoTimestamp,
	}
}

func (*SendTimeSynchronization) Name() string                  { return "tasks.SendTimeSynchronization" }
func (t *SendTimeSynchronization) RegisterTask(m *xreg.Manager) { m.Publish(t, PortTimeSync) }
func (t *SendTimeSynchronization) UnregisterTask(*xreg.Manager) {}

func (t *SendTimeSynchronization) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(now uint32) { t.publish(now) })
}

func (t *SendTimeSynchronization) publish(nowMs uint32) {
	var payload [TimeSyncPayloadSize]byte
	cos.PutU64BE(payload[:], uint64(t.previous))
	if _, err := t.Publish(PortTimeSync, cyphal.PriorityNominal, payload[:]); err != nil {
		return
	}
	epochMs := t.clock.EpochMs(nowMs)
	t.previous = timemodel.LastTxTimestamp(uint64(epochMs) * 1000)
}

// ProcessTimeSynchronization slews the local clock toward a peer's
// time-sync publication (spec §4.G: "clock slewing... uses the RTC's
// sub-second shift primitive"). Grounded on TaskProcessTimeSynchronization.hpp.
type ProcessTimeSynchronization struct {
	sched.Base
	inbox *sched.Inbox
	clock *timemodel.Clock
}

var _ sched.Task = (*ProcessTimeSynchronization)(nil)

func NewProcessTimeSynchronization(clock *timemodel.Clock, intervalMs, shiftMs uint32, inboxCapacity int) *ProcessTimeSynchronization {
	return &ProcessTimeSynchronization{
		Base:  sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		inbox: sched.NewInbox(inboxCapacity),
		clock: clock,
	}
}

func (*ProcessTimeSynchronization) Name() string { return "tasks.ProcessTimeSynchronization" }
func (t *ProcessTimeSynchronization) RegisterTask(m *xreg.Manager) {
	m.Subscribe(t, PortTimeSync, t.inbox.Push)
}
func (t *ProcessTimeSynchronization) UnregisterTask(*xreg.Manager) {}

func (t *ProcessTimeSynchronization) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(now uint32) { t.drain(now) })
}

func (t *ProcessTimeSynchronization) drain(nowMs uint32) {
	for {
		tr, ok := t.inbox.Pop()
		if !ok {
			return
		}
		p := tr.Get().Payload
		tr.Release()
		if len(p) < TimeSyncPayloadSize {
			continue
		}
		lastTxUsec := cos.GetU64BE(p)
		if lastTxUsec == uint64(timemodel.NoTimestamp) {
			continue // sentinel for an RTC read failure at the sender, ignore
		}
		peerEpochMs := int64(lastTxUsec / 1000)
		t.clock.Slew(peerEpochMs - t.clock.EpochMs(nowMs))
	}
}
