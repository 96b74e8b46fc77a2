package tasks

import (
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// DefaultExtent is the deserialized-payload safety bound used for
// dynamically discovered subscriptions (spec §3: "Extent is a
// receiver-side bound against malformed senders").
const DefaultExtent = 256

// SubscribeNodePortList ingests peers' port-list advertisements and issues
// rxSubscribe against their advertised publications, so any node's public
// message stream can be followed without a static build-time wire (spec
// §4.E, grounded on TaskSubscribeNodePortList.hpp). Per spec §9's Open
// Question, subscriptions are never actively removed when a peer drops a
// port from its advertisement.
type SubscribeNodePortList struct {
	sched.Base
	inbox    *sched.Inbox
	adapters []cyphal.CommonAdapter
}

var _ sched.Task = (*SubscribeNodePortList)(nil)

func NewSubscribeNodePortList(intervalMs, shiftMs uint32, inboxCapacity int, adapters []cyphal.CommonAdapter) *SubscribeNodePortList {
	return &SubscribeNodePortList{
		Base:     sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		inbox:    sched.NewInbox(inboxCapacity),
		adapters: adapters,
	}
}

func (*SubscribeNodePortList) Name() string { return "tasks.SubscribeNodePortList" }

func (t *SubscribeNodePortList) RegisterTask(m *xreg.Manager) {
	m.Subscribe(t, PortPortList, t.inbox.Push)
}
func (t *SubscribeNodePortList) UnregisterTask(*xreg.Manager) {}

func (t *SubscribeNodePortList) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.drain() })
}

func (t *SubscribeNodePortList) drain() {
	for {
		tr, ok := t.inbox.Pop()
		if !ok {
			return
		}
		t.handle(tr)
		tr.Release()
	}
}

func (t *SubscribeNodePortList) handle(tr *cyphal.RxTransfer) {
	publications, _, _, _, ok := DecodeNodePortList(tr.Get().Payload)
	if !ok {
		nlog.Errorf("tasks: SubscribeNodePortList: malformed port-list payload")
		return
	}
	for _, port := range publications {
		for _, a := range t.adapters {
			if _, err := a.RxSubscribe(cyphal.KindMessage, port, DefaultExtent, 0); err != nil {
				nlog.Errorf("tasks: subscribing to discovered port %d failed: %v", port, err)
			}
		}
	}
}
