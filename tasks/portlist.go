package tasks

import (
	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// MaxPortListEntries bounds each of the four advertised port sets per
// publication, keeping the payload a fixed-capacity buffer rather than a
// growing one (spec §9: "bounded queues... chosen to make the memory model
// inspectable").
const MaxPortListEntries = 64

// SendNodePortList periodically advertises the union of this node's
// registered publications, subscriptions, clients, and servers (spec
// §4.E, grounded on TaskSendNodePortList.hpp). Listeners ingest this to
// rxSubscribe against peers' advertised publications without a static
// build-time wire.
type SendNodePortList struct {
	sched.Base
	sched.Publisher
	reg *xreg.Manager
}

var _ sched.Task = (*SendNodePortList)(nil)

func NewSendNodePortList(reg *xreg.Manager, intervalMs, shiftMs uint32, adapters []cyphal.CommonAdapter) *SendNodePortList {
	return &SendNodePortList{
		Base:      sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		Publisher: sched.Publisher{Adapters: adapters},
		reg:       reg,
	}
}

func (*SendNodePortList) Name() string                    { return "tasks.SendNodePortList" }
func (t *SendNodePortList) RegisterTask(m *xreg.Manager)   { m.Publish(t, PortPortList) }
func (t *SendNodePortList) UnregisterTask(*xreg.Manager)   {}

func (t *SendNodePortList) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.publish() })
}

// publish encodes exactly the registration manager's live snapshot at the
// moment of publication (spec §8: "Port-list publication reflects exactly
// the union of registered publications ∪ subscriptions ∪ clients ∪ servers
// at the moment of publication").
func (t *SendNodePortList) publish() {
	sets := [][]cyphal.PortID{
		portSlice(t.reg.Publications()),
		portSlice(t.reg.Subscriptions()),
		portSlice(t.reg.Clients()),
		portSlice(t.reg.Servers()),
	}
	payload := make([]byte, 0, 2+4*(2+MaxPortListEntries*2))
	for _, set := range sets {
		if len(set) > MaxPortListEntries {
			nlog.Debugf("tasks: port-list set truncated from %d to %d entries", len(set), MaxPortListEntries)
			set = set[:MaxPortListEntries]
		}
		hdr := make([]byte, 2)
		cos.PutU16BE(hdr, uint16(len(set)))
		payload = append(payload, hdr...)
		for _, p := range set {
			b := make([]byte, 2)
			cos.PutU16BE(b, uint16(p))
			payload = append(payload, b...)
		}
	}
	t.Publish(PortPortList, cyphal.PriorityNominal, payload)
}

func portSlice(s xreg.PortSet) []cyphal.PortID { return []cyphal.PortID(s) }

// DecodeNodePortList is the listener-side counterpart: unpacks a received
// port-list publication's four sets, in the same order publish() emits
// them.
func DecodeNodePortList(payload []byte) (publications, subscriptions, clients, servers []cyphal.PortID, ok bool) {
	sets := make([][]cyphal.PortID, 4)
	off := 0
	for i := range sets {
		if off+2 > len(payload) {
			return nil, nil, nil, nil, false
		}
		n := int(cos.GetU16BE(payload[off : off+2]))
		off += 2
		set := make([]cyphal.PortID, 0, n)
		for j := 0; j < n; j++ {
			if off+2 > len(payload) {
				return nil, nil, nil, nil, false
			}
			set = append(set, cyphal.PortID(cos.GetU16BE(payload[off:off+2])))
			off += 2
		}
		sets[i] = set
	}
	return sets[0], sets[1], sets[2], sets[3], true
}
