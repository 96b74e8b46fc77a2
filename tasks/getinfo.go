package tasks

import (
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// GetInfo request/response pair (spec.md §6 names the fixed port; the
// distillation dropped the client/server pair itself — supplemented here
// from TaskRequestGetInfo.hpp / TaskRespondGetInfo.hpp per SPEC_FULL.md
// §4).

// NodeInfo mirrors uavcan.node.GetInfo.Response's identity fields.
type NodeInfo struct {
	ProtocolVersionMajor, ProtocolVersionMinor uint8
	HardwareVersionMajor, HardwareVersionMinor uint8
	SoftwareVersionMajor, SoftwareVersionMinor uint8
	SoftwareVCSRevisionID                      uint64
	UniqueID                                   [16]byte
	Name                                       string
}

func encodeNodeInfo(info NodeInfo) []byte {
	name := info.Name
	if len(name) > 50 {
		name = name[:50]
	}
	buf := make([]byte, 0, 6+8+16+1+len(name))
	buf = append(buf, info.ProtocolVersionMajor, info.ProtocolVersionMinor)
	buf = append(buf, info.HardwareVersionMajor, info.HardwareVersionMinor)
	buf = append(buf, info.SoftwareVersionMajor, info.SoftwareVersionMinor)
	for i := 7; i >= 0; i-- {
		buf = append(buf, byte(info.SoftwareVCSRevisionID>>(8*i)))
	}
	buf = append(buf, info.UniqueID[:]...)
	buf = append(buf, byte(len(name)))
	buf = append(buf, []byte(name)...)
	return buf
}

func decodeNodeInfo(payload []byte) (NodeInfo, bool) {
	var info NodeInfo
	if len(payload) < 6+8+16+1 {
		return info, false
	}
	info.ProtocolVersionMajor, info.ProtocolVersionMinor = payload[0], payload[1]
	info.HardwareVersionMajor, info.HardwareVersionMinor = payload[2], payload[3]
	info.SoftwareVersionMajor, info.SoftwareVersionMinor = payload[4], payload[5]
	off := 6
	for i := 0; i < 8; i++ {
		info.SoftwareVCSRevisionID = info.SoftwareVCSRevisionID<<8 | uint64(payload[off+i])
	}
	off += 8
	copy(info.UniqueID[:], payload[off:off+16])
	off += 16
	n := int(payload[off])
	off++
	if off+n > len(payload) {
		return info, false
	}
	info.Name = string(payload[off : off+n])
	return info, true
}

// RequestGetInfo periodically requests a peer's NodeInfo and logs the
// response (spec §4.J supplement, grounded on TaskRequestGetInfo.hpp).
type RequestGetInfo struct {
	sched.Base
	sched.Client
	inbox *sched.Inbox
}

var _ sched.Task = (*RequestGetInfo)(nil)

func NewRequestGetInfo(serverNodeID cyphal.NodeID, intervalMs, shiftMs uint32, inboxCapacity int, adapters []cyphal.CommonAdapter) *RequestGetInfo {
	return &RequestGetInfo{
		Base:   sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		Client: sched.Client{Publisher: sched.Publisher{Adapters: adapters}, ServerNodeID: serverNodeID},
		inbox:  sched.NewInbox(inboxCapacity),
	}
}

func (*RequestGetInfo) Name() string { return "tasks.RequestGetInfo" }
func (t *RequestGetInfo) RegisterTask(m *xreg.Manager) {
	m.Client(t, PortGetInfo, t.inbox.Push)
}
func (t *RequestGetInfo) UnregisterTask(*xreg.Manager) {}

func (t *RequestGetInfo) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.tick() })
}

func (t *RequestGetInfo) tick() {
	if t.inbox.Len() == 0 {
		if _, err := t.IssueRequest(PortGetInfo, cyphal.PriorityNominal, nil); err != nil {
			nlog.Errorf("tasks: RequestGetInfo: issuing request failed: %v", err)
		}
		return
	}
	for {
		tr, ok := t.inbox.Pop()
		if !ok {
			return
		}
		if !t.AcceptResponse(tr) {
			nlog.Errorf("tasks: RequestGetInfo: response did not match outstanding request")
			tr.Release()
			continue
		}
		info, ok := decodeNodeInfo(tr.Get().Payload)
		tr.Release()
		if !ok {
			nlog.Errorf("tasks: RequestGetInfo: malformed GetInfo response")
			continue
		}
		nlog.Debugf("tasks: RequestGetInfo: received info from node %d: %s", t.ServerNodeID, info.Name)
	}
}

// RespondGetInfo answers GetInfo requests with this node's identity (spec
// §4.J supplement, grounded on TaskRespondGetInfo.hpp).
type RespondGetInfo struct {
	sched.Base
	sched.Server
	inbox *sched.Inbox
	info  NodeInfo
}

var _ sched.Task = (*RespondGetInfo)(nil)

func NewRespondGetInfo(info NodeInfo, intervalMs, shiftMs uint32, inboxCapacity int, adapters []cyphal.CommonAdapter) *RespondGetInfo {
	return &RespondGetInfo{
		Base:   sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		Server: sched.Server{Publisher: sched.Publisher{Adapters: adapters}},
		inbox:  sched.NewInbox(inboxCapacity),
		info:   info,
	}
}

func (*RespondGetInfo) Name() string { return "tasks.RespondGetInfo" }
func (t *RespondGetInfo) RegisterTask(m *xreg.Manager) {
	m.Server(t, PortGetInfo, t.inbox.Push)
}
func (t *RespondGetInfo) UnregisterTask(*xreg.Manager) {}

func (t *RespondGetInfo) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.drain() })
}

func (t *RespondGetInfo) drain() {
	for {
		tr, ok := t.inbox.Pop()
		if !ok {
			return
		}
		m := tr.Get()
		if m.Metadata.Kind != cyphal.KindRequest {
			tr.Release()
			continue
		}
		remote, transferID := m.Metadata.RemoteNodeID, m.Metadata.TransferID
		tr.Release()
		payload := encodeNodeInfo(t.info)
		if _, err := t.Respond(PortGetInfo, cyphal.PriorityNominal, remote, transferID, payload); err != nil {
			nlog.Errorf("tasks: RespondGetInfo: response failed: %v", err)
		}
	}
}
