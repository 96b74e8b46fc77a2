package tasks

import (
	"github.com/cubesat-core/flightsw/blobstore"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/xreg"
)

// RegisterAccess opcodes, the wire equivalent of uavcan.register.Access's
// read-vs-write distinction (spec §4.F: "Read... Write").
const (
	opRegisterRead  = 0
	opRegisterWrite = 1
)

// RegisterAccess serves blob reads and writes against a blobstore.Store
// over the fixed register.Access port (spec §4.F, §8 scenario 6: "Register
// read/write round-trip"). Grounded on the original's flash-register RPC
// glue; the wire encoding here ({name_len, name, opcode, [value_len,
// value]} request -> raw value response) is this package's own minimal
// stand-in, not a DSDL type (see tasks.go's package doc).
type RegisterAccess struct {
	sched.Base
	sched.Server
	inbox *sched.Inbox
	store *blobstore.Store
}

var _ sched.Task = (*RegisterAccess)(nil)

func NewRegisterAccess(store *blobstore.Store, intervalMs, shiftMs uint32, inboxCapacity int, adapters []cyphal.CommonAdapter) *RegisterAccess {
	return &RegisterAccess{
		Base:   sched.Base{IntervalMs: intervalMs, ShiftMs: shiftMs},
		Server: sched.Server{Publisher: sched.Publisher{Adapters: adapters}},
		inbox:  sched.NewInbox(inboxCapacity),
		store:  store,
	}
}

func (*RegisterAccess) Name() string { return "tasks.RegisterAccess" }
func (t *RegisterAccess) RegisterTask(m *xreg.Manager) {
	m.Server(t, PortRegisterAccess, t.inbox.Push)
}
func (t *RegisterAccess) UnregisterTask(*xreg.Manager) {}

func (t *RegisterAccess) HandleTask(nowMs uint32) {
	t.Tick(nowMs, func(uint32) { t.drain() })
}

func (t *RegisterAccess) drain() {
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
		remote, transferID, payload := m.Metadata.RemoteNodeID, m.Metadata.TransferID, append([]byte(nil), m.Payload...)
		tr.Release()
		t.handle(remote, transferID, payload)
	}
}

func (t *RegisterAccess) handle(remote cyphal.NodeID, transferID uint64, payload []byte) {
	name, op, value, ok := decodeRegisterAccessRequest(payload)
	if !ok {
		nlog.Errorf("tasks: RegisterAccess: malformed request")
		return
	}
	var response []byte
	switch op {
	case opRegisterWrite:
		if err := t.store.Write(name, value); err != nil {
			nlog.Errorf("tasks: RegisterAccess: write %q failed: %v", name, err)
			return
		}
		fallthrough
	case opRegisterRead:
		out, err := t.store.Read(name)
		if err != nil {
			nlog.Errorf("tasks: RegisterAccess: read %q failed: %v", name, err)
			return
		}
		response = out
	default:
		nlog.Errorf("tasks: RegisterAccess: unknown opcode %d", op)
		return
	}
	if _, err := t.Respond(PortRegisterAccess, cyphal.PriorityNominal, remote, transferID, response); err != nil {
		nlog.Errorf("tasks: RegisterAccess: response failed: %v", err)
	}
}

func decodeRegisterAccessRequest(p []byte) (name string, op byte, value []byte, ok bool) {
	if len(p) < 1 {
		return "", 0, nil, false
	}
	nameLen := int(p[0])
	if len(p) < 1+nameLen+1 {
		return "", 0, nil, false
	}
	name = string(p[1 : 1+nameLen])
	op = p[1+nameLen]
	rest := p[1+nameLen+1:]
	if op == opRegisterWrite {
		if len(rest) < 2 {
			return "", 0, nil, false
		}
		valueLen := int(rest[0])<<8 | int(rest[1])
		if len(rest) < 2+valueLen {
			return "", 0, nil, false
		}
		value = rest[2 : 2+valueLen]
	}
	return name, op, value, true
}
