// Package loopmgr is the RX/TX loop manager (spec.md §4.D): per-transport
// frame draining, transfer reassembly, dispatch to the service manager, and
// forwarded rebroadcast across every other transport with the original
// source node id preserved. Grounded on _examples/original_source (the
// bare-metal main loop) and styled on the teacher's transport bundle
// (aistore's transport/bundle.go: a fixed tuple of per-target streams
// drained by one dispatch loop), generalized here from "per-target stream"
// to "per-adapter transport."
package loopmgr

import (
	"github.com/OneOfOne/xxhash"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/cyphal/can"
	"github.com/cubesat-core/flightsw/cyphal/loopback"
	"github.com/cubesat-core/flightsw/cyphal/serial"
	"github.com/cubesat-core/flightsw/cyphal/udp"
)

// Dispatcher is the subset of sched.ServiceManager the loop manager drives.
type Dispatcher interface {
	HandleMessage(tr *cyphal.RxTransfer)
}

// namedAdapter pairs an adapter with the identity the loop manager uses to
// skip forwarding a transfer back onto the transport it arrived on (spec
// §9 redesign guidance: "add a source-adapter tag to processTransfer and
// skip forwarding back to it").
type namedAdapter struct {
	name string
	adp  cyphal.CommonAdapter
}

// Manager owns every transport adapter and drains them cooperatively. Its
// dedup filter additionally suppresses forwarding of transfers already
// rebroadcast within the configured capacity — an enrichment beyond the
// spec's base single-hop design, for topologies where more than one
// non-loopback transport is wired without physical segmentation (see
// DESIGN.md: forward-loop suppression open-question decision).
type Manager struct {
	adapters map[cyphal.CommonAdapter]string
	order    []namedAdapter
	disp     Dispatcher
	dedup    *cuckoo.Filter

	dispatched      uint64
	forwarded       uint64
	forwardSkipped  uint64
	forwardErrors   uint64
}

// New constructs an empty loop manager dispatching matched transfers to
// disp. Call AddLoopback/AddCAN/AddSerial/AddUDP to attach transports.
func New(disp Dispatcher) *Manager {
	return &Manager{
		adapters: make(map[cyphal.CommonAdapter]string),
		disp:     disp,
		dedup:    cuckoo.NewDefaultCuckooFilter(),
	}
}

func (m *Manager) addNamed(name string, a cyphal.CommonAdapter) {
	m.adapters[a] = name
	m.order = append(m.order, namedAdapter{name: name, adp: a})
}

func (m *Manager) AddLoopback(name string, a *loopback.Adapter) { m.addNamed(name, a) }
func (m *Manager) AddCAN(name string, a *can.Adapter)           { m.addNamed(name, a) }
func (m *Manager) AddSerial(name string, a *serial.Adapter)     { m.addNamed(name, a) }
func (m *Manager) AddUDP(name string, a *udp.Adapter)           { m.addNamed(name, a) }

// DrainLoopback dequeues every pending pre-formed transfer on a (spec §4.D:
// "Inbound loopback. Simply dequeue pre-formed transfers until empty, each
// processed identically").
func (m *Manager) DrainLoopback(a *loopback.Adapter) {
	origin := m.adapters[a]
	for {
		tr, ok := a.Receive()
		if !ok {
			return
		}
		m.processTransfer(origin, tr)
	}
}

// DrainCAN feeds one pending raw CAN frame into adapter a and, on a
// completed transfer, runs processTransfer (spec §4.D: "Inbound CAN. For
// each pending CAN rx frame: call the CAN adapter's rxReceive. If it
// returns a full transfer, call processTransfer").
func (m *Manager) DrainCAN(a *can.Adapter, tsUsec uint64, frame can.Frame) {
	if a.RxReceive(tsUsec, frame) != 1 {
		return
	}
	if tr := a.Take(); tr != nil {
		m.processTransfer(m.adapters[a], tr)
	}
}

// DrainSerial feeds newly arrived bytes into adapter a and processes every
// transfer the stream yields until the buffer is drained (spec §4.D:
// "Inbound serial... the loop manager iterates until the adapter reports
// the buffer drained").
func (m *Manager) DrainSerial(a *serial.Adapter, tsUsec uint64, data []byte) {
	a.Feed(data)
	origin := m.adapters[a]
	for {
		rc := a.RxReceive(tsUsec)
		if rc == 0 {
			return
		}
		if rc < 0 {
			continue // malformed frame silently discarded, more may remain
		}
		if tr := a.Take(); tr != nil {
			m.processTransfer(origin, tr)
		}
	}
}

// DrainUDP feeds one pending datagram into adapter a and processes the
// resulting transfer, if any.
func (m *Manager) DrainUDP(a *udp.Adapter, tsUsec uint64, dg udp.Datagram) {
	if a.RxReceive(tsUsec, dg) != 1 {
		return
	}
	if tr := a.Take(); tr != nil {
		m.processTransfer(m.adapters[a], tr)
	}
}

// processTransfer implements spec §4.D's processTransfer: the transfer
// arrives already wrapped in a shared-owned handle by the adapter; dispatch
// it to the service manager, then rebroadcast on every other transport with
// the original source preserved (spec §4.D: "bridging behaviour").
func (m *Manager) processTransfer(origin string, tr *cyphal.RxTransfer) {
	defer tr.Release()

	t := tr.Get()
	m.disp.HandleMessage(tr.Clone())
	m.dispatched++

	if m.dedupSeen(t.Metadata) {
		m.forwardSkipped++
		nlog.Debugf("loopmgr: suppressing forward of already-seen transfer from node %d port %d",
			t.Metadata.SourceNodeID, t.Metadata.PortID)
		return
	}
	for _, na := range m.order {
		if na.name == origin {
			continue // spec §9: never forward back onto the adapter it arrived on
		}
		if _, err := na.adp.TxForward(0, t.Metadata, t.Payload, t.Metadata.SourceNodeID); err != nil {
			m.forwardErrors++
			nlog.Errorf("loopmgr: forward to %s failed: %v", na.name, err)
			continue
		}
		m.forwarded++
	}
}

// Counters is a read-only snapshot of the loop manager's forwarding
// activity, read by the metrics package (spec.md's Domain Stack names a
// transport collector; this is what it reads).
type Counters struct {
	Dispatched     uint64
	Forwarded      uint64
	ForwardSkipped uint64
	ForwardErrors  uint64
}

// Counters returns the current forwarding counters.
func (m *Manager) Counters() Counters {
	return Counters{
		Dispatched:     m.dispatched,
		Forwarded:      m.forwarded,
		ForwardSkipped: m.forwardSkipped,
		ForwardErrors:  m.forwardErrors,
	}
}

// dedupSeen reports whether this exact (source_node_id, transfer_id,
// port_id) triple was already forwarded, inserting it into the window if
// not (see DESIGN.md: forward-loop suppression enrichment).
func (m *Manager) dedupSeen(meta cyphal.Metadata) bool {
	key := dedupKey(meta)
	if m.dedup.Lookup(key) {
		return true
	}
	m.dedup.InsertUnique(key)
	return false
}

func dedupKey(meta cyphal.Metadata) []byte {
	b := make([]byte, 24)
	cos.PutU64BE(b[0:8], uint64(meta.SourceNodeID))
	cos.PutU64BE(b[8:16], meta.TransferID)
	cos.PutU64BE(b[16:24], uint64(meta.PortID))
	sum := xxhash.Checksum64(b)
	out := make([]byte, 8)
	cos.PutU64BE(out, sum)
	return out
}

// DrainCANTx is the outbound CAN drain routine (spec §4.D): invoked from
// both the scheduler (periodic) and the CAN TX-complete ISR callback.
func DrainCANTx(a *can.Adapter, send func(can.Frame) bool) { a.DrainTx(send) }

// DrainUDPTx hands queued UDP datagrams to send until the socket reports
// backpressure or the queue empties.
func DrainUDPTx(a *udp.Adapter, send func(udp.Datagram) bool) { a.DrainTx(send) }
