// Package udp implements the Cyphal/UDP transport (spec.md §6: "Each
// datagram begins with a fixed header {version, priority, source_node_id,
// destination_node_id, data_specifier_snm, transfer_id(64),
// frame_index_eot(32), user_data(16), CRC(16)}; big-endian CRC"). Grounded
// on _examples/original_source (the lwIP/BSD-socket glue) and styled on the
// teacher's transport package framing (aistore's transport/recv.go
// datagram demuxer).
package udp

import (
	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
)

// headerSize is the fixed Cyphal/UDP header width (spec §6).
const headerSize = 24

// MaxDatagramPayload bounds how much payload one UDP datagram carries
// before a transfer splits across multiple datagrams.
const MaxDatagramPayload = 1400

// DefaultSubscriptionSlots mirrors the ~32-slot bound spec §4.B calls out.
const DefaultSubscriptionSlots = 32

// DefaultTxQueueCapacity bounds the software TX datagram queue.
const DefaultTxQueueCapacity = 128

type subKey struct {
	kind cyphal.TransferKind
	port cyphal.PortID
}

// Datagram is one outbound or inbound UDP payload, header included.
type Datagram []byte

type reassembly struct {
	meta    cyphal.Metadata
	buf     []byte
	tsUsec  uint64
	started bool
	frames  int
}

// Adapter is the UDP transport adapter.
type Adapter struct {
	alloc  *memsys.Allocator
	nodeID cyphal.NodeID // 16-bit node id space (spec §6)

	txQueue []Datagram
	txCap   int

	subs map[subKey]struct{}

	inflight map[cyphal.NodeID]*reassembly
	pending  *cyphal.RxTransfer
}

// New constructs a UDP adapter backed by alloc for RX-path payload ownership.
func New(alloc *memsys.Allocator, nodeID cyphal.NodeID) *Adapter {
	return &Adapter{
		alloc:    alloc,
		nodeID:   nodeID,
		txCap:    DefaultTxQueueCapacity,
		subs:     make(map[subKey]struct{}, DefaultSubscriptionSlots),
		inflight: make(map[cyphal.NodeID]*reassembly),
	}
}

var _ cyphal.CommonAdapter = (*Adapter)(nil)

func (a *Adapter) GetNodeID() cyphal.NodeID   { return a.nodeID }
func (a *Adapter) SetNodeID(id cyphal.NodeID) { a.nodeID = id }

func dataSpecifier(kind cyphal.TransferKind, port cyphal.PortID) uint16 {
	switch kind {
	case cyphal.KindMessage:
		return uint16(port) & 0x7FFF
	case cyphal.KindRequest:
		return (1 << 15) | (1 << 14) | (uint16(port) & 0x3FFF)
	default:
		return (1 << 15) | (uint16(port) & 0x3FFF)
	}
}

func parseDataSpecifier(v uint16) (cyphal.TransferKind, cyphal.PortID) {
	if v&(1<<15) == 0 {
		return cyphal.KindMessage, cyphal.PortID(v & 0x7FFF)
	}
	if v&(1<<14) != 0 {
		return cyphal.KindRequest, cyphal.PortID(v & 0x3FFF)
	}
	return cyphal.KindResponse, cyphal.PortID(v & 0x3FFF)
}

func encodeHeader(meta cyphal.Metadata, frameIndex uint32, eot bool) []byte {
	h := make([]byte, headerSize)
	h[0] = 1
	h[1] = byte(meta.Priority)
	cos.PutU16BE(h[2:4], uint16(meta.SourceNodeID))
	cos.PutU16BE(h[4:6], uint16(meta.DestinationNodeID))
	cos.PutU16BE(h[6:8], dataSpecifier(meta.Kind, meta.PortID))
	cos.PutU64BE(h[8:16], meta.TransferID)
	fi := frameIndex & 0x7FFFFFFF
	if eot {
		fi |= 1 << 31
	}
	cos.PutU32BE(h[16:20], fi)
	cos.PutU16BE(h[20:22], 0)
	crc := cos.CRC16CCITT(h[:22])
	cos.PutU16BE(h[22:24], crc)
	return h
}

// TxPush chunks payload across one or more UDP datagrams (spec §6).
func (a *Adapter) TxPush(_ uint64, meta cyphal.Metadata, payload []byte) (int, error) {
	if !cyphal.ValidPort(meta.PortID) && meta.PortID != cyphal.PortIDPureHandler {
		return -1, cyphal.ErrArgument
	}
	meta.SourceNodeID = a.nodeID
	meta.RemoteNodeID = a.nodeID

	wire := payload
	multi := len(payload) > MaxDatagramPayload
	if multi {
		crc := cos.CRC32C(payload)
		wire = make([]byte, len(payload)+4)
		copy(wire, payload)
		cos.PutU32BE(wire[len(payload):], crc)
	}

	n := (len(wire) + MaxDatagramPayload - 1) / MaxDatagramPayload
	if n == 0 {
		n = 1
	}
	if len(a.txQueue)+n > a.txCap {
		return 0, nil
	}

	datagrams := make([]Datagram, 0, n)
	for i := 0; i < n; i++ {
		lo := i * MaxDatagramPayload
		hi := lo + MaxDatagramPayload
		if hi > len(wire) {
			hi = len(wire)
		}
		header := encodeHeader(meta, uint32(i), i == n-1)
		dg := append(append(Datagram{}, header...), wire[lo:hi]...)
		datagrams = append(datagrams, dg)
	}
	a.txQueue = append(a.txQueue, datagrams...)
	return n, nil
}

// TxForward spoofs the adapter's node id to sourceNodeID for one TxPush.
func (a *Adapter) TxForward(deadlineUsec uint64, meta cyphal.Metadata, payload []byte, sourceNodeID cyphal.NodeID) (int, error) {
	prev := a.nodeID
	a.nodeID = sourceNodeID
	n, err := a.TxPush(deadlineUsec, meta, payload)
	a.nodeID = prev
	return n, err
}

func (a *Adapter) RxSubscribe(kind cyphal.TransferKind, port cyphal.PortID, _ int, _ uint64) (int, error) {
	key := subKey{kind, port}
	if _, ok := a.subs[key]; ok {
		return 0, nil
	}
	if len(a.subs) >= DefaultSubscriptionSlots {
		return -1, cyphal.ErrCapacity
	}
	a.subs[key] = struct{}{}
	return 1, nil
}

func (a *Adapter) RxUnsubscribe(kind cyphal.TransferKind, port cyphal.PortID) int {
	key := subKey{kind, port}
	if _, ok := a.subs[key]; !ok {
		return 0
	}
	delete(a.subs, key)
	return 1
}

// RxReceive ingests one inbound UDP datagram (spec §4.B: frame-based
// transports return 0/1/negative). On 1, fetch the transfer with Take.
func (a *Adapter) RxReceive(tsUsec uint64, dg Datagram) int {
	if len(dg) < headerSize {
		return -1
	}
	header, body := dg[:headerSize], dg[headerSize:]
	if cos.CRC16CCITT(header[:22]) != cos.GetU16BE(header[22:24]) {
		return -1
	}

	source := cyphal.NodeID(cos.GetU16BE(header[2:4]))
	destination := cyphal.NodeID(cos.GetU16BE(header[4:6]))
	kind, port := parseDataSpecifier(cos.GetU16BE(header[6:8]))
	transferID := cos.GetU64BE(header[8:16])
	fi := cos.GetU32BE(header[16:20])
	eot := fi&(1<<31) != 0
	frameIndex := fi &^ (1 << 31)

	r, ok := a.inflight[source]
	if frameIndex == 0 {
		r = &reassembly{
			meta: cyphal.Metadata{
				Kind:              kind,
				PortID:            port,
				SourceNodeID:      source,
				RemoteNodeID:      source,
				DestinationNodeID: destination,
				TransferID:        transferID,
			},
			tsUsec:  tsUsec,
			started: true,
		}
		a.inflight[source] = r
	} else if !ok || !r.started || r.meta.TransferID != transferID {
		return -1
	}
	r.buf = append(r.buf, body...)
	r.frames++

	if !eot {
		return 0
	}
	delete(a.inflight, source)

	payload := r.buf
	if r.frames > 1 && len(payload) >= 4 {
		given := cos.GetU32BE(payload[len(payload)-4:])
		rest := payload[:len(payload)-4]
		if cos.CRC32C(rest) == given {
			payload = rest
		}
	}

	block := a.alloc.Allocate(len(payload))
	if block == nil {
		return -1
	}
	copy(block.Bytes, payload)
	a.pending = cyphal.NewRxTransfer(a.alloc, block, r.meta, r.tsUsec)
	return 1
}

// Take returns and clears the transfer reassembled by the most recent
// RxReceive call that returned 1.
func (a *Adapter) Take() *cyphal.RxTransfer {
	t := a.pending
	a.pending = nil
	return t
}

// DrainTx hands queued datagrams to send (a UDP socket write) until it
// returns false (socket buffer full) or the queue empties.
func (a *Adapter) DrainTx(send func(Datagram) bool) {
	for len(a.txQueue) > 0 {
		d := a.txQueue[0]
		if !send(d) {
			return
		}
		a.txQueue = a.txQueue[1:]
	}
}

// TxQueueLen reports the current software TX queue depth.
func (a *Adapter) TxQueueLen() int { return len(a.txQueue) }
