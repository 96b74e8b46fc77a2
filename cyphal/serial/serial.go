// Package serial implements the Cyphal/Serial byte-stream transport (spec.md
// §6: "Cyphal/Serial byte stream with COBS framing and header-CRC"; §4.D:
// "Serial is a byte stream; the adapter's rxReceive may emit multiple
// transfers from one buffer"). It shares the 24-byte fixed header layout
// with the UDP transport (both derive from the same upstream Cyphal/Serial
// and Cyphal/UDP specifications), COBS-framed and 0x00-delimited on the
// wire instead of length-prefixed. Grounded on _examples/original_source
// (the UART HAL glue) and styled on the teacher's transport package framing
// helpers (aistore's transport/recv.go stream demuxer).
package serial

import (
	"github.com/cubesat-core/flightsw/cmn/cos"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
)

// headerSize is the fixed Cyphal/Serial header: version(1) priority(1)
// source(2) destination(2) data_specifier(2) transfer_id(8)
// frame_index_eot(4) user_data(2) crc(2) (spec §6).
const headerSize = 24

// MaxFramePayload bounds how much payload one frame carries before the
// stream splits a transfer across multiple frames.
const MaxFramePayload = 250

// DefaultSubscriptionSlots mirrors the ~32-slot bound spec §4.B calls out.
const DefaultSubscriptionSlots = 32

// DefaultTxQueueCapacity bounds the software TX byte queue.
const DefaultTxQueueCapacity = 1 << 16

type subKey struct {
	kind cyphal.TransferKind
	port cyphal.PortID
}

type reassembly struct {
	meta    cyphal.Metadata
	buf     []byte
	tsUsec  uint64
	started bool
	frames  int
}

// Adapter is the serial transport adapter.
type Adapter struct {
	alloc  *memsys.Allocator
	nodeID cyphal.NodeID

	txBuf []byte
	txCap int

	rxBuf []byte // raw bytes fed by Feed, not yet parsed past the next delimiter

	subs map[subKey]struct{}

	inflight map[cyphal.NodeID]*reassembly
	pending  *cyphal.RxTransfer
}

// New constructs a serial adapter backed by alloc for RX-path payload
// ownership.
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
	default: // KindResponse
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
	h[0] = 1 // version
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
	cos.PutU16BE(h[20:22], 0) // user_data, unused
	crc := cos.CRC16CCITT(h[:22])
	cos.PutU16BE(h[22:24], crc)
	return h
}

// TxPush frames payload as one or more COBS-delimited Cyphal/Serial frames
// and appends them to the adapter's outbound byte stream (spec §6, §4.D).
func (a *Adapter) TxPush(_ uint64, meta cyphal.Metadata, payload []byte) (int, error) {
	if !cyphal.ValidPort(meta.PortID) && meta.PortID != cyphal.PortIDPureHandler {
		return -1, cyphal.ErrArgument
	}
	meta.SourceNodeID = a.nodeID
	meta.RemoteNodeID = a.nodeID

	wire := payload
	multi := len(payload) > MaxFramePayload
	if multi {
		crc := cos.CRC32C(payload)
		wire = make([]byte, len(payload)+4)
		copy(wire, payload)
		cos.PutU32BE(wire[len(payload):], crc)
	}

	n := (len(wire) + MaxFramePayload - 1) / MaxFramePayload
	if n == 0 {
		n = 1
	}

	frames := 0
	var out []byte
	for i := 0; i < n; i++ {
		lo := i * MaxFramePayload
		hi := lo + MaxFramePayload
		if hi > len(wire) {
			hi = len(wire)
		}
		header := encodeHeader(meta, uint32(i), i == n-1)
		raw := append(append([]byte{}, header...), wire[lo:hi]...)
		encoded := cos.COBSEncode(raw)
		out = append(out, encoded...)
		out = append(out, 0x00) // frame delimiter
		frames++
	}

	if len(a.txBuf)+len(out) > a.txCap {
		return 0, nil
	}
	a.txBuf = append(a.txBuf, out...)
	return frames, nil
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

// Feed appends freshly received bytes (e.g. from a UART DMA buffer) to the
// adapter's accumulation buffer ahead of RxReceive.
func (a *Adapter) Feed(data []byte) {
	a.rxBuf = append(a.rxBuf, data...)
}

// RxReceive parses the next complete COBS-delimited frame out of the bytes
// previously given to Feed. Returns 1 when a full transfer is ready (fetch
// it with Take), 0 when the buffer holds no complete frame (drained), or a
// negative value when a malformed frame was discarded — the caller keeps
// calling RxReceive until it returns 0 (spec §4.D: "the loop manager
// iterates until the adapter reports the buffer drained").
func (a *Adapter) RxReceive(tsUsec uint64) int {
	idx := indexByte(a.rxBuf, 0x00)
	if idx < 0 {
		return 0
	}
	frame := a.rxBuf[:idx]
	a.rxBuf = a.rxBuf[idx+1:]
	if len(frame) == 0 {
		return a.RxReceive(tsUsec) // empty frame between delimiters; go on to the next one
	}

	raw, ok := cos.COBSDecode(frame)
	if !ok || len(raw) < headerSize {
		return -1
	}
	header, body := raw[:headerSize], raw[headerSize:]
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
		return -1 // continuation frame with no matching in-progress transfer
	}
	r.buf = append(r.buf, body...)
	r.frames++

	if !eot {
		return a.RxReceive(tsUsec) // transfer continues in a later frame; keep parsing
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

// TxBytes returns and clears the pending outbound byte stream, handed to the
// UART DMA/blocking-write call by the loop manager.
func (a *Adapter) TxBytes() []byte {
	b := a.txBuf
	a.txBuf = nil
	return b
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
