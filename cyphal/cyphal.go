// Package cyphal defines the wire-independent data model the transport
// abstraction (spec.md §4.B) and the rest of the tree share: Transfer,
// Metadata, Priority, TransferKind, Subscription, and NodeID, plus the
// common capability set (CommonAdapter) every adapter implements. It is
// grounded on _examples/original_source/Inc/cyphal.hpp, the C++ header this
// package distills into idiomatic Go, and styled on the teacher's
// transport package (aistore's transport.ObjHdr / transport.Extra in
// transport/api.go).
package cyphal

import "errors"

// Priority is one of the eight Cyphal priority levels (spec §3).
type Priority uint8

const (
	PriorityExceptional Priority = iota
	PriorityImmediate
	PriorityFast
	PriorityHigh
	PriorityNominal // default priority for housekeeping publications
	PriorityLow
	PrioritySlow
	PriorityOptional
)

// TransferKind distinguishes message/request/response transfers, which
// share the same port-id numeric space (spec §3).
type TransferKind uint8

const (
	KindMessage TransferKind = iota
	KindResponse
	KindRequest
)

// NodeID is generic across transports; CAN and loopback use the low 8 bits
// (sentinel NodeIDUnsetCAN), UDP uses the full 16 bits (sentinel
// NodeIDUnsetUDP), per spec §6.
type NodeID uint32

const (
	NodeIDUnsetCAN NodeID = 0xFF
	NodeIDUnsetUDP NodeID = 0xFFFF
)

// PortID is a Cyphal port address; 0 is reserved as the scheduler-only
// "pure handler" port with no wire visibility (spec §3).
type PortID uint16

const (
	PortIDPureHandler PortID = 0
	MaxPortID         PortID = 8191
)

// ValidPort reports whether id is a wire-visible port (spec §3: "[1,8191]
// are valid").
func ValidPort(id PortID) bool { return id > PortIDPureHandler && id <= MaxPortID }

// Metadata is the transfer envelope shared by every Cyphal transport
// (spec §3).
type Metadata struct {
	Priority           Priority
	Kind               TransferKind
	PortID             PortID
	RemoteNodeID       NodeID
	SourceNodeID       NodeID
	DestinationNodeID  NodeID
	TransferID         uint64
}

// Transfer is the canonical in-memory message: metadata, a receive
// timestamp, and a payload the receiver owns (spec §3). Payload is nil iff
// it is empty; RX-path transfers additionally carry the allocator Block
// backing Payload so a payload-owning deleter can return it (see
// memsys.Shared / NewRxTransfer in transfer.go).
type Transfer struct {
	Metadata      Metadata
	TimestampUsec uint64
	Payload       []byte
}

// Subscription is a (kind, port, extent) triple: a receiver-side intent to
// receive plus a safety bound on deserialized payload size (spec §3).
type Subscription struct {
	PortID PortID
	Extent int
	Kind   TransferKind
}

// Errors returned by adapter operations. Transport errors are always
// reported this way, never via panic (spec §4.B, §7).
var (
	// ErrArgument is a fatal argument error (e.g. oversized payload,
	// invalid port id); TxPush/TxForward return a negative frame count
	// alongside this.
	ErrArgument = errors.New("cyphal: invalid argument")
	// ErrCapacity marks a recoverable, non-fatal capacity limit (TX queue
	// full, subscription slots full): the caller logs and proceeds (spec §7).
	ErrCapacity = errors.New("cyphal: capacity exceeded")
)

// CommonAdapter is the capability set every transport adapter implements
// (spec §4.B): push, forward, subscribe, unsubscribe, node-id accessors.
// rxReceive is intentionally excluded: its signature differs per transport
// (frame-based, stream, or pre-formed-transfer), so each adapter package
// exposes its own receive method and the loop manager is written against
// the concrete adapter type rather than a single polymorphic Receive.
//
// A package-level `var _ CommonAdapter = (*T)(nil)` in each adapter package
// is this spec's equivalent of the original's compile-time capability
// check (spec §4.B: "A static check at compile time verifies each adapter
// implements the full capability set").
type CommonAdapter interface {
	// TxPush enqueues a transfer for transmission using the adapter's
	// current node id as source. Returns the number of outbound frames
	// produced (>=1) on success, 0 on a non-fatal capacity drop, negative
	// on a fatal argument error.
	TxPush(deadlineUsec uint64, meta Metadata, payload []byte) (int, error)

	// TxForward atomically spoofs the adapter's node id to sourceNodeID,
	// performs TxPush, and restores the original id: the only sanctioned
	// way to rebroadcast a transfer with its original source intact.
	TxForward(deadlineUsec uint64, meta Metadata, payload []byte, sourceNodeID NodeID) (int, error)

	// RxSubscribe registers intent to receive (kind, port). Idempotent:
	// duplicate subscribes return 0 frames-equivalent success without
	// consuming another slot. Returns a negative capacity error when the
	// (typically 32-slot) subscription table is full.
	RxSubscribe(kind TransferKind, port PortID, extent int, timeoutUsec uint64) (int, error)

	// RxUnsubscribe removes a (kind, port) subscription. Returns 1 if one
	// was present, 0 if absent.
	RxUnsubscribe(kind TransferKind, port PortID) int

	GetNodeID() NodeID
	SetNodeID(NodeID)
}
