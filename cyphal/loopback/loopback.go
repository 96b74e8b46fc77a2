// Package loopback implements the in-process Cyphal bus adapter (spec §4.B):
// a pre-formed-transfer queue that preserves forward identity, making it
// usable as a test double for multi-node wire traffic without any physical
// transport.
package loopback

import (
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
)

// DefaultQueueCapacity bounds the in-process bus, matching the "fixed
// capacity containers" design rule (spec §9).
const DefaultQueueCapacity = 256

// DefaultSubscriptionSlots mirrors the ~32-slot capacity-bounded
// subscription storage spec §4.B calls out for every adapter.
const DefaultSubscriptionSlots = 32

type subKey struct {
	kind cyphal.TransferKind
	port cyphal.PortID
}

// Adapter is the loopback transport: every participant on the simulated
// bus shares one Adapter instance and distinguishes itself via TxForward's
// spoofed source node id.
type Adapter struct {
	alloc  *memsys.Allocator
	nodeID cyphal.NodeID

	queue []*cyphal.RxTransfer
	cap   int

	subs map[subKey]struct{}
}

// New constructs a loopback adapter backed by alloc for RX-path payload
// ownership (spec §3: "payload owned by the receiver").
func New(alloc *memsys.Allocator, nodeID cyphal.NodeID) *Adapter {
	return &Adapter{
		alloc:  alloc,
		nodeID: nodeID,
		cap:    DefaultQueueCapacity,
		subs:   make(map[subKey]struct{}, DefaultSubscriptionSlots),
	}
}

var _ cyphal.CommonAdapter = (*Adapter)(nil)

func (a *Adapter) GetNodeID() cyphal.NodeID   { return a.nodeID }
func (a *Adapter) SetNodeID(id cyphal.NodeID) { a.nodeID = id }

// TxPush enqueues a pre-formed transfer using the adapter's current node id
// as both source and remote id (spec §4.B).
func (a *Adapter) TxPush(_ uint64, meta cyphal.Metadata, payload []byte) (int, error) {
	if len(a.queue) >= a.cap {
		return 0, nil // non-fatal capacity drop
	}
	meta.SourceNodeID = a.nodeID
	meta.RemoteNodeID = a.nodeID

	var block *memsys.Block
	if len(payload) > 0 {
		block = a.alloc.Allocate(len(payload))
		if block == nil {
			return 0, nil // OOM is a non-fatal drop at this layer (spec §7)
		}
		copy(block.Bytes, payload)
	}
	a.queue = append(a.queue, cyphal.NewRxTransfer(a.alloc, block, meta, 0))
	return 1, nil
}

// TxForward spoofs the adapter's node id to sourceNodeID for the duration
// of one TxPush, then restores it — the only sanctioned way to rebroadcast
// with the original source preserved (spec §4.B). This is what lets the
// loopback adapter double as a multi-node bus test double: each forwarded
// message carries the forwarder's declared source, not the bus's own id
// (spec §4.D: "forward identity").
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
		return 0, nil // idempotent: already subscribed
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

// Receive dequeues the next pre-formed transfer, or ok=false if the bus is
// empty (spec §4.B: "for loopback it simply dequeues the next pre-formed
// transfer"). The returned handle owns its payload exactly like a
// frame-based transport's reassembled transfer, so the loop manager can
// treat every adapter's RX output uniformly.
func (a *Adapter) Receive() (*cyphal.RxTransfer, bool) {
	if len(a.queue) == 0 {
		return nil, false
	}
	t := a.queue[0]
	a.queue = a.queue[1:]
	return t, true
}

// Len reports the number of queued pre-formed transfers, used by the loop
// manager to know when the bus has drained.
func (a *Adapter) Len() int { return len(a.queue) }
