// Task-kind mixins (spec.md §4.C): concrete tasks compose these into their
// own struct rather than inheriting from a class hierarchy, the idiomatic
// Go translation of the original's behaviour-mixin design.
package sched

import (
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/xreg"
)

// Publisher holds a transfer_id counter and a tuple of adapter references;
// Publish serialises a caller-provided payload out across every adapter in
// the tuple and post-increments transfer_id on success (spec §4.C: "2.
// Publisher").
type Publisher struct {
	Adapters   []cyphal.CommonAdapter
	transferID uint64
}

// Publish pushes payload as a message transfer on port across every
// configured adapter, returning the total frame count accepted. transfer_id
// only advances if at least one adapter accepted the transfer.
func (p *Publisher) Publish(port cyphal.PortID, priority cyphal.Priority, payload []byte) (int, error) {
	meta := cyphal.Metadata{Priority: priority, Kind: cyphal.KindMessage, PortID: port, TransferID: p.transferID}
	var total int
	var firstErr error
	for _, a := range p.Adapters {
		n, err := a.TxPush(0, meta, payload)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}
	if total > 0 {
		p.transferID++
	}
	return total, firstErr
}

// Inbox is the bounded, shared-owned-transfer queue a "subscriber from
// buffer" task drains on its own tick (spec §3: "optional bounded inbox";
// spec §4.C: "Subscriber from buffer — owns a bounded inbox... handleMessage
// pushes; handleTaskImpl drains").
type Inbox struct {
	cap int
	buf []*cyphal.RxTransfer
}

// NewInbox constructs an inbox bounded at capacity entries.
func NewInbox(capacity int) *Inbox { return &Inbox{cap: capacity} }

// Push enqueues tr, or drops it silently (logged at debug) if the inbox is
// full (spec §4.C: "Bounded inbox policy. When a subscriber's inbox is
// full, new messages are dropped silently (logged at debug level)").
func (ib *Inbox) Push(tr *cyphal.RxTransfer) {
	if len(ib.buf) >= ib.cap {
		nlog.Debugf("sched: inbox full at capacity %d, dropping transfer", ib.cap)
		tr.Release()
		return
	}
	ib.buf = append(ib.buf, tr)
}

// Pop removes and returns the oldest queued transfer, FIFO (spec §5:
// "across ticks, message ordering is preserved per port").
func (ib *Inbox) Pop() (*cyphal.RxTransfer, bool) {
	if len(ib.buf) == 0 {
		return nil, false
	}
	t := ib.buf[0]
	ib.buf = ib.buf[1:]
	return t, true
}

// Len reports the number of queued transfers.
func (ib *Inbox) Len() int { return len(ib.buf) }

// Server receives requests via an inbox and answers via Respond, which
// preserves request/response correlation by echoing the caller's
// remote-node-id and transfer-id (spec §4.C: "4. Server").
type Server struct {
	Publisher
}

// Respond answers a request on port, addressed back to remoteNodeID and
// carrying the request's own transferID for correlation.
func (s *Server) Respond(port cyphal.PortID, priority cyphal.Priority, remoteNodeID cyphal.NodeID, transferID uint64, payload []byte) (int, error) {
	meta := cyphal.Metadata{
		Priority:          priority,
		Kind:              cyphal.KindResponse,
		PortID:            port,
		DestinationNodeID: remoteNodeID,
		TransferID:        transferID,
	}
	var total int
	var firstErr error
	for _, a := range s.Adapters {
		n, err := a.TxPush(0, meta, payload)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}
	return total, firstErr
}

// Client remembers a target server node id and a rolling transfer id;
// IssueRequest fires a request, AcceptResponse consumes and validates the
// matching reply, dropping anything that doesn't correlate (spec §4.C:
// "5. Client... drops responses whose (remote_node_id, kind) don't match
// the outstanding request").
type Client struct {
	Publisher
	ServerNodeID cyphal.NodeID

	outstandingID uint64
	awaiting      bool
}

// IssueRequest sends a request to ServerNodeID and arms response matching.
func (c *Client) IssueRequest(port cyphal.PortID, priority cyphal.Priority, payload []byte) (int, error) {
	meta := cyphal.Metadata{
		Priority:          priority,
		Kind:              cyphal.KindRequest,
		PortID:            port,
		DestinationNodeID: c.ServerNodeID,
		TransferID:        c.transferID,
	}
	var total int
	var firstErr error
	for _, a := range c.Adapters {
		n, err := a.TxPush(0, meta, payload)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}
	if total > 0 {
		c.outstandingID = c.transferID
		c.awaiting = true
		c.transferID++
	}
	return total, firstErr
}

// AcceptResponse reports whether tr is the reply to the outstanding
// request; non-matching transfers are rejected (the caller should release
// them) without disturbing the pending request state.
func (c *Client) AcceptResponse(tr *cyphal.RxTransfer) bool {
	if !c.awaiting {
		return false
	}
	m := tr.Get().Metadata
	if m.Kind != cyphal.KindResponse || m.RemoteNodeID != c.ServerNodeID || m.TransferID != c.outstandingID {
		return false
	}
	c.awaiting = false
	return true
}

// Awaiting reports whether a request is outstanding, used by
// handleTaskImpl to decide between issuing a new request and consuming a
// response (spec §4.C: "issues a request when the inbox is empty and
// consumes responses otherwise").
func (c *Client) Awaiting() bool { return c.awaiting }

// BareHandler registers under the reserved pure-handler port (spec §4.C:
// "1. Bare handler — receives messages into an overridable method;
// registers under port 0, never wired to any transport").
type BareHandler struct{}

// Register subscribes task to the pure-handler port with handler h.
func (BareHandler) Register(m *xreg.Manager, task xreg.Task, h xreg.Handler) {
	m.Subscribe(task, cyphal.PortIDPureHandler, h)
}
