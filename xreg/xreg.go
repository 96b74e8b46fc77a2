// Package xreg is the task registration manager (spec.md §4.C): the
// authoritative map from (port_id, task) to handler, plus the four
// port-id sets — subscriptions, publications, clients, servers — that the
// port-list advertisement task publishes verbatim. Named and shaped after
// the teacher's xreg package (aistore's xreg/bucket.go: a private registry
// struct behind package-level functions, Renewable-style registration with
// teardown on removal), generalized here from "renew a bucket xaction" to
// "declare the ports a task consumes or produces."
package xreg

import (
	"github.com/cubesat-core/flightsw/cmn/debug"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
)

// Role is the capacity in which a task claims a port.
type Role uint8

const (
	RoleSubscription Role = iota
	RolePublication
	RoleClient
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleSubscription:
		return "subscription"
	case RolePublication:
		return "publication"
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "unknown"
	}
}

// Handler receives an inbound transfer matching a subscribed or served
// port. It must not block (spec §5: "tasks MUST NOT block on I/O").
type Handler func(*cyphal.RxTransfer)

// Task is implemented by every concrete scheduler task that participates in
// port registration (spec §4.C: "Registering a task calls its virtual
// registerTask, which the task implements by declaring — through the
// manager — which ports it consumes/produces and in what role").
type Task interface {
	Name() string
	RegisterTask(m *Manager)
	UnregisterTask(m *Manager)
}

type entry struct {
	task Task
	port cyphal.PortID
	role Role
}

type boundHandler struct {
	task Task
	fn   Handler
}

// Manager is the registration manager: refcounted port sets plus an
// ordered, per-port handler list for message/request fan-out.
type Manager struct {
	counts [4]map[cyphal.PortID]int

	handlers map[cyphal.PortID][]boundHandler
	byTask   map[Task][]entry
}

// New constructs an empty registration manager.
func New() *Manager {
	m := &Manager{handlers: make(map[cyphal.PortID][]boundHandler), byTask: make(map[Task][]entry)}
	for i := range m.counts {
		m.counts[i] = make(map[cyphal.PortID]int)
	}
	return m
}

// Register calls task.RegisterTask(m), recording every port it declares
// under task so Unregister can reverse it symmetrically.
func (m *Manager) Register(task Task) {
	task.RegisterTask(m)
}

// Unregister reverses every claim task made during Register: ports are
// dropped from their set only when no remaining handler references them
// (spec §4.C: "removing a task reverses this; ports are dropped from the
// set only when no handler references them").
func (m *Manager) Unregister(task Task) {
	entries := m.byTask[task]
	delete(m.byTask, task)
	for _, e := range entries {
		m.release(e.role, e.port)
		if e.role == RoleSubscription || e.role == RoleServer || e.role == RoleClient {
			m.removeHandler(e.port, task)
		}
	}
	task.UnregisterTask(m)
}

// Subscribe declares task as a subscriber of port, invoking handler on
// every matching inbound message transfer (spec §4.C). Idempotent per
// (task, port): a duplicate Subscribe by the same task changes neither the
// refcount nor the handler list. The refcount counts distinct subscribing
// tasks, so the port stays in the subscription set until the last of them
// is unregistered.
func (m *Manager) Subscribe(task Task, port cyphal.PortID, h Handler) {
	if !m.claim(task, port, RoleSubscription) {
		return // already subscribed: idempotent per spec §8
	}
	m.handlers[port] = append(m.handlers[port], boundHandler{task: task, fn: h})
	nlog.Debugf("xreg: %s subscribed to port %d", task.Name(), port)
}

// Publish declares task as a publisher of port; publications carry no
// handler since nothing is delivered to a publisher.
func (m *Manager) Publish(task Task, port cyphal.PortID) {
	m.claim(task, port, RolePublication)
}

// Client declares task as a client of port (it issues requests and expects
// responses on the same numeric port-id space, spec §3), invoking handler
// on every inbound response transfer so the client can correlate it against
// its outstanding request.
func (m *Manager) Client(task Task, port cyphal.PortID, h Handler) {
	if !m.claim(task, port, RoleClient) {
		return
	}
	m.handlers[port] = append(m.handlers[port], boundHandler{task: task, fn: h})
}

// Server declares task as the server of port, invoking handler on every
// inbound request transfer.
func (m *Manager) Server(task Task, port cyphal.PortID, h Handler) {
	if !m.claim(task, port, RoleServer) {
		return
	}
	m.handlers[port] = append(m.handlers[port], boundHandler{task: task, fn: h})
	nlog.Debugf("xreg: %s serving port %d", task.Name(), port)
}

// claim records task's claim on (port, role), returning false without
// touching any state if task already holds this exact claim (spec §8:
// "subscribe(port) is idempotent: subscribing twice... leaves the port
// subscribed" — a duplicate claim must not double the refcount or register
// a second handler for the same task).
func (m *Manager) claim(task Task, port cyphal.PortID, role Role) bool {
	debug.Assert(cyphal.ValidPort(port) || port == cyphal.PortIDPureHandler)
	for _, e := range m.byTask[task] {
		if e.port == port && e.role == role {
			return false
		}
	}
	m.counts[role][port]++
	m.byTask[task] = append(m.byTask[task], entry{task: task, port: port, role: role})
	return true
}

func (m *Manager) release(role Role, port cyphal.PortID) {
	c, ok := m.counts[role][port]
	if !ok {
		return
	}
	if c <= 1 {
		delete(m.counts[role], port)
		return
	}
	m.counts[role][port] = c - 1
}

// removeHandler drops every handler task registered on port, preserving
// the registration order of the handlers that remain.
func (m *Manager) removeHandler(port cyphal.PortID, task Task) {
	existing := m.handlers[port]
	rebuilt := existing[:0:0]
	for _, bh := range existing {
		if bh.task != task {
			rebuilt = append(rebuilt, bh)
		}
	}
	if len(rebuilt) == 0 {
		delete(m.handlers, port)
		return
	}
	m.handlers[port] = rebuilt
}

// HandleMessage delivers tr to every handler registered on its port, in
// registration order (spec §4.C: "handleMessage(transfer): iterate
// handlers, deliver to every handler whose port_id matches... supports
// fan-out to multiple tasks"; spec §5: "delivery... is in registration
// order"). HandleMessage owns tr: each handler gets its own clone to
// release, and HandleMessage releases the handle it was passed, so a
// caller that hands HandleMessage its only reference (or a port with zero
// handlers) still returns the transfer to the allocator.
func (m *Manager) HandleMessage(tr *cyphal.RxTransfer) {
	defer tr.Release()
	port := tr.Get().Metadata.PortID
	for _, bh := range m.handlers[port] {
		bh.fn(tr.Clone())
	}
}

// PortSet is a snapshot of one role's claimed ports.
type PortSet []cyphal.PortID

// Subscriptions, Publications, Clients, Servers return the live port sets,
// used by the port-list advertisement task (spec §4.E: "port-list
// publication reflects exactly the union of registered publications ∪
// subscriptions ∪ clients ∪ servers at the moment of publication").
func (m *Manager) Subscriptions() PortSet { return portsOf(m.counts[RoleSubscription]) }
func (m *Manager) Publications() PortSet  { return portsOf(m.counts[RolePublication]) }
func (m *Manager) Clients() PortSet       { return portsOf(m.counts[RoleClient]) }
func (m *Manager) Servers() PortSet       { return portsOf(m.counts[RoleServer]) }

func portsOf(set map[cyphal.PortID]int) PortSet {
	out := make(PortSet, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}
