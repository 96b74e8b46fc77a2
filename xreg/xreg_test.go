package xreg

import (
	"testing"

	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
)

type fakeTask struct {
	name string
	port cyphal.PortID
	recv []*cyphal.RxTransfer
}

func (f *fakeTask) Name() string { return f.name }
func (f *fakeTask) RegisterTask(m *Manager) {
	m.Subscribe(f, f.port, func(tr *cyphal.RxTransfer) { f.recv = append(f.recv, tr) })
	m.Publish(f, f.port+1)
}
func (f *fakeTask) UnregisterTask(*Manager) {}

func newTransfer(t *testing.T, port cyphal.PortID) *cyphal.RxTransfer {
	t.Helper()
	alloc := memsys.New(1024)
	b := alloc.Allocate(4)
	return cyphal.NewRxTransfer(alloc, b, cyphal.Metadata{PortID: port}, 0)
}

func TestRegisterUnregisterClearsEverything(t *testing.T) {
	m := New()
	a := &fakeTask{name: "a", port: 10}
	b := &fakeTask{name: "b", port: 10}
	m.Register(a)
	m.Register(b)

	if got := m.Subscriptions(); len(got) != 1 {
		t.Fatalf("subscriptions = %v, want one port", got)
	}

	m.Unregister(a)

	tr := newTransfer(t, 10)
	m.HandleMessage(tr)
	if len(a.recv) != 0 {
		t.Fatalf("unregistered task a still received a message: %d", len(a.recv))
	}
	if len(b.recv) != 1 {
		t.Fatalf("surviving task b should still receive: got %d", len(b.recv))
	}

	m.Unregister(b)
	if got := m.Subscriptions(); len(got) != 0 {
		t.Fatalf("subscriptions after both unregistered = %v, want empty", got)
	}
	if got := m.Publications(); len(got) != 0 {
		t.Fatalf("publications after both unregistered = %v, want empty", got)
	}
}

func TestHandleMessageFanOutRegistrationOrder(t *testing.T) {
	m := New()
	var order []string
	register := func(name string, port cyphal.PortID) *fakeTask {
		ft := &fakeTask{name: name, port: port}
		m.Subscribe(ft, port, func(tr *cyphal.RxTransfer) { order = append(order, name) })
		return ft
	}
	register("first", 5)
	register("second", 5)
	register("third", 5)

	m.HandleMessage(newTransfer(t, 5))

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestSubscribeIdempotentPerTask(t *testing.T) {
	m := New()
	ft := &fakeTask{name: "dup", port: 9}
	var calls int
	m.Subscribe(ft, 9, func(*cyphal.RxTransfer) { calls++ })
	m.Subscribe(ft, 9, func(*cyphal.RxTransfer) { calls++ }) // duplicate: must not register a second handler

	if got := m.Subscriptions(); len(got) != 1 {
		t.Fatalf("subscriptions = %v, want exactly one port", got)
	}
	m.HandleMessage(newTransfer(t, 9))
	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1 (duplicate subscribe must not fan out twice)", calls)
	}

	m.Unregister(ft)
	if got := m.Subscriptions(); len(got) != 0 {
		t.Fatalf("subscriptions after unregister = %v, want empty (one unregister undoes the idempotent claim)", got)
	}
}

func TestPortSetUnion(t *testing.T) {
	m := New()
	ft := &fakeTask{name: "u", port: 100}
	m.Register(ft)

	subs := m.Subscriptions()
	pubs := m.Publications()
	if len(subs) != 1 || subs[0] != 100 {
		t.Fatalf("subs = %v", subs)
	}
	if len(pubs) != 1 || pubs[0] != 101 {
		t.Fatalf("pubs = %v", pubs)
	}
}
