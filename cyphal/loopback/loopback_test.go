package loopback

import (
	"testing"

	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
)

func TestForwardPreservesSourceIdentity(t *testing.T) {
	alloc := memsys.New(4096)
	bus := New(alloc, 11)

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 100}
	if _, err := bus.TxForward(0, meta, []byte("hello"), 22); err != nil {
		t.Fatalf("TxForward: %v", err)
	}
	tr, ok := bus.Receive()
	if !ok {
		t.Fatal("expected a queued transfer")
	}
	if tr.Get().Metadata.RemoteNodeID != 22 {
		t.Fatalf("remote_node_id = %d, want 22", tr.Get().Metadata.RemoteNodeID)
	}
	tr.Release()

	if _, err := bus.TxPush(0, meta, []byte("world")); err != nil {
		t.Fatalf("TxPush: %v", err)
	}
	tr2, ok := bus.Receive()
	if !ok {
		t.Fatal("expected a second queued transfer")
	}
	if tr2.Get().Metadata.RemoteNodeID != 11 {
		t.Fatalf("remote_node_id = %d, want 11 (adapter's own id)", tr2.Get().Metadata.RemoteNodeID)
	}
	tr2.Release()
	if bus.GetNodeID() != 11 {
		t.Fatalf("adapter node id leaked as %d, want restored to 11", bus.GetNodeID())
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	alloc := memsys.New(1024)
	bus := New(alloc, 1)

	if n, err := bus.RxSubscribe(cyphal.KindMessage, 5, 64, 1000); err != nil || n != 1 {
		t.Fatalf("first subscribe: n=%d err=%v", n, err)
	}
	if n, err := bus.RxSubscribe(cyphal.KindMessage, 5, 64, 1000); err != nil || n != 0 {
		t.Fatalf("duplicate subscribe should be a no-op: n=%d err=%v", n, err)
	}
	if n := bus.RxUnsubscribe(cyphal.KindMessage, 5); n != 1 {
		t.Fatalf("unsubscribe = %d, want 1", n)
	}
	if n := bus.RxUnsubscribe(cyphal.KindMessage, 5); n != 0 {
		t.Fatalf("second unsubscribe = %d, want 0", n)
	}
}

func TestQueueCapacityDrop(t *testing.T) {
	alloc := memsys.New(1 << 20)
	bus := New(alloc, 1)
	bus.cap = 2

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 1}
	for i := 0; i < 2; i++ {
		if n, err := bus.TxPush(0, meta, nil); err != nil || n != 1 {
			t.Fatalf("push %d: n=%d err=%v", i, n, err)
		}
	}
	n, err := bus.TxPush(0, meta, nil)
	if err != nil || n != 0 {
		t.Fatalf("push at capacity: n=%d err=%v, want 0,nil", n, err)
	}
}
