package serial

import (
	"bytes"
	"testing"

	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
)

func TestSingleFrameRoundTrip(t *testing.T) {
	alloc := memsys.New(4096)
	tx := New(alloc, 1)
	rx := New(alloc, 2)

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 99, TransferID: 1}
	if _, err := tx.TxPush(0, meta, []byte("hello serial")); err != nil {
		t.Fatalf("TxPush: %v", err)
	}
	rx.Feed(tx.TxBytes())

	if rc := rx.RxReceive(0); rc != 1 {
		t.Fatalf("RxReceive = %d, want 1", rc)
	}
	tr := rx.Take()
	if string(tr.Get().Payload) != "hello serial" {
		t.Fatalf("payload = %q", tr.Get().Payload)
	}
	if tr.Get().Metadata.RemoteNodeID != 1 {
		t.Fatalf("remote_node_id = %d, want 1", tr.Get().Metadata.RemoteNodeID)
	}
	tr.Release()

	if rc := rx.RxReceive(0); rc != 0 {
		t.Fatalf("buffer should be drained, got %d", rc)
	}
}

func TestMultiFrameRoundTrip(t *testing.T) {
	alloc := memsys.New(1 << 20)
	tx := New(alloc, 5)
	rx := New(alloc, 6)

	payload := make([]byte, MaxFramePayload*3+17)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 42, TransferID: 9}
	n, err := tx.TxPush(0, meta, payload)
	if err != nil {
		t.Fatalf("TxPush: %v", err)
	}
	if n != 4 {
		t.Fatalf("frame count = %d, want 4", n)
	}
	rx.Feed(tx.TxBytes())

	var last int
	for {
		last = rx.RxReceive(0)
		if last != 0 {
			break
		}
	}
	if last != 1 {
		t.Fatalf("final RxReceive = %d, want 1", last)
	}
	tr := rx.Take()
	if !bytes.Equal(tr.Get().Payload, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(tr.Get().Payload), len(payload))
	}
	tr.Release()
}

func TestForwardPreservesSourceIdentity(t *testing.T) {
	alloc := memsys.New(4096)
	tx := New(alloc, 11)
	rx := New(alloc, 99)

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 1}
	if _, err := tx.TxForward(0, meta, []byte("x"), 22); err != nil {
		t.Fatalf("TxForward: %v", err)
	}
	rx.Feed(tx.TxBytes())
	if rc := rx.RxReceive(0); rc != 1 {
		t.Fatalf("RxReceive = %d, want 1", rc)
	}
	tr := rx.Take()
	if tr.Get().Metadata.RemoteNodeID != 22 {
		t.Fatalf("remote_node_id = %d, want 22", tr.Get().Metadata.RemoteNodeID)
	}
	tr.Release()
	if tx.GetNodeID() != 11 {
		t.Fatalf("adapter node id leaked as %d, want restored to 11", tx.GetNodeID())
	}
}
