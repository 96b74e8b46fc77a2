package udp

import (
	"bytes"
	"testing"

	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/memsys"
)

func TestSingleDatagramRoundTrip(t *testing.T) {
	alloc := memsys.New(4096)
	tx := New(alloc, 100)
	rx := New(alloc, 200)

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 17, TransferID: 1}
	n, err := tx.TxPush(0, meta, []byte("udp payload"))
	if err != nil || n != 1 {
		t.Fatalf("TxPush: n=%d err=%v", n, err)
	}
	var got Datagram
	tx.DrainTx(func(d Datagram) bool { got = d; return true })

	if rc := rx.RxReceive(0, got); rc != 1 {
		t.Fatalf("RxReceive = %d, want 1", rc)
	}
	tr := rx.Take()
	if string(tr.Get().Payload) != "udp payload" {
		t.Fatalf("payload = %q", tr.Get().Payload)
	}
	if tr.Get().Metadata.RemoteNodeID != 100 {
		t.Fatalf("remote_node_id = %d, want 100", tr.Get().Metadata.RemoteNodeID)
	}
	tr.Release()
}

func TestMultiDatagramRoundTrip(t *testing.T) {
	alloc := memsys.New(1 << 20)
	tx := New(alloc, 1)
	rx := New(alloc, 2)

	payload := make([]byte, MaxDatagramPayload*2+33)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 5, TransferID: 42}
	n, err := tx.TxPush(0, meta, payload)
	if err != nil {
		t.Fatalf("TxPush: %v", err)
	}
	if n != 3 {
		t.Fatalf("datagram count = %d, want 3", n)
	}

	var rc int
	tx.DrainTx(func(d Datagram) bool {
		rc = rx.RxReceive(0, d)
		return true
	})
	if rc != 1 {
		t.Fatalf("final RxReceive = %d, want 1", rc)
	}
	tr := rx.Take()
	if !bytes.Equal(tr.Get().Payload, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(tr.Get().Payload), len(payload))
	}
	tr.Release()
}

func TestTxQueueCapacityDrop(t *testing.T) {
	alloc := memsys.New(1 << 20)
	tx := New(alloc, 1)
	tx.txCap = 1

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 1}
	big := make([]byte, MaxDatagramPayload*2)
	n, err := tx.TxPush(0, meta, big)
	if err != nil {
		t.Fatalf("TxPush: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 (capacity drop)", n)
	}
}
