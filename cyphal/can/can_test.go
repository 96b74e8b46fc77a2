package can

import (
	"bytes"
	"testing"

	"github.com/cubesat-core/flightsw/memsys"

	"github.com/cubesat-core/flightsw/cyphal"
)

func TestLargeMultiFrameScenario(t *testing.T) {
	alloc := memsys.New(1 << 20)
	tx := New(alloc, 11)
	rx := New(alloc, 22)

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	meta := cyphal.Metadata{Priority: cyphal.PriorityNominal, Kind: cyphal.KindMessage, PortID: 123, TransferID: 5}
	n, err := tx.TxPush(0, meta, payload)
	if err != nil {
		t.Fatalf("TxPush: %v", err)
	}
	if n != 37 {
		t.Fatalf("frame count = %d, want 37", n)
	}
	if tx.TxQueueLen() != 37 {
		t.Fatalf("tx queue depth = %d, want 37", tx.TxQueueLen())
	}

	var frames []Frame
	tx.DrainTx(func(f Frame) bool {
		frames = append(frames, f)
		return true
	})
	if len(frames) != 37 {
		t.Fatalf("drained %d frames, want 37", len(frames))
	}

	for i, f := range frames[:36] {
		if rc := rx.RxReceive(0, f); rc != 0 {
			t.Fatalf("frame %d: RxReceive = %d, want 0", i, rc)
		}
	}
	rc := rx.RxReceive(0, frames[36])
	if rc != 1 {
		t.Fatalf("final frame: RxReceive = %d, want 1", rc)
	}

	tr := rx.Take()
	if tr == nil {
		t.Fatal("expected a reassembled transfer")
	}
	got := tr.Get()
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got.Payload), len(payload))
	}
	if got.Metadata.RemoteNodeID != 11 {
		t.Fatalf("remote_node_id = %d, want 11", got.Metadata.RemoteNodeID)
	}
	tr.Release()
}

func TestSingleFrameRoundTrip(t *testing.T) {
	alloc := memsys.New(4096)
	tx := New(alloc, 1)
	rx := New(alloc, 2)

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 7, TransferID: 3}
	n, err := tx.TxPush(0, meta, []byte("short"))
	if err != nil || n != 1 {
		t.Fatalf("TxPush: n=%d err=%v", n, err)
	}
	var frame Frame
	tx.DrainTx(func(f Frame) bool { frame = f; return true })

	if rc := rx.RxReceive(0, frame); rc != 1 {
		t.Fatalf("RxReceive = %d, want 1", rc)
	}
	tr := rx.Take()
	if string(tr.Get().Payload) != "short" {
		t.Fatalf("payload = %q, want %q", tr.Get().Payload, "short")
	}
	tr.Release()
}

func TestTxQueueCapacityDrop(t *testing.T) {
	alloc := memsys.New(1 << 20)
	tx := New(alloc, 1)
	tx.txCap = 2

	meta := cyphal.Metadata{Kind: cyphal.KindMessage, PortID: 1}
	// a payload needing 4 frames (21 bytes plus the 2-byte transfer CRC) should
	// be rejected outright against a cap of 2
	big := make([]byte, payloadBytesPerFrame*3)
	n, err := tx.TxPush(0, meta, big)
	if err != nil {
		t.Fatalf("TxPush: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 (capacity drop)", n)
	}
}
