package memsys

import "testing"

func TestAllocateFreeRoundTrip(t *testing.T) {
	a := New(4096)
	before := a.Diagnostics().Allocated

	b := a.Allocate(256)
	if b == nil {
		t.Fatal("expected successful allocation")
	}
	if len(b.Bytes) != 256 {
		t.Fatalf("got %d bytes, want 256", len(b.Bytes))
	}
	a.Free(b)

	after := a.Diagnostics().Allocated
	if after != before {
		t.Fatalf("allocated = %d after round trip, want %d", after, before)
	}
}

func TestDoubleFreeTolerated(t *testing.T) {
	a := New(1024)
	b := a.Allocate(32)
	a.Free(b)
	a.Free(b) // must not panic or corrupt accounting
	if a.Diagnostics().Allocated != 0 {
		t.Fatalf("allocated = %d, want 0", a.Diagnostics().Allocated)
	}
}

func TestNilFreeIsNoop(t *testing.T) {
	a := New(64)
	a.Free(nil) // must not panic
}

func TestOOMIncrementsMonotonically(t *testing.T) {
	a := New(128)
	var oom1 uint64
	for i := 0; i < 20; i++ {
		if a.Allocate(64) == nil {
			oom1 = a.Diagnostics().OOMCount
			break
		}
	}
	if oom1 == 0 {
		t.Fatal("expected at least one OOM given a 128-byte pool and repeated 64-byte requests")
	}
	// further allocation attempts can only increase oom_count, never decrease.
	a.Allocate(64)
	if a.Diagnostics().OOMCount < oom1 {
		t.Fatal("oom_count decreased")
	}
}

func TestHealthyInvariant(t *testing.T) {
	a := New(4096)
	blocks := make([]*Block, 0, 10)
	for i := 0; i < 10; i++ {
		blocks = append(blocks, a.Allocate(64))
	}
	if !a.Healthy() {
		t.Fatal("allocator reports unhealthy with room to spare")
	}
	for _, b := range blocks {
		a.Free(b)
	}
	d := a.Diagnostics()
	if d.Allocated != 0 {
		t.Fatalf("allocated = %d, want 0 after freeing everything", d.Allocated)
	}
	if d.PeakAllocated < d.Allocated {
		t.Fatal("peak_allocated regressed below allocated")
	}
}

func TestSharedRefcountReleasesOnce(t *testing.T) {
	a := New(256)
	b := a.Allocate(16)
	released := 0
	sh := NewShared(b, func(blk *Block) {
		released++
		a.Free(blk)
	})
	clone := sh.Clone()
	sh.Release()
	if released != 0 {
		t.Fatalf("deleter ran after one of two releases: %d", released)
	}
	clone.Release()
	if released != 1 {
		t.Fatalf("deleter ran %d times, want 1", released)
	}
	if a.Diagnostics().Allocated != 0 {
		t.Fatal("shared payload not returned to allocator")
	}
}

func TestUniqueReleaseTolerantOfNil(t *testing.T) {
	var u *Unique[Block]
	u.Release() // must not panic

	u2 := NewUnique[Block](nil, func(*Block) { t.Fatal("deleter must not run for nil value") })
	u2.Release()
}
