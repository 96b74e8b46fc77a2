// Package memsys implements the bounded-memory allocator described in
// spec.md §4.A: a fixed, aligned byte arena handed out in O(1) via a
// segregated free-list discipline, the single dynamic-memory source for the
// rest of the tree. It is grounded on the teacher's memsys/transport
// packages (aistore's MMSA/Slab/SGL terminology referenced throughout
// transport/api.go: memsys.DefaultBufSize, memsys.MaxPageSlabSize,
// memsys.PageSize) and on _examples/original_source/Inc/Allocator.hpp
// (O1HeapAllocator, the O1Heap-backed C++ allocator this spec distills).
//
// Interrupt masking in the original (disable/enable of CAN_RX, CAN_TX
// around every allocate/free) is replaced here with a mutex, per spec §9's
// own guidance for hosted targets ("replace with a mutex... owned by the
// scheduler thread").
package memsys

import (
	"math/bits"
	"sync"
)

// Align is the platform's widest scalar alignment the allocator rounds
// every request up to (spec §4.A: "aligned to the platform's widest scalar").
const Align = 8

// minClassSize is the smallest size class; requests smaller than this still
// consume a full minClassSize block, matching real segregated-free-list
// allocators (and aistore's memsys.PageSize-rounded slabs).
const minClassSize = 16

// Diagnostics is the allocator's read-only health snapshot (spec §3,
// "Allocator pool").
type Diagnostics struct {
	Capacity        int
	Allocated       int
	PeakAllocated   int
	PeakRequestSize int
	OOMCount        uint64
}

type sizeClass struct {
	size int
	free []int // stack of free block offsets for this class
}

// Block is a handle to an allocated region: an O(1)-trackable offset plus
// the byte-slice view callers actually read/write. It stands in for the raw
// pointer the original C++ allocator hands back, without Go unsafe pointer
// arithmetic.
type Block struct {
	Bytes []byte

	off   int
	class int
}

// Allocator is the single dynamic-memory source: a fixed-capacity byte
// arena, segregated into power-of-two size classes above minClassSize.
// Allocate/Free are O(1): class selection is a bit-length computation, and
// each class's free list is a stack push/pop.
type Allocator struct {
	mu      sync.Mutex
	pool    []byte
	classes []sizeClass
	bump    int // next uncarved offset

	capacity        int
	allocated       int
	peakAllocated   int
	peakRequestSize int
	oomCount        uint64
}

// New constructs an Allocator over a freshly allocated arena of the given
// capacity in bytes. Capacity is fixed for the allocator's lifetime (spec
// §3: "A fixed, aligned byte array of size N").
func New(capacity int) *Allocator {
	a := &Allocator{
		pool:     make([]byte, capacity),
		capacity: capacity,
	}
	for size := minClassSize; size <= capacity; size *= 2 {
		a.classes = append(a.classes, sizeClass{size: size})
	}
	if len(a.classes) == 0 {
		a.classes = append(a.classes, sizeClass{size: capacity})
	}
	return a
}

func classIndexFor(n int) int {
	if n < minClassSize {
		n = minClassSize
	}
	// round up to the next power of two >= n, relative to minClassSize
	ratio := (n + minClassSize - 1) / minClassSize
	return bits.Len(uint(ratio - 1))
}

func alignUp(n int) int {
	return (n + Align - 1) &^ (Align - 1)
}

// Allocate returns a Block of at least n bytes, or nil if the pool is
// exhausted. Masks against concurrent allocate/free the way the original
// masks CAN-RX/TX interrupts (spec §4.A, §5).
func (a *Allocator) Allocate(n int) *Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocateLocked(n)
}

func (a *Allocator) allocateLocked(n int) *Block {
	if n <= 0 {
		return nil
	}
	aligned := alignUp(n)
	if aligned > a.peakRequestSize {
		a.peakRequestSize = aligned
	}
	ci := classIndexFor(aligned)
	if ci >= len(a.classes) {
		a.oomCount++
		return nil
	}
	cls := &a.classes[ci]

	var off int
	if k := len(cls.free); k > 0 {
		off = cls.free[k-1]
		cls.free = cls.free[:k-1]
	} else {
		if a.bump+cls.size > a.capacity {
			a.oomCount++
			return nil
		}
		off = a.bump
		a.bump += cls.size
	}
	a.allocated += cls.size
	if a.allocated > a.peakAllocated {
		a.peakAllocated = a.allocated
	}
	return &Block{
		Bytes: a.pool[off : off+n : off+cls.size],
		off:   off,
		class: ci,
	}
}

// Free returns b to the allocator. A nil Block is a no-op (spec §4.A).
func (a *Allocator) Free(b *Block) {
	if b == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeLocked(b)
}

func (a *Allocator) freeLocked(b *Block) {
	if b.class < 0 {
		return // already freed: tolerate double-free, never corrupt state
	}
	a.classes[b.class].free = append(a.classes[b.class].free, b.off)
	a.allocated -= a.classes[b.class].size
	b.class = -1
	b.Bytes = nil
}

// Diagnostics returns the allocator's current health snapshot.
func (a *Allocator) Diagnostics() Diagnostics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Diagnostics{
		Capacity:        a.capacity,
		Allocated:       a.allocated,
		PeakAllocated:   a.peakAllocated,
		PeakRequestSize: a.peakRequestSize,
		OOMCount:        a.oomCount,
	}
}

// Healthy checks the allocator's core invariant (spec §3): allocated <=
// peakAllocated <= capacity.
func (a *Allocator) Healthy() bool {
	d := a.Diagnostics()
	return d.Allocated <= d.PeakAllocated && d.PeakAllocated <= d.Capacity
}
