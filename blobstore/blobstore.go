// Package blobstore is the register/blob store server (spec.md §4.F): named,
// fixed-layout binary blobs backed by a flash-like device, looked up by a
// linear scan against a compile-time {name, offset, size} map. Grounded on
// _examples/original_source (the flash-register glue) and styled on the
// teacher's backend-interface pattern (aistore's fs/mountpath.go: a small
// capability interface with a RAM-backed test double and a persistent
// production implementation).
package blobstore

import (
	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/cubesat-core/flightsw/cmn/nlog"
)

// Backend is the storage capability the server task reads and writes
// through (spec §4.F: "a backend that exposes read(offset, buf, n) → bool,
// write(offset, buf, n) → bool, capacity()").
type Backend interface {
	Read(offset int, buf []byte) bool
	Write(offset int, data []byte) bool
	Capacity() int
}

// BlobEntry is one {name, offset, size} record in the compile-time layout
// map (spec §4.F, §6: "a static map of {name, offset, size} entries").
type BlobEntry struct {
	Name   string
	Offset int
	Size   int
}

// Layout is the ordered list of blob entries; lookup is a linear scan
// (spec §4.F: "The lookup is a linear scan against a compile-time array").
type Layout []BlobEntry

// Find returns the entry named name, or ok=false.
func (l Layout) Find(name string) (BlobEntry, bool) {
	for _, e := range l {
		if e.Name == name {
			return e, true
		}
	}
	return BlobEntry{}, false
}

// Store binds a Layout to a Backend.
type Store struct {
	layout  Layout
	backend Backend
	parity  *parityCodec // nil when parity is disabled
}

// New constructs a blob store server over backend using layout.
func New(layout Layout, backend Backend) *Store {
	return &Store{layout: layout, backend: backend}
}

// WithParity enables a Reed-Solomon parity shard alongside every write,
// recomputed and re-verified on every read — an enrichment beyond the base
// spec (see DESIGN.md), default-off and opt-in via dataShards/parityShards.
func (s *Store) WithParity(dataShards, parityShards int) error {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return errors.Wrap(err, "blobstore: constructing reed-solomon codec")
	}
	s.parity = &parityCodec{enc: enc, dataShards: dataShards, parityShards: parityShards}
	return nil
}

// Read returns the raw bytes for name (spec §4.F: "Read: given a name,
// return the raw bytes").
func (s *Store) Read(name string) ([]byte, error) {
	entry, ok := s.layout.Find(name)
	if !ok {
		return nil, errors.Errorf("blobstore: no such blob %q", name)
	}
	buf := make([]byte, entry.Size)
	if !s.backend.Read(entry.Offset, buf) {
		return nil, errors.Errorf("blobstore: backend read failed for %q", name)
	}
	if s.parity != nil {
		if err := s.parity.verifyNamed(name, buf); err != nil {
			nlog.Errorf("blobstore: parity check failed for %q: %v", name, err)
		}
	}
	return buf, nil
}

// Write persists data into name's slot, padding the remainder with 0xFF
// (spec §4.F: "Write: given a name and bytes, persist (padding the
// remainder of the slot with 0xFF)").
func (s *Store) Write(name string, data []byte) error {
	entry, ok := s.layout.Find(name)
	if !ok {
		return errors.Errorf("blobstore: no such blob %q", name)
	}
	if len(data) > entry.Size {
		return errors.Errorf("blobstore: %q is %d bytes, got %d", name, entry.Size, len(data))
	}
	buf := make([]byte, entry.Size)
	copy(buf, data)
	for i := len(data); i < entry.Size; i++ {
		buf[i] = 0xFF
	}
	if !s.backend.Write(entry.Offset, buf) {
		return errors.Errorf("blobstore: backend write failed for %q", name)
	}
	if s.parity != nil {
		s.parity.record(name, buf)
	}
	return nil
}

// ByteArrayBackend is the flash-emulated RAM backend used on the host and
// in tests (spec §4.F: "external flash (or flash-emulated RAM for
// tests)").
type ByteArrayBackend struct {
	mem []byte
}

// NewByteArrayBackend allocates a RAM-backed flash emulation of size bytes.
func NewByteArrayBackend(size int) *ByteArrayBackend {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF // unprogrammed flash reads as all-ones
	}
	return &ByteArrayBackend{mem: mem}
}

func (b *ByteArrayBackend) Read(offset int, buf []byte) bool {
	if offset < 0 || offset+len(buf) > len(b.mem) {
		return false
	}
	copy(buf, b.mem[offset:offset+len(buf)])
	return true
}

func (b *ByteArrayBackend) Write(offset int, data []byte) bool {
	if offset < 0 || offset+len(data) > len(b.mem) {
		return false
	}
	copy(b.mem[offset:offset+len(data)], data)
	return true
}

func (b *ByteArrayBackend) Capacity() int { return len(b.mem) }

// BuntBackend persists blob bytes in an embedded buntdb database keyed by
// offset, giving the host simulation a durable backend without a real
// flash device (an enrichment beyond the minimal RAM backend; see
// DESIGN.md).
type BuntBackend struct {
	db       *buntdb.DB
	capacity int
}

// NewBuntBackend opens (or creates) a buntdb-backed flash emulation of
// size bytes at path (":memory:" for an ephemeral, test-only store).
func NewBuntBackend(path string, size int) (*BuntBackend, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "blobstore: opening buntdb backend")
	}
	return &BuntBackend{db: db, capacity: size}, nil
}

func (b *BuntBackend) Close() error { return b.db.Close() }

func (b *BuntBackend) Read(offset int, buf []byte) bool {
	if offset < 0 || offset+len(buf) > b.capacity {
		return false
	}
	err := b.db.View(func(tx *buntdb.Tx) error {
		for i := range buf {
			v, err := tx.Get(blobKey(offset + i))
			if err == buntdb.ErrNotFound {
				buf[i] = 0xFF
				continue
			}
			if err != nil {
				return err
			}
			buf[i] = byte(v[0])
		}
		return nil
	})
	return err == nil
}

func (b *BuntBackend) Write(offset int, data []byte) bool {
	if offset < 0 || offset+len(data) > b.capacity {
		return false
	}
	err := b.db.Update(func(tx *buntdb.Tx) error {
		for i, c := range data {
			if _, _, err := tx.Set(blobKey(offset+i), string([]byte{c}), nil); err != nil {
				return err
			}
		}
		return nil
	})
	return err == nil
}

func (b *BuntBackend) Capacity() int { return b.capacity }

func blobKey(offset int) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hexDigits[offset&0xF]
		offset >>= 4
	}
	return "blob/" + string(buf)
}
