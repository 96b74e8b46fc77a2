package memsys

import "sync/atomic"

// Deleter runs when a Shared/Unique handle's last reference is released. For
// Transfer-shaped values it is expected to free the embedded payload Block
// through the same Allocator that produced it (spec §4.A: "this
// payload-owning deleter is the mechanism that prevents the receive path
// from leaking").
type Deleter[T any] func(*T)

// Shared is a refcounted ownership handle, used for RX-path transfers that
// may be delivered to more than one subscriber (spec §3: "shared_ownership
// semantics").
type Shared[T any] struct {
	val     *T
	refs    *atomic.Int32
	deleter Deleter[T]
}

// NewShared wraps val in a Shared handle with an initial refcount of 1.
func NewShared[T any](val *T, deleter Deleter[T]) *Shared[T] {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &Shared[T]{val: val, refs: refs, deleter: deleter}
}

// Clone increments the refcount and returns a new handle sharing val.
func (s *Shared[T]) Clone() *Shared[T] {
	s.refs.Add(1)
	return &Shared[T]{val: s.val, refs: s.refs, deleter: s.deleter}
}

// Get returns the owned value without transferring ownership.
func (s *Shared[T]) Get() *T { return s.val }

// Release drops this handle's reference. When the refcount reaches zero the
// deleter runs exactly once.
func (s *Shared[T]) Release() {
	if s.val == nil {
		return
	}
	if s.refs.Add(-1) == 0 {
		if s.deleter != nil {
			s.deleter(s.val)
		}
		s.val = nil
	}
}

// Unique is an exclusive-ownership handle (spec §4.A: "exclusive-ownership
// handle"), used for the short-lived, caller-owned transfers on the TX path.
type Unique[T any] struct {
	val     *T
	deleter Deleter[T]
}

// NewUnique wraps val in a Unique handle.
func NewUnique[T any](val *T, deleter Deleter[T]) *Unique[T] {
	return &Unique[T]{val: val, deleter: deleter}
}

// Get returns the owned value.
func (u *Unique[T]) Get() *T { return u.val }

// Release runs the deleter and tolerates being called on an
// already-released or partially-constructed handle (spec §4.A: "the
// destroy path must tolerate null and partial constructions").
func (u *Unique[T]) Release() {
	if u == nil || u.val == nil {
		return
	}
	if u.deleter != nil {
		u.deleter(u.val)
	}
	u.val = nil
}
