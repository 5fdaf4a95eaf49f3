// Copyright 2026 The Deferred Heap Authors. All rights reserved.

// Package chunk defines the low-level control block that the deferred
// heap attaches to every allocation it owns: the flags, root reference
// count and type descriptor needed to trace and sweep a chunk without
// knowing its object type.
//
// This package is intentionally generics-free and knows nothing about
// Handle[T] or class registration: it is the layer internal/typeinfo
// and the root deferred package both build on, kept separate so the
// two can depend on each other's concerns without an import cycle.
package chunk

import (
	"errors"
	"math"
	"unsafe"
)

// Flags records the per-chunk bits a tracing collector needs.
type Flags uint8

const (
	// FlagArray marks a chunk holding a contiguous array of objects
	// rather than a single object.
	FlagArray Flags = 1 << iota
	// FlagDestroyed marks a chunk whose destructor already ran.
	// Set by Descriptor.Destroy, whether reached through DestroyDeferred
	// or the sweep; never cleared.
	FlagDestroyed
	// FlagVisited marks a chunk reached during the current mark phase.
	// Cleared at the start of every collection cycle.
	FlagVisited
)

// ErrRootOverflow is returned when a chunk's root reference count
// would exceed its representable range.
var ErrRootOverflow = errors.New("chunk: root reference count overflow")

// RawAllocator allocates and frees untyped byte regions on behalf of
// a chunk. A copy of the RawAllocator used to build a chunk is kept
// alongside its Header so the chunk can be freed with the allocator
// that produced it, mirroring the allocator-rebinding contract of the
// host system this library is modeled on.
type RawAllocator interface {
	// Alloc returns n zeroed bytes, or an error if the request cannot
	// be satisfied.
	Alloc(n int) (unsafe.Pointer, error)
	// Free releases a region previously returned by Alloc.
	Free(p unsafe.Pointer)
	// Clone returns an independent copy of the allocator's state, to
	// be stored in a chunk's Header.
	Clone() RawAllocator
}

// Descriptor dispatches type-specific chunk operations without the
// Header needing to know the object's static type. One Descriptor is
// shared by every chunk of the same (object type, allocator type)
// pair.
type Descriptor interface {
	// ObjectSize is the size in bytes of one object.
	ObjectSize() uintptr
	// AllocatorSize is the size in bytes of the allocator copy stored
	// in a chunk built with this descriptor.
	AllocatorSize() uintptr
	// MarkRecursive enqueues every chunk directly reachable from the
	// objects in h. It must be a no-op if h is already destroyed.
	MarkRecursive(h *Header, v *Visitor)
	// Destroy runs finalization for every object in h and sets
	// FlagDestroyed. It must be a no-op if h is already destroyed.
	Destroy(h *Header)
	// Deallocate releases the raw memory backing h using the
	// allocator copy stored in h. The chunk must already be
	// destroyed.
	Deallocate(h *Header)
}

// Header is the control block attached to every chunk a Heap owns.
type Header struct {
	desc     Descriptor
	alloc    RawAllocator
	raw      unsafe.Pointer
	rawLen   int
	objects  uint64
	flags    Flags
	rootRefs uint16
}

// NewHeader builds a Header for a freshly allocated chunk. raw is the
// backing region (including the leading object count for arrays);
// rawLen is its length in bytes; objects is the element count (1 for
// scalar chunks).
func NewHeader(desc Descriptor, alloc RawAllocator, raw unsafe.Pointer, rawLen int, objects uint64, isArray bool) *Header {
	h := &Header{
		desc:    desc,
		alloc:   alloc,
		raw:     raw,
		rawLen:  rawLen,
		objects: objects,
	}
	if isArray {
		h.flags |= FlagArray
	}
	return h
}

// Descriptor returns the chunk's type descriptor.
func (h *Header) Descriptor() Descriptor { return h.desc }

// Allocator returns the allocator copy stored in the chunk.
func (h *Header) Allocator() RawAllocator { return h.alloc }

// IsArray reports whether the chunk was built as an array chunk (with
// a leading element count), even if that array has a single element.
func (h *Header) IsArray() bool { return h.flags&FlagArray != 0 }

// IsDestroyed reports whether the chunk's destructor already ran.
func (h *Header) IsDestroyed() bool { return h.flags&FlagDestroyed != 0 }

// IsVisited reports whether the chunk was reached during the current
// mark phase. This is a pure read: it never mutates h, unlike a
// combined test-and-set primitive would.
func (h *Header) IsVisited() bool { return h.flags&FlagVisited != 0 }

// IsRoot reports whether the chunk is pinned by at least one root
// handle.
func (h *Header) IsRoot() bool { return h.rootRefs > 0 }

// MarkVisited sets the visited flag.
func (h *Header) MarkVisited() { h.flags |= FlagVisited }

// ClearVisited clears the visited flag. Called once per chunk at the
// start of a collection cycle.
func (h *Header) ClearVisited() { h.flags &^= FlagVisited }

// MarkDestroyed sets the destroyed flag. Monotone: once set, it is
// never cleared.
func (h *Header) MarkDestroyed() { h.flags |= FlagDestroyed }

// ObjectsNumber returns the number of objects the chunk holds: 1 for
// a scalar chunk, the element count for an array chunk.
func (h *Header) ObjectsNumber() uint64 { return h.objects }

// ObjectStart returns a pointer to the first object in the chunk.
func (h *Header) ObjectStart() unsafe.Pointer {
	if h.IsArray() {
		return unsafe.Add(h.raw, 8)
	}
	return h.raw
}

// RawStart returns a pointer to the raw memory region backing the
// chunk, including the leading element count for array chunks.
func (h *Header) RawStart() unsafe.Pointer { return h.raw }

// BytesAllocated returns the total number of bytes this chunk
// accounts for: the raw payload region, the Header itself, and the
// allocator copy.
func (h *Header) BytesAllocated() uint64 {
	return uint64(h.rawLen) + uint64(unsafe.Sizeof(*h)) + uint64(h.desc.AllocatorSize())
}

// IncrementRootReference pins the chunk one more time. It returns
// ErrRootOverflow instead of wrapping once the counter saturates, so
// a caller with a pathological number of live root handles to the
// same chunk fails loudly instead of silently losing a pin.
func (h *Header) IncrementRootReference() error {
	if h.rootRefs == math.MaxUint16 {
		return ErrRootOverflow
	}
	h.rootRefs++
	return nil
}

// DecrementRootReference releases one pin. Decrementing a chunk with
// no outstanding root references is a contract violation (a double
// release) and panics rather than underflowing silently.
func (h *Header) DecrementRootReference() {
	if h.rootRefs == 0 {
		panic("chunk: decrement of root reference count with no outstanding references")
	}
	h.rootRefs--
}

// RootReferences returns the current root pin count, for diagnostics
// and testing.
func (h *Header) RootReferences() uint16 { return h.rootRefs }

// Visitor accumulates the chunks directly reachable from an object
// being traced. A Descriptor's MarkRecursive implementation calls
// Visit once per reachable child; the Heap supplies the Visitor and
// decides what "enqueue" means (e.g., pushing onto a worklist).
type Visitor struct {
	enqueue func(*Header)
}

// NewVisitor wraps an enqueue function as a Visitor.
func NewVisitor(enqueue func(*Header)) *Visitor { return &Visitor{enqueue: enqueue} }

// Visit records that r's chunk is reachable. A zero-value HandleRef
// (one wrapping a nil handle) is ignored.
func (v *Visitor) Visit(r HandleRef) {
	if r.header != nil {
		v.enqueue(r.header)
	}
}

// HandleRef is a type-erased reference to a chunk, used by generated
// field-traversal closures to report a traceable member to a Visitor
// without internal/typeinfo needing to know about Handle[T].
type HandleRef struct {
	header *Header
}

// NewHandleRef wraps a chunk header as a HandleRef. header may be nil,
// representing an empty handle.
func NewHandleRef(header *Header) HandleRef { return HandleRef{header: header} }

// Header returns the referenced chunk's header, or nil if the
// HandleRef is empty.
func (r HandleRef) Header() *Header { return r.header }
