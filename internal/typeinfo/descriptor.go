// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package typeinfo

import (
	"reflect"
	"sync"
	"unsafe"

	"deferredheap/internal/chunk"
)

// descriptor is the concrete, generic chunk.Descriptor for one
// (object type, allocator type) pair. One instance is shared by every
// chunk built with that pair, per the process-wide singleton contract.
type descriptor[T any, A chunk.RawAllocator] struct {
	objSize   uintptr
	allocSize uintptr
	class     *classInfo // nil if T was never registered: plain data, nothing to trace
}

func (d *descriptor[T, A]) ObjectSize() uintptr    { return d.objSize }
func (d *descriptor[T, A]) AllocatorSize() uintptr { return d.allocSize }

func (d *descriptor[T, A]) elems(h *chunk.Header) []T {
	n := int(h.ObjectsNumber())
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(h.ObjectStart()), n)
}

// MarkRecursive traverses every object in h via T's registered class
// info, reporting reachable chunks to v. A destroyed chunk is skipped
// entirely: its objects may have already released resources that a
// visit hook would otherwise dereference.
func (d *descriptor[T, A]) MarkRecursive(h *chunk.Header, v *chunk.Visitor) {
	if h.IsDestroyed() || d.class == nil {
		return
	}
	elems := d.elems(h)
	for i := range elems {
		d.class.traverse(unsafe.Pointer(&elems[i]), v)
	}
}

// Destroy runs Finalize, in reverse element order, for every object
// in h that implements Finalizer, then marks h destroyed. Calling it
// twice on the same header is a no-op, matching the monotone
// is_destroyed contract.
func (d *descriptor[T, A]) Destroy(h *chunk.Header) {
	if h.IsDestroyed() {
		return
	}
	elems := d.elems(h)
	for i := len(elems) - 1; i >= 0; i-- {
		if f, ok := any(&elems[i]).(Finalizer); ok {
			f.Finalize()
		}
	}
	h.MarkDestroyed()
}

// Deallocate releases h's raw memory with the allocator copy stored
// in h. The caller must ensure h is already destroyed and no longer
// referenced by the heap's chunk table.
func (d *descriptor[T, A]) Deallocate(h *chunk.Header) {
	h.Allocator().Free(h.RawStart())
}

var (
	descMu sync.Mutex
	descs  = map[[2]reflect.Type]chunk.Descriptor{}
)

// DescriptorFor returns the process-wide Descriptor singleton for the
// (T, A) pair, creating it on first use.
func DescriptorFor[T any, A chunk.RawAllocator]() chunk.Descriptor {
	var zeroA A
	key := [2]reflect.Type{typeOf[T](), typeOf[A]()}

	descMu.Lock()
	defer descMu.Unlock()
	if d, ok := descs[key]; ok {
		return d
	}
	d := &descriptor[T, A]{
		objSize:   unsafe.Sizeof(*new(T)),
		allocSize: unsafe.Sizeof(zeroA),
		class:     classForRegistered[T](),
	}
	descs[key] = d
	return d
}
