// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package deferred

import (
	"errors"
	"unsafe"

	"deferredheap/internal/chunk"
	"deferredheap/internal/typeinfo"
)

// RawAllocator allocates and frees the untyped byte regions a Heap's
// chunks are built from. Implementations that manage memory outside
// Go's own GC (e.g., a pool backed by C memory) should free it in
// Free; DefaultAllocator, built on ordinary Go slices, needs no such
// step, since the chunk's Header keeps the backing array reachable
// for exactly as long as the Heap needs it.
type RawAllocator = chunk.RawAllocator

// DefaultAllocator satisfies RawAllocator using ordinary Go
// allocation. It is the allocator Make uses.
type DefaultAllocator struct{}

func (DefaultAllocator) Alloc(n int) (unsafe.Pointer, error) {
	if n <= 0 {
		return unsafe.Pointer(new(byte)), nil
	}
	b := make([]byte, n)
	return unsafe.Pointer(&b[0]), nil
}

func (DefaultAllocator) Free(unsafe.Pointer) {}

func (DefaultAllocator) Clone() chunk.RawAllocator { return DefaultAllocator{} }

// Allocator is the frontend bound to one Heap through which objects
// are constructed. Obtain one with Heap.Allocator.
type Allocator struct {
	heap *Heap
}

// Make constructs a single object from value using DefaultAllocator
// and returns a handle to it.
func Make[T any](a *Allocator, value T) (Handle[T], error) {
	return AllocateOne[T, DefaultAllocator](a, DefaultAllocator{}, value)
}

// AllocateOne constructs a single object from value using alloc and
// returns a handle to it.
func AllocateOne[T any, A chunk.RawAllocator](a *Allocator, alloc A, value T) (Handle[T], error) {
	objSize := int(unsafe.Sizeof(value))
	raw, err := alloc.Alloc(objSize)
	if err != nil {
		return Handle[T]{}, err
	}
	*(*T)(raw) = value

	desc := typeinfo.DescriptorFor[T, A]()
	hdr := chunk.NewHeader(desc, alloc.Clone(), raw, objSize, 1, false)
	a.heap.receiveChunk(hdr)
	return newHandle[T]((*T)(raw), hdr), nil
}

// AllocateArray constructs n objects using alloc, each built by one
// call to ctor, and returns a handle to the first element.
//
// Construction has strong exception safety: if ctor returns an error
// for element k, elements 0..k-1 are torn down (in reverse order,
// running Finalize where implemented) and the raw memory is freed
// before the error is returned. No chunk is registered with the heap
// in that case.
func AllocateArray[T any, A chunk.RawAllocator](a *Allocator, alloc A, n int, ctor func() (T, error)) (Handle[T], error) {
	if n <= 0 {
		return Handle[T]{}, errors.New("deferred: array length must be positive")
	}
	objSize := int(unsafe.Sizeof(*new(T)))
	rawLen := 8 + objSize*n
	raw, err := alloc.Alloc(rawLen)
	if err != nil {
		return Handle[T]{}, err
	}
	*(*uint64)(raw) = uint64(n)
	base := (*T)(unsafe.Add(raw, 8))
	elems := unsafe.Slice(base, n)

	built := 0
	for i := 0; i < n; i++ {
		v, cerr := ctor()
		if cerr != nil {
			for j := built - 1; j >= 0; j-- {
				if f, ok := any(&elems[j]).(Finalizer); ok {
					f.Finalize()
				}
			}
			alloc.Free(raw)
			return Handle[T]{}, cerr
		}
		elems[i] = v
		built++
	}

	desc := typeinfo.DescriptorFor[T, A]()
	hdr := chunk.NewHeader(desc, alloc.Clone(), raw, rawLen, uint64(n), true)
	a.heap.receiveChunk(hdr)
	return newHandle[T](&elems[0], hdr), nil
}

func destroyChunk(header *chunk.Header) {
	if !header.IsDestroyed() {
		header.Descriptor().Destroy(header)
	}
}

// DestroyDeferred runs h's destructor immediately, if it has not
// already run, and clears h. The chunk itself is not freed until the
// next call to Heap.ReleaseUnreachable finds it unreachable: this
// mirrors the underlying mark-and-sweep model, where destruction and
// deallocation are separate steps.
//
// DestroyDeferred is for a plain Handle[T]. Calling it on the Handle
// embedded in a RootHandle[T] (e.g. DestroyDeferred(&root.Handle))
// would clear the handle but never release the chunk's root pin,
// leaking it forever, so DestroyDeferred panics on a rooted chunk
// instead; use DestroyDeferredRoot for a RootHandle[T].
func DestroyDeferred[T any](h *Handle[T]) {
	if h.IsNil() {
		return
	}
	if h.header.IsRoot() {
		panic("deferred: DestroyDeferred called on a rooted chunk; use DestroyDeferredRoot")
	}
	destroyChunk(h.header)
	h.Reset()
}

// DestroyDeferredRoot runs r's destructor immediately, if it has not
// already run, releases r's root pin, and clears r. This is the
// RootHandle counterpart to DestroyDeferred: it goes through
// RootHandle.Reset rather than the bare Handle.Reset, so the chunk's
// root reference count is released instead of leaked.
func DestroyDeferredRoot[T any](r *RootHandle[T]) {
	if r.IsNil() {
		return
	}
	destroyChunk(r.header)
	r.Reset()
}
