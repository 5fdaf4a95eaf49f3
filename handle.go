// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package deferred

import (
	"unsafe"

	"deferredheap/internal/chunk"
)

// Handle is a non-owning, value-semantic reference to an object owned
// by a Heap. It is safe to copy and to compare; the zero Handle is
// empty and must not be dereferenced.
type Handle[T any] struct {
	ptr    *T
	header *chunk.Header
}

func newHandle[T any](ptr *T, header *chunk.Header) Handle[T] {
	return Handle[T]{ptr: ptr, header: header}
}

// Get returns the referenced object. It panics if the handle is
// empty (dereferencing an empty handle is a contract violation, not
// an expected runtime condition).
func (h Handle[T]) Get() *T {
	if h.ptr == nil {
		panic("deferred: dereference of an empty Handle")
	}
	return h.ptr
}

// IsNil reports whether the handle refers to no object.
func (h Handle[T]) IsNil() bool { return h.ptr == nil }

// Reset clears the handle to empty.
func (h *Handle[T]) Reset() {
	h.ptr = nil
	h.header = nil
}

// Ref returns a type-erased reference to h's chunk, for use inside a
// registered Field or VisitHook closure.
func (h Handle[T]) Ref() chunk.HandleRef { return chunk.NewHandleRef(h.header) }

// Less orders handles by the address of their chunk header. The
// ordering is total and stable for the lifetime of the chunk, and is
// meant for use as a map or sort key over handles, not as a measure
// of allocation time or any other property.
func (h Handle[T]) Less(other Handle[T]) bool {
	return uintptr(unsafe.Pointer(h.header)) < uintptr(unsafe.Pointer(other.header))
}

// HandleEqual reports whether a and b refer to the same chunk, even
// when T and U differ (e.g., a base/derived pair sharing one chunk).
func HandleEqual[T, U any](a Handle[T], b Handle[U]) bool {
	return a.header == b.header
}

// ConvertHandle reinterprets a Handle[U] as a Handle[T]. It is sound
// only when *U is known to be assignable to *T, most commonly when U
// embeds T as its first field, so both views start at the same
// address. ConvertHandle performs no type check; it is the caller's
// responsibility to ensure the conversion is sound, exactly as with a
// base-class upcast.
func ConvertHandle[T, U any](h Handle[U]) Handle[T] {
	return Handle[T]{ptr: (*T)(unsafe.Pointer(h.ptr)), header: h.header}
}

// RootHandle pins its target alive across collections by holding an
// extra reference on the chunk's root counter for as long as it
// refers to a non-empty Handle.
type RootHandle[T any] struct {
	Handle[T]
}

// NewRootHandle pins h's chunk and returns a RootHandle referring to
// it. It returns ErrRootOverflow if the chunk already has the maximum
// number of root references.
func NewRootHandle[T any](h Handle[T]) (RootHandle[T], error) {
	if !h.IsNil() {
		if err := h.header.IncrementRootReference(); err != nil {
			return RootHandle[T]{}, err
		}
	}
	return RootHandle[T]{Handle: h}, nil
}

// Set pins h's chunk, then releases r's current pin, if any, and
// stores h. Pinning the new target happens before releasing the old
// one, so on failure to pin h (ErrRootOverflow) r is left unchanged,
// including when h and r already refer to the same chunk.
func (r *RootHandle[T]) Set(h Handle[T]) error {
	if !h.IsNil() {
		if err := h.header.IncrementRootReference(); err != nil {
			return err
		}
	}
	if !r.IsNil() {
		r.header.DecrementRootReference()
	}
	r.Handle = h
	return nil
}

// Reset releases r's pin, if any, and clears it to empty.
func (r *RootHandle[T]) Reset() {
	if !r.IsNil() {
		r.header.DecrementRootReference()
	}
	r.Handle.Reset()
}
