// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package chunk

import (
	"errors"
	"testing"
	"unsafe"
)

type fakeAllocator struct{ freed int }

func (a *fakeAllocator) Alloc(n int) (unsafe.Pointer, error) {
	b := make([]byte, n)
	return unsafe.Pointer(&b[0]), nil
}
func (a *fakeAllocator) Free(unsafe.Pointer) { a.freed++ }
func (a *fakeAllocator) Clone() RawAllocator { c := *a; return &c }

type fakeDescriptor struct {
	objSize, allocSize uintptr
}

func (d *fakeDescriptor) ObjectSize() uintptr    { return d.objSize }
func (d *fakeDescriptor) AllocatorSize() uintptr { return d.allocSize }
func (d *fakeDescriptor) MarkRecursive(*Header, *Visitor) {}
func (d *fakeDescriptor) Destroy(h *Header)              { h.MarkDestroyed() }
func (d *fakeDescriptor) Deallocate(h *Header)           { h.Allocator().Free(h.RawStart()) }

func TestHeaderScalar(t *testing.T) {
	desc := &fakeDescriptor{objSize: 8, allocSize: 0}
	alloc := &fakeAllocator{}
	raw, _ := alloc.Alloc(8)
	h := NewHeader(desc, alloc, raw, 8, 1, false)

	if h.IsArray() {
		t.Fatal("IsArray:\nhave true\nwant false")
	}
	if n := h.ObjectsNumber(); n != 1 {
		t.Fatalf("ObjectsNumber:\nhave %d\nwant 1", n)
	}
	if h.ObjectStart() != raw {
		t.Fatal("ObjectStart: scalar chunk must not skip a size field")
	}
	if h.IsDestroyed() || h.IsVisited() || h.IsRoot() {
		t.Fatal("fresh header must have every flag clear and no root refs")
	}
}

func TestHeaderArrayObjectStartSkipsSizeField(t *testing.T) {
	desc := &fakeDescriptor{objSize: 8}
	alloc := &fakeAllocator{}
	raw, _ := alloc.Alloc(8 + 3*8)
	h := NewHeader(desc, alloc, raw, 8+3*8, 3, true)

	if !h.IsArray() {
		t.Fatal("IsArray:\nhave false\nwant true")
	}
	if n := h.ObjectsNumber(); n != 3 {
		t.Fatalf("ObjectsNumber:\nhave %d\nwant 3", n)
	}
	want := unsafe.Add(raw, 8)
	if h.ObjectStart() != want {
		t.Fatalf("ObjectStart:\nhave %p\nwant %p (must skip the leading size field)", h.ObjectStart(), want)
	}
	if h.RawStart() != raw {
		t.Fatal("RawStart must return the unadjusted raw pointer")
	}
}

func TestVisitedIsPureRead(t *testing.T) {
	h := NewHeader(&fakeDescriptor{}, &fakeAllocator{}, nil, 0, 1, false)
	for i := 0; i < 3; i++ {
		if h.IsVisited() {
			t.Fatal("IsVisited must not become true from repeated reads alone")
		}
	}
	h.MarkVisited()
	if !h.IsVisited() {
		t.Fatal("MarkVisited: IsVisited\nhave false\nwant true")
	}
	h.ClearVisited()
	if h.IsVisited() {
		t.Fatal("ClearVisited: IsVisited\nhave true\nwant false")
	}
}

func TestDestroyedIsMonotone(t *testing.T) {
	h := NewHeader(&fakeDescriptor{}, &fakeAllocator{}, nil, 0, 1, false)
	h.MarkDestroyed()
	h.MarkDestroyed()
	if !h.IsDestroyed() {
		t.Fatal("IsDestroyed:\nhave false\nwant true")
	}
}

func TestRootReferenceCounting(t *testing.T) {
	h := NewHeader(&fakeDescriptor{}, &fakeAllocator{}, nil, 0, 1, false)
	if h.IsRoot() {
		t.Fatal("fresh header must not be a root")
	}
	if err := h.IncrementRootReference(); err != nil {
		t.Fatalf("IncrementRootReference: unexpected error %v", err)
	}
	if !h.IsRoot() {
		t.Fatal("IsRoot:\nhave false\nwant true after increment")
	}
	h.DecrementRootReference()
	if h.IsRoot() {
		t.Fatal("IsRoot:\nhave true\nwant false after matching decrement")
	}
}

func TestRootReferenceOverflow(t *testing.T) {
	h := NewHeader(&fakeDescriptor{}, &fakeAllocator{}, nil, 0, 1, false)
	for i := 0; i < 0xffff; i++ {
		if err := h.IncrementRootReference(); err != nil {
			t.Fatalf("IncrementRootReference: unexpected error at i=%d: %v", i, err)
		}
	}
	if err := h.IncrementRootReference(); !errors.Is(err, ErrRootOverflow) {
		t.Fatalf("IncrementRootReference at saturation:\nhave %v\nwant %v", err, ErrRootOverflow)
	}
}

func TestRootReferenceUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("DecrementRootReference on a zero count must panic")
		}
	}()
	h := NewHeader(&fakeDescriptor{}, &fakeAllocator{}, nil, 0, 1, false)
	h.DecrementRootReference()
}

func TestVisitorEnqueuesReferencedHeaders(t *testing.T) {
	var got []*Header
	v := NewVisitor(func(h *Header) { got = append(got, h) })

	h1 := NewHeader(&fakeDescriptor{}, &fakeAllocator{}, nil, 0, 1, false)
	v.Visit(NewHandleRef(h1))
	v.Visit(NewHandleRef(nil))

	if len(got) != 1 || got[0] != h1 {
		t.Fatalf("Visit:\nhave %v\nwant [%p]", got, h1)
	}
}

func TestBytesAllocatedAccountsHeaderAndAllocator(t *testing.T) {
	desc := &fakeDescriptor{objSize: 8, allocSize: 16}
	alloc := &fakeAllocator{}
	raw, _ := alloc.Alloc(8)
	h := NewHeader(desc, alloc, raw, 8, 1, false)

	want := uint64(8) + uint64(unsafe.Sizeof(Header{})) + 16
	if got := h.BytesAllocated(); got != want {
		t.Fatalf("BytesAllocated:\nhave %d\nwant %d", got, want)
	}
}
