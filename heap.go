// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package deferred

import (
	"unsafe"

	"deferredheap/internal/bitm"
	"deferredheap/internal/chunk"
)

// Stats summarizes a Heap's current contents.
type Stats struct {
	Chunks      uint64
	RootChunks  uint64
	Objects     uint64
	RootObjects uint64
	Bytes       uint64
}

// Heap owns a set of chunks and reclaims the ones that become
// unreachable. A Heap has no internal lock: it is meant to be owned
// and driven by a single goroutine, exactly like the objects it
// manages. Handles obtained from one Heap must never be used with
// another.
type Heap struct {
	slots      bitm.Bitm[uint32]
	chunks     []*chunk.Header
	byObjStart map[unsafe.Pointer]*chunk.Header
	alloc      Allocator
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	h := &Heap{byObjStart: make(map[unsafe.Pointer]*chunk.Header)}
	h.alloc.heap = h
	return h
}

// Allocator returns the Allocator frontend bound to h.
func (h *Heap) Allocator() *Allocator { return &h.alloc }

// receiveChunk takes ownership of a freshly built chunk, assigning it
// a slot in the chunk table. This is the Go analogue of the chunk
// table a scene.Graph keeps for its nodes, repurposed from indexing
// live scene nodes to indexing live chunk headers.
func (h *Heap) receiveChunk(hd *chunk.Header) {
	idx, ok := h.slots.Search()
	if !ok {
		idx = h.slots.Grow(1)
		grown := make([]*chunk.Header, h.slots.Len())
		copy(grown, h.chunks)
		h.chunks = grown
	}
	h.slots.Set(idx)
	h.chunks[idx] = hd
	h.byObjStart[hd.ObjectStart()] = hd
}

// headerOf looks up the header owning the chunk whose first object
// starts at objStart. It is the realization of the original system's
// from_object_start operation: O(1), and independent of the object's
// static type.
func (h *Heap) headerOf(objStart unsafe.Pointer) (*chunk.Header, bool) {
	hd, ok := h.byObjStart[objStart]
	return hd, ok
}

// Stats reports the heap's current chunk, object and byte counts.
func (h *Heap) Stats() Stats {
	var s Stats
	for _, c := range h.chunks {
		if c == nil {
			continue
		}
		s.Chunks++
		s.Objects += c.ObjectsNumber()
		s.Bytes += c.BytesAllocated()
		if c.IsRoot() {
			s.RootChunks++
			s.RootObjects += c.ObjectsNumber()
		}
	}
	return s
}

// ReleaseUnreachable runs one mark-and-sweep collection cycle: every
// chunk's visited flag is cleared, every rooted chunk is marked and
// traced, and every chunk left unvisited is destroyed (if it was not
// already) and deallocated. It returns the number of chunks, objects
// and bytes freed.
func (h *Heap) ReleaseUnreachable() (chunksFreed, objectsFreed, bytesFreed uint64) {
	for _, c := range h.chunks {
		if c != nil {
			c.ClearVisited()
		}
	}

	var worklist []*chunk.Header
	visitor := chunk.NewVisitor(func(child *chunk.Header) {
		if child != nil && !child.IsVisited() {
			child.MarkVisited()
			worklist = append(worklist, child)
		}
	})
	for _, c := range h.chunks {
		if c != nil && c.IsRoot() && !c.IsVisited() {
			c.MarkVisited()
			worklist = append(worklist, c)
		}
	}
	for len(worklist) > 0 {
		c := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		c.Descriptor().MarkRecursive(c, visitor)
	}

	for i, c := range h.chunks {
		if c == nil || c.IsVisited() {
			continue
		}
		chunksFreed++
		objectsFreed += c.ObjectsNumber()
		bytesFreed += c.BytesAllocated()
		if !c.IsDestroyed() {
			c.Descriptor().Destroy(c)
		}
		c.Descriptor().Deallocate(c)
		delete(h.byObjStart, c.ObjectStart())
		h.chunks[i] = nil
		h.slots.Unset(i)
	}
	return
}
