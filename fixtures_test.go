// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package deferred

import "sync"

// linkNode is a minimal traceable type used across the heap/scenario
// tests: a single optional outgoing reference, enough to build chains
// and cycles.
type linkNode struct {
	next Handle[linkNode]
	tag  string
}

var registerLinkNodeOnce sync.Once

func registerLinkNode() {
	registerLinkNodeOnce.Do(func() {
		RegisterClass[linkNode]().Field(func(obj *linkNode, v *Visitor) {
			v.Visit(obj.next.Ref())
		})
	})
}

// finalizeRecorder is a traceable-free type whose Finalize call is
// observable, used to test that finalization runs exactly once and
// that a failed array construction tears down the elements already
// built.
type finalizeRecorder struct {
	log *[]string
	tag string
}

func (f *finalizeRecorder) Finalize() { *f.log = append(*f.log, f.tag) }
