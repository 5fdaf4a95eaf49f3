// Copyright 2026 The Deferred Heap Authors. All rights reserved.

// Package typeinfo implements the registration-time traversal layer:
// for every user type registered with RegisterClass, it records an
// ordered walk of that type's base classes, traceable members, and
// optional explicit visit hook, and exposes per-(type, allocator)
// Descriptor singletons that the heap dispatches through.
//
// This package knows nothing about Handle[T] or RootHandle[T]: field
// and visit-hook closures operate on chunk.Visitor and chunk.HandleRef
// directly, which keeps this package's only dependency pointed at
// internal/chunk rather than at the root package that depends on it.
package typeinfo

import (
	"reflect"
	"sync"
	"unsafe"

	"deferredheap/internal/chunk"
)

// fieldFunc is a type-erased, registered traversal step: it inspects
// the object at obj (known by the registering Builder[T] to be a *T)
// and reports any reachable chunks to v.
type fieldFunc func(obj unsafe.Pointer, v *chunk.Visitor)

// classInfo is the type-erased record of one registered type: its
// base classes (in declaration order), its traceable members (in
// declaration order), and an optional explicit visit hook.
type classInfo struct {
	bases  []*classInfo
	fields []fieldFunc
	visit  fieldFunc
}

// traverse walks bases, then fields, then the visit hook, matching the
// traversal order required of every registered type.
func (c *classInfo) traverse(obj unsafe.Pointer, v *chunk.Visitor) {
	for _, b := range c.bases {
		b.traverse(obj, v)
	}
	for _, f := range c.fields {
		f(obj, v)
	}
	if c.visit != nil {
		c.visit(obj, v)
	}
}

var (
	classMu sync.RWMutex
	classes = map[reflect.Type]*classInfo{}
)

// typeOf returns the reflect.Type of T, working whether or not the
// zero value of T is itself nil-able.
func typeOf[T any]() reflect.Type {
	var zero T
	if t := reflect.TypeOf(zero); t != nil {
		return t
	}
	return reflect.TypeOf((*T)(nil)).Elem()
}

// classFor returns the classInfo for t, creating an empty one on
// first use. Registration and base-class lookups share this path so
// that registration order between a type and its bases never matters.
func classFor(t reflect.Type) *classInfo {
	classMu.RLock()
	c, ok := classes[t]
	classMu.RUnlock()
	if ok {
		return c
	}
	classMu.Lock()
	defer classMu.Unlock()
	if c, ok := classes[t]; ok {
		return c
	}
	c = &classInfo{}
	classes[t] = c
	return c
}

// classForRegistered returns T's classInfo without creating one, so
// that descriptor construction for an unregistered scalar type (one
// with no traceable members) does not leave a stray empty entry
// behind in the registry.
func classForRegistered[T any]() *classInfo {
	classMu.RLock()
	defer classMu.RUnlock()
	return classes[typeOf[T]()]
}

// Builder accumulates the registered bases, fields and visit hook for
// T. Obtain one with RegisterClass.
type Builder[T any] struct {
	info *classInfo
}

// RegisterClass begins (or resumes) registration of T. Calling it
// more than once for the same T returns a Builder over the same
// underlying record, so registration can be split across call sites.
func RegisterClass[T any]() *Builder[T] {
	return &Builder[T]{info: classFor(typeOf[T]())}
}

// RegisterBase declares that B is T's base class: B must be embedded
// as T's first field, so that a *T and a *B obtained by reinterpreting
// the same address agree. B's registered bases and fields are
// traversed before T's own.
func RegisterBase[T, B any](b *Builder[T]) *Builder[T] {
	b.info.bases = append(b.info.bases, classFor(typeOf[B]()))
	return b
}

// Field registers one traceable member of T. f is expected to call
// v.Visit for every chunk.HandleRef reachable through that member:
// once for a single handle field, once per element for a field that
// is a slice or array of handles.
func (b *Builder[T]) Field(f func(obj *T, v *chunk.Visitor)) *Builder[T] {
	b.info.fields = append(b.info.fields, func(obj unsafe.Pointer, v *chunk.Visitor) {
		f((*T)(obj), v)
	})
	return b
}

// VisitHook registers an explicit traversal function, run after every
// base and field. Types with no other traceable state but a custom
// notion of reachability use this alone.
func (b *Builder[T]) VisitHook(f func(obj *T, v *chunk.Visitor)) *Builder[T] {
	b.info.visit = func(obj unsafe.Pointer, v *chunk.Visitor) {
		f((*T)(obj), v)
	}
	return b
}

// Finalizer is implemented by registered types that need to run code
// when their chunk is destroyed. Types without it are destroyed by
// flag alone.
type Finalizer interface{ Finalize() }
