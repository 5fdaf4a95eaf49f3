// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package deferred

import (
	"deferredheap/internal/chunk"
	"deferredheap/internal/typeinfo"
)

// Visitor reports the chunks directly reachable from an object during
// the mark phase. A registered Field or VisitHook closure calls
// Visit once per reachable Handle it finds.
type Visitor = chunk.Visitor

// Finalizer is implemented by registered types that need to run code
// when their chunk is destroyed, standing in for a user destructor.
// Types without it are destroyed by flag alone.
type Finalizer = typeinfo.Finalizer

// ClassBuilder accumulates T's registered base classes, traceable
// members, and optional explicit visit hook. Obtain one with
// RegisterClass.
type ClassBuilder[T any] struct {
	b *typeinfo.Builder[T]
}

// RegisterClass begins (or resumes) registration of T.
func RegisterClass[T any]() *ClassBuilder[T] {
	return &ClassBuilder[T]{b: typeinfo.RegisterClass[T]()}
}

// RegisterBase declares B as T's base class: B must be embedded as
// T's first field, the idiomatic Go stand-in for single inheritance,
// so that a *T and a *B obtained by reinterpreting the same address
// agree. B's registered bases and fields are traversed before T's own.
func RegisterBase[T, B any](c *ClassBuilder[T]) *ClassBuilder[T] {
	typeinfo.RegisterBase[T, B](c.b)
	return c
}

// Field registers one traceable member of T. f is expected to call
// v.Visit(ref) for every chunk reachable through that member: once
// for a single Handle/RootHandle field (via its Ref method), once
// per element for a slice or array of them.
func (c *ClassBuilder[T]) Field(f func(obj *T, v *Visitor)) *ClassBuilder[T] {
	c.b.Field(f)
	return c
}

// VisitHook registers an explicit traversal function, run after every
// base and field.
func (c *ClassBuilder[T]) VisitHook(f func(obj *T, v *Visitor)) *ClassBuilder[T] {
	c.b.VisitHook(f)
	return c
}
