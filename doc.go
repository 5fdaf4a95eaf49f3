// Copyright 2026 The Deferred Heap Authors. All rights reserved.

// Package deferred implements a deferred (tracing, mark-and-sweep)
// garbage-collected heap for embedding inside a larger, otherwise
// manually-managed host program: objects live in a Heap, are referred
// to through Handle and RootHandle, and are reclaimed by
// Heap.ReleaseUnreachable rather than by reference counting.
//
// A Heap is single-threaded and holds no internal lock; a caller that
// needs to share one across goroutines must synchronize externally.
// Handles from different Heap values must never be mixed.
package deferred
