// Copyright 2026 The Deferred Heap Authors. All rights reserved.

package deferred

import "deferredheap/internal/chunk"

// ErrRootOverflow is returned when a chunk's root reference count
// would exceed its representable range (a pathological number of
// live RootHandle values pinning the same chunk).
var ErrRootOverflow = chunk.ErrRootOverflow
