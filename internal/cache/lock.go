package cache

import (
	"sync"
	"sync/atomic"
)

// rwlock names the per-node lock by the role spec.md assigns it — a
// per-entry read/write lock used for lock-coupling traversal — rather
// than as a bare sync.RWMutex at each call site.
type rwlock = sync.RWMutex

// atomicNodePtr is a CAS-able bucket head pointer. Publishing a new
// node's next field before swinging the head (see Cache.Add), combined
// with CompareAndSwap-based unlink (see Cache.unlink), is what lets Get
// walk a bucket without ever taking a bucket-wide lock.
type atomicNodePtr = atomic.Pointer[node]
