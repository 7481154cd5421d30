package cache

import (
	"sync"
	"sync/atomic"

	"cacheproxy/internal/msgbuffer"
)

// Entry is a keyed slot: a request fingerprint bound to exactly one
// Message buffer. It is referenced by its producer and zero or more
// concurrent consumers. Once Deleted reports true the entry is
// logically absent even if a caller still holds a pointer to it — the
// caller must stop treating it as live and fall back to a fresh Get.
type Entry struct {
	fingerprint []byte

	Buffer *msgbuffer.Buffer

	mu      sync.Mutex
	ready   *sync.Cond
	deleted atomic.Bool
}

// NewEntry copies fingerprint (never borrows it — the caller's slice may
// be a reused read buffer) and wraps a freshly created Message buffer.
func NewEntry(fingerprint []byte) *Entry {
	e := &Entry{
		fingerprint: append([]byte(nil), fingerprint...),
		Buffer:      msgbuffer.New(),
	}
	e.ready = sync.NewCond(&e.mu)
	return e
}

// Fingerprint returns the entry's key bytes. The returned slice must not
// be modified.
func (e *Entry) Fingerprint() []byte { return e.fingerprint }

// Deleted reports whether the entry has been removed from the cache. A
// consumer that observes true must treat the entry as absent rather than
// continuing to read its Buffer.
func (e *Entry) Deleted() bool { return e.deleted.Load() }

// markDeleted sets Deleted and wakes anything parked in WaitDeleted. It
// is called by the cache's delete/evict path only, while that path
// holds the node's write lock during the unlink from its bucket.
func (e *Entry) markDeleted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted.Store(true)
	e.ready.Broadcast()
}

// WaitDeleted blocks until the entry is marked deleted. It exists for
// late subscribers that reached this Entry through a reference taken
// before a concurrent evict/delete and need to detect the race without
// busy-polling Deleted.
func (e *Entry) WaitDeleted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.deleted.Load() {
		e.ready.Wait()
	}
}
