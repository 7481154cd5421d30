// Package cache implements the fixed-bucket, TTL-evicting response cache:
// a hash table of singly-linked bucket chains, each node guarded by its
// own read/write lock, walked with lock-coupling so that neither a
// concurrent prepend (Add) nor a concurrent unlink (Delete/evict) can
// hand a reader a half-updated chain.
package cache

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrNotFound is returned by Delete when the fingerprint is absent.
var ErrNotFound = errors.New("cache: not found")

// ErrInvalidArgument is returned when a required argument is nil or
// otherwise malformed — the InvalidArgument error kind from §7.
var ErrInvalidArgument = errors.New("cache: invalid argument")

// node is one link in a bucket chain. Its rwlock is the unit of
// lock-coupling: a walker holds the current node's read lock until it
// has acquired the next node's read lock, so an unlink can never be
// observed half-done.
type node struct {
	entry      *Entry
	lastAccess atomic.Int64 // UnixNano, refreshed under a read lock per spec.md §5
	mu         rwlock
	next       *node
}

// Cache is a fixed-capacity hash table of entries keyed by fingerprint,
// with a background evictor removing entries idle past ttl.
type Cache struct {
	capacity int
	ttl      time.Duration
	buckets  []atomicNodePtr

	evictorDone   chan struct{}
	evictorCancel context.CancelFunc
	onEvict       func(fingerprint []byte)
}

// Option configures optional Cache behavior.
type Option func(*Cache)

// WithEvictionHook registers a callback invoked every time an entry is
// removed, whether by the evictor's sweep or by an explicit Delete. It
// runs after the node's locks are released. Used by internal/admin to
// drive the eviction counter.
func WithEvictionHook(fn func(fingerprint []byte)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// New creates a Cache with the given bucket capacity and entry TTL, and
// starts its background evictor goroutine.
func New(capacity int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, errors.New("cache: capacity must be positive")
	}
	if ttl <= 0 {
		return nil, errors.New("cache: ttl must be positive")
	}
	c := &Cache{
		capacity: capacity,
		ttl:      ttl,
		buckets:  make([]atomicNodePtr, capacity),
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.evictorCancel = cancel
	c.evictorDone = make(chan struct{})
	go c.evictorLoop(ctx)

	return c, nil
}

// Get hashes fp to a bucket and walks its chain with lock-coupling. On a
// match it refreshes last-access to now and returns the entry; on
// exhaustion it returns (nil, false). It never fails.
func (c *Cache) Get(fp []byte) (*Entry, bool) {
	idx := hashIndex(fp, c.capacity)
	curr := c.buckets[idx].Load()
	if curr == nil {
		return nil, false
	}
	curr.mu.RLock()
	for {
		if bytes.Equal(curr.entry.Fingerprint(), fp) {
			curr.lastAccess.Store(time.Now().UnixNano())
			curr.mu.RUnlock()
			return curr.entry, true
		}
		next := curr.next
		if next == nil {
			curr.mu.RUnlock()
			return nil, false
		}
		next.mu.RLock()
		curr.mu.RUnlock()
		curr = next
	}
}

// Add prepends a new node wrapping entry onto its bucket. The new
// node's next pointer is set before the bucket head is swung, so a
// concurrent walker sees either the old chain or the new head with the
// rest of the old chain behind it — never a partially linked node.
//
// Duplicate fingerprints are not rejected here — per spec.md §4.3 that
// is the caller's responsibility. A caller that races another producer
// for the same fingerprint must re-Get after Add and, if it gets back a
// different *Entry than the one it just added, treat itself as a
// consumer of the winner instead (spec.md §4.5's miss-then-fallback
// path). The loser's own entry is simply never looked up again and ages
// out through the ordinary TTL sweep.
func (c *Cache) Add(entry *Entry) error {
	if entry == nil {
		return ErrInvalidArgument
	}
	idx := hashIndex(entry.Fingerprint(), c.capacity)
	n := &node{entry: entry}
	n.lastAccess.Store(time.Now().UnixNano())

	bucket := &c.buckets[idx]
	for {
		head := bucket.Load()
		n.next = head // published before the CAS swings the head
		if bucket.CompareAndSwap(head, n) {
			return nil
		}
	}
}

// Delete removes the entry matching fp and marks it deleted, so a
// goroutine already holding a stale *Entry can observe Deleted() or
// WaitDeleted() and abort (see unlink for when the flag is set relative
// to the unlink). Returns ErrNotFound if no entry matches.
func (c *Cache) Delete(fp []byte) error {
	idx := hashIndex(fp, c.capacity)
	bucket := &c.buckets[idx]

	for {
		curr := bucket.Load()
		if curr == nil {
			return ErrNotFound
		}

		var prev *node
		curr.mu.RLock()
		for {
			if bytes.Equal(curr.entry.Fingerprint(), fp) {
				retry, err := c.unlink(bucket, prev, curr)
				if retry {
					break // outer loop restarts the walk from the (possibly changed) head
				}
				return err
			}
			next := curr.next
			if next == nil {
				curr.mu.RUnlock()
				return ErrNotFound
			}
			next.mu.RLock()
			curr.mu.RUnlock()
			prev = curr
			curr = next
		}
	}
}

// unlink releases the victim's read lock held from the walk, takes
// write locks on predecessor (if any) and victim, re-validates the
// linkage still holds, and performs the unlink. It reports retry=true if the chain changed
// out from under it between the read-lock match and the write-lock
// acquisition, so the caller should re-walk from the current head.
func (c *Cache) unlink(bucket *atomicNodePtr, prev, victim *node) (retry bool, err error) {
	victim.mu.RUnlock()
	if prev != nil {
		prev.mu.Lock()
	}
	victim.mu.Lock()

	if prev != nil && (prev.entry.Deleted() || prev.next != victim) {
		// prev.next alone can't catch "prev itself was unlinked" — a
		// deleted predecessor's own next field is left untouched by
		// whoever removed it, so it would still (stale-ly) point at
		// victim. Checking prev's own deleted flag closes that gap.
		victim.mu.Unlock()
		prev.mu.Unlock()
		return true, nil
	}
	if prev == nil && !bucket.CompareAndSwap(victim, victim.next) {
		// the head changed between our read-lock match and taking the
		// write lock; re-walk rather than unlink a node that is no
		// longer actually the head.
		victim.mu.Unlock()
		return true, nil
	}

	// Set deleted only once the unlink itself cannot fail anymore, so
	// the flag never flips back. For an interior node that is before
	// prev.next is swung past it; for a head node the CAS above has
	// already swung the bucket head, so the flag is set just after it.
	// Either way the victim's write lock is still held, so no walker
	// takes the victim's read lock between the unlink and the flag.
	victim.entry.markDeleted()
	if prev != nil {
		prev.next = victim.next
	}

	victim.mu.Unlock()
	if prev != nil {
		prev.mu.Unlock()
	}
	if c.onEvict != nil {
		c.onEvict(victim.entry.Fingerprint())
	}
	return false, nil
}

// Close stops the evictor and releases cache resources. Any consumer
// still holding an *Entry it obtained earlier keeps working off that
// reference — Go's garbage collector reclaims unreachable nodes once
// every goroutine lets go, so there is no explicit destroy-chain walk to
// perform beyond letting the buckets drop their head pointers.
func (c *Cache) Close() {
	c.evictorCancel()
	<-c.evictorDone
	for i := range c.buckets {
		c.buckets[i].Store(nil)
	}
}

// Len reports the total number of live (non-deleted) entries across all
// buckets. It is O(capacity + entries) and intended for /stats, not hot
// paths.
func (c *Cache) Len() int {
	n := 0
	for i := range c.buckets {
		curr := c.buckets[i].Load()
		for curr != nil {
			if !curr.entry.Deleted() {
				n++
			}
			curr = curr.next
		}
	}
	return n
}

func (c *Cache) evictorLoop(ctx context.Context) {
	defer close(c.evictorDone)

	interval := c.ttl / 2
	if interval > time.Second {
		interval = time.Second
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep walks every bucket once, collecting fingerprints idle past the
// TTL under read locks only, then deletes them through the ordinary
// write-locking Delete path outside the walk — mirroring spec.md §4.3's
// prescribed fix for the source's lock-acquisition asymmetries rather
// than reproducing them.
func (c *Cache) sweep() {
	cutoff := time.Now().Add(-c.ttl).UnixNano()
	var stale [][]byte

	for i := range c.buckets {
		curr := c.buckets[i].Load()
		if curr == nil {
			continue
		}
		curr.mu.RLock()
		for {
			if curr.lastAccess.Load() <= cutoff {
				stale = append(stale, curr.entry.Fingerprint())
			}
			next := curr.next
			if next == nil {
				curr.mu.RUnlock()
				break
			}
			next.mu.RLock()
			curr.mu.RUnlock()
			curr = next
		}
	}

	for _, fp := range stale {
		c.Delete(fp)
	}
}

// hashIndex is the rolling polynomial hash spec.md §4.3 prescribes:
// weak by design, sufficient for disjoint URLs, with collisions handled
// by chaining.
func hashIndex(fp []byte, size int) int {
	h := 0
	for _, b := range fp {
		h = (h*31 + int(b)) % size
	}
	if h < 0 {
		h += size
	}
	return h
}
