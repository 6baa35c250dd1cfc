// Package cache provides a byte-oriented LRU cache for immutable blob
// blocks, used to avoid re-reading remote snapshot data.
package cache

import "context"

// Key identifies a cached block. Blobs are immutable, so (name, block) is
// stable.
type Key struct {
	// Name is the blob name within its store.
	Name string
	// Block is the block index within the blob.
	Block uint64
}

// BlockCache is a cache for immutable blocks. Returned slices must be
// treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok is false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The caller must treat b as immutable afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Close releases any resources.
	Close() error
	// Stats returns hit and miss counters.
	Stats() (hits, misses int64)
}
