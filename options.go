package shmtree

import (
	"cmp"

	"github.com/hupe1980/shmtree/codec"
)

// Options configures tree construction. Capacity, Payload and KeyOf are
// required; Less defaults must be supplied explicitly for non-ordered keys
// (use OrderedLess for the natural order).
type Options[K, V any] struct {
	// Capacity is the fixed number of data slots. A region holds
	// Capacity+1 slots; the extra one is the sentinel.
	Capacity uint32

	// Payload is the fixed-width codec for stored values.
	Payload codec.Payload[V]

	// KeyOf extracts the ordering key from a stored value. Map-like
	// containers pass a first-of-pair func, set-like ones the identity.
	KeyOf func(V) K

	// Less is the strict weak ordering over keys.
	Less func(K, K) bool

	// LRU enables touch-on-access: Find, Count and EqualRange move matched
	// nodes to the tail of the insertion-order list. The flag is persisted
	// in the region header on Create and adopted from it on Resume unless
	// set here.
	LRU bool

	// Logger receives structured operation logs. Defaults to NoopLogger.
	Logger *Logger
}

// OrderedLess returns the natural strict ordering for an ordered key type.
func OrderedLess[K cmp.Ordered]() func(K, K) bool {
	return func(a, b K) bool { return cmp.Less(a, b) }
}

// Identity is the key-extraction func for set-like containers storing bare
// keys.
func Identity[V any]() func(V) V {
	return func(v V) V { return v }
}
