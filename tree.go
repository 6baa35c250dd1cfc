package shmtree

import (
	"fmt"

	"github.com/hupe1980/shmtree/internal/arena"
	"github.com/hupe1980/shmtree/shm"
)

// InitMode selects how a tree attaches to its region.
type InitMode int

const (
	// Create wipes the region and threads a fresh arena. Exactly one
	// process may Create a given region, before anyone resumes it.
	Create InitMode = iota + 1
	// Resume reattaches to a region already initialized by Create,
	// preserving all live content.
	Resume
)

// Tree is a fixed-capacity ordered associative container over a shared
// region: a red-black tree for sorted access plus an intrusive list threading
// the same nodes in insertion (or LRU) order.
//
// A Tree performs no locking. Concurrent access to the same region, from
// goroutines or from other processes, requires external mutual exclusion.
type Tree[K, V any] struct {
	arena  *arena.Arena[V]
	region *shm.Region
	keyOf  func(V) K
	less   func(K, K) bool
	logger *Logger
}

// RegionSize returns the byte size a region must have for a tree with the
// given capacity and payload width.
func RegionSize(capacity uint32, payloadSize int) int {
	return arena.RegionSize(capacity, payloadSize)
}

// New attaches a tree to region in the given mode.
//
// Example:
//
//	region, _ := shm.Create("/dev/shm/orders", shmtree.RegionSize(1024, 16))
//	t, err := shmtree.New[uint64, codec.KV[uint64, uint64]](shmtree.Create, region,
//	    func(o *shmtree.Options[uint64, codec.KV[uint64, uint64]]) {
//	        o.Capacity = 1024
//	        o.Payload = codec.Pair(codec.Uint64(), codec.Uint64())
//	        o.KeyOf = func(v codec.KV[uint64, uint64]) uint64 { return v.First }
//	        o.Less = shmtree.OrderedLess[uint64]()
//	    })
func New[K, V any](mode InitMode, region *shm.Region, optFns ...func(o *Options[K, V])) (*Tree[K, V], error) {
	o := Options[K, V]{
		Logger: NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
	if region == nil {
		return nil, fmt.Errorf("shmtree: nil region")
	}
	if o.Payload == nil {
		return nil, fmt.Errorf("shmtree: payload codec is required")
	}
	if o.KeyOf == nil {
		return nil, fmt.Errorf("shmtree: key-extraction func is required")
	}
	if o.Less == nil {
		return nil, fmt.Errorf("shmtree: comparator is required")
	}

	a, err := arena.New(region.Bytes(), o.Capacity, o.Payload)
	if err != nil {
		return nil, err
	}

	switch mode {
	case Create:
		a.CreateInit()
		a.SetLRUEnabled(o.LRU)
	case Resume:
		if err := a.ResumeInit(); err != nil {
			o.Logger.LogResume(o.Capacity, 0, err)
			return nil, translateArenaErr(err)
		}
		if o.LRU {
			a.SetLRUEnabled(true)
		}
		o.Logger.LogResume(o.Capacity, int(a.Size()), nil)
	default:
		return nil, fmt.Errorf("shmtree: unknown init mode %d", mode)
	}

	return &Tree[K, V]{
		arena:  a,
		region: region,
		keyOf:  o.KeyOf,
		less:   o.Less,
		logger: o.Logger,
	}, nil
}

// ready reports whether the tree is attached to an initialized region. All
// public operations on an unready tree return empty defaults (reads) or
// ErrNotInitialized (mutations).
func (t *Tree[K, V]) ready() bool {
	return t != nil && t.arena != nil && t.arena.Initialized()
}

// Size returns the number of stored elements.
func (t *Tree[K, V]) Size() int {
	if !t.ready() {
		return 0
	}
	return int(t.arena.Size())
}

// MaxSize returns the fixed capacity.
func (t *Tree[K, V]) MaxSize() int {
	if !t.ready() {
		return 0
	}
	return int(t.arena.Capacity())
}

// Empty reports whether no elements are stored.
func (t *Tree[K, V]) Empty() bool { return t.Size() == 0 }

// Full reports whether the capacity is exhausted.
func (t *Tree[K, V]) Full() bool {
	if !t.ready() {
		return false
	}
	return t.arena.Size() == t.arena.Capacity()
}

// KeyComp returns the configured comparator.
func (t *Tree[K, V]) KeyComp() func(K, K) bool { return t.less }

// LRUEnabled reports the region's LRU touch-on-access mode.
func (t *Tree[K, V]) LRUEnabled() bool {
	return t.ready() && t.arena.LRUEnabled()
}

// SetLRU toggles LRU touch-on-access mode. The flag is persisted in the
// region header.
func (t *Tree[K, V]) SetLRU(on bool) error {
	if !t.ready() {
		return ErrNotInitialized
	}
	t.arena.SetLRUEnabled(on)
	return nil
}

// Region returns the region the tree is attached to, for snapshot tooling.
// Mutating the region bytes directly corrupts the container.
func (t *Tree[K, V]) Region() *shm.Region { return t.region }

// Sync flushes the region to its backing file, if any.
func (t *Tree[K, V]) Sync() error {
	if !t.ready() {
		return ErrNotInitialized
	}
	return t.region.Sync()
}

// InsertUnique inserts v if its key is not yet present. On success the
// returned iterator points at the new element. If the key exists, the
// iterator points at the existing element and the error is ErrDuplicateKey;
// if the tree is full, the error is ErrFull. The tree is unmodified on every
// failure path.
func (t *Tree[K, V]) InsertUnique(v V) (Iterator[K, V], error) {
	if !t.ready() {
		t.logger.LogUninitialized("InsertUnique")
		return Iterator[K, V]{}, ErrNotInitialized
	}

	k := t.keyOf(v)
	a := t.arena
	y := a.Sentinel()
	x := t.root()
	comp := true
	for x != arena.Invalid {
		y = x
		comp = t.less(k, t.nodeKey(x))
		if comp {
			x = a.Left(x)
		} else {
			x = a.Right(x)
		}
	}

	j := y
	if comp {
		if j == t.leftmost() {
			return t.attach(v, y, true)
		}
		j = t.predecessorIdx(j)
	}
	if t.less(t.nodeKey(j), k) {
		return t.attach(v, y, comp)
	}
	return Iterator[K, V]{tree: t, node: j}, ErrDuplicateKey
}

// InsertEqual inserts v regardless of duplicate keys. A new element with an
// equal key is placed after the last existing equal element, so equal keys
// enumerate in insertion order via EqualRange. Returns ErrFull without
// mutation when the capacity is exhausted.
func (t *Tree[K, V]) InsertEqual(v V) (Iterator[K, V], error) {
	if !t.ready() {
		t.logger.LogUninitialized("InsertEqual")
		return Iterator[K, V]{}, ErrNotInitialized
	}

	k := t.keyOf(v)
	a := t.arena
	y := a.Sentinel()
	x := t.root()
	for x != arena.Invalid {
		y = x
		if t.less(k, t.nodeKey(x)) {
			x = a.Left(x)
		} else {
			x = a.Right(x)
		}
	}
	addLeft := y == a.Sentinel() || t.less(k, t.nodeKey(y))
	return t.attach(v, y, addLeft)
}

// InsertUniqueBatch inserts values until either the batch or the remaining
// capacity is exhausted, whichever comes first. Elements whose keys collide
// are skipped. A truncated batch is logged as a warning; already-inserted
// elements are never rolled back. Returns the number inserted.
func (t *Tree[K, V]) InsertUniqueBatch(values []V) (int, error) {
	if !t.ready() {
		t.logger.LogUninitialized("InsertUniqueBatch")
		return 0, ErrNotInitialized
	}
	inserted := 0
	for _, v := range values {
		if t.Full() {
			break
		}
		if _, err := t.InsertUnique(v); err == nil {
			inserted++
		}
	}
	t.logger.LogBatchInsert(len(values), inserted)
	return inserted, nil
}

// InsertEqualBatch inserts values until either the batch or the remaining
// capacity is exhausted. A truncated batch is logged as a warning. Returns
// the number inserted.
func (t *Tree[K, V]) InsertEqualBatch(values []V) (int, error) {
	if !t.ready() {
		t.logger.LogUninitialized("InsertEqualBatch")
		return 0, ErrNotInitialized
	}
	inserted := 0
	for _, v := range values {
		if t.Full() {
			break
		}
		if _, err := t.InsertEqual(v); err != nil {
			break
		}
		inserted++
	}
	t.logger.LogBatchInsert(len(values), inserted)
	return inserted, nil
}

// Find returns an iterator at an element with the given key, or End. With
// LRU mode enabled the matched node is moved to the tail of the order list.
func (t *Tree[K, V]) Find(key K) Iterator[K, V] {
	if !t.ready() {
		return Iterator[K, V]{}
	}
	j := t.findIdx(key)
	if j != t.arena.Sentinel() && t.arena.LRUEnabled() {
		t.arena.MoveToTail(j)
	}
	return Iterator[K, V]{tree: t, node: j}
}

// Count returns the number of elements with the given key. With LRU mode
// enabled every matched node is moved to the tail of the order list.
func (t *Tree[K, V]) Count(key K) int {
	if !t.ready() {
		return 0
	}
	first, last := t.lowerBoundIdx(key), t.upperBoundIdx(key)
	lru := t.arena.LRUEnabled()
	n := 0
	for i := first; i != last; i = t.successorIdx(i) {
		if lru {
			t.arena.MoveToTail(i)
		}
		n++
	}
	return n
}

// LowerBound returns an iterator at the first element whose key is not less
// than key. Never touches LRU order.
func (t *Tree[K, V]) LowerBound(key K) Iterator[K, V] {
	if !t.ready() {
		return Iterator[K, V]{}
	}
	return Iterator[K, V]{tree: t, node: t.lowerBoundIdx(key)}
}

// UpperBound returns an iterator at the first element whose key is greater
// than key. Never touches LRU order.
func (t *Tree[K, V]) UpperBound(key K) Iterator[K, V] {
	if !t.ready() {
		return Iterator[K, V]{}
	}
	return Iterator[K, V]{tree: t, node: t.upperBoundIdx(key)}
}

// EqualRange returns the pair of bounds spanning all elements with the given
// key. With LRU mode enabled every element in the range is moved to the tail
// of the order list.
func (t *Tree[K, V]) EqualRange(key K) (Iterator[K, V], Iterator[K, V]) {
	if !t.ready() {
		return Iterator[K, V]{}, Iterator[K, V]{}
	}
	first, last := t.lowerBoundIdx(key), t.upperBoundIdx(key)
	if t.arena.LRUEnabled() {
		for i := first; i != last; i = t.successorIdx(i) {
			t.arena.MoveToTail(i)
		}
	}
	return Iterator[K, V]{tree: t, node: first}, Iterator[K, V]{tree: t, node: last}
}

// EraseAt removes the element the iterator points at and returns an iterator
// at its in-order successor.
func (t *Tree[K, V]) EraseAt(it Iterator[K, V]) (Iterator[K, V], error) {
	if !t.ready() {
		t.logger.LogUninitialized("EraseAt")
		return Iterator[K, V]{}, ErrNotInitialized
	}
	if it.tree != t || !it.Valid() {
		return Iterator[K, V]{}, ErrInvalidIterator
	}
	next := t.successorIdx(it.node)
	t.eraseNode(it.node)
	if err := t.arena.Recycle(it.node); err != nil {
		return Iterator[K, V]{}, translateArenaErr(err)
	}
	return Iterator[K, V]{tree: t, node: next}, nil
}

// Erase removes all elements with the given key and returns how many were
// removed. Uses the internal non-touching lookups, so LRU order of other
// elements is untouched.
func (t *Tree[K, V]) Erase(key K) int {
	if !t.ready() {
		t.logger.LogUninitialized("Erase")
		return 0
	}
	first, last := t.lowerBoundIdx(key), t.upperBoundIdx(key)
	n := 0
	for first != last {
		next := t.successorIdx(first)
		t.eraseNode(first)
		if err := t.arena.Recycle(first); err != nil {
			// Recycle of a node the tree just detached cannot fail
			// unless the arena is corrupted.
			panic(fmt.Sprintf("shmtree: recycle after erase: %v", err))
		}
		first = next
		n++
	}
	return n
}

// EraseRange removes all elements in [first, last).
func (t *Tree[K, V]) EraseRange(first, last Iterator[K, V]) error {
	if !t.ready() {
		t.logger.LogUninitialized("EraseRange")
		return ErrNotInitialized
	}
	if first.tree != t || last.tree != t {
		return ErrInvalidIterator
	}
	if first.node == t.leftmost() && last.node == t.arena.Sentinel() {
		return t.Clear()
	}
	for first.node != last.node {
		next := t.successorIdx(first.node)
		t.eraseNode(first.node)
		if err := t.arena.Recycle(first.node); err != nil {
			return translateArenaErr(err)
		}
		first.node = next
	}
	return nil
}

// Clear removes every element by re-running Create initialization over the
// management state and the slot array. The LRU flag survives.
func (t *Tree[K, V]) Clear() error {
	if !t.ready() {
		t.logger.LogUninitialized("Clear")
		return ErrNotInitialized
	}
	lru := t.arena.LRUEnabled()
	t.arena.CreateInit()
	t.arena.SetLRUEnabled(lru)
	return nil
}

// Swap exchanges the contents of two trees by swapping their region
// attachments. Both trees must be initialized and share capacity and payload
// width.
func (t *Tree[K, V]) Swap(other *Tree[K, V]) error {
	if !t.ready() || !other.ready() {
		return ErrNotInitialized
	}
	if t.arena.Capacity() != other.arena.Capacity() {
		return &MismatchError{Field: "capacity", Expected: t.arena.Capacity(), Actual: other.arena.Capacity()}
	}
	if t.arena.PayloadSize() != other.arena.PayloadSize() {
		return &MismatchError{Field: "payload size", Expected: uint32(t.arena.PayloadSize()), Actual: uint32(other.arena.PayloadSize())}
	}
	t.arena, other.arena = other.arena, t.arena
	t.region, other.region = other.region, t.region
	return nil
}

// Ascend calls fn for every element in ascending key order until fn returns
// false.
func (t *Tree[K, V]) Ascend(fn func(v V) bool) {
	if !t.ready() {
		return
	}
	s := t.arena.Sentinel()
	for i := t.leftmost(); i != s; i = t.successorIdx(i) {
		if !fn(t.nodeValue(i)) {
			return
		}
	}
}

// Descend calls fn for every element in descending key order until fn
// returns false.
func (t *Tree[K, V]) Descend(fn func(v V) bool) {
	if !t.ready() || t.Empty() {
		return
	}
	s := t.arena.Sentinel()
	for i := t.rightmost(); i != s; i = t.predecessorIdx(i) {
		if !fn(t.nodeValue(i)) {
			return
		}
	}
}

// AscendList calls fn for every element in insertion (or LRU) order, oldest
// first, until fn returns false.
func (t *Tree[K, V]) AscendList(fn func(v V) bool) {
	if !t.ready() {
		return
	}
	for i := t.arena.ListHead(); i != arena.Invalid; i = t.arena.ListNext(i) {
		if !fn(t.nodeValue(i)) {
			return
		}
	}
}

// DescendList calls fn for every element in reverse insertion (or LRU)
// order, newest first, until fn returns false.
func (t *Tree[K, V]) DescendList(fn func(v V) bool) {
	if !t.ready() {
		return
	}
	for i := t.arena.ListTail(); i != arena.Invalid; i = t.arena.ListPrev(i) {
		if !fn(t.nodeValue(i)) {
			return
		}
	}
}

// nodeKey extracts the ordering key of a live node. A payload that fails to
// decode means the region is corrupted.
func (t *Tree[K, V]) nodeKey(i arena.Index) K {
	return t.keyOf(t.nodeValue(i))
}

func (t *Tree[K, V]) nodeValue(i arena.Index) V {
	v, err := t.arena.Payload(i)
	if err != nil {
		panic(fmt.Sprintf("shmtree: payload of slot %d: %v", i, err))
	}
	return v
}
