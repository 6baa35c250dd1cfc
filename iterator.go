package shmtree

import "github.com/hupe1980/shmtree/internal/arena"

// Iterator is a bidirectional cursor over elements in key order. The zero
// value is detached. Erasing the element an iterator points at, Clear and
// Swap all invalidate it; every other mutation leaves it usable.
type Iterator[K, V any] struct {
	tree *Tree[K, V]
	node arena.Index
}

// Valid reports whether the iterator can be dereferenced, i.e. it is neither
// detached nor at End.
func (it Iterator[K, V]) Valid() bool {
	if it.tree == nil || !it.tree.ready() {
		return false
	}
	a := it.tree.arena
	return it.node != a.Sentinel() && a.InRange(it.node) && a.Valid(it.node)
}

// Value returns the element the iterator points at, or ErrInvalidIterator.
func (it Iterator[K, V]) Value() (V, error) {
	if !it.Valid() {
		var zero V
		return zero, ErrInvalidIterator
	}
	return it.tree.nodeValue(it.node), nil
}

// Key returns the key of the element the iterator points at, or
// ErrInvalidIterator.
func (it Iterator[K, V]) Key() (K, error) {
	if !it.Valid() {
		var zero K
		return zero, ErrInvalidIterator
	}
	return it.tree.nodeKey(it.node), nil
}

// Equal reports whether both iterators refer to the same position of the
// same tree.
func (it Iterator[K, V]) Equal(other Iterator[K, V]) bool {
	return it.tree == other.tree && it.node == other.node
}

// Next advances to the in-order successor. It reports false once the
// iterator reaches End.
func (it *Iterator[K, V]) Next() bool {
	if it.tree == nil || !it.tree.ready() {
		return false
	}
	s := it.tree.arena.Sentinel()
	if it.node == s {
		return false
	}
	it.node = it.tree.successorIdx(it.node)
	return it.node != s
}

// Prev steps back to the in-order predecessor. Stepping back from End lands
// on the last element. It reports false, without moving, at the first
// element.
func (it *Iterator[K, V]) Prev() bool {
	if it.tree == nil || !it.tree.ready() {
		return false
	}
	prev := it.tree.predecessorIdx(it.node)
	if prev == it.tree.arena.Sentinel() {
		return false
	}
	it.node = prev
	return true
}

// Begin returns an iterator at the smallest element, or End when empty.
func (t *Tree[K, V]) Begin() Iterator[K, V] {
	if !t.ready() {
		return Iterator[K, V]{}
	}
	return Iterator[K, V]{tree: t, node: t.leftmost()}
}

// End returns the past-the-end iterator.
func (t *Tree[K, V]) End() Iterator[K, V] {
	if !t.ready() {
		return Iterator[K, V]{}
	}
	return Iterator[K, V]{tree: t, node: t.arena.Sentinel()}
}

// Last returns an iterator at the largest element, or End when empty.
func (t *Tree[K, V]) Last() Iterator[K, V] {
	if !t.ready() {
		return Iterator[K, V]{}
	}
	return Iterator[K, V]{tree: t, node: t.rightmost()}
}

// ListIterator is a bidirectional cursor over elements in insertion (or LRU)
// order. The zero value is detached.
type ListIterator[K, V any] struct {
	tree *Tree[K, V]
	node arena.Index
}

// Valid reports whether the iterator can be dereferenced.
func (it ListIterator[K, V]) Valid() bool {
	if it.tree == nil || !it.tree.ready() || it.node == arena.Invalid {
		return false
	}
	a := it.tree.arena
	return it.node != a.Sentinel() && a.InRange(it.node) && a.Valid(it.node)
}

// Value returns the element the iterator points at, or ErrInvalidIterator.
func (it ListIterator[K, V]) Value() (V, error) {
	if !it.Valid() {
		var zero V
		return zero, ErrInvalidIterator
	}
	return it.tree.nodeValue(it.node), nil
}

// Key returns the key of the element the iterator points at, or
// ErrInvalidIterator.
func (it ListIterator[K, V]) Key() (K, error) {
	if !it.Valid() {
		var zero K
		return zero, ErrInvalidIterator
	}
	return it.tree.nodeKey(it.node), nil
}

// Equal reports whether both iterators refer to the same position of the
// same tree.
func (it ListIterator[K, V]) Equal(other ListIterator[K, V]) bool {
	return it.tree == other.tree && it.node == other.node
}

// Next advances toward the newest element. It reports false once the
// iterator reaches the list end.
func (it *ListIterator[K, V]) Next() bool {
	if it.tree == nil || !it.tree.ready() || it.node == arena.Invalid {
		return false
	}
	it.node = it.tree.arena.ListNext(it.node)
	return it.node != arena.Invalid
}

// Prev steps back toward the oldest element. Stepping back from the list end
// lands on the newest element. It reports false, without moving, at the
// oldest element.
func (it *ListIterator[K, V]) Prev() bool {
	if it.tree == nil || !it.tree.ready() {
		return false
	}
	var prev arena.Index
	if it.node == arena.Invalid {
		prev = it.tree.arena.ListTail()
	} else {
		prev = it.tree.arena.ListPrev(it.node)
	}
	if prev == arena.Invalid {
		return false
	}
	it.node = prev
	return true
}

// ListBegin returns an iterator at the oldest element in insertion (or LRU)
// order.
func (t *Tree[K, V]) ListBegin() ListIterator[K, V] {
	if !t.ready() {
		return ListIterator[K, V]{}
	}
	return ListIterator[K, V]{tree: t, node: t.arena.ListHead()}
}

// ListEnd returns the past-the-end list iterator.
func (t *Tree[K, V]) ListEnd() ListIterator[K, V] {
	if !t.ready() {
		return ListIterator[K, V]{}
	}
	return ListIterator[K, V]{tree: t, node: arena.Invalid}
}

// ListLast returns an iterator at the newest element in insertion (or LRU)
// order.
func (t *Tree[K, V]) ListLast() ListIterator[K, V] {
	if !t.ready() {
		return ListIterator[K, V]{}
	}
	return ListIterator[K, V]{tree: t, node: t.arena.ListTail()}
}

// Oldest returns the element at the head of the order list, i.e. the least
// recently inserted (or, with LRU mode, least recently accessed) element.
func (t *Tree[K, V]) Oldest() (V, error) {
	var zero V
	if !t.ready() {
		return zero, ErrNotInitialized
	}
	head := t.arena.ListHead()
	if head == arena.Invalid {
		return zero, ErrInvalidIterator
	}
	return t.nodeValue(head), nil
}

// EraseOldest removes the element at the head of the order list and returns
// it. With LRU mode this is the eviction primitive.
func (t *Tree[K, V]) EraseOldest() (V, error) {
	var zero V
	if !t.ready() {
		t.logger.LogUninitialized("EraseOldest")
		return zero, ErrNotInitialized
	}
	head := t.arena.ListHead()
	if head == arena.Invalid {
		return zero, ErrInvalidIterator
	}
	v := t.nodeValue(head)
	t.eraseNode(head)
	if err := t.arena.Recycle(head); err != nil {
		return zero, translateArenaErr(err)
	}
	return v, nil
}
