package shmtree

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/shmtree/internal/arena"
)

// CheckInvariants walks the whole region and verifies the structural
// invariants: the red-black properties, BST ordering, the sentinel anchors,
// size conservation, and the partition of slots between the tree, the order
// list and the free list. It is a diagnostic, O(capacity), and intended for
// tests and post-resume audits.
func (t *Tree[K, V]) CheckInvariants() error {
	if !t.ready() {
		return ErrNotInitialized
	}
	a := t.arena
	s := a.Sentinel()
	capacity := a.Capacity()

	if a.Color(s) != arena.Red {
		return fmt.Errorf("sentinel color is %d, want red", a.Color(s))
	}

	root := t.root()
	if root == arena.Invalid {
		if a.Size() != 0 {
			return fmt.Errorf("empty tree but size header is %d", a.Size())
		}
		if t.leftmost() != s || t.rightmost() != s {
			return fmt.Errorf("empty tree but min/max caches are %d/%d", t.leftmost(), t.rightmost())
		}
		if a.ListHead() != arena.Invalid || a.ListTail() != arena.Invalid {
			return fmt.Errorf("empty tree but list endpoints are %d/%d", a.ListHead(), a.ListTail())
		}
	} else {
		if a.Parent(root) != s {
			return fmt.Errorf("root %d parent is %d, want sentinel", root, a.Parent(root))
		}
		if a.Color(root) != arena.Black {
			return fmt.Errorf("root %d is red", root)
		}
	}

	inTree := bitset.New(uint(capacity))
	count := 0

	var walk func(i arena.Index) (int, error)
	walk = func(i arena.Index) (int, error) {
		if i == arena.Invalid {
			return 1, nil
		}
		if i == s || !a.InRange(i) {
			return 0, fmt.Errorf("tree link to slot %d is out of range", i)
		}
		if inTree.Test(uint(i)) {
			return 0, fmt.Errorf("slot %d reachable twice in tree", i)
		}
		inTree.Set(uint(i))
		if !a.Valid(i) {
			return 0, fmt.Errorf("tree references free slot %d", i)
		}
		if a.Self(i) != i {
			return 0, fmt.Errorf("slot %d self index is %d", i, a.Self(i))
		}
		count++

		l, r := a.Left(i), a.Right(i)
		if l != arena.Invalid && a.Parent(l) != i {
			return 0, fmt.Errorf("slot %d: left child %d parent is %d", i, l, a.Parent(l))
		}
		if r != arena.Invalid && a.Parent(r) != i {
			return 0, fmt.Errorf("slot %d: right child %d parent is %d", i, r, a.Parent(r))
		}
		if a.Color(i) == arena.Red {
			if l != arena.Invalid && a.Color(l) == arena.Red {
				return 0, fmt.Errorf("red slot %d has red left child %d", i, l)
			}
			if r != arena.Invalid && a.Color(r) == arena.Red {
				return 0, fmt.Errorf("red slot %d has red right child %d", i, r)
			}
		}

		lh, err := walk(l)
		if err != nil {
			return 0, err
		}
		rh, err := walk(r)
		if err != nil {
			return 0, err
		}
		if lh != rh {
			return 0, fmt.Errorf("slot %d: black height %d left vs %d right", i, lh, rh)
		}
		if a.Color(i) == arena.Black {
			lh++
		}
		return lh, nil
	}
	if root != arena.Invalid {
		if _, err := walk(root); err != nil {
			return err
		}
	}

	if uint32(count) != a.Size() {
		return fmt.Errorf("tree holds %d nodes but size header is %d", count, a.Size())
	}

	// In-order keys must be non-decreasing.
	havePrev := false
	var prev K
	for i := t.leftmost(); i != s; i = t.successorIdx(i) {
		k := t.nodeKey(i)
		if havePrev && t.less(k, prev) {
			return fmt.Errorf("in-order traversal out of order at slot %d", i)
		}
		prev = k
		havePrev = true
	}

	if root != arena.Invalid {
		if got := t.treeMin(root); t.leftmost() != got {
			return fmt.Errorf("leftmost cache is %d, want %d", t.leftmost(), got)
		}
		if got := t.treeMax(root); t.rightmost() != got {
			return fmt.Errorf("rightmost cache is %d, want %d", t.rightmost(), got)
		}
	}

	// Every list node is a live tree node, exactly once, with symmetric
	// links.
	inList := bitset.New(uint(capacity))
	listLen := 0
	for i := a.ListHead(); i != arena.Invalid; i = a.ListNext(i) {
		if listLen > int(capacity) {
			return fmt.Errorf("order list cycle")
		}
		if !inTree.Test(uint(i)) {
			return fmt.Errorf("order list references slot %d not in tree", i)
		}
		if inList.Test(uint(i)) {
			return fmt.Errorf("slot %d linked twice in order list", i)
		}
		inList.Set(uint(i))
		if n := a.ListNext(i); n != arena.Invalid && a.ListPrev(n) != i {
			return fmt.Errorf("order list asymmetric between %d and %d", i, n)
		}
		listLen++
	}
	if listLen != count {
		return fmt.Errorf("order list holds %d nodes but tree holds %d", listLen, count)
	}
	if h := a.ListHead(); h != arena.Invalid && a.ListPrev(h) != arena.Invalid {
		return fmt.Errorf("list head %d has a predecessor", h)
	}
	if tl := a.ListTail(); tl != arena.Invalid && a.ListNext(tl) != arena.Invalid {
		return fmt.Errorf("list tail %d has a successor", tl)
	}

	// Free slots and live slots partition the arena.
	free := 0
	for i := a.FreeStart(); i != arena.Invalid; i = a.Right(i) {
		if free > int(capacity) {
			return fmt.Errorf("free list cycle")
		}
		if !a.InRange(i) || i == s {
			return fmt.Errorf("free list link to slot %d is out of range", i)
		}
		if inTree.Test(uint(i)) {
			return fmt.Errorf("slot %d is both live and free", i)
		}
		if a.Valid(i) {
			return fmt.Errorf("free slot %d is marked valid", i)
		}
		free++
	}
	if uint32(count+free) != capacity {
		return fmt.Errorf("%d live + %d free slots, capacity is %d", count, free, capacity)
	}

	return nil
}
