package arena

// Insertion-order list maintenance. The list threads every live data slot in
// the order it was allocated, independent of tree topology; the sentinel
// never participates. All operations are O(1).

// ListHead returns the oldest live slot, or Invalid when empty.
func (a *Arena[V]) ListHead() Index { return Index(a.header32(offListHead)) }

// SetListHead sets the list head field.
func (a *Arena[V]) SetListHead(i Index) { a.putHeader32(offListHead, uint32(i)) }

// ListTail returns the newest live slot, or Invalid when empty.
func (a *Arena[V]) ListTail() Index { return Index(a.header32(offListTail)) }

// SetListTail sets the list tail field.
func (a *Arena[V]) SetListTail(i Index) { a.putHeader32(offListTail, uint32(i)) }

func (a *Arena[V]) pushTail(i Index) {
	tail := a.ListTail()
	a.SetListPrev(i, tail)
	a.SetListNext(i, Invalid)
	if tail == Invalid {
		a.SetListHead(i)
	} else {
		a.SetListNext(tail, i)
	}
	a.SetListTail(i)
}

func (a *Arena[V]) unlink(i Index) {
	prev, next := a.ListPrev(i), a.ListNext(i)
	if prev == Invalid {
		a.SetListHead(next)
	} else {
		a.SetListNext(prev, next)
	}
	if next == Invalid {
		a.SetListTail(prev)
	} else {
		a.SetListPrev(next, prev)
	}
	a.SetListPrev(i, Invalid)
	a.SetListNext(i, Invalid)
}

// MoveToTail re-splices a live slot to the tail of the insertion-order list,
// marking it most recently used. No-op if the slot already is the tail.
func (a *Arena[V]) MoveToTail(i Index) {
	if i == a.Sentinel() || !a.InRange(i) || !a.Valid(i) {
		return
	}
	if a.ListTail() == i {
		return
	}
	a.unlink(i)
	a.pushTail(i)
}

// ListLen walks the list from head to tail and returns its length. O(n);
// verifier only.
func (a *Arena[V]) ListLen() uint32 {
	var n uint32
	for i := a.ListHead(); i != Invalid; i = a.ListNext(i) {
		n++
		if n > a.capacity {
			panic("arena: order list cycle")
		}
	}
	return n
}
