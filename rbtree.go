package shmtree

import "github.com/hupe1980/shmtree/internal/arena"

// The balanced-tree core. All state lives in the region: the sentinel slot
// anchors the root through its parent link and caches the leftmost and
// rightmost nodes in its left and right links. The sentinel is colored red so
// the insert fixup can read the root's parent color without a special case.

func (t *Tree[K, V]) root() arena.Index     { return t.arena.Parent(t.arena.Sentinel()) }
func (t *Tree[K, V]) setRoot(i arena.Index) { t.arena.SetParent(t.arena.Sentinel(), i) }

func (t *Tree[K, V]) leftmost() arena.Index  { return t.arena.Left(t.arena.Sentinel()) }
func (t *Tree[K, V]) rightmost() arena.Index { return t.arena.Right(t.arena.Sentinel()) }

func (t *Tree[K, V]) treeMin(i arena.Index) arena.Index {
	for t.arena.Left(i) != arena.Invalid {
		i = t.arena.Left(i)
	}
	return i
}

func (t *Tree[K, V]) treeMax(i arena.Index) arena.Index {
	for t.arena.Right(i) != arena.Invalid {
		i = t.arena.Right(i)
	}
	return i
}

// successorIdx returns the in-order successor of i, or the sentinel when i is
// the rightmost node.
func (t *Tree[K, V]) successorIdx(i arena.Index) arena.Index {
	a := t.arena
	s := a.Sentinel()
	if i == s {
		return s
	}
	if a.Right(i) != arena.Invalid {
		return t.treeMin(a.Right(i))
	}
	p := a.Parent(i)
	for p != s && i == a.Right(p) {
		i = p
		p = a.Parent(p)
	}
	return p
}

// predecessorIdx returns the in-order predecessor of i. Stepping back from
// the sentinel yields the rightmost node, so decrementing an end iterator
// lands on the last element.
func (t *Tree[K, V]) predecessorIdx(i arena.Index) arena.Index {
	a := t.arena
	s := a.Sentinel()
	if i == s {
		return t.rightmost()
	}
	if a.Left(i) != arena.Invalid {
		return t.treeMax(a.Left(i))
	}
	p := a.Parent(i)
	for p != s && i == a.Left(p) {
		i = p
		p = a.Parent(p)
	}
	return p
}

// lowerBoundIdx returns the first node whose key is not less than key, or
// the sentinel.
func (t *Tree[K, V]) lowerBoundIdx(key K) arena.Index {
	a := t.arena
	y := a.Sentinel()
	x := t.root()
	for x != arena.Invalid {
		if !t.less(t.nodeKey(x), key) {
			y = x
			x = a.Left(x)
		} else {
			x = a.Right(x)
		}
	}
	return y
}

// upperBoundIdx returns the first node whose key is greater than key, or the
// sentinel.
func (t *Tree[K, V]) upperBoundIdx(key K) arena.Index {
	a := t.arena
	y := a.Sentinel()
	x := t.root()
	for x != arena.Invalid {
		if t.less(key, t.nodeKey(x)) {
			y = x
			x = a.Left(x)
		} else {
			x = a.Right(x)
		}
	}
	return y
}

// findIdx returns a node with the given key (the first in order when
// duplicates exist), or the sentinel.
func (t *Tree[K, V]) findIdx(key K) arena.Index {
	j := t.lowerBoundIdx(key)
	if j == t.arena.Sentinel() || t.less(key, t.nodeKey(j)) {
		return t.arena.Sentinel()
	}
	return j
}

func (t *Tree[K, V]) rotateLeft(x arena.Index) {
	a := t.arena
	y := a.Right(x)
	a.SetRight(x, a.Left(y))
	if a.Left(y) != arena.Invalid {
		a.SetParent(a.Left(y), x)
	}
	a.SetParent(y, a.Parent(x))
	if a.Parent(x) == a.Sentinel() {
		t.setRoot(y)
	} else if x == a.Left(a.Parent(x)) {
		a.SetLeft(a.Parent(x), y)
	} else {
		a.SetRight(a.Parent(x), y)
	}
	a.SetLeft(y, x)
	a.SetParent(x, y)
}

func (t *Tree[K, V]) rotateRight(x arena.Index) {
	a := t.arena
	y := a.Left(x)
	a.SetLeft(x, a.Right(y))
	if a.Right(y) != arena.Invalid {
		a.SetParent(a.Right(y), x)
	}
	a.SetParent(y, a.Parent(x))
	if a.Parent(x) == a.Sentinel() {
		t.setRoot(y)
	} else if x == a.Right(a.Parent(x)) {
		a.SetRight(a.Parent(x), y)
	} else {
		a.SetLeft(a.Parent(x), y)
	}
	a.SetRight(y, x)
	a.SetParent(x, y)
}

// attach allocates a slot for v and links it under y as a left or right
// child, then restores the red-black properties. Allocation happens before
// any link surgery, so a full arena leaves the tree untouched.
func (t *Tree[K, V]) attach(v V, y arena.Index, addLeft bool) (Iterator[K, V], error) {
	a := t.arena
	z, err := a.Allocate(v)
	if err != nil {
		return Iterator[K, V]{}, translateArenaErr(err)
	}

	s := a.Sentinel()
	a.SetParent(z, y)
	switch {
	case y == s:
		t.setRoot(z)
		a.SetLeft(s, z)
		a.SetRight(s, z)
	case addLeft:
		a.SetLeft(y, z)
		if y == a.Left(s) {
			a.SetLeft(s, z)
		}
	default:
		a.SetRight(y, z)
		if y == a.Right(s) {
			a.SetRight(s, z)
		}
	}

	t.insertFixup(z)
	return Iterator[K, V]{tree: t, node: z}, nil
}

func (t *Tree[K, V]) insertFixup(z arena.Index) {
	a := t.arena
	for z != t.root() && a.Color(a.Parent(z)) == arena.Red {
		gp := a.Parent(a.Parent(z))
		if a.Parent(z) == a.Left(gp) {
			uncle := a.Right(gp)
			if uncle != arena.Invalid && a.Color(uncle) == arena.Red {
				a.SetColor(a.Parent(z), arena.Black)
				a.SetColor(uncle, arena.Black)
				a.SetColor(gp, arena.Red)
				z = gp
			} else {
				if z == a.Right(a.Parent(z)) {
					z = a.Parent(z)
					t.rotateLeft(z)
				}
				a.SetColor(a.Parent(z), arena.Black)
				a.SetColor(a.Parent(a.Parent(z)), arena.Red)
				t.rotateRight(a.Parent(a.Parent(z)))
			}
		} else {
			uncle := a.Left(gp)
			if uncle != arena.Invalid && a.Color(uncle) == arena.Red {
				a.SetColor(a.Parent(z), arena.Black)
				a.SetColor(uncle, arena.Black)
				a.SetColor(gp, arena.Red)
				z = gp
			} else {
				if z == a.Left(a.Parent(z)) {
					z = a.Parent(z)
					t.rotateRight(z)
				}
				a.SetColor(a.Parent(z), arena.Black)
				a.SetColor(a.Parent(a.Parent(z)), arena.Red)
				t.rotateLeft(a.Parent(a.Parent(z)))
			}
		}
	}
	a.SetColor(t.root(), arena.Black)
}

// eraseNode detaches z from the tree without touching its payload or the
// order list; the caller recycles the slot afterwards. A node with two
// children is replaced by its in-order successor via link splicing and a
// color swap, so no payload ever moves between slots.
func (t *Tree[K, V]) eraseNode(z arena.Index) {
	a := t.arena
	s := a.Sentinel()

	y := z
	x := arena.Invalid
	xParent := arena.Invalid

	switch {
	case a.Left(y) == arena.Invalid:
		x = a.Right(z)
	case a.Right(y) == arena.Invalid:
		x = a.Left(z)
	default:
		y = t.treeMin(a.Right(z))
		x = a.Right(y)
	}

	if y != z {
		// Splice the successor into z's position.
		a.SetParent(a.Left(z), y)
		a.SetLeft(y, a.Left(z))
		if y != a.Right(z) {
			xParent = a.Parent(y)
			if x != arena.Invalid {
				a.SetParent(x, a.Parent(y))
			}
			a.SetLeft(a.Parent(y), x)
			a.SetRight(y, a.Right(z))
			a.SetParent(a.Right(z), y)
		} else {
			xParent = y
		}
		if t.root() == z {
			t.setRoot(y)
		} else if a.Left(a.Parent(z)) == z {
			a.SetLeft(a.Parent(z), y)
		} else {
			a.SetRight(a.Parent(z), y)
		}
		a.SetParent(y, a.Parent(z))
		cy := a.Color(y)
		a.SetColor(y, a.Color(z))
		a.SetColor(z, cy)
		y = z
	} else {
		xParent = a.Parent(y)
		if x != arena.Invalid {
			a.SetParent(x, a.Parent(y))
		}
		if t.root() == z {
			t.setRoot(x)
		} else if a.Left(a.Parent(z)) == z {
			a.SetLeft(a.Parent(z), x)
		} else {
			a.SetRight(a.Parent(z), x)
		}
		if a.Left(s) == z {
			if a.Right(z) == arena.Invalid {
				a.SetLeft(s, a.Parent(z))
			} else {
				a.SetLeft(s, t.treeMin(x))
			}
		}
		if a.Right(s) == z {
			if a.Left(z) == arena.Invalid {
				a.SetRight(s, a.Parent(z))
			} else {
				a.SetRight(s, t.treeMax(x))
			}
		}
	}

	if a.Color(y) == arena.Black {
		t.eraseRebalance(x, xParent)
	}
}

// eraseRebalance restores the black-height invariant after removing a black
// node. x may be Invalid (a null leaf), which is why its parent is threaded
// through explicitly.
func (t *Tree[K, V]) eraseRebalance(x, xParent arena.Index) {
	a := t.arena
	for x != t.root() && (x == arena.Invalid || a.Color(x) == arena.Black) {
		if x == a.Left(xParent) {
			w := a.Right(xParent)
			if a.Color(w) == arena.Red {
				a.SetColor(w, arena.Black)
				a.SetColor(xParent, arena.Red)
				t.rotateLeft(xParent)
				w = a.Right(xParent)
			}
			if (a.Left(w) == arena.Invalid || a.Color(a.Left(w)) == arena.Black) &&
				(a.Right(w) == arena.Invalid || a.Color(a.Right(w)) == arena.Black) {
				a.SetColor(w, arena.Red)
				x = xParent
				xParent = a.Parent(xParent)
			} else {
				if a.Right(w) == arena.Invalid || a.Color(a.Right(w)) == arena.Black {
					if a.Left(w) != arena.Invalid {
						a.SetColor(a.Left(w), arena.Black)
					}
					a.SetColor(w, arena.Red)
					t.rotateRight(w)
					w = a.Right(xParent)
				}
				a.SetColor(w, a.Color(xParent))
				a.SetColor(xParent, arena.Black)
				if a.Right(w) != arena.Invalid {
					a.SetColor(a.Right(w), arena.Black)
				}
				t.rotateLeft(xParent)
				break
			}
		} else {
			w := a.Left(xParent)
			if a.Color(w) == arena.Red {
				a.SetColor(w, arena.Black)
				a.SetColor(xParent, arena.Red)
				t.rotateRight(xParent)
				w = a.Left(xParent)
			}
			if (a.Right(w) == arena.Invalid || a.Color(a.Right(w)) == arena.Black) &&
				(a.Left(w) == arena.Invalid || a.Color(a.Left(w)) == arena.Black) {
				a.SetColor(w, arena.Red)
				x = xParent
				xParent = a.Parent(xParent)
			} else {
				if a.Left(w) == arena.Invalid || a.Color(a.Left(w)) == arena.Black {
					if a.Right(w) != arena.Invalid {
						a.SetColor(a.Right(w), arena.Black)
					}
					a.SetColor(w, arena.Red)
					t.rotateLeft(w)
					w = a.Left(xParent)
				}
				a.SetColor(w, a.Color(xParent))
				a.SetColor(xParent, arena.Black)
				if a.Left(w) != arena.Invalid {
					a.SetColor(a.Left(w), arena.Black)
				}
				t.rotateRight(xParent)
				break
			}
		}
	}
	if x != arena.Invalid {
		a.SetColor(x, arena.Black)
	}
}
