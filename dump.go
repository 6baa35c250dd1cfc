package shmtree

import (
	"fmt"
	"io"

	"github.com/hupe1980/shmtree/internal/arena"
)

// Dump writes a human-readable rendering of the region to w: the header
// fields, the tree shape with colors, and the order list. Diagnostic only.
func (t *Tree[K, V]) Dump(w io.Writer) error {
	if !t.ready() {
		_, err := fmt.Fprintln(w, "shmtree: <not initialized>")
		return err
	}
	a := t.arena

	if _, err := fmt.Fprintf(w, "shmtree: capacity=%d size=%d payload=%dB lru=%t\n",
		a.Capacity(), a.Size(), a.PayloadSize(), a.LRUEnabled()); err != nil {
		return err
	}

	if err := t.dumpSubtree(w, t.root(), 0); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "list:"); err != nil {
		return err
	}
	for i := a.ListHead(); i != arena.Invalid; i = a.ListNext(i) {
		if _, err := fmt.Fprintf(w, " %d", i); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func (t *Tree[K, V]) dumpSubtree(w io.Writer, i arena.Index, depth int) error {
	if i == arena.Invalid {
		return nil
	}
	a := t.arena
	if err := t.dumpSubtree(w, a.Left(i), depth+1); err != nil {
		return err
	}
	color := "B"
	if a.Color(i) == arena.Red {
		color = "R"
	}
	if _, err := fmt.Fprintf(w, "%*s[%d|%s] %v\n", depth*2, "", i, color, t.nodeKey(i)); err != nil {
		return err
	}
	return t.dumpSubtree(w, a.Right(i), depth+1)
}
