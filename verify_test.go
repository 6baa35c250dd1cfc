package shmtree

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shmtree/internal/arena"
)

func populated(t *testing.T, n uint64) *Tree[uint64, entry] {
	t.Helper()
	tr := newTestTree(t, 32, false)
	for k := uint64(0); k < n; k++ {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}
	require.NoError(t, tr.CheckInvariants())
	return tr
}

func TestCheckInvariants_DetectsRedRed(t *testing.T) {
	tr := populated(t, 10)

	// Force every node red; some parent-child pair must clash.
	tr.Ascend(func(v entry) bool {
		tr.arena.SetColor(tr.findIdx(v.First), arena.Red)
		return true
	})
	assert.Error(t, tr.CheckInvariants())
}

func TestCheckInvariants_DetectsBrokenChildLink(t *testing.T) {
	tr := populated(t, 10)

	root := tr.root()
	left := tr.arena.Left(root)
	require.NotEqual(t, arena.Invalid, left)

	tr.arena.SetParent(left, tr.arena.Sentinel())
	assert.Error(t, tr.CheckInvariants())
}

func TestCheckInvariants_DetectsSizeDrift(t *testing.T) {
	tr := populated(t, 5)

	// Detach the list tail without touching the tree.
	tail := tr.arena.ListTail()
	prev := tr.arena.ListPrev(tail)
	tr.arena.SetListNext(prev, arena.Invalid)
	tr.arena.SetListTail(prev)
	assert.Error(t, tr.CheckInvariants())
}

func TestCheckInvariants_DetectsOrderViolation(t *testing.T) {
	tr := populated(t, 8)

	// Overwrite a payload so in-order traversal decreases.
	i := tr.findIdx(6)
	require.NoError(t, tr.arena.SetPayload(i, ent(0, "v")))
	assert.Error(t, tr.CheckInvariants())
}

func TestCheckInvariants_DetectsStaleSelf(t *testing.T) {
	tr := populated(t, 4)

	raw := tr.arena.Bytes()
	// Self index of a live slot lives at the start of its slot record.
	i := tr.findIdx(2)
	off := arena.HeaderSize + int(i)*arena.SlotSize(tr.arena.PayloadSize())
	raw[off] ^= 0xFF
	assert.Error(t, tr.CheckInvariants())
}

func TestDump_RendersTreeAndList(t *testing.T) {
	tr := newTestTree(t, 16, false)
	for _, k := range []uint64{2, 1, 3} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, tr.Dump(&buf))

	out := buf.String()
	assert.Contains(t, out, "capacity=16")
	assert.Contains(t, out, "size=3")
	assert.True(t, strings.Contains(out, "list:"))
}
