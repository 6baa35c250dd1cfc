package shmtree

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shmtree/codec"
	"github.com/hupe1980/shmtree/shm"
)

type entry = codec.KV[uint64, string]

func entryPayload() codec.Payload[entry] {
	return codec.Pair(codec.Uint64(), codec.String(16))
}

func entryOptions(capacity uint32, lru bool) func(o *Options[uint64, entry]) {
	return func(o *Options[uint64, entry]) {
		o.Capacity = capacity
		o.Payload = entryPayload()
		o.KeyOf = func(v entry) uint64 { return v.First }
		o.Less = OrderedLess[uint64]()
		o.LRU = lru
	}
}

func newTestTree(t *testing.T, capacity uint32, lru bool) *Tree[uint64, entry] {
	t.Helper()

	region, err := shm.CreateAnon(RegionSize(capacity, entryPayload().Size()))
	require.NoError(t, err)
	t.Cleanup(func() { region.Close() })

	tree, err := New[uint64, entry](Create, region, entryOptions(capacity, lru))
	require.NoError(t, err)
	return tree
}

func ent(k uint64, s string) entry { return entry{First: k, Second: s} }

func treeKeys(tr *Tree[uint64, entry]) []uint64 {
	var keys []uint64
	tr.Ascend(func(v entry) bool {
		keys = append(keys, v.First)
		return true
	})
	return keys
}

func listKeys(tr *Tree[uint64, entry]) []uint64 {
	var keys []uint64
	tr.AscendList(func(v entry) bool {
		keys = append(keys, v.First)
		return true
	})
	return keys
}

func TestTree_InsertUniqueOrdering(t *testing.T) {
	tr := newTestTree(t, 100, false)

	for _, k := range []uint64{3, 1, 4, 2} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	assert.Equal(t, []uint64{1, 2, 3, 4}, treeKeys(tr))
	assert.Equal(t, []uint64{3, 1, 4, 2}, listKeys(tr))
	assert.Equal(t, 4, tr.Size())
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_EraseKey(t *testing.T) {
	tr := newTestTree(t, 100, false)

	for _, k := range []uint64{3, 1, 4, 2} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, tr.Erase(1))
	assert.Equal(t, []uint64{2, 3, 4}, treeKeys(tr))
	assert.Equal(t, []uint64{3, 4, 2}, listKeys(tr))
	assert.Equal(t, 3, tr.Size())

	// Erasing a missing key is a no-op.
	assert.Equal(t, 0, tr.Erase(99))
	assert.Equal(t, 3, tr.Size())
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_InsertEqualDuplicates(t *testing.T) {
	tr := newTestTree(t, 100, false)

	_, err := tr.InsertEqual(ent(1, "a"))
	require.NoError(t, err)
	_, err = tr.InsertEqual(ent(1, "b"))
	require.NoError(t, err)

	assert.Equal(t, 2, tr.Count(1))

	first, last := tr.EqualRange(1)
	var values []string
	for it := first; !it.Equal(last); it.Next() {
		v, err := it.Value()
		require.NoError(t, err)
		values = append(values, v.Second)
	}
	// Later duplicates land after earlier ones.
	assert.Equal(t, []string{"a", "b"}, values)
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_InsertEqualPlacement(t *testing.T) {
	tr := newTestTree(t, 100, false)

	for _, s := range []string{"a", "b", "c"} {
		_, err := tr.InsertEqual(ent(5, s))
		require.NoError(t, err)
	}
	_, err := tr.InsertEqual(ent(4, "x"))
	require.NoError(t, err)
	_, err = tr.InsertEqual(ent(6, "y"))
	require.NoError(t, err)

	var got []string
	tr.Ascend(func(v entry) bool {
		got = append(got, v.Second)
		return true
	})
	assert.Equal(t, []string{"x", "a", "b", "c", "y"}, got)
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_LRUTouchOnFind(t *testing.T) {
	tr := newTestTree(t, 100, true)

	for _, k := range []uint64{1, 2, 3} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}
	require.Equal(t, []uint64{1, 2, 3}, listKeys(tr))

	it := tr.Find(1)
	require.True(t, it.Valid())

	assert.Equal(t, []uint64{2, 3, 1}, listKeys(tr))
	// Tree order is untouched.
	assert.Equal(t, []uint64{1, 2, 3}, treeKeys(tr))
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_LRUBoundsDoNotTouch(t *testing.T) {
	tr := newTestTree(t, 100, true)

	for _, k := range []uint64{1, 2, 3} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	_ = tr.LowerBound(1)
	_ = tr.UpperBound(2)
	assert.Equal(t, []uint64{1, 2, 3}, listKeys(tr))

	assert.Equal(t, 1, tr.Count(2))
	assert.Equal(t, []uint64{1, 3, 2}, listKeys(tr))
}

func TestTree_CapacityBoundary(t *testing.T) {
	tr := newTestTree(t, 4, false)

	for k := uint64(0); k < 4; k++ {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}
	require.True(t, tr.Full())

	_, err := tr.InsertUnique(ent(99, "v"))
	assert.ErrorIs(t, err, ErrFull)
	_, err = tr.InsertEqual(ent(0, "v"))
	assert.ErrorIs(t, err, ErrFull)

	assert.Equal(t, 4, tr.Size())
	assert.True(t, tr.Full())
	require.NoError(t, tr.CheckInvariants())

	// Erase frees capacity again.
	assert.Equal(t, 1, tr.Erase(0))
	_, err = tr.InsertUnique(ent(99, "v"))
	assert.NoError(t, err)
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_InsertUniqueDuplicate(t *testing.T) {
	tr := newTestTree(t, 10, false)

	_, err := tr.InsertUnique(ent(7, "first"))
	require.NoError(t, err)

	it, err := tr.InsertUnique(ent(7, "second"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	require.True(t, it.Valid())

	v, err := it.Value()
	require.NoError(t, err)
	assert.Equal(t, "first", v.Second)
	assert.Equal(t, 1, tr.Size())
}

func TestTree_BatchInsertTruncation(t *testing.T) {
	tr := newTestTree(t, 3, false)

	values := []entry{ent(1, "a"), ent(2, "b"), ent(3, "c"), ent(4, "d"), ent(5, "e")}
	inserted, err := tr.InsertUniqueBatch(values)
	require.NoError(t, err)

	assert.Equal(t, 3, inserted)
	assert.Equal(t, []uint64{1, 2, 3}, treeKeys(tr))
	assert.True(t, tr.Full())
}

func TestTree_BatchInsertSkipsDuplicates(t *testing.T) {
	tr := newTestTree(t, 10, false)

	inserted, err := tr.InsertUniqueBatch([]entry{ent(1, "a"), ent(1, "b"), ent(2, "c")})
	require.NoError(t, err)

	assert.Equal(t, 2, inserted)
	assert.Equal(t, 2, tr.Size())
}

func TestTree_Bounds(t *testing.T) {
	tr := newTestTree(t, 100, false)

	for _, k := range []uint64{10, 20, 30} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	it := tr.LowerBound(20)
	k, err := it.Key()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), k)

	it = tr.LowerBound(15)
	k, err = it.Key()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), k)

	it = tr.UpperBound(20)
	k, err = it.Key()
	require.NoError(t, err)
	assert.Equal(t, uint64(30), k)

	assert.True(t, tr.LowerBound(31).Equal(tr.End()))
	assert.True(t, tr.UpperBound(30).Equal(tr.End()))

	assert.False(t, tr.Find(15).Valid())
	assert.True(t, tr.Find(10).Valid())
}

func TestTree_EraseAt(t *testing.T) {
	tr := newTestTree(t, 100, false)

	for _, k := range []uint64{1, 2, 3} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	next, err := tr.EraseAt(tr.Find(2))
	require.NoError(t, err)

	k, err := next.Key()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), k)
	assert.Equal(t, []uint64{1, 3}, treeKeys(tr))

	_, err = tr.EraseAt(tr.End())
	assert.ErrorIs(t, err, ErrInvalidIterator)
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_EraseRange(t *testing.T) {
	tr := newTestTree(t, 100, false)

	for k := uint64(1); k <= 6; k++ {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	require.NoError(t, tr.EraseRange(tr.LowerBound(2), tr.LowerBound(5)))
	assert.Equal(t, []uint64{1, 5, 6}, treeKeys(tr))
	require.NoError(t, tr.CheckInvariants())

	// Full range clears.
	require.NoError(t, tr.EraseRange(tr.Begin(), tr.End()))
	assert.True(t, tr.Empty())
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_ClearPreservesLRUFlag(t *testing.T) {
	tr := newTestTree(t, 10, true)

	_, err := tr.InsertUnique(ent(1, "v"))
	require.NoError(t, err)

	require.NoError(t, tr.Clear())
	assert.True(t, tr.Empty())
	assert.True(t, tr.LRUEnabled())
	require.NoError(t, tr.CheckInvariants())

	// Reusable after clear.
	_, err = tr.InsertUnique(ent(2, "v"))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Size())
}

func TestTree_Swap(t *testing.T) {
	a := newTestTree(t, 10, false)
	b := newTestTree(t, 10, false)

	_, err := a.InsertUnique(ent(1, "a"))
	require.NoError(t, err)
	_, err = b.InsertUnique(ent(2, "b"))
	require.NoError(t, err)
	_, err = b.InsertUnique(ent(3, "b"))
	require.NoError(t, err)

	require.NoError(t, a.Swap(b))
	assert.Equal(t, []uint64{2, 3}, treeKeys(a))
	assert.Equal(t, []uint64{1}, treeKeys(b))

	c := newTestTree(t, 20, false)
	var mm *MismatchError
	assert.ErrorAs(t, a.Swap(c), &mm)
}

func TestTree_EraseOldest(t *testing.T) {
	tr := newTestTree(t, 10, true)

	for _, k := range []uint64{1, 2, 3} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}
	// Touch 1 so 2 becomes the eviction candidate.
	tr.Find(1)

	v, err := tr.EraseOldest()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.First)
	assert.Equal(t, []uint64{1, 3}, treeKeys(tr))
	require.NoError(t, tr.CheckInvariants())
}

func TestTree_UninitializedGuard(t *testing.T) {
	var tr Tree[uint64, entry]

	assert.Equal(t, 0, tr.Size())
	assert.Equal(t, 0, tr.MaxSize())
	assert.True(t, tr.Empty())
	assert.False(t, tr.Full())
	assert.False(t, tr.Find(1).Valid())
	assert.Equal(t, 0, tr.Count(1))
	assert.Equal(t, 0, tr.Erase(1))

	_, err := tr.InsertUnique(ent(1, "v"))
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = tr.InsertEqual(ent(1, "v"))
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, tr.Clear(), ErrNotInitialized)
	assert.ErrorIs(t, tr.CheckInvariants(), ErrNotInitialized)
}

func TestTree_CreateResumeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.shm")
	payload := entryPayload()

	region, err := shm.Create(path, RegionSize(64, payload.Size()))
	require.NoError(t, err)

	tr, err := New[uint64, entry](Create, region, entryOptions(64, false))
	require.NoError(t, err)
	for _, k := range []uint64{5, 3, 8} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}
	require.NoError(t, tr.Sync())
	require.NoError(t, region.Close())

	resumed, err := shm.Resume(path)
	require.NoError(t, err)
	defer resumed.Close()

	tr2, err := New[uint64, entry](Resume, resumed, entryOptions(64, false))
	require.NoError(t, err)

	assert.Equal(t, []uint64{3, 5, 8}, treeKeys(tr2))
	assert.Equal(t, []uint64{5, 3, 8}, listKeys(tr2))
	require.NoError(t, tr2.CheckInvariants())
}

func TestTree_ResumeRejectsMismatchedCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.shm")
	payload := entryPayload()

	region, err := shm.Create(path, RegionSize(64, payload.Size()))
	require.NoError(t, err)
	_, err = New[uint64, entry](Create, region, entryOptions(64, false))
	require.NoError(t, err)
	require.NoError(t, region.Close())

	resumed, err := shm.Resume(path)
	require.NoError(t, err)
	defer resumed.Close()

	_, err = New[uint64, entry](Resume, resumed, entryOptions(32, false))
	require.Error(t, err)
}

func TestTree_RandomizedInvariants(t *testing.T) {
	const capacity = 128
	tr := newTestTree(t, capacity, false)
	rng := rand.New(rand.NewSource(42))
	ref := make(map[uint64]int)

	refSize := func() int {
		n := 0
		for _, c := range ref {
			n += c
		}
		return n
	}

	for op := 0; op < 2000; op++ {
		k := uint64(rng.Intn(64))
		switch rng.Intn(4) {
		case 0:
			_, err := tr.InsertUnique(ent(k, "u"))
			if err == nil {
				ref[k]++
			} else {
				require.True(t, errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrFull))
			}
		case 1:
			_, err := tr.InsertEqual(ent(k, "e"))
			if err == nil {
				ref[k]++
			} else {
				require.ErrorIs(t, err, ErrFull)
			}
		case 2:
			n := tr.Erase(k)
			require.Equal(t, ref[k], n)
			delete(ref, k)
		case 3:
			require.Equal(t, ref[k], tr.Count(k))
		}

		require.Equal(t, refSize(), tr.Size())
		if op%25 == 0 {
			require.NoError(t, tr.CheckInvariants())
		}
	}
	require.NoError(t, tr.CheckInvariants())

	// Tree order matches the reference exactly.
	var want []uint64
	for k := uint64(0); k < 64; k++ {
		for i := 0; i < ref[k]; i++ {
			want = append(want, k)
		}
	}
	assert.Equal(t, want, treeKeys(tr))
}

func TestTree_DescendMirrorsAscend(t *testing.T) {
	tr := newTestTree(t, 100, false)
	for _, k := range []uint64{4, 1, 3, 2} {
		_, err := tr.InsertUnique(ent(k, "v"))
		require.NoError(t, err)
	}

	var desc []uint64
	tr.Descend(func(v entry) bool {
		desc = append(desc, v.First)
		return true
	})
	assert.Equal(t, []uint64{4, 3, 2, 1}, desc)

	var newest []uint64
	tr.DescendList(func(v entry) bool {
		newest = append(newest, v.First)
		return true
	})
	assert.Equal(t, []uint64{2, 3, 1, 4}, newest)
}
