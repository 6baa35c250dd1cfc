package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shmtree/codec"
)

func newArena(t *testing.T, capacity uint32) *Arena[uint64] {
	t.Helper()
	payload := codec.Uint64()
	region := make([]byte, RegionSize(capacity, payload.Size()))
	a, err := New(region, capacity, payload)
	require.NoError(t, err)
	a.CreateInit()
	return a
}

func TestNew_Validation(t *testing.T) {
	payload := codec.Uint64()

	_, err := New(make([]byte, 10), 0, payload)
	assert.Error(t, err)

	_, err = New(make([]byte, 10), 4, payload)
	assert.Error(t, err) // wrong region size

	region := make([]byte, RegionSize(4, payload.Size()))
	a, err := New(region, 4, payload)
	require.NoError(t, err)
	assert.False(t, a.Initialized())
}

func TestCreateInit_Geometry(t *testing.T) {
	a := newArena(t, 4)

	assert.True(t, a.Initialized())
	assert.Equal(t, uint32(4), a.Capacity())
	assert.Equal(t, Index(4), a.Sentinel())
	assert.Equal(t, uint32(0), a.Size())
	assert.Equal(t, uint32(4), a.FreeLen())
	assert.Equal(t, Index(0), a.FreeStart())

	s := a.Sentinel()
	assert.True(t, a.Valid(s))
	assert.Equal(t, Red, a.Color(s))
	assert.Equal(t, Invalid, a.Parent(s))
	assert.Equal(t, s, a.Left(s))
	assert.Equal(t, s, a.Right(s))
	assert.Equal(t, Invalid, a.ListHead())
	assert.Equal(t, Invalid, a.ListTail())
}

func TestAllocate_Recycle(t *testing.T) {
	a := newArena(t, 3)

	i, err := a.Allocate(100)
	require.NoError(t, err)
	j, err := a.Allocate(200)
	require.NoError(t, err)

	assert.Equal(t, uint32(2), a.Size())
	assert.Equal(t, uint32(1), a.FreeLen())
	assert.True(t, a.Valid(i))
	assert.Equal(t, Red, a.Color(i))
	assert.Equal(t, i, a.Self(i))

	v, err := a.Payload(i)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v)

	require.NoError(t, a.Recycle(i))
	assert.Equal(t, uint32(1), a.Size())
	assert.Equal(t, uint32(2), a.FreeLen())
	assert.False(t, a.Valid(i))
	// Recycled slot goes to the free-list head.
	assert.Equal(t, i, a.FreeStart())

	_, err = a.Payload(i)
	assert.ErrorIs(t, err, ErrNotOccupied)
	assert.ErrorIs(t, a.Recycle(i), ErrNotOccupied)
	assert.ErrorIs(t, a.Recycle(a.Sentinel()), ErrNotOccupied)

	v, err = a.Payload(j)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), v)
}

func TestAllocate_Exhaustion(t *testing.T) {
	a := newArena(t, 2)

	_, err := a.Allocate(1)
	require.NoError(t, err)
	_, err = a.Allocate(2)
	require.NoError(t, err)

	_, err = a.Allocate(3)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, uint32(2), a.Size())

	// Recycling frees a slot for reuse.
	require.NoError(t, a.Recycle(0))
	i, err := a.Allocate(4)
	require.NoError(t, err)
	assert.Equal(t, Index(0), i)
}

func TestAllocate_OrderList(t *testing.T) {
	a := newArena(t, 4)

	i0, _ := a.Allocate(10)
	i1, _ := a.Allocate(11)
	i2, _ := a.Allocate(12)

	assert.Equal(t, i0, a.ListHead())
	assert.Equal(t, i2, a.ListTail())
	assert.Equal(t, i1, a.ListNext(i0))
	assert.Equal(t, i0, a.ListPrev(i1))
	assert.Equal(t, uint32(3), a.ListLen())

	// Recycling the middle node splices the list.
	require.NoError(t, a.Recycle(i1))
	assert.Equal(t, i2, a.ListNext(i0))
	assert.Equal(t, i0, a.ListPrev(i2))
	assert.Equal(t, uint32(2), a.ListLen())

	// Recycling the head advances it.
	require.NoError(t, a.Recycle(i0))
	assert.Equal(t, i2, a.ListHead())
	assert.Equal(t, i2, a.ListTail())
	assert.Equal(t, Invalid, a.ListPrev(i2))
}

func TestMoveToTail(t *testing.T) {
	a := newArena(t, 4)

	i0, _ := a.Allocate(10)
	i1, _ := a.Allocate(11)
	i2, _ := a.Allocate(12)

	a.MoveToTail(i0)
	assert.Equal(t, i1, a.ListHead())
	assert.Equal(t, i0, a.ListTail())
	assert.Equal(t, i0, a.ListNext(i2))

	// Moving the tail is a no-op.
	a.MoveToTail(i0)
	assert.Equal(t, i0, a.ListTail())
	assert.Equal(t, uint32(3), a.ListLen())
}

func TestResumeInit(t *testing.T) {
	payload := codec.Uint64()
	region := make([]byte, RegionSize(4, payload.Size()))

	a, err := New(region, 4, payload)
	require.NoError(t, err)

	// Resume before create fails: zeroed region has no magic.
	assert.ErrorIs(t, a.ResumeInit(), ErrBadMagic)

	a.CreateInit()
	_, err = a.Allocate(42)
	require.NoError(t, err)

	// A second view over the same bytes resumes and sees the slot.
	b, err := New(region, 4, payload)
	require.NoError(t, err)
	require.NoError(t, b.ResumeInit())
	assert.Equal(t, uint32(1), b.Size())
	v, err := b.Payload(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestResumeInit_Mismatch(t *testing.T) {
	payload := codec.Uint64()
	region := make([]byte, RegionSize(8, payload.Size()))

	a, err := New(region, 8, payload)
	require.NoError(t, err)
	a.CreateInit()

	// Same bytes, wrong capacity claim.
	b, err := New(region[:RegionSize(8, payload.Size())], 8, payload)
	require.NoError(t, err)
	b.putHeader32(offCapacity, 16)
	var mm *MismatchError
	assert.ErrorAs(t, b.ResumeInit(), &mm)
	assert.Equal(t, "capacity", mm.Field)

	b.putHeader32(offCapacity, 8)
	b.putHeader32(offVersion, Version+1)
	assert.ErrorIs(t, b.ResumeInit(), ErrBadVersion)
}

func TestResumeInit_ValidatesPayloads(t *testing.T) {
	payload := codec.String(4)
	region := make([]byte, RegionSize(2, payload.Size()))

	a, err := New(region, 2, payload)
	require.NoError(t, err)
	a.CreateInit()
	i, err := a.Allocate("ok")
	require.NoError(t, err)

	b, err := New(region, 2, payload)
	require.NoError(t, err)
	require.NoError(t, b.ResumeInit())

	// Corrupt the length prefix of the live slot's payload.
	a.payloadBytes(i)[0] = 0xFF
	assert.Error(t, b.ResumeInit())
}

func TestLRUFlag_Persisted(t *testing.T) {
	a := newArena(t, 2)

	assert.False(t, a.LRUEnabled())
	a.SetLRUEnabled(true)
	assert.True(t, a.LRUEnabled())
	assert.NotZero(t, a.Flags()&FlagLRU)

	a.SetLRUEnabled(false)
	assert.False(t, a.LRUEnabled())
	// Initialized flag survives LRU toggling.
	assert.True(t, a.Initialized())
}

func TestReadMeta_Live(t *testing.T) {
	payload := codec.Uint64()
	a := newArena(t, 3)
	i, err := a.Allocate(7)
	require.NoError(t, err)

	meta, err := ReadMeta(a.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), meta.Capacity)
	assert.Equal(t, uint32(payload.Size()), meta.PayloadSize)
	assert.Equal(t, uint32(1), meta.Size)

	assert.True(t, Live(a.Bytes(), payload.Size(), uint32(i)))
	assert.False(t, Live(a.Bytes(), payload.Size(), uint32(i)+1))

	_, err = ReadMeta(make([]byte, 8))
	assert.Error(t, err)
}
