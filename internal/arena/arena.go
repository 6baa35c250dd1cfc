// Package arena implements the fixed-capacity slot arena a tree lives in.
//
// The arena owns a flat byte region of capacity+1 node slots plus a small
// management header. Free slots form a singly-linked list threaded through
// their right link; live slots are additionally threaded onto an intrusive
// doubly-linked insertion-order list. Slots are addressed by bounded Index
// values resolved against the region, never by pointer, so the region can be
// mapped into shared memory and reattached by another process.
//
// The arena performs no locking. Callers sharing a region across processes
// or goroutines must serialize access externally.
package arena

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/shmtree/codec"
)

var (
	// ErrFull is returned when the free list is exhausted.
	ErrFull = errors.New("arena: capacity exhausted")
	// ErrNotInitialized is returned when resuming a region that never went
	// through CreateInit.
	ErrNotInitialized = errors.New("arena: region not initialized")
	// ErrBadMagic is returned when a region does not start with the shmtree
	// magic number.
	ErrBadMagic = errors.New("arena: bad magic")
	// ErrBadVersion is returned for an unsupported region format version.
	ErrBadVersion = errors.New("arena: unsupported region version")
	// ErrNotOccupied is returned when recycling a slot that is not live.
	ErrNotOccupied = errors.New("arena: slot not occupied")
)

// MismatchError reports a parameter that disagrees with the region header on
// resume.
type MismatchError struct {
	Field    string
	Expected uint32
	Actual   uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("arena: %s mismatch: region has %d, caller expects %d", e.Field, e.Actual, e.Expected)
}

// Arena is a view over a region. It holds no state of its own beyond the
// decoded geometry; all mutable state lives in the region bytes.
type Arena[V any] struct {
	data        []byte
	capacity    uint32
	slotSize    int
	payloadSize int
	payload     codec.Payload[V]
}

// New builds an arena view over region for capacity data slots with the given
// payload codec. The region must be exactly RegionSize(capacity,
// payload.Size()) bytes. New does not touch the region's contents; follow up
// with CreateInit or ResumeInit.
func New[V any](region []byte, capacity uint32, payload codec.Payload[V]) (*Arena[V], error) {
	if capacity == 0 {
		return nil, errors.New("arena: capacity must be positive")
	}
	if capacity >= uint32(Invalid) {
		return nil, fmt.Errorf("arena: capacity %d exceeds index range", capacity)
	}
	want := RegionSize(capacity, payload.Size())
	if len(region) != want {
		return nil, fmt.Errorf("arena: region is %d bytes, need %d for capacity %d", len(region), want, capacity)
	}
	return &Arena[V]{
		data:        region,
		capacity:    capacity,
		slotSize:    SlotSize(payload.Size()),
		payloadSize: payload.Size(),
		payload:     payload,
	}, nil
}

// Capacity returns the number of data slots (excluding the sentinel).
func (a *Arena[V]) Capacity() uint32 { return a.capacity }

// PayloadSize returns the encoded payload width in bytes.
func (a *Arena[V]) PayloadSize() int { return a.payloadSize }

// Sentinel returns the index of the header/sentinel slot.
func (a *Arena[V]) Sentinel() Index { return Index(a.capacity) }

// InRange reports whether i addresses a slot (sentinel included).
func (a *Arena[V]) InRange(i Index) bool { return uint32(i) <= a.capacity }

// CreateInit wipes the region and threads it fresh: all slots zeroed and
// chained onto the free list, sentinel marked valid with self-referential
// min/max, size zero. Any prior content is destroyed.
func (a *Arena[V]) CreateInit() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.putHeader32(offMagic, Magic)
	a.putHeader32(offVersion, Version)
	a.putHeader32(offCapacity, a.capacity)
	a.putHeader32(offPayloadSize, uint32(a.payloadSize))
	a.putHeader32(offSize, 0)
	a.SetListHead(Invalid)
	a.SetListTail(Invalid)

	// Thread the free list through the right links, 0 -> 1 -> ... -> N-1.
	for i := uint32(0); i < a.capacity; i++ {
		a.setSelf(Index(i), Index(i))
		if i+1 < a.capacity {
			a.SetRight(Index(i), Index(i+1))
		} else {
			a.SetRight(Index(i), Invalid)
		}
		a.SetParent(Index(i), Invalid)
		a.SetLeft(Index(i), Invalid)
		a.SetListPrev(Index(i), Invalid)
		a.SetListNext(Index(i), Invalid)
	}
	a.SetFreeStart(0)

	// Sentinel: always valid, never on the order list, anchors the tree.
	// Color red distinguishes it from any root, matching the classic header
	// node convention.
	s := a.Sentinel()
	a.setSelf(s, s)
	a.setValid(s, true)
	a.SetColor(s, Red)
	a.SetParent(s, Invalid) // tree root
	a.SetLeft(s, s)         // cached leftmost
	a.SetRight(s, s)        // cached rightmost
	a.SetListPrev(s, Invalid)
	a.SetListNext(s, Invalid)

	a.putHeader32(offFlags, FlagInitialized)
}

// ResumeInit reattaches to a region previously initialized by CreateInit,
// leaving every link and validity flag untouched. When the payload codec
// implements codec.Validator, the payload area of every live slot is
// re-checked, the in-place analogue of re-running construction over already
// valid slots.
func (a *Arena[V]) ResumeInit() error {
	if a.header32(offMagic) != Magic {
		return ErrBadMagic
	}
	if a.header32(offVersion) != Version {
		return ErrBadVersion
	}
	if !a.Initialized() {
		return ErrNotInitialized
	}
	if got := a.header32(offCapacity); got != a.capacity {
		return &MismatchError{Field: "capacity", Expected: a.capacity, Actual: got}
	}
	if got := a.header32(offPayloadSize); got != uint32(a.payloadSize) {
		return &MismatchError{Field: "payload size", Expected: uint32(a.payloadSize), Actual: got}
	}
	if v, ok := a.payload.(codec.Validator); ok {
		for i := uint32(0); i < a.capacity; i++ {
			if !a.Valid(Index(i)) {
				continue
			}
			if err := v.Validate(a.payloadBytes(Index(i))); err != nil {
				return fmt.Errorf("arena: slot %d payload invalid: %w", i, err)
			}
		}
	}
	return nil
}

// Initialized reports whether the region went through CreateInit.
func (a *Arena[V]) Initialized() bool {
	return len(a.data) >= HeaderSize && a.header32(offFlags)&FlagInitialized != 0
}

// Allocate pops a slot off the free list, encodes v into it, marks it valid
// with cleared tree links and appends it to the tail of the insertion-order
// list. It fails with ErrFull when the capacity is exhausted and mutates
// nothing on that path.
func (a *Arena[V]) Allocate(v V) (Index, error) {
	i := a.FreeStart()
	if i == Invalid {
		return Invalid, ErrFull
	}
	if err := a.payload.Encode(a.payloadBytes(i), v); err != nil {
		return Invalid, err
	}
	a.SetFreeStart(a.Right(i))

	a.setSelf(i, i)
	a.SetParent(i, Invalid)
	a.SetLeft(i, Invalid)
	a.SetRight(i, Invalid)
	a.SetColor(i, Red)
	a.setValid(i, true)
	a.pushTail(i)
	a.putHeader32(offSize, a.Size()+1)
	return i, nil
}

// Recycle returns a live slot to the free list: it is unlinked from the
// insertion-order list first, its payload area zeroed, then pushed onto the
// free-list head. Tree links are the caller's business and must already be
// detached.
func (a *Arena[V]) Recycle(i Index) error {
	if i == a.Sentinel() || !a.InRange(i) || !a.Valid(i) {
		return ErrNotOccupied
	}
	a.unlink(i)

	p := a.payloadBytes(i)
	for j := range p {
		p[j] = 0
	}

	a.setValid(i, false)
	a.SetParent(i, Invalid)
	a.SetLeft(i, Invalid)
	a.SetRight(i, a.FreeStart())
	a.SetFreeStart(i)
	a.putHeader32(offSize, a.Size()-1)
	return nil
}

// Payload decodes the payload of a live slot.
func (a *Arena[V]) Payload(i Index) (V, error) {
	var zero V
	if i == a.Sentinel() || !a.InRange(i) || !a.Valid(i) {
		return zero, ErrNotOccupied
	}
	return a.payload.Decode(a.payloadBytes(i))
}

// SetPayload re-encodes the payload of a live slot in place.
func (a *Arena[V]) SetPayload(i Index, v V) error {
	if i == a.Sentinel() || !a.InRange(i) || !a.Valid(i) {
		return ErrNotOccupied
	}
	return a.payload.Encode(a.payloadBytes(i), v)
}

// Size returns the number of live data slots.
func (a *Arena[V]) Size() uint32 { return a.header32(offSize) }

// FreeLen walks the free list and returns its length. O(free); used by the
// invariant verifier, not on hot paths.
func (a *Arena[V]) FreeLen() uint32 {
	var n uint32
	for i := a.FreeStart(); i != Invalid; i = a.Right(i) {
		n++
		if n > a.capacity {
			panic("arena: free list cycle")
		}
	}
	return n
}

// FreeStart returns the head of the free list.
func (a *Arena[V]) FreeStart() Index { return Index(a.header32(offFreeStart)) }

// SetFreeStart sets the head of the free list.
func (a *Arena[V]) SetFreeStart(i Index) { a.putHeader32(offFreeStart, uint32(i)) }

// Flags returns the header flag word.
func (a *Arena[V]) Flags() uint32 { return a.header32(offFlags) }

// LRUEnabled reports the region's persisted LRU mode flag.
func (a *Arena[V]) LRUEnabled() bool { return a.header32(offFlags)&FlagLRU != 0 }

// SetLRUEnabled persists the LRU mode flag in the region header.
func (a *Arena[V]) SetLRUEnabled(on bool) {
	f := a.header32(offFlags)
	if on {
		f |= FlagLRU
	} else {
		f &^= FlagLRU
	}
	a.putHeader32(offFlags, f)
}

// Bytes exposes the raw region, for snapshotting.
func (a *Arena[V]) Bytes() []byte { return a.data }

// Slot field accessors. An out-of-range index means a link points outside the
// arena; that is memory corruption, not recoverable misuse, and panics.

func (a *Arena[V]) slot(i Index) []byte {
	if !a.InRange(i) {
		panic(fmt.Sprintf("arena: index %d out of range (capacity %d)", i, a.capacity))
	}
	off := HeaderSize + int(i)*a.slotSize
	return a.data[off : off+a.slotSize]
}

func (a *Arena[V]) payloadBytes(i Index) []byte {
	return a.slot(i)[slotMetaSize : slotMetaSize+a.payloadSize]
}

// Self returns the slot's stored own-index field.
func (a *Arena[V]) Self(i Index) Index { return a.slot32(i, offSelf) }

func (a *Arena[V]) setSelf(i, v Index) { a.putSlot32(i, offSelf, v) }

// Parent returns the tree parent link.
func (a *Arena[V]) Parent(i Index) Index { return a.slot32(i, offParent) }

// SetParent sets the tree parent link.
func (a *Arena[V]) SetParent(i, v Index) { a.putSlot32(i, offParent, v) }

// Left returns the left child link.
func (a *Arena[V]) Left(i Index) Index { return a.slot32(i, offLeft) }

// SetLeft sets the left child link.
func (a *Arena[V]) SetLeft(i, v Index) { a.putSlot32(i, offLeft, v) }

// Right returns the right child link (or the next free slot while free).
func (a *Arena[V]) Right(i Index) Index { return a.slot32(i, offRight) }

// SetRight sets the right child link.
func (a *Arena[V]) SetRight(i, v Index) { a.putSlot32(i, offRight, v) }

// ListPrev returns the insertion-order predecessor link.
func (a *Arena[V]) ListPrev(i Index) Index { return a.slot32(i, offListPrev) }

// SetListPrev sets the insertion-order predecessor link.
func (a *Arena[V]) SetListPrev(i, v Index) { a.putSlot32(i, offListPrev, v) }

// ListNext returns the insertion-order successor link.
func (a *Arena[V]) ListNext(i Index) Index { return a.slot32(i, offListNext) }

// SetListNext sets the insertion-order successor link.
func (a *Arena[V]) SetListNext(i, v Index) { a.putSlot32(i, offListNext, v) }

// Color returns the node color.
func (a *Arena[V]) Color(i Index) Color { return Color(a.slot(i)[offColor]) }

// SetColor sets the node color.
func (a *Arena[V]) SetColor(i Index, c Color) { a.slot(i)[offColor] = byte(c) }

// Valid reports whether the slot is occupied (the sentinel is always valid).
func (a *Arena[V]) Valid(i Index) bool { return a.slot(i)[offValid] != 0 }

func (a *Arena[V]) setValid(i Index, v bool) {
	if v {
		a.slot(i)[offValid] = 1
	} else {
		a.slot(i)[offValid] = 0
	}
}

func (a *Arena[V]) slot32(i Index, off int) Index {
	return Index(binary.LittleEndian.Uint32(a.slot(i)[off:]))
}

func (a *Arena[V]) putSlot32(i Index, off int, v Index) {
	binary.LittleEndian.PutUint32(a.slot(i)[off:], uint32(v))
}

func (a *Arena[V]) header32(off int) uint32 {
	return binary.LittleEndian.Uint32(a.data[off:])
}

func (a *Arena[V]) putHeader32(off int, v uint32) {
	binary.LittleEndian.PutUint32(a.data[off:], v)
}
