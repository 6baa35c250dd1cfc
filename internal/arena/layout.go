package arena

import "encoding/binary"

// Region layout:
//
//	[0:64]    header
//	[64:...]  capacity+1 fixed-size slots; slot index == capacity is the
//	          sentinel and never carries a payload
//
// Slot layout:
//
//	[0:4]   self (uint32, always the slot's own index)
//	[4:8]   parent
//	[8:12]  left
//	[12:16] right
//	[16:20] listPrev
//	[20:24] listNext
//	[24]    color
//	[25]    valid
//	[26:32] padding
//	[32:..] payload area, padded to 8 bytes
//
// Everything is little-endian. Only bounded indices are ever stored, so the
// byte image is position-independent and survives remapping at a different
// address or in a different process.
const (
	// Magic identifies shmtree regions (ASCII "SHT1").
	Magic = 0x53485431
	// Version is the current region format version.
	Version = 0x00010000

	// HeaderSize is the fixed management header at the start of a region.
	HeaderSize = 64

	slotMetaSize = 32

	offMagic       = 0
	offVersion     = 4
	offCapacity    = 8
	offPayloadSize = 12
	offSize        = 16
	offFreeStart   = 20
	offListHead    = 24
	offListTail    = 28
	offFlags       = 32

	offSelf     = 0
	offParent   = 4
	offLeft     = 8
	offRight    = 12
	offListPrev = 16
	offListNext = 20
	offColor    = 24
	offValid    = 25

	// FlagInitialized is set once CreateInit has completed.
	FlagInitialized = 1 << 0
	// FlagLRU marks the region's LRU touch-on-access mode.
	FlagLRU = 1 << 1
)

// Index is a bounded slot handle. Indices, never pointers, are what the tree
// and list links hold.
type Index uint32

// Invalid is the reserved null index.
const Invalid Index = 1<<32 - 1

// Color is a red-black node color.
type Color uint8

const (
	Red Color = iota
	Black
)

func align8(n int) int { return (n + 7) &^ 7 }

func le32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// SlotSize returns the byte size of one slot for the given payload width.
func SlotSize(payloadSize int) int {
	return slotMetaSize + align8(payloadSize)
}

// RegionSize returns the byte size a region must have for capacity data slots
// (plus the sentinel) with the given payload width.
func RegionSize(capacity uint32, payloadSize int) int {
	return HeaderSize + int(capacity+1)*SlotSize(payloadSize)
}

// Meta is the management header of a region, read without attaching an
// arena. Snapshot tooling uses it to describe a region it does not own.
type Meta struct {
	Magic       uint32
	Version     uint32
	Capacity    uint32
	PayloadSize uint32
	Size        uint32
	Flags       uint32
}

// ReadMeta parses the management header of a raw region image.
func ReadMeta(region []byte) (Meta, error) {
	if len(region) < HeaderSize {
		return Meta{}, ErrNotInitialized
	}
	m := Meta{
		Magic:       le32(region, offMagic),
		Version:     le32(region, offVersion),
		Capacity:    le32(region, offCapacity),
		PayloadSize: le32(region, offPayloadSize),
		Size:        le32(region, offSize),
		Flags:       le32(region, offFlags),
	}
	if m.Magic != Magic {
		return Meta{}, ErrBadMagic
	}
	if m.Version != Version {
		return Meta{}, ErrBadVersion
	}
	return m, nil
}

// Live reports whether slot i of a raw region image is marked valid. The
// caller guarantees i < capacity and that the region is at least
// RegionSize(capacity, payloadSize) bytes.
func Live(region []byte, payloadSize int, i uint32) bool {
	off := HeaderSize + int(i)*SlotSize(payloadSize) + offValid
	return region[off] != 0
}
