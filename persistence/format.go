package persistence

import "errors"

const (
	// MagicNumber identifies shmtree snapshot files (ASCII: "SHT1").
	MagicNumber = 0x53485431
	// FormatVersion is the current snapshot format version (v1.0.0).
	FormatVersion = 0x00010000

	// HeaderSize is the fixed size of the snapshot file header.
	HeaderSize = 64
)

// Compression selects the codec applied to the region bytes of a snapshot.
// The live-slot bitmap and the header are never compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported version")
	ErrInvalidCompression = errors.New("unknown compression codec")
	// ErrCorrupted is returned when a snapshot's contents disagree with its
	// header: truncated region, live-count mismatch, or a live-slot bitmap
	// that does not match the region's occupancy.
	ErrCorrupted = errors.New("snapshot corrupted")
)

// Header is the fixed 64-byte snapshot file header. All integers are
// little-endian.
type Header struct {
	Magic       uint32
	Version     uint32
	Capacity    uint32
	PayloadSize uint32
	LiveCount   uint32
	Flags       uint32
	Compression Compression
	_           [3]byte
	BitmapLen   uint32
	RegionLen   uint64
	Checksum    uint32
	_           [20]byte
}
