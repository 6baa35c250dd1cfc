// Package codec centralizes fixed-width payload encoding for arena slots.
//
// Every slot in a shared region reserves the same number of payload bytes, so
// a codec must declare its width up front via Size. Shmtree intentionally
// treats codec selection as a breaking-change boundary: a region written with
// one codec layout cannot be resumed with another.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShortBuffer is returned when the destination or source buffer is
	// smaller than the codec's declared size.
	ErrShortBuffer = errors.New("codec: short buffer")
	// ErrValueTooLarge is returned when a variable-length value exceeds the
	// fixed slot area.
	ErrValueTooLarge = errors.New("codec: value exceeds fixed payload size")
)

// Payload encodes and decodes a value into the fixed payload area of a slot.
// Implementations must be safe for concurrent use and must never write
// outside dst[:Size()].
type Payload[V any] interface {
	// Size returns the number of payload bytes every slot reserves.
	Size() int
	// Encode writes v into dst. len(dst) is at least Size().
	Encode(dst []byte, v V) error
	// Decode reads a value from src. len(src) is at least Size().
	Decode(src []byte) (V, error)
}

// Validator is an optional interface for codecs that can check whether a
// payload area holds a well-formed encoding. Resume initialization runs it
// over every live slot when implemented.
type Validator interface {
	Validate(src []byte) error
}

// Uint64 returns a codec for uint64 payloads.
func Uint64() Payload[uint64] { return uint64Codec{} }

type uint64Codec struct{}

func (uint64Codec) Size() int { return 8 }

func (uint64Codec) Encode(dst []byte, v uint64) error {
	if len(dst) < 8 {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst, v)
	return nil
}

func (uint64Codec) Decode(src []byte) (uint64, error) {
	if len(src) < 8 {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(src), nil
}

// Int64 returns a codec for int64 payloads.
func Int64() Payload[int64] { return int64Codec{} }

type int64Codec struct{}

func (int64Codec) Size() int { return 8 }

func (int64Codec) Encode(dst []byte, v int64) error {
	if len(dst) < 8 {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst, uint64(v))
	return nil
}

func (int64Codec) Decode(src []byte) (int64, error) {
	if len(src) < 8 {
		return 0, ErrShortBuffer
	}
	return int64(binary.LittleEndian.Uint64(src)), nil
}

// Uint32 returns a codec for uint32 payloads.
func Uint32() Payload[uint32] { return uint32Codec{} }

type uint32Codec struct{}

func (uint32Codec) Size() int { return 4 }

func (uint32Codec) Encode(dst []byte, v uint32) error {
	if len(dst) < 4 {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst, v)
	return nil
}

func (uint32Codec) Decode(src []byte) (uint32, error) {
	if len(src) < 4 {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(src), nil
}

// Float64 returns a codec for float64 payloads.
func Float64() Payload[float64] { return float64Codec{} }

type float64Codec struct{}

func (float64Codec) Size() int { return 8 }

func (float64Codec) Encode(dst []byte, v float64) error {
	if len(dst) < 8 {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
	return nil
}

func (float64Codec) Decode(src []byte) (float64, error) {
	if len(src) < 8 {
		return 0, ErrShortBuffer
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
}

// String returns a codec for strings up to max bytes. The encoding is a
// 4-byte length prefix followed by the raw bytes; the remainder of the fixed
// area is left untouched.
func String(max int) Payload[string] {
	if max < 0 {
		max = 0
	}
	return stringCodec{max: max}
}

type stringCodec struct {
	max int
}

func (c stringCodec) Size() int { return 4 + c.max }

func (c stringCodec) Encode(dst []byte, v string) error {
	if len(dst) < c.Size() {
		return ErrShortBuffer
	}
	if len(v) > c.max {
		return fmt.Errorf("%w: %d > %d", ErrValueTooLarge, len(v), c.max)
	}
	binary.LittleEndian.PutUint32(dst, uint32(len(v)))
	copy(dst[4:], v)
	return nil
}

func (c stringCodec) Decode(src []byte) (string, error) {
	if len(src) < c.Size() {
		return "", ErrShortBuffer
	}
	n := binary.LittleEndian.Uint32(src)
	if int(n) > c.max {
		return "", fmt.Errorf("%w: length prefix %d > %d", ErrValueTooLarge, n, c.max)
	}
	return string(src[4 : 4+n]), nil
}

func (c stringCodec) Validate(src []byte) error {
	if len(src) < c.Size() {
		return ErrShortBuffer
	}
	if n := binary.LittleEndian.Uint32(src); int(n) > c.max {
		return fmt.Errorf("%w: length prefix %d > %d", ErrValueTooLarge, n, c.max)
	}
	return nil
}

// Bytes returns a codec for byte slices up to max bytes, with the same
// length-prefixed layout as String. Decode returns a copy.
func Bytes(max int) Payload[[]byte] {
	if max < 0 {
		max = 0
	}
	return bytesCodec{max: max}
}

type bytesCodec struct {
	max int
}

func (c bytesCodec) Size() int { return 4 + c.max }

func (c bytesCodec) Encode(dst []byte, v []byte) error {
	if len(dst) < c.Size() {
		return ErrShortBuffer
	}
	if len(v) > c.max {
		return fmt.Errorf("%w: %d > %d", ErrValueTooLarge, len(v), c.max)
	}
	binary.LittleEndian.PutUint32(dst, uint32(len(v)))
	copy(dst[4:], v)
	return nil
}

func (c bytesCodec) Decode(src []byte) ([]byte, error) {
	if len(src) < c.Size() {
		return nil, ErrShortBuffer
	}
	n := binary.LittleEndian.Uint32(src)
	if int(n) > c.max {
		return nil, fmt.Errorf("%w: length prefix %d > %d", ErrValueTooLarge, n, c.max)
	}
	out := make([]byte, n)
	copy(out, src[4:4+n])
	return out, nil
}

func (c bytesCodec) Validate(src []byte) error {
	if len(src) < c.Size() {
		return ErrShortBuffer
	}
	if n := binary.LittleEndian.Uint32(src); int(n) > c.max {
		return fmt.Errorf("%w: length prefix %d > %d", ErrValueTooLarge, n, c.max)
	}
	return nil
}
