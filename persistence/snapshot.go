package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/shmtree/internal/arena"
)

// Snapshot layout:
//
//	[0:64]  Header
//	[64:..] roaring bitmap of live slot indices (BitmapLen bytes)
//	[..:..] region bytes, raw or compressed per Header.Compression
//
// The checksum covers the bitmap and the (compressed) region bytes. On load
// the bitmap is recomputed from the decoded region and compared against the
// stored one, which catches corruption CRC32 alone could miss being paired
// with, such as a decompressor returning stale buffers.

// WriteSnapshot encodes an initialized region image to w and returns the
// number of bytes written.
func WriteSnapshot(w io.Writer, region []byte, comp Compression) (int64, error) {
	meta, err := arena.ReadMeta(region)
	if err != nil {
		return 0, err
	}
	if meta.Flags&arena.FlagInitialized == 0 {
		return 0, fmt.Errorf("%w: region not initialized", ErrCorrupted)
	}
	if want := arena.RegionSize(meta.Capacity, int(meta.PayloadSize)); len(region) != want {
		return 0, fmt.Errorf("%w: region is %d bytes, layout wants %d", ErrCorrupted, len(region), want)
	}

	bitmapBytes, err := liveBitmap(region, meta).ToBytes()
	if err != nil {
		return 0, fmt.Errorf("serialize live bitmap: %w", err)
	}

	payload, err := compress(region, comp)
	if err != nil {
		return 0, err
	}

	cw := NewChecksumWriter(io.Discard)
	_, _ = cw.Write(bitmapBytes)
	_, _ = cw.Write(payload)

	hdr := Header{
		Magic:       MagicNumber,
		Version:     FormatVersion,
		Capacity:    meta.Capacity,
		PayloadSize: meta.PayloadSize,
		LiveCount:   meta.Size,
		Flags:       meta.Flags,
		Compression: comp,
		BitmapLen:   uint32(len(bitmapBytes)),
		RegionLen:   uint64(len(region)),
		Checksum:    cw.Sum(),
	}

	var n int64
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return n, err
	}
	n += HeaderSize
	for _, part := range [][]byte{bitmapBytes, payload} {
		m, err := w.Write(part)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadSnapshot decodes and verifies a snapshot, returning its header and the
// raw region image ready to be copied into a mapped region.
func ReadSnapshot(r io.Reader) (*Header, []byte, error) {
	var hdr Header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if hdr.Magic != MagicNumber {
		return nil, nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, hdr.Magic)
	}
	if hdr.Version != FormatVersion {
		return nil, nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, hdr.Version)
	}

	cr := NewChecksumReader(r)
	bitmapBytes := make([]byte, hdr.BitmapLen)
	if _, err := io.ReadFull(cr, bitmapBytes); err != nil {
		return nil, nil, fmt.Errorf("read live bitmap: %w", err)
	}
	payload, err := io.ReadAll(cr)
	if err != nil {
		return nil, nil, fmt.Errorf("read region bytes: %w", err)
	}
	if err := cr.Verify(hdr.Checksum); err != nil {
		return nil, nil, err
	}

	region, err := decompress(payload, hdr.Compression, int(hdr.RegionLen))
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(region)) != hdr.RegionLen {
		return nil, nil, fmt.Errorf("%w: region decoded to %d bytes, header says %d", ErrCorrupted, len(region), hdr.RegionLen)
	}

	meta, err := arena.ReadMeta(region)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if meta.Capacity != hdr.Capacity || meta.PayloadSize != hdr.PayloadSize || meta.Size != hdr.LiveCount {
		return nil, nil, fmt.Errorf("%w: region header disagrees with snapshot header", ErrCorrupted)
	}

	stored := roaring.New()
	if err := stored.UnmarshalBinary(bitmapBytes); err != nil {
		return nil, nil, fmt.Errorf("%w: live bitmap: %v", ErrCorrupted, err)
	}
	if recomputed := liveBitmap(region, meta); !stored.Equals(recomputed) {
		return nil, nil, fmt.Errorf("%w: live bitmap does not match region occupancy", ErrCorrupted)
	}

	return &hdr, region, nil
}

func liveBitmap(region []byte, meta arena.Meta) *roaring.Bitmap {
	bm := roaring.New()
	ps := int(meta.PayloadSize)
	for i := uint32(0); i < meta.Capacity; i++ {
		if arena.Live(region, ps, i) {
			bm.Add(i)
		}
	}
	return bm
}

func compress(data []byte, comp Compression) ([]byte, error) {
	switch comp {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, comp)
	}
}

func decompress(data []byte, comp Compression, sizeHint int) ([]byte, error) {
	switch comp {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, make([]byte, 0, sizeHint))
	case CompressionLZ4:
		var buf bytes.Buffer
		buf.Grow(sizeHint)
		if _, err := buf.ReadFrom(lz4.NewReader(bytes.NewReader(data))); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, comp)
	}
}
