package shmtree

import (
	"io"

	"github.com/hupe1980/shmtree/persistence"
	"github.com/hupe1980/shmtree/shm"
)

// SnapshotOptions configures WriteSnapshot.
type SnapshotOptions struct {
	// Compression selects the codec applied to the region bytes. Default is
	// no compression.
	Compression persistence.Compression
}

// WriteTo writes an uncompressed snapshot of the region to w. It implements
// io.WriterTo.
func (t *Tree[K, V]) WriteTo(w io.Writer) (int64, error) {
	return t.WriteSnapshot(w)
}

// WriteSnapshot writes a snapshot of the region to w. The caller must hold
// whatever external lock protects the region for the duration.
func (t *Tree[K, V]) WriteSnapshot(w io.Writer, optFns ...func(o *SnapshotOptions)) (int64, error) {
	if !t.ready() {
		t.logger.LogUninitialized("WriteSnapshot")
		return 0, ErrNotInitialized
	}
	o := SnapshotOptions{}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	n, err := persistence.WriteSnapshot(w, t.arena.Bytes(), o.Compression)
	t.logger.LogSnapshot("write", n, err)
	return n, err
}

// ReadSnapshotInto decodes and verifies a snapshot from r and copies the
// region image into region, which must have the exact size the snapshot was
// taken from. Attach with Resume afterwards.
func ReadSnapshotInto(r io.Reader, region *shm.Region) error {
	_, img, err := persistence.ReadSnapshot(r)
	if err != nil {
		return err
	}
	if region.Size() != len(img) {
		return &MismatchError{Field: "region size", Expected: uint32(len(img)), Actual: uint32(region.Size())}
	}
	copy(region.Bytes(), img)
	return nil
}

// LoadSnapshot decodes and verifies a snapshot from r into a fresh anonymous
// region. Attach with Resume afterwards; the caller owns the region.
func LoadSnapshot(r io.Reader) (*shm.Region, error) {
	_, img, err := persistence.ReadSnapshot(r)
	if err != nil {
		return nil, err
	}
	region, err := shm.CreateAnon(len(img))
	if err != nil {
		return nil, err
	}
	copy(region.Bytes(), img)
	return region, nil
}
