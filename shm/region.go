// Package shm manages the byte regions a tree's arena lives in.
//
// A Region is either file-backed (shared between processes mapping the same
// file) or anonymous (single-process). The package only hands out bytes; the
// two-phase Create/Resume container initialization is driven by the tree on
// top of a Region.
package shm

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/shmtree/internal/mmap"
)

// ErrClosed is returned when a Region is used after Close.
var ErrClosed = errors.New("shm: region closed")

// Region is a fixed-size byte region backed by a shared mapping.
type Region struct {
	data []byte
	m    *mmap.Mapping
	path string
}

// Create creates (or truncates) the file at path, sizes it to size bytes and
// maps it read-write shared. The returned bytes are zeroed, ready for a
// Create-mode container initialization.
//
// Exactly one process must Create a region; every other participant attaches
// with Resume.
func Create(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, err
	}
	m, err := mmap.MapFile(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Region{data: m.Bytes(), m: m, path: path}, nil
}

// Resume maps an existing region file read-write shared. The file's current
// size determines the region size.
func Resume(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size <= 0 {
		f.Close()
		return nil, fmt.Errorf("shm: region file %s is empty", path)
	}
	m, err := mmap.MapFile(f, int(size))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Region{data: m.Bytes(), m: m, path: path}, nil
}

// CreateAnon allocates an anonymous region of size bytes. Anonymous regions
// cannot be shared across processes or resumed; they exist for single-process
// use of the same container code.
func CreateAnon(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}
	m, err := mmap.MapAnon(size)
	if err != nil {
		return nil, err
	}
	return &Region{data: m.Bytes(), m: m}, nil
}

// Bytes returns the region's bytes. The slice is valid until Close.
func (r *Region) Bytes() []byte { return r.data }

// Size returns the region size in bytes.
func (r *Region) Size() int { return len(r.data) }

// Path returns the backing file path, or "" for anonymous regions.
func (r *Region) Path() string { return r.path }

// Sync flushes modified pages to the backing file. No-op for anonymous
// regions.
func (r *Region) Sync() error {
	if r.data == nil {
		return ErrClosed
	}
	return r.m.Sync()
}

// Close unmaps the region. Any arena views into the region become invalid.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	r.data = nil
	return r.m.Close()
}
