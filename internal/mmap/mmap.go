// Package mmap provides thin wrappers around memory-mapped regions.
//
// Two kinds of mappings are supported: file-backed shared mappings (the
// substrate for cross-process regions) and anonymous private mappings
// (single-process use without a backing file).
package mmap

import (
	"errors"
	"os"
)

// Mapping is a live memory mapping.
type Mapping struct {
	data     []byte
	f        *os.File
	readonly bool
}

// MapFile maps size bytes of f read-write and shared. Writes through the
// returned bytes are visible to every process mapping the same file.
func MapFile(f *os.File, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, errors.New("mmap: non-positive size")
	}
	data, err := mapShared(f, size)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, f: f}, nil
}

// Open maps the file at path read-only and shared, for zero-copy reads of
// immutable blobs.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, errors.New("mmap: empty file")
	}
	data, err := mapRead(f, int(fi.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Mapping{data: data, f: f, readonly: true}, nil
}

// MapAnon maps size bytes of zeroed anonymous memory.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, errors.New("mmap: non-positive size")
	}
	data, err := mapAnon(size)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped byte slice. The slice is valid until Close.
func (m *Mapping) Bytes() []byte { return m.data }

// Sync flushes modified pages back to the backing file. It is a no-op for
// anonymous mappings.
func (m *Mapping) Sync() error {
	if m == nil || m.data == nil || m.f == nil || m.readonly {
		return nil
	}
	return msync(m.data)
}

// Close unmaps the memory and closes the underlying file, if any.
func (m *Mapping) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if m.f != nil {
		if closeErr := m.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.f = nil
	}
	return err
}
