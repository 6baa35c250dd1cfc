package shmtree

import (
	"errors"
	"fmt"

	"github.com/hupe1980/shmtree/internal/arena"
)

var (
	// ErrFull is returned when a single-element insert hits the fixed
	// capacity. The container is left unmodified.
	ErrFull = errors.New("tree is full")

	// ErrDuplicateKey is returned by InsertUnique when the key already
	// exists. The accompanying iterator points at the existing element.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotInitialized is returned by mutating operations on a tree that
	// has not been attached to an initialized region. Read operations
	// return empty defaults instead.
	ErrNotInitialized = errors.New("tree not initialized")

	// ErrInvalidIterator is returned when dereferencing or erasing at an
	// end or detached iterator.
	ErrInvalidIterator = errors.New("invalid iterator")
)

// MismatchError reports a construction parameter that disagrees with the
// resumed region (capacity, payload width).
//
// The underlying arena error can be accessed via errors.Unwrap.
type MismatchError struct {
	Field    string
	Expected uint32
	Actual   uint32
	cause    error
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("region %s mismatch: region has %d, caller expects %d", e.Field, e.Actual, e.Expected)
}

func (e *MismatchError) Unwrap() error { return e.cause }

func translateArenaErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, arena.ErrFull) {
		return fmt.Errorf("%w: %w", ErrFull, err)
	}
	if errors.Is(err, arena.ErrNotInitialized) {
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	var mm *arena.MismatchError
	if errors.As(err, &mm) {
		return &MismatchError{Field: mm.Field, Expected: mm.Expected, Actual: mm.Actual, cause: err}
	}
	return err
}
