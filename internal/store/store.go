// Package store provides the volatile memory region backing a device
package store

import (
	"errors"
	"fmt"

	"github.com/behrlich/go-sbd/internal/addr"
)

var (
	// ErrFreed is returned for any access after Free
	ErrFreed = errors.New("backing store freed")

	// ErrZeroCapacity is returned when a zero-sized store is requested
	ErrZeroCapacity = errors.New("zero capacity")
)

const maxInt = int(^uint(0) >> 1)

// Store is a fixed-size, zero-initialized byte region. It does no locking
// of its own; every access must happen while the device's token is held.
type Store struct {
	data     []byte
	capacity uint64
	mapped   bool
}

// New allocates a store of capacity bytes
func New(capacity uint64) (*Store, error) {
	if capacity == 0 {
		return nil, ErrZeroCapacity
	}
	if capacity > uint64(maxInt) {
		return nil, fmt.Errorf("capacity %d exceeds addressable memory", capacity)
	}

	data, mapped, err := allocate(int(capacity))
	if err != nil {
		return nil, fmt.Errorf("allocate %d bytes: %w", capacity, err)
	}

	return &Store{
		data:     data,
		capacity: capacity,
		mapped:   mapped,
	}, nil
}

// ReadAt copies len(p) bytes at off into p. Nothing is copied unless the
// whole range lies inside the store.
func (s *Store) ReadAt(p []byte, off int64) (int, error) {
	r, err := s.check(p, off)
	if err != nil {
		return 0, err
	}
	return copy(p, s.data[r.Offset:r.End()]), nil
}

// WriteAt copies p into the store at off. Nothing is copied unless the
// whole range lies inside the store.
func (s *Store) WriteAt(p []byte, off int64) (int, error) {
	r, err := s.check(p, off)
	if err != nil {
		return 0, err
	}
	return copy(s.data[r.Offset:r.End()], p), nil
}

func (s *Store) check(p []byte, off int64) (addr.Range, error) {
	if s.data == nil {
		return addr.Range{}, ErrFreed
	}
	if off < 0 {
		return addr.Range{}, fmt.Errorf("%w: negative offset %d", addr.ErrOutOfRange, off)
	}
	r := addr.Range{Offset: uint64(off), Length: uint64(len(p))}
	if !r.Within(s.capacity) {
		return addr.Range{}, fmt.Errorf("%w: %s exceeds capacity %d", addr.ErrOutOfRange, r, s.capacity)
	}
	return r, nil
}

// Size returns the capacity in bytes. It does not change after New.
func (s *Store) Size() uint64 {
	return s.capacity
}

// Freed reports whether Free has been called
func (s *Store) Freed() bool {
	return s.data == nil
}

// Free releases the memory. Calling it more than once is a no-op.
func (s *Store) Free() error {
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	if s.mapped {
		return release(data)
	}
	return nil
}
