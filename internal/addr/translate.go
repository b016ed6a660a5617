// Package addr maps sector addresses onto byte ranges of the backing store.
package addr

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrOutOfRange is returned when a range does not fit inside the device
	ErrOutOfRange = errors.New("sector range out of bounds")

	// ErrInvalidSectorSize is returned for a zero or non power-of-two sector size
	ErrInvalidSectorSize = errors.New("invalid sector size")
)

// Range is a validated byte range within the backing store
type Range struct {
	Offset uint64
	Length uint64
}

// End returns the first byte past the range
func (r Range) End() uint64 {
	return r.Offset + r.Length
}

// Within reports whether the range lies entirely inside [0, capacity)
func (r Range) Within(capacity uint64) bool {
	end, carry := bits.Add64(r.Offset, r.Length, 0)
	return carry == 0 && end <= capacity
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}

// ValidSectorSize reports whether size can be used as a sector size
func ValidSectorSize(size uint32) bool {
	return size != 0 && size&(size-1) == 0
}

// Translate converts count sectors starting at sector into a byte range.
// The result is returned together with ErrOutOfRange when it does not fit
// in capacity, so callers applying a drop policy can still log it. A range
// ending exactly at capacity is valid.
func Translate(sector uint64, count uint32, sectorSize uint32, capacity uint64) (Range, error) {
	if !ValidSectorSize(sectorSize) {
		return Range{}, fmt.Errorf("%w: %d", ErrInvalidSectorSize, sectorSize)
	}

	hi, offset := bits.Mul64(sector, uint64(sectorSize))
	if hi != 0 {
		return Range{}, fmt.Errorf("%w: sector %d overflows", ErrOutOfRange, sector)
	}
	length := uint64(count) * uint64(sectorSize)

	r := Range{Offset: offset, Length: length}
	if !r.Within(capacity) {
		return r, fmt.Errorf("%w: %s exceeds capacity %d", ErrOutOfRange, r, capacity)
	}
	return r, nil
}

// Sectors returns the number of whole sectors in capacity
func Sectors(capacity uint64, sectorSize uint32) uint64 {
	if sectorSize == 0 {
		return 0
	}
	return capacity / uint64(sectorSize)
}
