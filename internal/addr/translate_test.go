package addr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capacity = 1024 * 512

func TestTranslate(t *testing.T) {
	tests := []struct {
		name    string
		sector  uint64
		count   uint32
		want    Range
		wantErr error
	}{
		{"first sector", 0, 1, Range{0, 512}, nil},
		{"middle", 10, 4, Range{5120, 2048}, nil},
		{"last sector", 1023, 1, Range{1023 * 512, 512}, nil},
		{"whole device", 0, 1024, Range{0, capacity}, nil},
		{"zero count at end", 1024, 0, Range{capacity, 0}, nil},
		{"past end", 1024, 1, Range{capacity, 512}, ErrOutOfRange},
		{"straddles end", 1023, 2, Range{1023 * 512, 1024}, ErrOutOfRange},
		{"far past end", 1 << 40, 1, Range{(1 << 40) * 512, 512}, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Translate(tt.sector, tt.count, 512, capacity)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateOverflow(t *testing.T) {
	_, err := Translate(math.MaxUint64/2, 1, 512, capacity)
	assert.ErrorIs(t, err, ErrOutOfRange)

	// Offset fits in 64 bits but offset+length wraps
	_, err = Translate(math.MaxUint64/512, math.MaxUint32, 512, math.MaxUint64)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestTranslateLargeDevice(t *testing.T) {
	// 2^32 sectors must not overflow 32-bit intermediate math
	const sectors = uint64(1) << 32
	const big = sectors * 512

	r, err := Translate(sectors-1, 1, 512, big)
	require.NoError(t, err)
	assert.Equal(t, big-512, r.Offset)
	assert.Equal(t, big, r.End())
}

func TestTranslateInvalidSectorSize(t *testing.T) {
	for _, size := range []uint32{0, 3, 500, 513} {
		_, err := Translate(0, 1, size, capacity)
		assert.ErrorIs(t, err, ErrInvalidSectorSize, "size %d", size)
	}
	for _, size := range []uint32{1, 512, 4096} {
		assert.True(t, ValidSectorSize(size))
	}
}

func TestRangeWithin(t *testing.T) {
	assert.True(t, Range{0, 10}.Within(10))
	assert.False(t, Range{1, 10}.Within(10))
	assert.False(t, Range{math.MaxUint64, 2}.Within(math.MaxUint64))
	assert.Equal(t, "[512, 1024)", Range{512, 512}.String())
}

func TestSectors(t *testing.T) {
	assert.Equal(t, uint64(1024), Sectors(capacity, 512))
	assert.Equal(t, uint64(128), Sectors(capacity, 4096))
	assert.Equal(t, uint64(0), Sectors(capacity, 0))
}
