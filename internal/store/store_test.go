package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/go-sbd/internal/addr"
)

func TestNew(t *testing.T) {
	s, err := New(1024)
	require.NoError(t, err)
	defer s.Free()

	assert.Equal(t, uint64(1024), s.Size())
	assert.Len(t, s.data, 1024)
	assert.False(t, s.Freed())
}

func TestNewZeroCapacity(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrZeroCapacity)
}

func TestNewIsZeroed(t *testing.T) {
	s, err := New(64 * 1024)
	require.NoError(t, err)
	defer s.Free()

	buf := make([]byte, 64*1024)
	for i := range buf {
		buf[i] = 0xff
	}
	n, err := s.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, make([]byte, len(buf)), buf)
}

func TestReadWrite(t *testing.T) {
	s, err := New(1024)
	require.NoError(t, err)
	defer s.Free()

	data := []byte("Hello, sbd!")
	n, err := s.WriteAt(data, 100)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = s.ReadAt(got, 100)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, got)
}

func TestBoundaryConditions(t *testing.T) {
	s, err := New(100)
	require.NoError(t, err)
	defer s.Free()

	// Ending exactly at capacity is fine
	n, err := s.WriteAt([]byte("test"), 96)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Straddling the end copies nothing
	n, err = s.WriteAt([]byte("test"), 98)
	assert.ErrorIs(t, err, addr.ErrOutOfRange)
	assert.Zero(t, n)

	got := make([]byte, 4)
	_, err = s.ReadAt(got, 96)
	require.NoError(t, err)
	assert.Equal(t, []byte("test"), got)

	// Completely beyond the end
	_, err = s.WriteAt([]byte("test"), 101)
	assert.ErrorIs(t, err, addr.ErrOutOfRange)

	_, err = s.ReadAt(make([]byte, 50), 80)
	assert.ErrorIs(t, err, addr.ErrOutOfRange)

	_, err = s.ReadAt(make([]byte, 1), -1)
	assert.ErrorIs(t, err, addr.ErrOutOfRange)
}

func TestFree(t *testing.T) {
	s, err := New(4096)
	require.NoError(t, err)

	require.NoError(t, s.Free())
	assert.True(t, s.Freed())
	assert.Equal(t, uint64(4096), s.Size(), "capacity is fixed for the store's lifetime")

	// Second free is a no-op
	require.NoError(t, s.Free())

	_, err = s.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrFreed)
	_, err = s.WriteAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrFreed)
}

func BenchmarkStoreRead(b *testing.B) {
	s, err := New(1024 * 1024)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Free()

	buf := make([]byte, 4096)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		offset := int64(i*4096) % (1024*1024 - 4096)
		s.ReadAt(buf, offset)
	}
}

func BenchmarkStoreWrite(b *testing.B) {
	s, err := New(1024 * 1024)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Free()

	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = byte(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		offset := int64(i*4096) % (1024*1024 - 4096)
		s.WriteAt(buf, offset)
	}
}
