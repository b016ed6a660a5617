package blk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestCursor(t *testing.T) {
	req := NewWrite(8, make([]byte, 512), make([]byte, 1024), make([]byte, 512))

	assert.True(t, req.IsFS())
	assert.Equal(t, Write, req.Dir())
	assert.Equal(t, 3, req.Segments())
	assert.Equal(t, 2048, req.Bytes())

	assert.Equal(t, uint64(8), req.Pos())
	assert.Equal(t, uint32(1), req.CurSectors(512))
	assert.True(t, req.Advance(512, nil))

	assert.Equal(t, uint64(9), req.Pos())
	assert.Equal(t, uint32(2), req.CurSectors(512))
	assert.Equal(t, 2, req.Remaining())
	assert.True(t, req.Advance(512, nil))

	assert.Equal(t, uint64(11), req.Pos())
	assert.False(t, req.Advance(512, nil))

	assert.True(t, req.Done())
	assert.NoError(t, req.Err())
	assert.Nil(t, req.Buffer())
	assert.Zero(t, req.Remaining())
	assert.Equal(t, uint64(8), req.Start())
}

func TestRequestPartialSector(t *testing.T) {
	req := NewRead(0, make([]byte, 700))
	assert.Equal(t, uint32(2), req.CurSectors(512))
	assert.Equal(t, uint32(0), req.CurSectors(0))
}

func TestRequestFirstErrorWins(t *testing.T) {
	first := errors.New("first")
	req := NewRead(0, make([]byte, 512), make([]byte, 512))

	req.Advance(512, first)
	req.Finish(errors.New("second"))

	assert.True(t, req.Done())
	assert.Equal(t, first, req.Err())

	// Finished requests ignore further completions
	assert.False(t, req.Advance(512, nil))
	req.Finish(nil)
	assert.Equal(t, first, req.Err())
}

func TestRequestFinishDropsRemaining(t *testing.T) {
	req := NewRequest(KindSense, Read, 4, make([]byte, 512), make([]byte, 512))
	assert.False(t, req.IsFS())

	req.Finish(nil)
	assert.True(t, req.Done())
	assert.Zero(t, req.Remaining())
	assert.Equal(t, uint64(4), req.Pos())
}

func TestKindAndDirString(t *testing.T) {
	assert.Equal(t, "FS", KindFS.String())
	assert.Equal(t, "BLOCK_PC", KindBlockPC.String())
	assert.Equal(t, "KIND_42", Kind(42).String())
	assert.Equal(t, "READ", Read.String())
	assert.Equal(t, "WRITE", Write.String())
}

func TestRequestTag(t *testing.T) {
	req := NewRead(0)
	req.SetTag(7)
	assert.Equal(t, uint16(7), req.Tag())
	assert.Nil(t, req.Buffer())
}
