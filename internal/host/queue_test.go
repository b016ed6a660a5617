package host

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/go-sbd/internal/blk"
	"github.com/behrlich/go-sbd/internal/interfaces"
)

// completeAll ends every fetched request one segment at a time
func completeAll(src interfaces.RequestSource) {
	for req := src.Fetch(); req != nil; req = src.Fetch() {
		for src.EndCurrent(req, nil) {
		}
	}
}

func TestQueueFIFOAndTags(t *testing.T) {
	q := newQueue(completeAll)
	a := blk.NewRead(0, make([]byte, 512))
	b := blk.NewRead(1, make([]byte, 512))
	q.Enqueue(a, b)

	assert.Equal(t, 2, q.Pending())
	assert.Same(t, a, q.Fetch())
	assert.Same(t, b, q.Fetch())
	assert.Nil(t, q.Fetch())
	assert.Equal(t, uint16(0), a.Tag())
	assert.Equal(t, uint16(1), b.Tag())
}

func TestQueueSubmitDrains(t *testing.T) {
	q := newQueue(completeAll)
	req := blk.NewWrite(0, make([]byte, 512), make([]byte, 512))

	q.Submit(req)

	assert.True(t, req.Done())
	assert.NoError(t, req.Err())
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, QueueStats{Submitted: 1, Completed: 1}, q.Stats())
}

func TestQueueEndCurrentUsesBlockSize(t *testing.T) {
	q := newQueue(completeAll)
	q.SetLogicalBlockSize(4096)
	assert.Equal(t, uint32(4096), q.LogicalBlockSize())

	req := blk.NewRead(2, make([]byte, 4096), make([]byte, 4096))
	q.Enqueue(req)
	got := q.Fetch()

	assert.True(t, q.EndCurrent(got, nil))
	assert.Equal(t, uint64(3), got.Pos())
	assert.False(t, q.EndCurrent(got, nil))
	assert.True(t, got.Done())
}

func TestQueueEndAllCountsFailure(t *testing.T) {
	q := newQueue(func(src interfaces.RequestSource) {
		for req := src.Fetch(); req != nil; req = src.Fetch() {
			src.EndAll(req, errors.New("boom"))
		}
	})

	req := blk.NewRead(0, make([]byte, 512), make([]byte, 512))
	q.Submit(req)

	assert.True(t, req.Done())
	assert.Error(t, req.Err())
	assert.Equal(t, uint64(1), q.Stats().Failed)
}

func TestQueueConcurrentSubmit(t *testing.T) {
	q := newQueue(completeAll)

	const n = 64
	reqs := make([]*blk.Request, n)
	var wg sync.WaitGroup
	for i := range reqs {
		reqs[i] = blk.NewWrite(uint64(i), make([]byte, 512))
		wg.Add(1)
		go func(r *blk.Request) {
			defer wg.Done()
			q.Submit(r)
		}(reqs[i])
	}
	wg.Wait()

	for _, r := range reqs {
		require.True(t, r.Done())
	}
	assert.Equal(t, QueueStats{Submitted: n, Completed: n}, q.Stats())
}
