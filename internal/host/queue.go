package host

import (
	"errors"
	"sync"

	"github.com/behrlich/go-sbd/internal/blk"
	"github.com/behrlich/go-sbd/internal/constants"
	"github.com/behrlich/go-sbd/internal/interfaces"
)

// ErrQueueDead completes requests submitted after the queue was cleaned up
var ErrQueueDead = errors.New("queue is dead")

// QueueStats counts requests by outcome
type QueueStats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
}

// Queue is a FIFO of pending requests. Whenever work is submitted it calls
// the drain function it was created with, handing itself over as the
// request source. Concurrent submitters lead to concurrent drain calls.
type Queue struct {
	mu        sync.Mutex
	pending   []*blk.Request
	drain     interfaces.DrainFunc
	blockSize uint32
	nextTag   uint16
	dead      bool
	stats     QueueStats
}

func newQueue(drain interfaces.DrainFunc) *Queue {
	return &Queue{
		drain:     drain,
		blockSize: constants.DefaultSectorSize,
	}
}

func (q *Queue) SetLogicalBlockSize(size uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blockSize = size
}

func (q *Queue) LogicalBlockSize() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blockSize
}

// Enqueue adds requests without delivering them
func (q *Queue) Enqueue(reqs ...*blk.Request) {
	var rejected []*blk.Request

	q.mu.Lock()
	for _, req := range reqs {
		q.stats.Submitted++
		if q.dead {
			q.stats.Failed++
			rejected = append(rejected, req)
			continue
		}
		req.SetTag(q.nextTag)
		q.nextTag++
		q.pending = append(q.pending, req)
	}
	q.mu.Unlock()

	for _, req := range rejected {
		req.Finish(ErrQueueDead)
	}
}

// Submit queues req and runs the drain function
func (q *Queue) Submit(req *blk.Request) {
	q.Enqueue(req)
	q.Run()
}

// Run delivers pending work to the drain function once
func (q *Queue) Run() {
	q.mu.Lock()
	dead := q.dead
	q.mu.Unlock()
	if dead {
		return
	}
	q.drain(q)
}

// Pending returns the number of requests not yet fetched
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns request counters
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) Fetch() *blk.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	req := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return req
}

func (q *Queue) EndCurrent(req *blk.Request, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if req.Advance(q.blockSize, err) {
		return true
	}
	q.account(req)
	return false
}

func (q *Queue) EndAll(req *blk.Request, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req.Finish(err)
	q.account(req)
}

func (q *Queue) account(req *blk.Request) {
	if req.Err() != nil {
		q.stats.Failed++
	} else {
		q.stats.Completed++
	}
}

// kill fails everything still pending; later submissions fail immediately
func (q *Queue) kill() {
	q.mu.Lock()
	q.dead = true
	pending := q.pending
	q.pending = nil
	q.stats.Failed += uint64(len(pending))
	q.mu.Unlock()

	for _, req := range pending {
		req.Finish(ErrQueueDead)
	}
}

var (
	_ interfaces.Queue         = (*Queue)(nil)
	_ interfaces.RequestSource = (*Queue)(nil)
)
