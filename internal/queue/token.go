package queue

import (
	"context"
	"sync/atomic"
)

// Token serializes every access to the backing store. Reads and writes are
// treated alike: one holder at a time.
//
// Acquire honours context cancellation so a waiter is never stuck behind a
// holder that does not return.
type Token struct {
	ch chan struct{}

	holders      atomic.Int32
	peak         atomic.Int32
	acquisitions atomic.Uint64
}

// NewToken returns an unheld token
func NewToken() *Token {
	return &Token{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the token is held or ctx is done
func (t *Token) Acquire(ctx context.Context) error {
	select {
	case t.ch <- struct{}{}:
	default:
		select {
		case t.ch <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.held()
	return nil
}

// TryAcquire takes the token only if it is free
func (t *Token) TryAcquire() bool {
	select {
	case t.ch <- struct{}{}:
		t.held()
		return true
	default:
		return false
	}
}

func (t *Token) held() {
	n := t.holders.Add(1)
	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			break
		}
	}
	t.acquisitions.Add(1)
}

// Release gives up the token. Releasing an unheld token panics, as it does
// for sync.Mutex.
//
// The holder count drops before the slot is freed, so the next holder never
// sees a count of two.
func (t *Token) Release() {
	for {
		n := t.holders.Load()
		if n <= 0 {
			panic("queue: release of unheld token")
		}
		if t.holders.CompareAndSwap(n, n-1) {
			break
		}
	}
	<-t.ch
}

// Holders returns the current number of holders (0 or 1)
func (t *Token) Holders() int32 {
	return t.holders.Load()
}

// Peak returns the highest number of simultaneous holders ever observed
func (t *Token) Peak() int32 {
	return t.peak.Load()
}

// Acquisitions returns how many times the token has been taken
func (t *Token) Acquisitions() uint64 {
	return t.acquisitions.Load()
}
