package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/behrlich/go-sbd/internal/addr"
	"github.com/behrlich/go-sbd/internal/blk"
	"github.com/behrlich/go-sbd/internal/interfaces"
	"github.com/behrlich/go-sbd/internal/store"
)

// ErrUnsupportedRequest is the completion error for requests that are not
// filesystem reads or writes
var ErrUnsupportedRequest = errors.New("unsupported request")

// RangePolicy decides what happens to a chunk that does not fit in the store
type RangePolicy int

const (
	// PolicyDrop skips the whole chunk and completes it successfully.
	// A dropped read returns zeroes.
	PolicyDrop RangePolicy = iota
	// PolicyFail ends the request with an out-of-range error
	PolicyFail
)

func (p RangePolicy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyFail:
		return "fail"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses "drop" or "fail"
func ParsePolicy(s string) (RangePolicy, error) {
	switch s {
	case "", "drop":
		return PolicyDrop, nil
	case "fail":
		return PolicyFail, nil
	default:
		return PolicyDrop, fmt.Errorf("unknown range policy %q", s)
	}
}

type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// ChunkLogger is an optional Logger extension with structured per-chunk
// events. When the configured logger implements it, it is used instead of
// the format helpers.
type ChunkLogger interface {
	Logger
	ChunkDone(op string, offset, length uint64, latencyUs int64)
	ChunkDropped(op string, sector, offset, length, capacity uint64)
	RequestRejected(kind string, sector uint64)
}

type Config struct {
	Device     string
	Store      *store.Store
	Token      *Token
	SectorSize uint32
	Policy     RangePolicy
	Logger     Logger
	Observer   interfaces.Observer
}

// DrainStats summarizes one drain invocation
type DrainStats struct {
	Requests    uint32 // requests completed, successfully or not
	Chunks      uint32 // chunks transferred or dropped
	Failed      uint32 // requests completed with an error
	Unsupported uint32 // requests rejected by kind
	Dropped     uint32 // chunks skipped under PolicyDrop
}

// Runner drains a host request source into the backing store. It borrows
// the store and token; both are owned by the device.
type Runner struct {
	device     string
	store      *store.Store
	token      *Token
	sectorSize uint32
	policy     RangePolicy
	logger     Logger
	observer   interfaces.Observer
}

// NewRunner creates a drain runner
func NewRunner(config Config) (*Runner, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("runner requires a backing store")
	}
	if config.Token == nil {
		return nil, fmt.Errorf("runner requires a token")
	}
	if !addr.ValidSectorSize(config.SectorSize) {
		return nil, fmt.Errorf("%w: %d", addr.ErrInvalidSectorSize, config.SectorSize)
	}

	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Runner{
		device:     config.Device,
		store:      config.Store,
		token:      config.Token,
		sectorSize: config.SectorSize,
		policy:     config.Policy,
		logger:     config.Logger,
		observer:   observer,
	}, nil
}

// Drain services every request src holds and returns once it reports empty.
// A request spanning several chunks is finished before the next one is
// fetched. Failures are reported per request; Drain itself never fails.
func (r *Runner) Drain(ctx context.Context, src interfaces.RequestSource) DrainStats {
	var stats DrainStats

	req := src.Fetch()
	for req != nil {
		if !req.IsFS() {
			if cl, ok := r.logger.(ChunkLogger); ok {
				cl.RequestRejected(req.Kind().String(), req.Pos())
			} else if r.logger != nil {
				r.logger.Printf("%s: rejecting %s request at sector %d", r.device, req.Kind(), req.Pos())
			}
			r.observer.ObserveUnsupported()
			src.EndAll(req, fmt.Errorf("%w: %s", ErrUnsupportedRequest, req.Kind()))
			stats.Requests++
			stats.Unsupported++
			stats.Failed++
			req = src.Fetch()
			continue
		}

		// Nothing to transfer
		if req.Buffer() == nil {
			src.EndAll(req, nil)
			stats.Requests++
			req = src.Fetch()
			continue
		}

		err := r.transfer(ctx, req, &stats)
		stats.Chunks++
		if err != nil {
			src.EndAll(req, err)
			stats.Requests++
			stats.Failed++
			req = src.Fetch()
			continue
		}

		if src.EndCurrent(req, nil) {
			continue
		}
		stats.Requests++
		req = src.Fetch()
	}

	r.observer.ObserveDrain(stats.Requests)
	return stats
}

// transfer moves the current chunk of req. Only the copy runs under the token.
func (r *Runner) transfer(ctx context.Context, req *blk.Request, stats *DrainStats) error {
	buf := req.Buffer()
	write := req.Dir() == blk.Write
	op := req.Dir().String()
	capacity := r.store.Size()

	rng, err := addr.Translate(req.Pos(), req.CurSectors(r.sectorSize), r.sectorSize, capacity)
	if err != nil {
		if !errors.Is(err, addr.ErrOutOfRange) {
			return err
		}
		r.observer.ObserveOutOfRange(write, r.policy == PolicyDrop)
		if r.policy == PolicyFail {
			return err
		}
		stats.Dropped++
		if cl, ok := r.logger.(ChunkLogger); ok {
			cl.ChunkDropped(op, req.Pos(), rng.Offset, rng.Length, capacity)
		} else if r.logger != nil {
			r.logger.Printf("%s: %s chunk %s out of range (capacity %d), dropped", r.device, op, rng, capacity)
		}
		if !write {
			clear(buf)
		}
		return nil
	}

	n := rng.Length
	if uint64(len(buf)) < n {
		n = uint64(len(buf))
	}

	start := time.Now()
	if err := r.token.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	if write {
		_, err = r.store.WriteAt(buf[:n], int64(rng.Offset))
	} else {
		_, err = r.store.ReadAt(buf[:n], int64(rng.Offset))
	}
	r.token.Release()
	latency := time.Since(start)

	if write {
		r.observer.ObserveWrite(n, uint64(latency.Nanoseconds()), err == nil)
	} else {
		r.observer.ObserveRead(n, uint64(latency.Nanoseconds()), err == nil)
	}

	if cl, ok := r.logger.(ChunkLogger); ok && err == nil {
		cl.ChunkDone(op, rng.Offset, n, latency.Microseconds())
	} else if r.logger != nil {
		r.logger.Debugf("%s: %s %dB @ sector %d (offset %d) err=%v", r.device, op, n, req.Pos(), rng.Offset, err)
	}
	return err
}

type nopObserver struct{}

func (nopObserver) ObserveRead(uint64, uint64, bool)  {}
func (nopObserver) ObserveWrite(uint64, uint64, bool) {}
func (nopObserver) ObserveUnsupported()               {}
func (nopObserver) ObserveOutOfRange(bool, bool)      {}
func (nopObserver) ObserveDrain(uint32)               {}
