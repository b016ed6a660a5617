package interfaces

import (
	"github.com/behrlich/go-sbd/internal/blk"
	"github.com/behrlich/go-sbd/internal/geometry"
)

// RequestSource is the pull-based view of a host queue handed to the
// drain callback. Implementations must be safe for concurrent use since the
// host may invoke the callback again while a previous invocation is running.
type RequestSource interface {
	// Fetch returns the next pending request, or nil when the queue is empty.
	Fetch() *blk.Request

	// EndCurrent completes the current chunk of req with err.
	// It returns true if req has more chunks to transfer.
	EndCurrent(req *blk.Request, err error) bool

	// EndAll completes every remaining chunk of req with err.
	EndAll(req *blk.Request, err error)
}

// DrainFunc is the callback the host invokes whenever requests are pending
type DrainFunc func(src RequestSource)

// Queue is the host's queue object created for a device
type Queue interface {
	// SetLogicalBlockSize sets the smallest unit the host will address
	SetLogicalBlockSize(size uint32)

	// LogicalBlockSize returns the configured logical block size
	LogicalBlockSize() uint32

	// Submit queues a request and delivers pending work to the drain callback
	Submit(req *blk.Request)
}

// DiskOps are the device operations the host calls on demand
type DiskOps struct {
	// GetGeo returns the synthetic geometry of the disk
	GetGeo func() geometry.Geometry
}

// DiskInfo describes a disk being exposed by the host
type DiskInfo struct {
	Major      int
	FirstMinor int
	Minors     int
	Name       string
	Sectors    uint64 // capacity in logical sectors
	Queue      Queue
	Ops        DiskOps
}

// Disk is a disk the host has exposed
type Disk interface {
	Name() string
	Capacity() uint64
}

// Host is the block subsystem a device registers with. Every acquiring call
// has a matching release call, which the device invokes at most once.
type Host interface {
	// InitQueue creates a queue whose pending requests are delivered to drain
	InitQueue(drain DrainFunc) (Queue, error)

	// CleanupQueue releases a queue created by InitQueue
	CleanupQueue(q Queue)

	// RegisterBlkdev allocates a major number under name
	RegisterBlkdev(name string) (int, error)

	// UnregisterBlkdev releases a major number
	UnregisterBlkdev(major int, name string)

	// AddDisk exposes a disk
	AddDisk(info DiskInfo) (Disk, error)

	// DelDisk removes a disk added by AddDisk
	DelDisk(d Disk)
}
