package sbd

import (
	"github.com/behrlich/go-sbd/internal/blk"
	"github.com/behrlich/go-sbd/internal/interfaces"
	"github.com/behrlich/go-sbd/internal/queue"
)

// Request is a block request: a kind, a direction, a starting sector and
// one caller buffer per chunk
type Request = blk.Request

// Request kinds. Only KindFS requests carry data the device transfers.
const (
	KindFS        = blk.KindFS
	KindBlockPC   = blk.KindBlockPC
	KindSense     = blk.KindSense
	KindPMSuspend = blk.KindPMSuspend
	KindPMResume  = blk.KindPMResume
	KindSpecial   = blk.KindSpecial
	KindDrvPriv   = blk.KindDrvPriv
)

// Transfer directions
const (
	DirRead  = blk.Read
	DirWrite = blk.Write
)

var (
	// NewRequest builds a request of any kind
	NewRequest = blk.NewRequest
	// NewRead builds a filesystem read
	NewRead = blk.NewRead
	// NewWrite builds a filesystem write
	NewWrite = blk.NewWrite
)

// RangePolicy decides what happens to chunks outside the device
type RangePolicy = queue.RangePolicy

const (
	// PolicyDrop completes out-of-range chunks without touching the store
	PolicyDrop = queue.PolicyDrop
	// PolicyFail ends requests with an out-of-range error
	PolicyFail = queue.PolicyFail
)

// ParsePolicy parses "drop" or "fail"
func ParsePolicy(s string) (RangePolicy, error) {
	return queue.ParsePolicy(s)
}

// Host is the block subsystem a device registers with
type Host = interfaces.Host

// RequestSource is the queue view handed to a drain callback
type RequestSource = interfaces.RequestSource

// Logger is the minimal logger accepted in Options. *logging.Logger
// satisfies it, as does any Printf/Debugf pair.
type Logger = queue.Logger
