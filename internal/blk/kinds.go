// Package blk defines the request descriptors exchanged between a host
// queue and the device drain loop.
package blk

import "fmt"

// Kind is the class of a queued request
type Kind uint8

// Request kinds
const (
	KindFS        Kind = 1 // filesystem read/write
	KindBlockPC   Kind = 2 // SCSI-style passthrough command
	KindSense     Kind = 3 // sense request
	KindPMSuspend Kind = 4 // power management suspend
	KindPMResume  Kind = 5 // power management resume
	KindSpecial   Kind = 7 // driver special
	KindDrvPriv   Kind = 9 // driver private
)

func (k Kind) String() string {
	switch k {
	case KindFS:
		return "FS"
	case KindBlockPC:
		return "BLOCK_PC"
	case KindSense:
		return "SENSE"
	case KindPMSuspend:
		return "PM_SUSPEND"
	case KindPMResume:
		return "PM_RESUME"
	case KindSpecial:
		return "SPECIAL"
	case KindDrvPriv:
		return "DRV_PRIV"
	default:
		return fmt.Sprintf("KIND_%d", uint8(k))
	}
}

// Dir is the data direction of a request
type Dir uint8

// Data directions
const (
	Read  Dir = 0
	Write Dir = 1
)

func (d Dir) String() string {
	if d == Write {
		return "WRITE"
	}
	return "READ"
}
