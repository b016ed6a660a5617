package constants

// Default configuration constants
const (
	// DefaultSectorSize is the default logical sector size in bytes
	DefaultSectorSize = 512

	// DefaultSectorCount is the default device capacity in sectors
	DefaultSectorCount = 1024

	// DefaultDeviceName is the name the device number is registered under
	DefaultDeviceName = "simple_block"

	// DefaultDiskName is the name of the disk exposed by the host
	DefaultDiskName = "sbd0"

	// DefaultMinors is the number of minor numbers reserved for the disk
	DefaultMinors = 16

	// MaxSectorSize is the largest logical sector size accepted
	MaxSectorSize = 4096

	// MaxDiskNameLen mirrors the host's fixed disk name buffer
	MaxDiskNameLen = 32
)

// Synthetic geometry constants
const (
	// GeometryHeads is the fixed number of heads reported
	GeometryHeads = 4

	// GeometrySectorsPerTrack is the fixed number of sectors per track reported
	GeometrySectorsPerTrack = 16

	// GeometryStart is the reported starting sector
	GeometryStart = 0
)

// Host device numbers
const (
	// DynamicMajorMax is the first major handed out by dynamic allocation
	DynamicMajorMax = 254

	// DynamicMajorMin is the last major handed out by dynamic allocation
	DynamicMajorMin = 234
)
