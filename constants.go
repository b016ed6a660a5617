package sbd

import "github.com/behrlich/go-sbd/internal/constants"

// Re-export constants for public API
const (
	DefaultSectorSize       = constants.DefaultSectorSize
	DefaultSectorCount      = constants.DefaultSectorCount
	DefaultDeviceName       = constants.DefaultDeviceName
	DefaultDiskName         = constants.DefaultDiskName
	DefaultMinors           = constants.DefaultMinors
	MaxSectorSize           = constants.MaxSectorSize
	GeometryHeads           = constants.GeometryHeads
	GeometrySectorsPerTrack = constants.GeometrySectorsPerTrack
)
