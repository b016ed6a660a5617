package sbd

import "github.com/behrlich/go-sbd/internal/geometry"

// Geometry is the synthetic cylinder/head/sector layout reported for a disk
type Geometry = geometry.Geometry

// ComputeGeometry returns the geometry reported for a device of
// capacityBytes: 4 heads, 16 sectors per track, start 0 and as many whole
// cylinders as fit.
func ComputeGeometry(capacityBytes uint64, sectorSize uint32) Geometry {
	return geometry.Compute(capacityBytes, sectorSize)
}
