// Package geometry derives the synthetic CHS geometry reported for a device
package geometry

import (
	"fmt"
	"math"

	"github.com/behrlich/go-sbd/internal/constants"
)

// Geometry is a cylinder/head/sector description for hosts that need one
type Geometry struct {
	Cylinders       uint32 `json:"cylinders"`
	Heads           uint8  `json:"heads"`
	SectorsPerTrack uint8  `json:"sectors_per_track"`
	Start           uint64 `json:"start"`
}

// Compute returns the geometry for a device of capacityBytes.
//
// Cylinders are truncated: sectors past the last whole cylinder remain
// addressable by sector index but not through the geometry.
func Compute(capacityBytes uint64, sectorSize uint32) Geometry {
	g := Geometry{
		Heads:           constants.GeometryHeads,
		SectorsPerTrack: constants.GeometrySectorsPerTrack,
		Start:           constants.GeometryStart,
	}
	if sectorSize == 0 {
		return g
	}

	cyl := (capacityBytes / uint64(sectorSize)) / g.SectorsPerCylinder()
	if cyl > math.MaxUint32 {
		cyl = math.MaxUint32
	}
	g.Cylinders = uint32(cyl)
	return g
}

// SectorsPerCylinder returns heads * sectors per track
func (g Geometry) SectorsPerCylinder() uint64 {
	return uint64(g.Heads) * uint64(g.SectorsPerTrack)
}

// Sectors returns the number of sectors reachable through the geometry
func (g Geometry) Sectors() uint64 {
	return uint64(g.Cylinders) * g.SectorsPerCylinder()
}

// Unaddressable returns how many of totalSectors fall outside the geometry
func (g Geometry) Unaddressable(totalSectors uint64) uint64 {
	if s := g.Sectors(); totalSectors > s {
		return totalSectors - s
	}
	return 0
}

func (g Geometry) String() string {
	return fmt.Sprintf("C/H/S=%d/%d/%d start=%d", g.Cylinders, g.Heads, g.SectorsPerTrack, g.Start)
}
