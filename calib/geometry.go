// Package calib implements the calibration-and-registration pipeline for a
// fixed overhead camera: collecting checkerboard correspondences, solving for
// pinhole intrinsics and lens distortion, and registering the camera to a
// physical working plane with either a checkerboard or fiducial markers.
package calib

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PatternGeometry describes the checkerboard used as a calibration and
// registration target: the inner corner grid and the physical edge length of
// one square.
type PatternGeometry struct {
	// Width is the number of inner corners along the board's width.
	Width int
	// Height is the number of inner corners along the board's height.
	Height int
	// SquareSize is the edge length of one checkerboard square in physical
	// units, typically millimeters.
	SquareSize float64
}

// CheckValid checks if the fields for PatternGeometry have valid inputs.
func (g PatternGeometry) CheckValid() error {
	if g.Width <= 0 || g.Height <= 0 {
		return errors.Errorf("invalid corner grid (%d, %d), both dimensions must be positive", g.Width, g.Height)
	}
	if g.SquareSize <= 0 {
		return errors.Errorf("invalid square size %v, must be positive", g.SquareSize)
	}
	return nil
}

// CornerCount returns the number of inner corners of the grid.
func (g PatternGeometry) CornerCount() int {
	return g.Width * g.Height
}

// ObjectGrid builds the canonical z=0 reference grid handed to the intrinsic
// solver: points (x, y, 0) for x in [0, Width), y in [0, Height), row-major
// with x varying fastest.
//
// The grid is unit-spaced: SquareSize is deliberately NOT applied here.
// Intrinsics and distortion are scale invariant, so this only changes the
// scale of the translation vectors the solver reports, which therefore come
// out in units of squares rather than physical units. Physical scaling enters
// during plane registration instead (see PlaneGrid).
func (g PatternGeometry) ObjectGrid() []r3.Vector {
	pts := make([]r3.Vector, 0, g.CornerCount())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			pts = append(pts, r3.Vector{X: float64(x), Y: float64(y), Z: 0})
		}
	}
	return pts
}

// PlaneGrid builds the destination points for plane registration: the
// canonical grid scaled by SquareSize and translated by originOffset, the
// real-world position of the grid's reference corner (e.g. the board's border
// margin from the machine origin). Ordering matches ObjectGrid.
func (g PatternGeometry) PlaneGrid(originOffset r2.Point) []r2.Point {
	pts := make([]r2.Point, 0, g.CornerCount())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			pts = append(pts, r2.Point{
				X: float64(x)*g.SquareSize + originOffset.X,
				Y: float64(y)*g.SquareSize + originOffset.Y,
			})
		}
	}
	return pts
}
