package calib

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
	"gocv.io/x/gocv"
)

// renderCheckerboard draws a checkerboard with the given inner-corner grid
// onto a white canvas. Squares are squarePx wide and the board's outer edge
// sits margin pixels from the canvas origin. The canvas is sized to leave the
// same margin on the far sides.
func renderCheckerboard(t *testing.T, geom PatternGeometry, squarePx, margin int) gocv.Mat {
	t.Helper()
	cols := geom.Width + 1
	rows := geom.Height + 1
	width := cols*squarePx + 2*margin
	height := rows*squarePx + 2*margin

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), height, width, gocv.MatTypeCV8U)
	black := color.RGBA{0, 0, 0, 0}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if (r+c)%2 != 0 {
				continue
			}
			x0 := margin + c*squarePx
			y0 := margin + r*squarePx
			gocv.Rectangle(&canvas, image.Rect(x0, y0, x0+squarePx, y0+squarePx), black, -1)
		}
	}
	return canvas
}

// innerCorners lists the ground-truth inner corner positions of a board
// rendered by renderCheckerboard, in row-major order.
func innerCorners(geom PatternGeometry, squarePx, margin int) []image.Point {
	pts := make([]image.Point, 0, geom.CornerCount())
	for y := 1; y <= geom.Height; y++ {
		for x := 1; x <= geom.Width; x++ {
			pts = append(pts, image.Pt(margin+x*squarePx, margin+y*squarePx))
		}
	}
	return pts
}

// warpView warps src through the homography given as 9 row-major values,
// simulating a different camera pose over the same plane. The border is
// filled white so the board keeps its quiet zone.
func warpView(t *testing.T, src gocv.Mat, hVals []float64) gocv.Mat {
	t.Helper()
	test.That(t, len(hVals), test.ShouldEqual, 9)
	h := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer func() {
		test.That(t, h.Close(), test.ShouldBeNil)
	}()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h.SetDoubleAt(i, j, hVals[i*3+j])
		}
	}
	dst := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(
		src, &dst, h,
		image.Pt(src.Cols(), src.Rows()),
		gocv.InterpolationLinear,
		gocv.BorderConstant,
		color.RGBA{255, 255, 255, 0},
	)
	return dst
}

func closeMat(t *testing.T, m *gocv.Mat) {
	t.Helper()
	test.That(t, m.Close(), test.ShouldBeNil)
}
