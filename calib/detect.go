package calib

import (
	"image"

	"github.com/golang/geo/r2"
	"go.viam.com/utils"
	"gocv.io/x/gocv"
)

// DetectorConfig controls sub-pixel corner refinement. The termination rule
// is explicit configuration threaded through the collector: refinement stops
// after MaxIterations or once a corner moves less than Epsilon pixels,
// whichever comes first.
type DetectorConfig struct {
	// Window is the side of the sub-pixel search window, in pixels.
	Window int
	// MaxIterations caps the refinement iterations per corner.
	MaxIterations int
	// Epsilon is the corner movement, in pixels, below which refinement stops.
	Epsilon float64
}

// DefaultDetectorConfig matches the refinement parameters commonly used for
// checkerboard calibration: an 11x11 window, 30 iterations, 0.001px movement.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{Window: 11, MaxIterations: 30, Epsilon: 0.001}
}

// CheckValid checks if the fields for DetectorConfig have valid inputs.
func (cfg DetectorConfig) CheckValid() error {
	if cfg.Window <= 0 || cfg.MaxIterations <= 0 || cfg.Epsilon <= 0 {
		return InvalidDetectorConfigError(cfg)
	}
	return nil
}

// asGray returns a single-channel view of img, converting if needed. The
// returned closer must be called; it is a no-op when no conversion happened.
func asGray(img gocv.Mat) (gocv.Mat, func()) {
	if img.Channels() == 1 {
		return img, func() {}
	}
	gray := gocv.NewMat()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gray, func() { utils.UncheckedErrorFunc(gray.Close) }
}

// FindCheckerboard detects the inner corner grid of geom in img and returns
// the detected image-plane corners in grid order. The second return is false
// when the board is not found.
func FindCheckerboard(img gocv.Mat, geom PatternGeometry) ([]r2.Point, bool) {
	return findCheckerboard(img, geom, nil)
}

// FindCheckerboardSubPix is FindCheckerboard followed by sub-pixel refinement
// of every corner according to cfg.
func FindCheckerboardSubPix(img gocv.Mat, geom PatternGeometry, cfg DetectorConfig) ([]r2.Point, bool) {
	return findCheckerboard(img, geom, &cfg)
}

func findCheckerboard(img gocv.Mat, geom PatternGeometry, refine *DetectorConfig) ([]r2.Point, bool) {
	gray, done := asGray(img)
	defer done()

	corners := gocv.NewMat()
	defer utils.UncheckedErrorFunc(corners.Close)

	found := gocv.FindChessboardCorners(
		gray,
		image.Pt(geom.Width, geom.Height),
		&corners,
		gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage,
	)
	if !found || corners.Rows() != geom.CornerCount() {
		return nil, false
	}

	if refine != nil {
		criteria := gocv.NewTermCriteria(gocv.MaxIter|gocv.EPS, refine.MaxIterations, refine.Epsilon)
		gocv.CornerSubPix(
			gray,
			corners,
			image.Pt(refine.Window, refine.Window),
			image.Pt(-1, -1),
			criteria,
		)
	}

	pts := make([]r2.Point, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		vec := corners.GetVecfAt(i, 0)
		pts = append(pts, r2.Point{X: float64(vec[0]), Y: float64(vec[1])})
	}
	return pts, true
}
