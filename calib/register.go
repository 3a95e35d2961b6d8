package calib

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gocv.io/x/gocv"

	"github.com/FARI-brussels/calibrate-camera/transform"
)

// Registration is the result of registering the camera to the working plane:
// the homography mapping undistorted pixel coordinates to physical plane
// coordinates, and the per-correspondence inlier status of the robust fit.
type Registration struct {
	Homography *transform.Homography
	Inliers    []bool
}

// MarkerAnchor ties a fiducial marker identifier to its surveyed physical
// position on the working plane.
type MarkerAnchor struct {
	ID       int
	Position r2.Point
}

type registerOptions struct {
	byDetectionOrder bool
}

// RegisterOption configures marker-based registration.
type RegisterOption func(*registerOptions)

// MatchByDetectionOrder pairs the i-th detected marker with the i-th anchor
// instead of matching decoded identifiers. Detection order is not guaranteed
// stable; this exists only for compatibility with data collected under the
// order-based convention.
func MatchByDetectionOrder() RegisterOption {
	return func(o *registerOptions) { o.byDetectionOrder = true }
}

// Undistort removes lens distortion from src using the model's intrinsics.
// The caller owns the returned Mat.
func (m *CameraModel) Undistort(src gocv.Mat) gocv.Mat {
	k := m.KMat()
	defer utils.UncheckedErrorFunc(k.Close)
	d := m.DMat()
	defer utils.UncheckedErrorFunc(d.Close)

	dst := gocv.NewMat()
	gocv.Undistort(src, &dst, k, d, k)
	return dst
}

// RegisterFromCheckerboard estimates the pixel-to-plane homography from a
// reference image of the checkerboard described by geom. The image is
// undistorted with the camera model before detection: the homography is
// always estimated in the undistorted pixel frame. Estimating on distorted
// pixels and correcting points afterwards is not equivalent.
//
// originOffset is the physical position of the grid's reference corner
// relative to the plane origin. Returns ErrTargetNotFound when the board
// cannot be detected; there is no fallback homography.
func RegisterFromCheckerboard(
	refImg gocv.Mat,
	model *CameraModel,
	geom PatternGeometry,
	originOffset r2.Point,
) (*Registration, error) {
	if err := geom.CheckValid(); err != nil {
		return nil, err
	}
	undistorted := model.Undistort(refImg)
	defer utils.UncheckedErrorFunc(undistorted.Close)

	corners, found := FindCheckerboard(undistorted, geom)
	if !found {
		return nil, errors.Wrapf(ErrTargetNotFound,
			"checkerboard with %dx%d inner corners", geom.Width, geom.Height)
	}

	return estimateHomography(corners, geom.PlaneGrid(originOffset))
}

// RegisterFromMarkers estimates the pixel-to-plane homography from fiducial
// markers placed at known physical positions. Detected markers are paired to
// anchors by decoded identifier; markers without a matching anchor (and vice
// versa) are ignored. Pass MatchByDetectionOrder to restore the legacy
// order-based pairing.
//
// The reference image is undistorted before detection when a camera model is
// supplied, matching the checkerboard strategy; historically marker detection
// ran on the raw frame, so a nil model keeps that behavior. Returns
// ErrInsufficientMarkers when fewer than 4 pairings are available.
func RegisterFromMarkers(
	refImg gocv.Mat,
	model *CameraModel,
	anchors []MarkerAnchor,
	opts ...RegisterOption,
) (*Registration, error) {
	var options registerOptions
	for _, opt := range opts {
		opt(&options)
	}
	if len(anchors) < 4 {
		return nil, errors.Wrapf(ErrInsufficientMarkers, "%d anchors supplied", len(anchors))
	}

	img := refImg
	if model != nil {
		undistorted := model.Undistort(refImg)
		defer utils.UncheckedErrorFunc(undistorted.Close)
		img = undistorted
	}

	markers := DetectMarkers(img)
	if len(markers) < 4 {
		return nil, errors.Wrapf(ErrInsufficientMarkers, "%d markers detected", len(markers))
	}

	var src, dst []r2.Point
	if options.byDetectionOrder {
		n := len(markers)
		if len(anchors) < n {
			n = len(anchors)
		}
		for i := 0; i < n; i++ {
			src = append(src, markers[i].Corner)
			dst = append(dst, anchors[i].Position)
		}
	} else {
		byID := make(map[int]r2.Point, len(markers))
		for _, m := range markers {
			byID[m.ID] = m.Corner
		}
		for _, a := range anchors {
			corner, ok := byID[a.ID]
			if !ok {
				continue
			}
			src = append(src, corner)
			dst = append(dst, a.Position)
		}
	}
	if len(src) < 4 {
		return nil, errors.Wrapf(ErrInsufficientMarkers, "%d of %d anchors matched a detected marker", len(src), len(anchors))
	}

	return estimateHomography(src, dst)
}

// estimateHomography runs a robust (RANSAC) point-set fit mapping src to dst.
// Requires at least 4 non-degenerate correspondences.
func estimateHomography(src, dst []r2.Point) (*Registration, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return nil, errors.Errorf("need at least 4 matched correspondences, have %d src and %d dst", len(src), len(dst))
	}

	srcMat := pointsToMat(src)
	defer utils.UncheckedErrorFunc(srcMat.Close)
	dstMat := pointsToMat(dst)
	defer utils.UncheckedErrorFunc(dstMat.Close)
	mask := gocv.NewMat()
	defer utils.UncheckedErrorFunc(mask.Close)

	h := gocv.FindHomography(srcMat, &dstMat, gocv.HomographyMethodRANSAC, 3.0, &mask, 2000, 0.995)
	defer utils.UncheckedErrorFunc(h.Close)
	if h.Empty() {
		return nil, errors.Errorf("homography estimation failed over %d correspondences", len(src))
	}

	homography, err := transform.NewHomographyFromMatrix(matToDense(h))
	if err != nil {
		return nil, err
	}
	inliers := make([]bool, 0, mask.Rows())
	for i := 0; i < mask.Rows(); i++ {
		inliers = append(inliers, mask.GetUCharAt(i, 0) != 0)
	}
	return &Registration{Homography: homography, Inliers: inliers}, nil
}

// pointsToMat packs points into an Nx1 two-channel CV_64F Mat, the point-set
// layout the homography fit expects. The caller owns the returned Mat.
func pointsToMat(pts []r2.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV64FC2)
	for i, p := range pts {
		m.SetDoubleAt(i, 0, p.X)
		m.SetDoubleAt(i, 1, p.Y)
	}
	return m
}

// RegisterFromCheckerboardFile is RegisterFromCheckerboard on an image file.
func RegisterFromCheckerboardFile(
	path string,
	model *CameraModel,
	geom PatternGeometry,
	originOffset r2.Point,
) (*Registration, error) {
	img, err := readImage(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(img.Close)
	return RegisterFromCheckerboard(img, model, geom, originOffset)
}

// RegisterFromMarkersFile is RegisterFromMarkers on an image file.
func RegisterFromMarkersFile(
	path string,
	model *CameraModel,
	anchors []MarkerAnchor,
	opts ...RegisterOption,
) (*Registration, error) {
	img, err := readImage(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(img.Close)
	return RegisterFromMarkers(img, model, anchors, opts...)
}

func readImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return gocv.Mat{}, errors.Errorf("could not decode image %q", path)
	}
	return img, nil
}
