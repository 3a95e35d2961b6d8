package calib

import (
	"math"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/FARI-brussels/calibrate-camera/transform"
)

// Pose is the recovered position of the calibration board in one view: a
// Rodrigues rotation vector and a translation vector, in the units of the
// solver's reference grid (squares, see PatternGeometry.ObjectGrid).
type Pose struct {
	Rotation    [3]float64
	Translation [3]float64
}

// CameraModel is the atomic result of an intrinsic calibration run. It is
// immutable once produced; no partial results are ever exposed.
type CameraModel struct {
	Intrinsics *transform.PinholeCameraIntrinsics
	Distortion *transform.BrownConrady
	// ReprojectionError is the RMS residual between observed corners and the
	// positions predicted by the fitted model, in pixels.
	ReprojectionError float64
	// Poses holds the per-view board poses, in view order.
	Poses []Pose
}

// KMat returns the 3x3 camera matrix as a CV_64F gocv Mat. The caller owns
// the returned Mat.
func (m *CameraModel) KMat() gocv.Mat {
	return denseToMat(m.Intrinsics.CameraMatrix())
}

// DMat returns the distortion coefficient vector (k1 k2 p1 p2 k3) as a 1x5
// CV_64F gocv Mat. The caller owns the returned Mat.
func (m *CameraModel) DMat() gocv.Mat {
	params := m.Distortion.Parameters()
	d := gocv.NewMatWithSize(1, len(params), gocv.MatTypeCV64F)
	for i, v := range params {
		d.SetDoubleAt(0, i, v)
	}
	return d
}

// Solve runs the non-linear calibration solver over every accumulated view at
// once and returns the camera model with its reprojection error. It returns
// ErrSolverConvergence when the correspondences are degenerate: fewer than two
// distinct views, a non-finite residual, or an invalid recovered camera
// matrix.
func Solve(corr *CorrespondenceSet) (*CameraModel, error) {
	if corr == nil || corr.Views() == 0 {
		return nil, errors.Wrap(ErrSolverConvergence, "no correspondences")
	}
	if corr.Views() < 2 {
		return nil, errors.Wrapf(ErrSolverConvergence,
			"need at least 2 views with distinct poses, have %d", corr.Views())
	}

	objectPoints := gocv.NewPoints3fVector()
	defer objectPoints.Close()
	imagePoints := gocv.NewPoints2fVector()
	defer imagePoints.Close()
	for v := 0; v < corr.Views(); v++ {
		obj := make([]gocv.Point3f, len(corr.Object[v]))
		for i, p := range corr.Object[v] {
			obj[i] = gocv.NewPoint3f(float32(p.X), float32(p.Y), float32(p.Z))
		}
		img := make([]gocv.Point2f, len(corr.Image[v]))
		for i, p := range corr.Image[v] {
			img[i] = gocv.NewPoint2f(float32(p.X), float32(p.Y))
		}
		objVec := gocv.NewPoint3fVectorFromPoints(obj)
		objectPoints.Append(objVec)
		objVec.Close()
		imgVec := gocv.NewPoint2fVectorFromPoints(img)
		imagePoints.Append(imgVec)
		imgVec.Close()
	}

	cameraMatrix := gocv.NewMat()
	defer utils.UncheckedErrorFunc(cameraMatrix.Close)
	distCoeffs := gocv.NewMat()
	defer utils.UncheckedErrorFunc(distCoeffs.Close)
	rvecs := gocv.NewMat()
	defer utils.UncheckedErrorFunc(rvecs.Close)
	tvecs := gocv.NewMat()
	defer utils.UncheckedErrorFunc(tvecs.Close)

	rms := gocv.CalibrateCamera(
		objectPoints, imagePoints, corr.ImageSize,
		&cameraMatrix, &distCoeffs, &rvecs, &tvecs,
		gocv.CalibFlag(0),
	)
	if math.IsNaN(rms) || math.IsInf(rms, 0) || rms < 0 {
		return nil, errors.Wrapf(ErrSolverConvergence, "solver residual %v", rms)
	}

	k := matToDense(cameraMatrix)
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromMatrix(k, corr.ImageSize.X, corr.ImageSize.Y)
	if err != nil {
		return nil, errors.Wrapf(ErrSolverConvergence, "recovered camera matrix invalid: %v", err)
	}
	distortion, err := transform.NewBrownConrady(readDoubleVector(distCoeffs, 5))
	if err != nil {
		return nil, errors.Wrapf(ErrSolverConvergence, "recovered distortion invalid: %v", err)
	}

	poses := make([]Pose, 0, corr.Views())
	rot := readVec3Rows(rvecs)
	trans := readVec3Rows(tvecs)
	for v := 0; v < corr.Views() && v < len(rot) && v < len(trans); v++ {
		poses = append(poses, Pose{Rotation: rot[v], Translation: trans[v]})
	}

	return &CameraModel{
		Intrinsics:        intrinsics,
		Distortion:        distortion,
		ReprojectionError: rms,
		Poses:             poses,
	}, nil
}

func matToDense(m gocv.Mat) *mat.Dense {
	out := mat.NewDense(m.Rows(), m.Cols(), nil)
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			out.Set(i, j, m.GetDoubleAt(i, j))
		}
	}
	return out
}

func denseToMat(d *mat.Dense) gocv.Mat {
	r, c := d.Dims()
	out := gocv.NewMatWithSize(r, c, gocv.MatTypeCV64F)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.SetDoubleAt(i, j, d.At(i, j))
		}
	}
	return out
}

// readDoubleVector flattens a 1xN or Nx1 CV_64F Mat, truncating to at most
// max entries. The solver may emit more distortion terms than the standard
// five; only the radial/tangential set is kept.
func readDoubleVector(m gocv.Mat, max int) []float64 {
	n := m.Rows() * m.Cols()
	if n > max {
		n = max
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if m.Rows() == 1 {
			out = append(out, m.GetDoubleAt(0, i))
		} else {
			out = append(out, m.GetDoubleAt(i, 0))
		}
	}
	return out
}

// readVec3Rows reads an Nx3 CV_64F Mat, or an Nx1 3-channel one, as N
// 3-vectors. Both layouts appear depending on how the solver packs its
// per-view output.
func readVec3Rows(m gocv.Mat) [][3]float64 {
	out := make([][3]float64, 0, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		var v [3]float64
		if m.Cols() >= 3 {
			for j := 0; j < 3; j++ {
				v[j] = m.GetDoubleAt(i, j)
			}
		} else {
			vec := m.GetVecdAt(i, 0)
			for j := 0; j < 3 && j < len(vec); j++ {
				v[j] = vec[j]
			}
		}
		out = append(out, v)
	}
	return out
}
