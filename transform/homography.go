package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateProjection is returned when a homography maps a point to
// infinity, that is when the homogeneous scale of the result vanishes.
var ErrDegenerateProjection = errors.New("degenerate projection: homogeneous component is zero")

// degenerateEps bounds |w| below which a projected point is treated as being
// at infinity rather than divided through.
const degenerateEps = 1e-12

// Homography is a 3x3 matrix (represented as a 2D array) that maps points on
// the undistorted image plane to points on the physical working plane.
// Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a Homography from a slice of 9 floats in row-major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	h := Homography{
		{vals[0], vals[1], vals[2]},
		{vals[3], vals[4], vals[5]},
		{vals[6], vals[7], vals[8]},
	}
	return &h, nil
}

// NewHomographyFromMatrix creates a Homography from a 3x3 gonum matrix.
func NewHomographyFromMatrix(m mat.Matrix) (*Homography, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("homography matrix must be 3x3, got %dx%d", r, c)
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j)
		}
	}
	return &h, nil
}

// At returns the value of the homography at the given index.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// RawVals returns the homography as a slice of 9 floats in row-major order.
func (h *Homography) RawVals() []float64 {
	return []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	}
}

// Matrix returns the homography as a 3x3 gonum matrix.
func (h *Homography) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, h.RawVals())
}

// Apply lifts pt to homogeneous coordinates, multiplies by the homography,
// and divides through by the homogeneous component. It returns
// ErrDegenerateProjection when that component is (numerically) zero instead
// of letting the division produce Inf or NaN.
func (h *Homography) Apply(pt r2.Point) (r2.Point, error) {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	w := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	if math.Abs(w) < degenerateEps {
		return r2.Point{}, errors.Wrapf(ErrDegenerateProjection, "point (%v, %v)", pt.X, pt.Y)
	}
	return r2.Point{X: x / w, Y: y / w}, nil
}

// Inverse inverts the homography, yielding the plane-to-pixel mapping.
func (h *Homography) Inverse() (*Homography, error) {
	var hInv mat.Dense
	if err := hInv.Inverse(h.Matrix()); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return NewHomographyFromMatrix(&hInv)
}
