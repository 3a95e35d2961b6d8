// Package rectify turns raw camera frames into top-down views of the working
// plane using a persisted calibration artifact: lens undistortion first, then
// a perspective warp through the plane homography.
package rectify

import (
	"image"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gocv.io/x/gocv"

	"github.com/FARI-brussels/calibrate-camera/artifact"
)

// ErrUnsupportedImageFile is when a file handed to the pipeline cannot be
// decoded as an image.
var ErrUnsupportedImageFile = errors.New("unsupported or undecodable image file")

// Pipeline applies the two-stage rectification transform. The stage order is
// strict: undistort with the intrinsics, then warp with the homography. The
// undistortion is the same operation used during registration, so the two
// stay geometrically consistent.
type Pipeline struct {
	k, d, h             gocv.Mat
	outWidth, outHeight int
}

// NewPipeline builds a pipeline from a calibration artifact and the output
// canvas size. Close must be called when done.
func NewPipeline(a *artifact.Artifact, outWidth, outHeight int) (*Pipeline, error) {
	if err := a.CheckValid(); err != nil {
		return nil, err
	}
	if outWidth <= 0 || outHeight <= 0 {
		return nil, errors.Errorf("invalid output size %dx%d", outWidth, outHeight)
	}
	h := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h.SetDoubleAt(i, j, a.Homography.At(i, j))
		}
	}
	return &Pipeline{
		k:         a.KMat(),
		d:         a.DMat(),
		h:         h,
		outWidth:  outWidth,
		outHeight: outHeight,
	}, nil
}

// Close releases the pipeline's matrices.
func (p *Pipeline) Close() error {
	for _, m := range []*gocv.Mat{&p.k, &p.d, &p.h} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Rectify undistorts src and warps it onto the output canvas. Pixels mapping
// outside the valid source region keep the warp's default border fill. The
// caller owns the returned Mat.
func (p *Pipeline) Rectify(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.Mat{}, errors.New("input image is empty")
	}

	undistorted := gocv.NewMat()
	defer utils.UncheckedErrorFunc(undistorted.Close)
	gocv.Undistort(src, &undistorted, p.k, p.d, p.k)

	warped := gocv.NewMat()
	gocv.WarpPerspective(undistorted, &warped, p.h, image.Pt(p.outWidth, p.outHeight))
	return warped, nil
}

// RectifyFile reads the image at path, rectifies it, and writes the result to
// outPath. Returns ErrUnsupportedImageFile when the input does not decode.
func (p *Pipeline) RectifyFile(path, outPath string) error {
	src := gocv.IMRead(path, gocv.IMReadColor)
	if src.Empty() {
		return errors.Wrapf(ErrUnsupportedImageFile, "%q", path)
	}
	defer utils.UncheckedErrorFunc(src.Close)

	out, err := p.Rectify(src)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(out.Close)

	if ok := gocv.IMWrite(outPath, out); !ok {
		return errors.Errorf("could not write rectified image to %q", outPath)
	}
	return nil
}
