// Package artifact persists the output of a calibration run: the camera
// matrix K, the distortion coefficients D, and the plane homography H, as a
// single YAML document. The artifact is written atomically and loaded fresh
// by every later rectification session.
package artifact

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"

	"github.com/FARI-brussels/calibrate-camera/transform"
)

// ErrArtifactLoad is when a persisted calibration file is missing or malformed.
var ErrArtifactLoad = errors.New("could not load calibration artifact")

// Artifact bundles the intrinsic camera model with the plane homography. It
// is created once both solver stages succeed and is read-only afterwards.
//
// The on-disk layout stores only the three matrices, so the pixel dimensions
// of the calibrated camera are not round-tripped; a loaded artifact carries
// zero Width/Height. Nothing downstream of loading needs them.
type Artifact struct {
	Intrinsics *transform.PinholeCameraIntrinsics
	Distortion *transform.BrownConrady
	Homography *transform.Homography
}

// fileForm is the on-disk shape: three named matrices, matching the layout
// of the original OpenCV YAML storage this replaces.
type fileForm struct {
	K [][]float64 `yaml:"K"`
	D []float64   `yaml:"D"`
	H [][]float64 `yaml:"H"`
}

// CheckValid checks that all three components are present and well formed.
func (a *Artifact) CheckValid() error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	if a.Intrinsics == nil || a.Intrinsics.Fx <= 0 || a.Intrinsics.Fy <= 0 {
		return transform.NewNoIntrinsicsError("artifact has no valid camera matrix")
	}
	if err := a.Distortion.CheckValid(); err != nil {
		return err
	}
	if a.Homography == nil {
		return errors.New("artifact has no homography")
	}
	return nil
}

// KMat returns the 3x3 camera matrix as a CV_64F Mat. The caller owns it.
func (a *Artifact) KMat() gocv.Mat {
	k := a.Intrinsics.CameraMatrix()
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.SetDoubleAt(i, j, k.At(i, j))
		}
	}
	return m
}

// DMat returns the distortion vector (k1 k2 p1 p2 k3) as a 1x5 CV_64F Mat.
// The caller owns it.
func (a *Artifact) DMat() gocv.Mat {
	params := a.Distortion.Parameters()
	m := gocv.NewMatWithSize(1, len(params), gocv.MatTypeCV64F)
	for i, v := range params {
		m.SetDoubleAt(0, i, v)
	}
	return m
}

// Save writes the artifact to path as a single YAML document. The write is
// atomic: the document goes to a temporary file in the destination directory
// which is then renamed over path.
func (a *Artifact) Save(path string) error {
	if err := a.CheckValid(); err != nil {
		return err
	}
	k := a.Intrinsics.CameraMatrix()
	form := fileForm{
		K: [][]float64{
			{k.At(0, 0), k.At(0, 1), k.At(0, 2)},
			{k.At(1, 0), k.At(1, 1), k.At(1, 2)},
			{k.At(2, 0), k.At(2, 1), k.At(2, 2)},
		},
		D: a.Distortion.Parameters(),
		H: [][]float64{
			{a.Homography.At(0, 0), a.Homography.At(0, 1), a.Homography.At(0, 2)},
			{a.Homography.At(1, 0), a.Homography.At(1, 1), a.Homography.At(1, 2)},
			{a.Homography.At(2, 0), a.Homography.At(2, 1), a.Homography.At(2, 2)},
		},
	}
	out, err := yaml.Marshal(&form)
	if err != nil {
		return errors.Wrap(err, "encoding calibration artifact")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".calibration-*.yml")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file in %q", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		utils.UncheckedErrorFunc(tmp.Close)
		utils.UncheckedErrorFunc(func() error { return os.Remove(tmpName) })
	}
	if _, err := tmp.Write(out); err != nil {
		cleanup()
		return errors.Wrapf(err, "writing calibration artifact to %q", tmpName)
	}
	if err := tmp.Close(); err != nil {
		utils.UncheckedErrorFunc(func() error { return os.Remove(tmpName) })
		return errors.Wrapf(err, "closing %q", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		utils.UncheckedErrorFunc(func() error { return os.Remove(tmpName) })
		return errors.Wrapf(err, "moving calibration artifact into place at %q", path)
	}
	return nil
}

// Load reads an artifact previously written by Save. Failures, including a
// missing file and malformed or mis-shaped matrices, wrap ErrArtifactLoad.
func Load(path string) (*Artifact, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrArtifactLoad, "reading %q: %v", path, err)
	}
	var form fileForm
	if err := yaml.Unmarshal(data, &form); err != nil {
		return nil, errors.Wrapf(ErrArtifactLoad, "parsing %q: %v", path, err)
	}
	if !is3x3(form.K) {
		return nil, errors.Wrapf(ErrArtifactLoad, "%q: K is not a 3x3 matrix", path)
	}
	if !is3x3(form.H) {
		return nil, errors.Wrapf(ErrArtifactLoad, "%q: H is not a 3x3 matrix", path)
	}

	intrinsics := &transform.PinholeCameraIntrinsics{
		Fx:  form.K[0][0],
		Fy:  form.K[1][1],
		Ppx: form.K[0][2],
		Ppy: form.K[1][2],
	}
	distortion, err := transform.NewBrownConrady(form.D)
	if err != nil {
		return nil, errors.Wrapf(ErrArtifactLoad, "%q: %v", path, err)
	}
	homography, err := transform.NewHomography([]float64{
		form.H[0][0], form.H[0][1], form.H[0][2],
		form.H[1][0], form.H[1][1], form.H[1][2],
		form.H[2][0], form.H[2][1], form.H[2][2],
	})
	if err != nil {
		return nil, errors.Wrapf(ErrArtifactLoad, "%q: %v", path, err)
	}
	a := &Artifact{
		Intrinsics: intrinsics,
		Distortion: distortion,
		Homography: homography,
	}
	if err := a.CheckValid(); err != nil {
		return nil, errors.Wrapf(ErrArtifactLoad, "%q: %v", path, err)
	}
	return a, nil
}

func is3x3(m [][]float64) bool {
	if len(m) != 3 {
		return false
	}
	for _, row := range m {
		if len(row) != 3 {
			return false
		}
	}
	return true
}
