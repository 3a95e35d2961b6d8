package calib

import "github.com/pkg/errors"

// InvalidDetectorConfigError is used when the sub-pixel refinement
// parameters are invalid.
func InvalidDetectorConfigError(cfg DetectorConfig) error {
	return errors.Errorf("invalid detector config %+v: window, iterations and epsilon must be positive", cfg)
}

var (
	// ErrNoUsableImages is when no calibration image in a directory yields a
	// successful checkerboard detection, so the solver has nothing to run on.
	ErrNoUsableImages = errors.New("no usable calibration images: checkerboard not detected in any image")

	// ErrSolverConvergence is when the calibration solver reports no valid
	// solution, e.g. a degenerate point configuration or too few poses.
	ErrSolverConvergence = errors.New("calibration solver did not converge to a valid solution")

	// ErrTargetNotFound is when the registration target cannot be detected in
	// the reference image. There is no fallback homography; callers must
	// handle this.
	ErrTargetNotFound = errors.New("registration target not found in reference image")

	// ErrInsufficientMarkers is when fewer than four usable fiducial markers
	// are available to estimate the homography.
	ErrInsufficientMarkers = errors.New("fewer than 4 fiducial markers available")
)
