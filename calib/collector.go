package calib

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// CorrespondenceSet is the accumulated (3D reference, 2D image) point
// correspondences across every calibration image that yielded a successful
// checkerboard detection. Slices are indexed per view; within a view, object
// and image points are in matching grid order.
type CorrespondenceSet struct {
	// Object holds, per view, the canonical z=0 reference grid (see
	// PatternGeometry.ObjectGrid for the unit-spacing convention).
	Object [][]r3.Vector
	// Image holds, per view, the refined sub-pixel corner positions.
	Image [][]r2.Point
	// Files are the image files that contributed a view, in enumeration order.
	Files []string
	// Skipped are the files where detection or decoding failed.
	Skipped []string
	// ImageSize is the pixel size of the last successfully processed image.
	// All calibration images are assumed to share one resolution.
	ImageSize image.Point
}

// Views returns the number of images that contributed correspondences.
func (c *CorrespondenceSet) Views() int {
	return len(c.Image)
}

type detection struct {
	corners []r2.Point
	size    image.Point
	ok      bool
}

// Collect scans dirPath (non-recursively) for images with the given extension
// (e.g. "jpg"), detects the checkerboard described by geom in each, refines
// corners to sub-pixel precision per cfg, and accumulates the matched point
// sets. Images where detection fails are skipped, not fatal; they are listed
// in the result. Detection runs in a bounded worker pool, but aggregation
// preserves enumeration order. Returns ErrNoUsableImages if no image yields a
// detection.
func Collect(
	ctx context.Context,
	dirPath, extension string,
	geom PatternGeometry,
	cfg DetectorConfig,
	logger golog.Logger,
) (*CorrespondenceSet, error) {
	if err := geom.CheckValid(); err != nil {
		return nil, err
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}

	files, err := listImages(dirPath, extension)
	if err != nil {
		return nil, err
	}

	results := make([]detection, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = detectInFile(path, geom, cfg, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	objGrid := geom.ObjectGrid()
	set := &CorrespondenceSet{}
	for i, res := range results {
		if !res.ok {
			set.Skipped = append(set.Skipped, files[i])
			continue
		}
		if set.ImageSize != (image.Point{}) && res.size != set.ImageSize {
			logger.Warnw("calibration image resolution differs from previous images",
				"file", files[i], "size", res.size, "previous", set.ImageSize)
		}
		set.Object = append(set.Object, objGrid)
		set.Image = append(set.Image, res.corners)
		set.Files = append(set.Files, files[i])
		set.ImageSize = res.size
	}
	if set.Views() == 0 {
		return nil, errors.Wrapf(ErrNoUsableImages, "directory %q (%d files scanned)", dirPath, len(files))
	}
	logger.Infow("collected checkerboard correspondences",
		"views", set.Views(), "skipped", len(set.Skipped), "corners_per_view", geom.CornerCount())
	return set, nil
}

func detectInFile(path string, geom PatternGeometry, cfg DetectorConfig, logger golog.Logger) detection {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		logger.Debugw("skipping undecodable calibration image", "file", path)
		return detection{}
	}
	defer func() {
		if err := img.Close(); err != nil {
			logger.Debugw("closing image", "file", path, "error", err)
		}
	}()

	corners, found := FindCheckerboardSubPix(img, geom, cfg)
	if !found {
		logger.Debugw("checkerboard not found, skipping image", "file", path)
		return detection{}
	}
	return detection{
		corners: corners,
		size:    image.Pt(img.Cols(), img.Rows()),
		ok:      true,
	}
}

// listImages enumerates the files in dirPath whose extension matches
// (case-insensitively). The order is the platform's directory enumeration
// order; correctness never depends on it, only log reproducibility.
func listImages(dirPath, extension string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading calibration image directory %q", dirPath)
	}
	ext := "." + strings.TrimPrefix(strings.ToLower(extension), ".")
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ext {
			continue
		}
		files = append(files, filepath.Join(dirPath, entry.Name()))
	}
	return files, nil
}
