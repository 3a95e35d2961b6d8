package calib

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gocv.io/x/gocv"
)

var testGeom = PatternGeometry{Width: 9, Height: 6, SquareSize: 25}

func TestFindCheckerboardSynthetic(t *testing.T) {
	board := renderCheckerboard(t, testGeom, 40, 60)
	defer closeMat(t, &board)

	corners, found := FindCheckerboardSubPix(board, testGeom, DefaultDetectorConfig())
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, len(corners), test.ShouldEqual, testGeom.CornerCount())

	// every detected corner must sit within a pixel of a ground-truth corner
	truth := innerCorners(testGeom, 40, 60)
	for _, c := range corners {
		best := math.Inf(1)
		for _, gt := range truth {
			d := math.Hypot(c.X-float64(gt.X), c.Y-float64(gt.Y))
			if d < best {
				best = d
			}
		}
		test.That(t, best, test.ShouldBeLessThan, 1.0)
	}
}

func TestFindCheckerboardMissing(t *testing.T) {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8U)
	defer closeMat(t, &blank)

	_, found := FindCheckerboard(blank, testGeom)
	test.That(t, found, test.ShouldBeFalse)
}

func TestCollect(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	board := renderCheckerboard(t, testGeom, 40, 60)
	defer closeMat(t, &board)
	for i := 0; i < 3; i++ {
		test.That(t, gocv.IMWrite(filepath.Join(dir, fmt.Sprintf("board_%d.png", i)), board), test.ShouldBeTrue)
	}
	// one image without a board, skipped silently
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), board.Rows(), board.Cols(), gocv.MatTypeCV8U)
	defer closeMat(t, &blank)
	test.That(t, gocv.IMWrite(filepath.Join(dir, "blank.png"), blank), test.ShouldBeTrue)
	// wrong extension, not enumerated
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("n/a"), 0o644), test.ShouldBeNil)

	corr, err := Collect(context.Background(), dir, "png", testGeom, DefaultDetectorConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, corr.Views(), test.ShouldEqual, 3)
	test.That(t, len(corr.Skipped), test.ShouldEqual, 1)
	test.That(t, corr.ImageSize, test.ShouldResemble, image.Pt(board.Cols(), board.Rows()))
	for v := 0; v < corr.Views(); v++ {
		test.That(t, len(corr.Object[v]), test.ShouldEqual, testGeom.CornerCount())
		test.That(t, len(corr.Image[v]), test.ShouldEqual, testGeom.CornerCount())
	}
}

func TestCollectNoUsableImages(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8U)
	defer closeMat(t, &blank)
	test.That(t, gocv.IMWrite(filepath.Join(dir, "blank.png"), blank), test.ShouldBeTrue)

	_, err := Collect(context.Background(), dir, "png", testGeom, DefaultDetectorConfig(), logger)
	test.That(t, errors.Is(err, ErrNoUsableImages), test.ShouldBeTrue)

	// an empty directory is the same failure, not a silent empty result
	_, err = Collect(context.Background(), t.TempDir(), "png", testGeom, DefaultDetectorConfig(), logger)
	test.That(t, errors.Is(err, ErrNoUsableImages), test.ShouldBeTrue)
}

func TestCollectInvalidConfig(t *testing.T) {
	logger := golog.NewTestLogger(t)
	_, err := Collect(context.Background(), t.TempDir(), "png", PatternGeometry{}, DefaultDetectorConfig(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Collect(context.Background(), t.TempDir(), "png", testGeom, DetectorConfig{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
