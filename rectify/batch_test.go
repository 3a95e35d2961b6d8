package rectify

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"go.viam.com/utils"
)

func TestBatch(t *testing.T) {
	logger := golog.NewTestLogger(t)
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	for _, name := range []string{"a.png", "b.png", "c.jpg"} {
		writeTestImage(t, filepath.Join(inDir, name), 320, 240, color.RGBA{R: 128, G: 128, B: 128})
	}
	// an undecodable image and an unrelated file
	test.That(t, os.WriteFile(filepath.Join(inDir, "broken.png"), []byte("nope"), 0o644), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(inDir, "notes.txt"), []byte("hello"), 0o644), test.ShouldBeNil)

	p, err := NewPipeline(identityArtifact(t, 320, 240), 640, 480)
	test.That(t, err, test.ShouldBeNil)
	defer utils.UncheckedErrorFunc(p.Close)

	report, err := p.Batch(context.Background(), inDir, outDir, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, report.Processed, test.ShouldResemble, []string{"a.png", "b.png", "c.jpg"})
	test.That(t, report.Failed, test.ShouldResemble, []string{"broken.png"})

	for _, name := range report.Processed {
		_, err := os.Stat(filepath.Join(outDir, name))
		test.That(t, err, test.ShouldBeNil)
	}
	_, err = os.Stat(filepath.Join(outDir, "notes.txt"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestBatchAllGood(t *testing.T) {
	logger := golog.NewTestLogger(t)
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	writeTestImage(t, filepath.Join(inDir, "only.png"), 320, 240, color.RGBA{R: 50, G: 50, B: 50})

	p, err := NewPipeline(identityArtifact(t, 320, 240), 640, 480)
	test.That(t, err, test.ShouldBeNil)
	defer utils.UncheckedErrorFunc(p.Close)

	report, err := p.Batch(context.Background(), inDir, outDir, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Processed, test.ShouldResemble, []string{"only.png"})
	test.That(t, report.Failed, test.ShouldBeEmpty)
}

func TestBatchMissingDir(t *testing.T) {
	p, err := NewPipeline(identityArtifact(t, 320, 240), 640, 480)
	test.That(t, err, test.ShouldBeNil)
	defer utils.UncheckedErrorFunc(p.Close)

	_, err = p.Batch(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBatchCancelled(t *testing.T) {
	inDir := t.TempDir()
	writeTestImage(t, filepath.Join(inDir, "only.png"), 320, 240, color.RGBA{})

	p, err := NewPipeline(identityArtifact(t, 320, 240), 640, 480)
	test.That(t, err, test.ShouldBeNil)
	defer utils.UncheckedErrorFunc(p.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.Batch(ctx, inDir, t.TempDir(), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, report.Processed, test.ShouldBeEmpty)
}
