package rectify

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// supportedExtensions are the raster formats accepted during batch processing.
var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// BatchReport summarizes a batch run: which files were rectified and which
// failed. A failed file never aborts the rest of the batch.
type BatchReport struct {
	Processed []string
	Failed    []string
}

// Batch rectifies every supported image file in inDir, writing each result
// under outDir (created if absent) with its original filename. Per-file
// failures are logged, collected into the report, and aggregated into the
// returned error; processing continues past them.
func (p *Pipeline) Batch(ctx context.Context, inDir, outDir string, logger golog.Logger) (*BatchReport, error) {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading input directory %q", inDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %q", outDir)
	}

	report := &BatchReport{}
	var batchErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(batchErr, err)
		}
		if entry.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		inPath := filepath.Join(inDir, entry.Name())
		outPath := filepath.Join(outDir, entry.Name())
		if err := p.RectifyFile(inPath, outPath); err != nil {
			logger.Warnw("could not rectify image", "file", inPath, "error", err)
			report.Failed = append(report.Failed, entry.Name())
			batchErr = multierr.Append(batchErr, errors.Wrapf(err, "%q", inPath))
			continue
		}
		logger.Debugw("rectified image", "file", inPath, "output", outPath)
		report.Processed = append(report.Processed, entry.Name())
	}
	logger.Infow("batch rectification done",
		"processed", len(report.Processed), "failed", len(report.Failed))
	return report, batchErr
}
