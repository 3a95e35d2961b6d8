package calib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gocv.io/x/gocv"
)

// markerDictionary is the fiducial dictionary used for registration targets:
// 4x4 bit markers, 50 distinct identifiers.
const markerDictionary = gocv.ArucoDict4x4_50

// Marker is one detected fiducial marker: its decoded identifier and the
// image-plane position of its top-left reference corner.
type Marker struct {
	ID     int
	Corner r2.Point
}

// DetectMarkers finds all 4x4_50 fiducial markers in img and returns their
// reference corners in detection order. Detection order is not guaranteed
// stable across runs; callers pairing markers to known positions should match
// by ID (see RegisterFromMarkers).
func DetectMarkers(img gocv.Mat) []Marker {
	gray, done := asGray(img)
	defer done()

	params := gocv.NewArucoDetectorParameters()
	detector := gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(markerDictionary), params)
	defer utils.UncheckedErrorFunc(detector.Close)

	corners, ids, _ := detector.DetectMarkers(gray)
	markers := make([]Marker, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) == 0 {
			continue
		}
		topLeft := corners[i][0]
		markers = append(markers, Marker{
			ID:     id,
			Corner: r2.Point{X: float64(topLeft.X), Y: float64(topLeft.Y)},
		})
	}
	return markers
}

// GenerateMarkerImages writes count marker images from the 4x4_50 dictionary
// into dir, one file per identifier starting at 0, each sidePixels wide.
// Returns the written file paths.
func GenerateMarkerImages(dir string, count, sidePixels int) ([]string, error) {
	if count <= 0 || sidePixels <= 0 {
		return nil, errors.Errorf("marker count (%d) and size (%d) must be positive", count, sidePixels)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating marker output directory")
	}
	paths := make([]string, 0, count)
	for id := 0; id < count; id++ {
		img := gocv.NewMat()
		gocv.ArucoGenerateImageMarker(markerDictionary, id, sidePixels, img, 1)
		path := filepath.Join(dir, fmt.Sprintf("aruco_marker_%d.png", id))
		ok := gocv.IMWrite(path, img)
		if closeErr := img.Close(); closeErr != nil {
			return nil, closeErr
		}
		if !ok {
			return nil, errors.Errorf("could not write marker image %q", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
