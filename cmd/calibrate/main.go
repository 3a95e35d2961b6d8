// Package main is the calibration command: it calibrates a fixed overhead
// camera from checkerboard images, registers it to the working plane, and
// can batch-rectify images with a saved calibration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/FARI-brussels/calibrate-camera/artifact"
	"github.com/FARI-brussels/calibrate-camera/calib"
	"github.com/FARI-brussels/calibrate-camera/rectify"
)

func main() {
	logger := golog.NewLogger("calibrate-camera")

	app := &cli.App{
		Name:  "calibrate-camera",
		Usage: "calibrate a fixed overhead camera and register it to a working plane",
		Description: "Calibrates camera intrinsics from a directory of checkerboard images, " +
			"estimates the homography mapping undistorted pixels to physical plane " +
			"coordinates from a reference image, and saves the result.",
		ArgsUsage: "DIRPATH IMAGE_FORMAT REF_PLAN_PATH",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "square_size",
				Value: 25,
				Usage: "edge length of a checkerboard square in millimeters",
			},
			&cli.IntFlag{
				Name:  "width",
				Value: 10,
				Usage: "number of inner corners along the board's width",
			},
			&cli.IntFlag{
				Name:  "height",
				Value: 7,
				Usage: "number of inner corners along the board's height",
			},
			&cli.StringFlag{
				Name:  "save_to",
				Value: "./calibration.yml",
				Usage: "path where the calibration artifact is saved",
			},
			&cli.Float64Flag{
				Name:  "origin_offset",
				Value: 25,
				Usage: "physical offset, in both axes, of the board's reference corner from the plane origin",
			},
		},
		Action: func(c *cli.Context) error {
			return runCalibrate(c, logger)
		},
		Commands: []*cli.Command{
			{
				Name:      "rectify",
				Usage:     "batch-rectify a directory of images with a saved calibration",
				ArgsUsage: "INPUT_DIR OUTPUT_DIR",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "calibration",
						Value: "./calibration.yml",
						Usage: "path to the calibration artifact",
					},
					&cli.IntFlag{
						Name:  "out_width",
						Value: 640,
						Usage: "width of the rectified output canvas",
					},
					&cli.IntFlag{
						Name:  "out_height",
						Value: 480,
						Usage: "height of the rectified output canvas",
					},
				},
				Action: func(c *cli.Context) error {
					return runRectify(c, logger)
				},
			},
			{
				Name:      "markers",
				Usage:     "generate fiducial marker images for plane registration",
				ArgsUsage: "OUTPUT_DIR",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Value: 4,
						Usage: "number of markers to generate, identifiers starting at 0",
					},
					&cli.IntFlag{
						Name:  "size",
						Value: 100,
						Usage: "marker side length in pixels",
					},
				},
				Action: runMarkers,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCalibrate(c *cli.Context, logger golog.Logger) error {
	if c.NArg() != 3 {
		return fmt.Errorf("expected 3 arguments (DIRPATH IMAGE_FORMAT REF_PLAN_PATH), got %d", c.NArg())
	}
	dirPath := c.Args().Get(0)
	imageFormat := c.Args().Get(1)
	refPlanPath := c.Args().Get(2)

	geom := calib.PatternGeometry{
		Width:      c.Int("width"),
		Height:     c.Int("height"),
		SquareSize: c.Float64("square_size"),
	}
	offset := c.Float64("origin_offset")

	corr, err := calib.Collect(c.Context, dirPath, imageFormat, geom, calib.DefaultDetectorConfig(), logger)
	if err != nil {
		return err
	}
	model, err := calib.Solve(corr)
	if err != nil {
		return err
	}
	reg, err := calib.RegisterFromCheckerboardFile(refPlanPath, model, geom, r2.Point{X: offset, Y: offset})
	if err != nil {
		return err
	}

	art := &artifact.Artifact{
		Intrinsics: model.Intrinsics,
		Distortion: model.Distortion,
		Homography: reg.Homography,
	}
	savePath := c.String("save_to")
	if err := art.Save(savePath); err != nil {
		return err
	}
	logger.Infow("calibration saved", "path", savePath)

	fmt.Printf("RMS re-projection error: %v\n", model.ReprojectionError)
	fmt.Println("Camera matrix (intrinsic parameters):")
	fmt.Printf("%v\n", mat.Formatted(model.Intrinsics.CameraMatrix(), mat.Squeeze()))
	fmt.Println("Distortion coefficients:")
	fmt.Printf("%v\n", model.Distortion.Parameters())
	fmt.Println("Per-image rotation and translation vectors:")
	for i, pose := range model.Poses {
		fmt.Printf("  %s: rvec=%v tvec=%v\n", corr.Files[i], pose.Rotation, pose.Translation)
	}
	if len(corr.Skipped) > 0 {
		fmt.Printf("Skipped %d image(s) without a detectable checkerboard.\n", len(corr.Skipped))
	}
	return nil
}

func runRectify(c *cli.Context, logger golog.Logger) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected 2 arguments (INPUT_DIR OUTPUT_DIR), got %d", c.NArg())
	}
	inDir := c.Args().Get(0)
	outDir := c.Args().Get(1)

	art, err := artifact.Load(c.String("calibration"))
	if err != nil {
		return err
	}
	pipeline, err := rectify.NewPipeline(art, c.Int("out_width"), c.Int("out_height"))
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warnw("closing pipeline", "error", err)
		}
	}()

	report, err := pipeline.Batch(context.Background(), inDir, outDir, logger)
	if report != nil {
		fmt.Printf("Processed %d image(s), %d failed.\n", len(report.Processed), len(report.Failed))
		for _, name := range report.Failed {
			fmt.Printf("  failed: %s\n", name)
		}
	}
	return err
}

func runMarkers(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected 1 argument (OUTPUT_DIR), got %d", c.NArg())
	}
	paths, err := calib.GenerateMarkerImages(c.Args().Get(0), c.Int("count"), c.Int("size"))
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}
