// Package main is the detect command: runs YOLOv3 on image files and saves annotated copies.
package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/yolov3"
	"github.com/nvr-ai/go-yolo/profiler"
	"github.com/nvr-ai/go-yolo/util"
)

const (
	flagConfig   = "config"
	flagModel    = "model"
	flagImage    = "image"
	flagDir      = "dir"
	flagOut      = "out"
	flagLabels   = "labels"
	flagBackend  = "backend"
	flagLib      = "onnxruntime-lib"
	flagInput    = "input-name"
	flagOutputs  = "output-names"
	flagParallel = "parallel"
	flagNoDraw   = "no-draw"
	flagDebug    = "debug"
)

func main() {
	app := &cli.App{
		Name:  "detect",
		Usage: "run YOLOv3 object detection on images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "YAML model configuration; defaults to COCO YOLOv3 at 416x416",
			},
			&cli.StringFlag{
				Name:     flagModel,
				Usage:    "YOLOv3 ONNX model file",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    flagImage,
				Aliases: []string{"i"},
				Usage:   "image file to process, repeatable",
			},
			&cli.StringFlag{
				Name:  flagDir,
				Usage: "directory whose images are all processed",
			},
			&cli.StringFlag{
				Name:  flagOut,
				Usage: "directory for annotated images",
				Value: "./detect",
			},
			&cli.StringFlag{
				Name:  flagLabels,
				Usage: "built-in label set (coco or voc) overriding the configured labels",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "execution provider: cpu, coreml, cuda or openvino",
				Value: string(inference.BackendCPU),
			},
			&cli.StringFlag{
				Name:    flagLib,
				Usage:   "path to the ONNX Runtime shared library",
				EnvVars: []string{"ONNXRUNTIME_LIB"},
			},
			&cli.StringFlag{
				Name:  flagInput,
				Usage: "network input name",
				Value: yolov3.DefaultInputs[0],
			},
			&cli.StringSliceFlag{
				Name:  flagOutputs,
				Usage: "network output names, finest scale first",
				Value: cli.NewStringSlice(yolov3.DefaultOutputs...),
			},
			&cli.IntFlag{
				Name:  flagParallel,
				Usage: "images processed concurrently; 0 uses every CPU",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  flagNoDraw,
				Usage: "print detections without saving annotated images",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagDebug))
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer logger.Sync() //nolint:errcheck

	paths, err := imagePaths(c)
	if err != nil {
		return err
	}

	m, err := models.NewModel(model.NewModelArgs{
		Name:       model.ModelNameYOLOv3,
		Path:       c.String(flagModel),
		ConfigPath: c.String(flagConfig),
		Inputs:     []string{c.String(flagInput)},
		Outputs:    c.StringSlice(flagOutputs),
		Logger:     logger,
	})
	if err != nil {
		return errors.Wrap(err, "creating model")
	}
	yolo, ok := m.(*yolov3.YOLOv3)
	if !ok {
		return errors.Errorf("unexpected model type %T", m)
	}
	cfg := yolo.Config()

	label := m.Label
	if name := c.String(flagLabels); name != "" {
		set, err := models.LookupSet(models.LabelSet(strings.ToLower(name)))
		if err != nil {
			return err
		}
		label = func(class int) string {
			return models.LookupName(set.Style, class)
		}
	}

	opts := m.Options()
	network, err := inference.NewONNXNetwork(inference.ONNXOptions{
		ModelPath:         opts.Path,
		SharedLibraryPath: c.String(flagLib),
		InputName:         opts.Inputs[0],
		OutputNames:       opts.Outputs,
		InputSize:         cfg.InputSize,
		NumClasses:        cfg.NumClasses,
		Backend:           inference.Backend(c.String(flagBackend)),
		Logger:            logger,
	})
	if err != nil {
		return errors.Wrap(err, "creating network")
	}
	defer network.Close() //nolint:errcheck

	timings := profiler.New(0)
	detector, err := inference.NewDetector(m, network,
		inference.WithLogger(logger),
		inference.WithProfiler(timings),
	)
	if err != nil {
		return err
	}

	mats, imgs, err := loadImages(paths)
	if err != nil {
		return err
	}
	defer func() {
		for _, mat := range mats {
			mat.Close()
		}
	}()

	start := time.Now()
	results, err := inference.DetectBatch(c.Context, detector, imgs, c.Int(flagParallel))
	if err != nil {
		return errors.Wrap(err, "detecting objects")
	}
	logger.Info("detection finished", zap.Int("images", len(imgs)), zap.Duration("elapsed", time.Since(start)))
	timings.Report(logger)

	draw := !c.Bool(flagNoDraw)
	if draw {
		if err := os.MkdirAll(c.String(flagOut), 0o755); err != nil {
			return errors.Wrap(err, "creating output directory")
		}
	}

	for i, path := range paths {
		dets := results[i]
		names := dets.Labels(label)

		fmt.Printf("%s: %d objects\n", path, dets.Len())
		for j, res := range dets.Results() {
			fmt.Printf("  %-16s %.3f %v\n", names[j], res.Score, res.Box)
		}

		if !draw {
			continue
		}
		drawDetections(&mats[i], dets, names)
		out := outputPath(c.String(flagOut), path)
		if !gocv.IMWrite(out, mats[i]) {
			return errors.Errorf("writing %s", out)
		}
		logger.Info("saved annotated image", zap.String("path", out), zap.Int("detections", dets.Len()))
	}

	return nil
}

// imagePaths collects the --image files and the images of --dir.
func imagePaths(c *cli.Context) ([]string, error) {
	paths := c.StringSlice(flagImage)
	for _, path := range paths {
		if err := util.ValidateImagePath(path); err != nil {
			return nil, err
		}
	}

	if dir := c.String(flagDir); dir != "" {
		found, err := util.ListImageFiles(dir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	if len(paths) == 0 {
		return nil, errors.Errorf("no images given, use --%s or --%s", flagImage, flagDir)
	}
	return paths, nil
}

// loadImages reads every image with OpenCV. The mats stay open for drawing.
func loadImages(paths []string) ([]gocv.Mat, []image.Image, error) {
	mats := make([]gocv.Mat, 0, len(paths))
	imgs := make([]image.Image, 0, len(paths))

	fail := func(err error) ([]gocv.Mat, []image.Image, error) {
		for _, mat := range mats {
			mat.Close()
		}
		return nil, nil, err
	}

	for _, path := range paths {
		mat := gocv.IMRead(path, gocv.IMReadColor)
		if mat.Empty() {
			mat.Close()
			return fail(errors.Errorf("reading image %s", path))
		}
		mats = append(mats, mat)

		img, err := mat.ToImage()
		if err != nil {
			return fail(errors.Wrapf(err, "converting image %s", path))
		}
		imgs = append(imgs, img)
	}
	return mats, imgs, nil
}

// outputPath returns <dir>/detected_<stem>.jpg, where stem is the file name
// up to its first dot: "a.b.jpg" saves as "detected_a.jpg".
func outputPath(dir, imagePath string) string {
	base := filepath.Base(imagePath)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return filepath.Join(dir, "detected_"+base+".jpg")
}
