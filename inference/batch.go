package inference

import (
	"context"
	"image"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// DetectBatch runs Detect on every image with at most parallelism calls in flight.
//
// Images are independent, so results are returned in input order regardless of
// completion order. The first failure cancels the remaining work.
//
// Arguments:
//   - ctx: Cancels the whole batch.
//   - d: The detector.
//   - imgs: The images.
//   - parallelism: Maximum concurrent calls. Values < 1 mean runtime.GOMAXPROCS(0).
//
// Returns:
//   - []postprocess.Detections: One entry per image.
//   - error: The first failure, annotated with the image index.
func DetectBatch(
	ctx context.Context,
	d *Detector,
	imgs []image.Image,
	parallelism int,
) ([]postprocess.Detections, error) {
	if parallelism < 1 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	results := make([]postprocess.Detections, len(imgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, img := range imgs {
		i, img := i, img
		g.Go(func() error {
			dets, err := d.Detect(ctx, img)
			if err != nil {
				return errors.Wrapf(err, "image %d", i)
			}
			results[i] = dets
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
