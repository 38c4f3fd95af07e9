package images

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/refextract"
)

// Resizer generates size variants for a source image and returns a map
// of size key → storage locator. Implementations live outside the
// core; retries and storage paths are their concern.
type Resizer interface {
	Resize(ctx context.Context, sourcePath, reference string) (map[string]string, error)
}

// ProcessResult is the outcome of a variant-generation batch.
type ProcessResult struct {
	Images     []model.ImageRef
	Unresolved []string // filenames with no extractable reference
	Failed     []string // filenames whose variant generation failed
}

// ProcessBatch extracts references and generates variants for a batch
// of image files on a bounded worker pool. Each file is tagged with
// its enqueue position so that group order downstream reflects
// discovery order, not worker completion order.
func ProcessBatch(ctx context.Context, paths []string, resizer Resizer, workers int) (*ProcessResult, error) {
	if workers < 1 {
		workers = 4
	}

	type slot struct {
		img    *model.ImageRef
		failed bool
	}
	slots := make([]slot, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			filename := filepath.Base(path)
			ref, ok := refextract.Extract(filename)
			if !ok {
				zap.L().Warn("images: no reference in filename", zap.String("file", filename))
				return nil
			}

			variants, err := resizer.Resize(gctx, path, ref)
			if err != nil {
				zap.L().Error("images: variant generation failed",
					zap.String("file", filename),
					zap.Error(err),
				)
				slots[i].failed = true
				return nil
			}

			slots[i].img = &model.ImageRef{
				ID:            "img_" + uuid.New().String()[:12],
				Filename:      filename,
				Reference:     ref,
				RefConfidence: 1.0,
				Variants:      variants,
				Seq:           i,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	for i, s := range slots {
		switch {
		case s.img != nil:
			result.Images = append(result.Images, *s.img)
		case s.failed:
			result.Failed = append(result.Failed, filepath.Base(paths[i]))
		default:
			result.Unresolved = append(result.Unresolved, filepath.Base(paths[i]))
		}
	}

	zap.L().Info("images: batch processed",
		zap.Int("total", len(paths)),
		zap.Int("ok", len(result.Images)),
		zap.Int("unresolved", len(result.Unresolved)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}
