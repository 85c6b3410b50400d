package concat

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"mepipe/internal/dicommeta"
)

// ExtractIndices reads the slice-index tag from every file using a bounded
// worker pool. The returned slice is positionally aligned with files: result
// i belongs to files[i] regardless of completion order.
func ExtractIndices(ctx context.Context, meta dicommeta.Reader, files []string, workers int) ([]int, error) {
	if workers < 1 {
		workers = 1
	}

	indices := make([]int, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			index, err := meta.SliceIndex(file)
			if err != nil {
				return fmt.Errorf("slice index of %s: %w", filepath.Base(file), err)
			}
			indices[i] = index
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return indices, nil
}
