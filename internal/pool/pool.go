// Package pool fans tile work out over a fixed number of workers and
// collects one result per tile, in tile order, regardless of completion
// order.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/scmtiles/scmtiles/internal/ctxlog"
	"github.com/scmtiles/scmtiles/internal/grid"
)

// Result pairs a tile with the outcome of its worker function.
type Result[T any] struct {
	Tile  *grid.Tile
	Value T
	Err   error
}

// Failed reports whether the tile's worker function returned an error.
func (r Result[T]) Failed() bool {
	return r.Err != nil
}

// Map applies fn to every tile using the given number of workers. The
// returned slice is aligned with tiles: index i always holds tile i's
// result. Worker errors are recorded per tile rather than propagated, so
// one failed tile never stops the others; only context cancellation cuts
// the run short, and tiles skipped by it carry the context's error.
func Map[T any](ctx context.Context, workers int, tiles []*grid.Tile, fn func(context.Context, *grid.Tile) (T, error)) []Result[T] {
	if workers > len(tiles) {
		workers = len(tiles)
	}
	results := make([]Result[T], len(tiles))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			worker(ctx, workerID, jobs, tiles, results, fn)
		}(w)
	}

	for i := range tiles {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// worker is the processing loop for a single concurrent worker.
func worker[T any](ctx context.Context, workerID int, jobs <-chan int, tiles []*grid.Tile, results []Result[T], fn func(context.Context, *grid.Tile) (T, error)) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("worker started")
	for i := range jobs {
		tile := tiles[i]
		results[i].Tile = tile
		if err := ctx.Err(); err != nil {
			results[i].Err = fmt.Errorf("tile #%d skipped: %w", tile.ID, err)
			continue
		}
		logger.Debug("worker picked up tile", "tile", tile.ID)
		value, err := fn(ctx, tile)
		if err != nil {
			logger.Error("tile processing failed", "tile", tile.ID, "error", err)
			results[i].Err = err
			continue
		}
		results[i].Value = value
	}
	logger.Debug("worker finished")
}
