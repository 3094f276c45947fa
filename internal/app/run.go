package app

import (
	"context"
	"fmt"
	"io"

	"github.com/scmtiles/scmtiles/internal/cli"
	"github.com/scmtiles/scmtiles/internal/config"
	"github.com/scmtiles/scmtiles/internal/ctxlog"
	"github.com/scmtiles/scmtiles/internal/grid"
	"github.com/scmtiles/scmtiles/internal/pool"
	"github.com/scmtiles/scmtiles/internal/runner"
)

// RunModel is the lifecycle of the model run binary: decompose the grid,
// run every tile's cells through the worker pool, and report the
// outcome. Cell failures are isolated and reported; a tile that cannot
// be set up at all is fatal.
func RunModel(ctx context.Context, outW io.Writer, opts *cli.RunOptions) error {
	logger := newLogger(opts.Log.Level, opts.Log.Format, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("running scmtiles", "version", Version)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}
	tiles, err := grid.DecomposeByRows(cfg.XSize, cfg.YSize, cfg.RowHeight)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}
	logger.Info("dispatching tiles to workers", "tiles", len(tiles), "workers", cfg.Workers)

	results := pool.Map(ctx, cfg.Workers, tiles, func(ctx context.Context, tile *grid.Tile) (*runner.TileResult, error) {
		tr, err := runner.NewTileRunner(cfg, tile)
		if err != nil {
			return nil, err
		}
		return tr.Run(ctx), nil
	})

	var cells, failed int
	for _, r := range results {
		if r.Failed() {
			return fmt.Errorf("tile #%d could not run: %w", r.Tile.ID, r.Err)
		}
		for _, cr := range r.Value.Cells {
			cells++
			if cr.Failed() {
				failed++
			}
		}
	}
	logger.Info("model run finished", "cells", cells, "failed", failed)
	if cells > 0 && failed == cells {
		return &cli.ExitError{Code: 1, Message: "no cell completed successfully"}
	}
	return nil
}
