package app

import (
	"context"
	"fmt"
	"io"

	"github.com/scmtiles/scmtiles/internal/assemble"
	"github.com/scmtiles/scmtiles/internal/cli"
	"github.com/scmtiles/scmtiles/internal/config"
	"github.com/scmtiles/scmtiles/internal/ctxlog"
	"github.com/scmtiles/scmtiles/internal/grid"
	"github.com/scmtiles/scmtiles/internal/pool"
)

// PostProcess is the lifecycle of the post-processor binary: load the
// per-cell archived outputs, assemble them into the final grid file and
// optionally delete the per-cell artifacts. Deletion only happens after
// the combined file has been durably written.
func PostProcess(ctx context.Context, outW io.Writer, opts *cli.PPOptions) error {
	logger := newLogger(opts.Log.Level, opts.Log.Format, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("running scmtiles-pp", "version", Version)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}
	workers := cfg.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	tiles, err := grid.DecomposeByRows(cfg.XSize, cfg.YSize, cfg.RowHeight)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}

	asm, err := assemble.New(ctx, cfg, opts.DropListPath)
	if err != nil {
		return err
	}
	logger.Info("dispatching tiles to workers", "tiles", len(tiles), "workers", workers)
	results := pool.Map(ctx, workers, tiles, asm.ProcessTile)

	tileData := make([]*assemble.TileData, 0, len(results))
	for _, r := range results {
		if r.Failed() {
			logger.Error("tile could not be processed", "tile", r.Tile.ID, "error", r.Err)
			continue
		}
		tileData = append(tileData, r.Value)
	}

	gridDS, err := asm.Grid(ctx, tileData)
	if err != nil {
		return fmt.Errorf("assemble grid: %w", err)
	}
	path, err := asm.WriteGrid(ctx, gridDS)
	if err != nil {
		return err
	}
	logger.Info("post-processing finished", "path", path, "tiles", len(tileData))

	if opts.Delete || cfg.DeleteCellFiles {
		asm.CleanupCells(ctx, tileData)
	}
	return nil
}
