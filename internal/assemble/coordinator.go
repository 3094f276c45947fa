package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scmtiles/scmtiles/internal/cdf"
	"github.com/scmtiles/scmtiles/internal/config"
	"github.com/scmtiles/scmtiles/internal/ctxlog"
	"github.com/scmtiles/scmtiles/internal/dataset"
	"github.com/scmtiles/scmtiles/internal/grid"
)

// Assembler drives the two-stage reassembly: per-cell datasets into tile
// datasets inside the workers, tile datasets into the final grid in the
// coordinating process.
type Assembler struct {
	cfg       *config.Config
	templates *CoordinateTemplates
	drop      []string
}

// TileData is a worker's result for one tile: the assembled dataset plus
// the per-cell artifacts the cleanup coordinator may remove later.
type TileData struct {
	TileID    int
	Dataset   *dataset.Dataset
	CellFiles []string
	CellDirs  []string
	Failures  int
}

// New prepares an assembler: the coordinate templates are loaded from the
// forcing input (fatal on failure) and the optional drop list is
// resolved.
func New(ctx context.Context, cfg *config.Config, dropPath string) (*Assembler, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("loading coordinate templates")
	templates, err := LoadCoordinateTemplates(cfg)
	if err != nil {
		return nil, err
	}
	drop, present, err := LoadDropList(dropPath)
	if err != nil {
		return nil, err
	}
	if present {
		logger.Info("variable drop list loaded", "entries", len(drop))
	} else {
		logger.Info("no variable drop list, keeping all variables")
	}
	return &Assembler{cfg: cfg, templates: templates, drop: drop}, nil
}

// ProcessTile loads and assembles every cell of a tile. Cells whose
// archived outputs cannot be read are skipped with a diagnostic; a tile
// with no readable cells at all is a tile-level failure.
func (a *Assembler) ProcessTile(ctx context.Context, tile *grid.Tile) (*TileData, error) {
	logger := ctxlog.FromContext(ctx).With("tile", tile.ID)
	data := &TileData{TileID: tile.ID}
	var cells []CellData
	for _, cell := range tile.Cells() {
		ds, paths, err := LoadCell(a.cfg, a.templates, a.drop, cell)
		if err != nil {
			logger.Warn("skipping cell without readable output", "cell", cell.ID(), "error", err)
			data.Failures++
			continue
		}
		cells = append(cells, CellData{Cell: cell, DS: ds})
		data.CellFiles = append(data.CellFiles, paths...)
		data.CellDirs = append(data.CellDirs,
			filepath.Join(a.cfg.OutputDirectory, a.cfg.Timestamp()+"."+cell.ID()))
	}
	ds, err := AssembleTile(a.cfg.XName, a.cfg.YName, a.templates.X, cells)
	if err != nil {
		return nil, fmt.Errorf("tile #%d: %w", tile.ID, err)
	}
	data.Dataset = ds
	logger.Info("processing of tile completed", "cells", len(cells), "failures", data.Failures)
	return data, nil
}

// Grid merges the tile results into the final grid dataset.
func (a *Assembler) Grid(ctx context.Context, tiles []*TileData) (*dataset.Dataset, error) {
	datasets := make([]*dataset.Dataset, 0, len(tiles))
	for _, td := range tiles {
		if td != nil && td.Dataset != nil {
			datasets = append(datasets, td.Dataset)
		}
	}
	return AssembleGrid(a.cfg.XName, a.cfg.YName, a.templates.X, datasets, a.cfg.StartTime)
}

// WriteGrid serializes the final dataset with time as the unbounded
// dimension. Nothing is cleaned up unless this write succeeds.
func (a *Assembler) WriteGrid(ctx context.Context, ds *dataset.Dataset) (string, error) {
	path := a.cfg.OutputFilePath()
	ctxlog.FromContext(ctx).Info("writing combined output file", "path", path)
	if err := cdf.WriteFile(path, ds, cdf.WithRecordDimension("time")); err != nil {
		return "", fmt.Errorf("failed to write grid to disk: %w", err)
	}
	return path, nil
}

// CleanupCells deletes the per-cell archived files and any leftover run
// directories. It must only be invoked after the final grid file has been
// durably written; individual removal failures are logged and skipped.
func (a *Assembler) CleanupCells(ctx context.Context, tiles []*TileData) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("deleting individual column files")
	for _, td := range tiles {
		if td == nil {
			continue
		}
		for _, path := range td.CellFiles {
			if err := os.Remove(path); err != nil {
				logger.Warn("could not delete cell file", "path", path, "error", err)
				continue
			}
			logger.Debug("deleted", "path", path)
		}
		for _, dir := range td.CellDirs {
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("could not delete cell directory", "path", dir, "error", err)
			}
		}
	}
}
