package assemble

import (
	"fmt"
	"path/filepath"

	"github.com/scmtiles/scmtiles/internal/cdf"
	"github.com/scmtiles/scmtiles/internal/config"
	"github.com/scmtiles/scmtiles/internal/dataset"
	"github.com/scmtiles/scmtiles/internal/grid"
	"github.com/scmtiles/scmtiles/internal/runner"
)

// CoordinateTemplates holds the grid's full column and row coordinates,
// loaded once from the job's forcing input and used to attach positions
// to cell datasets and to pad incomplete tiles.
type CoordinateTemplates struct {
	X *dataset.Variable
	Y *dataset.Variable
}

// LoadCoordinateTemplates reads the x and y grid coordinates from the
// job's forcing input file. A failure here is fatal to the whole job.
func LoadCoordinateTemplates(cfg *config.Config) (*CoordinateTemplates, error) {
	path := cfg.InputFilePath()
	ds, err := cdf.ReadFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file %q: %w", path, err)
	}
	x, ok := ds.Coords[cfg.XName]
	if !ok {
		return nil, fmt.Errorf("input file %q has no coordinate %q", path, cfg.XName)
	}
	y, ok := ds.Coords[cfg.YName]
	if !ok {
		return nil, fmt.Errorf("input file %q has no coordinate %q", path, cfg.YName)
	}
	if len(x.Values) != cfg.XSize || len(y.Values) != cfg.YSize {
		return nil, fmt.Errorf("template coordinates are %dx%d, check grid dimensions in configuration match those in the files (configured %dx%d)",
			len(x.Values), len(y.Values), cfg.XSize, cfg.YSize)
	}
	return &CoordinateTemplates{X: x, Y: y}, nil
}

// cellFiles are the archived per-cell output paths for one cell.
func cellFiles(cfg *config.Config, cell grid.Cell) []string {
	paths := make([]string, 0, len(runner.ArchiveFiles))
	for _, name := range runner.ArchiveFiles {
		ext := filepath.Ext(name)
		base := name[:len(name)-len(ext)]
		paths = append(paths, filepath.Join(cfg.OutputDirectory,
			fmt.Sprintf("%s.%s.%s%s", base, cfg.Timestamp(), cell.ID(), ext)))
	}
	return paths
}

// LoadCell loads one cell's archived output files into a single dataset,
// dropping any variables named in drop, and attaches the cell's scalar
// position coordinates from the templates. The returned paths are the
// files that were read, kept for the cleanup coordinator.
func LoadCell(cfg *config.Config, templates *CoordinateTemplates, drop []string, cell grid.Cell) (*dataset.Dataset, []string, error) {
	paths := cellFiles(cfg, cell)
	merged := dataset.New()
	for _, path := range paths {
		part, err := cdf.ReadFile(path, drop)
		if err != nil {
			return nil, nil, fmt.Errorf("cell %s: %w", cell.ID(), err)
		}
		for name, v := range part.Vars {
			if _, exists := merged.Vars[name]; !exists {
				merged.Vars[name] = v
			}
		}
		for name, c := range part.Coords {
			if _, exists := merged.Coords[name]; !exists {
				merged.Coords[name] = c
			}
		}
	}

	xc := dataset.Scalar(templates.X.Values[cell.X])
	if templates.X.Attrs != nil {
		xc.Attrs = templates.X.Clone().Attrs
	}
	yc := dataset.Scalar(templates.Y.Values[cell.Y])
	if templates.Y.Attrs != nil {
		yc.Attrs = templates.Y.Clone().Attrs
	}
	merged.Coords[cfg.XName] = xc
	merged.Coords[cfg.YName] = yc
	return merged, paths, nil
}
