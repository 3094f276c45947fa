// Package assemble reconstructs the gridded dataset from scattered
// per-cell model outputs: cells into tiles, tiles into the final grid,
// followed by output time normalization and canonical dimension ordering.
package assemble

import (
	"errors"
	"fmt"
	"sort"

	"github.com/scmtiles/scmtiles/internal/dataset"
	"github.com/scmtiles/scmtiles/internal/grid"
)

// ErrEmptyTile marks a tile in which no cell produced a usable dataset.
// It is a tile-level failure: the job carries on with the other tiles.
var ErrEmptyTile = errors.New("no cell in the tile produced a dataset")

// CellData pairs a cell with its loaded dataset.
type CellData struct {
	Cell grid.Cell
	DS   *dataset.Dataset
}

// AssembleTile merges a tile's cell datasets into one tile dataset.
// Input order is irrelevant: cells are concatenated in ascending global
// column order within each row, and rows in ascending global row order.
// A single-row tile takes the same path and needs no second element.
// Each row is padded with fill values against the full column coordinate
// before the rows are joined, so a tile with failed cells still
// assembles from its surviving cells.
func AssembleTile(xname, yname string, xCoord *dataset.Variable, cells []CellData) (*dataset.Dataset, error) {
	if len(cells) == 0 {
		return nil, ErrEmptyTile
	}
	byRow := map[int][]CellData{}
	for _, c := range cells {
		byRow[c.Cell.Y] = append(byRow[c.Cell.Y], c)
	}
	rowIndices := make([]int, 0, len(byRow))
	for y := range byRow {
		rowIndices = append(rowIndices, y)
	}
	sort.Ints(rowIndices)

	rows := make([]*dataset.Dataset, 0, len(rowIndices))
	for _, y := range rowIndices {
		rowCells := byRow[y]
		sort.SliceStable(rowCells, func(i, j int) bool {
			return rowCells[i].Cell.X < rowCells[j].Cell.X
		})
		inputs := make([]*dataset.Dataset, len(rowCells))
		for i, c := range rowCells {
			inputs[i] = c.DS
		}
		row, err := dataset.Concat(inputs, xname)
		if err != nil {
			return nil, fmt.Errorf("concatenate row %d: %w", y, err)
		}
		row, err = alignColumns(row, xname, xCoord)
		if err != nil {
			return nil, fmt.Errorf("align row %d columns: %w", y, err)
		}
		rows = append(rows, row)
	}
	tileDS, err := dataset.Concat(rows, yname)
	if err != nil {
		return nil, fmt.Errorf("concatenate rows: %w", err)
	}
	return tileDS, nil
}
