// Package grid models the logical simulation grid and its decomposition
// into row-band tiles, the unit of work handed to a single worker.
package grid

import (
	"fmt"
	"slices"
)

// Cell is one independently runnable column of the grid, identified by its
// global column (X) and row (Y) indices. Cells are immutable once created.
type Cell struct {
	X int
	Y int
}

// ID returns the canonical cell identifier used in file and directory
// names, e.g. "y0003x0127".
func (c Cell) ID() string {
	return fmt.Sprintf("y%04dx%04d", c.Y, c.X)
}

// String implements fmt.Stringer.
func (c Cell) String() string {
	return fmt.Sprintf("cell(x=%d, y=%d)", c.X, c.Y)
}

// Tile is a contiguous band of full grid rows. ID is the zero-based index
// of the band in row-major decomposition order.
type Tile struct {
	ID    int
	cells []Cell
}

// Cells returns a copy of the tile's cells in row-major order.
func (t *Tile) Cells() []Cell {
	return slices.Clone(t.cells)
}

// RowRange returns the tile's first global row index and the index one
// past its last row.
func (t *Tile) RowRange() (lo, hi int) {
	return t.cells[0].Y, t.cells[len(t.cells)-1].Y + 1
}

// Size returns the number of cells in the tile.
func (t *Tile) Size() int {
	return len(t.cells)
}

// String implements fmt.Stringer.
func (t *Tile) String() string {
	return fmt.Sprintf("tile #%d (%d cells)", t.ID, len(t.cells))
}

// DecomposeByRows splits an xsize by ysize grid into tiles of rowHeight
// contiguous rows each; the last tile may be shorter. The returned tiles
// partition the grid: every (x, y) pair belongs to exactly one tile, and
// tile ids form the contiguous range 0..ceil(ysize/rowHeight)-1.
func DecomposeByRows(xsize, ysize, rowHeight int) ([]*Tile, error) {
	if xsize <= 0 || ysize <= 0 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", xsize, ysize)
	}
	if rowHeight <= 0 {
		return nil, fmt.Errorf("tile row height must be positive, got %d", rowHeight)
	}
	var tiles []*Tile
	for y0 := 0; y0 < ysize; y0 += rowHeight {
		y1 := y0 + rowHeight
		if y1 > ysize {
			y1 = ysize
		}
		tile := &Tile{ID: len(tiles)}
		for y := y0; y < y1; y++ {
			for x := 0; x < xsize; x++ {
				tile.cells = append(tile.cells, Cell{X: x, Y: y})
			}
		}
		tiles = append(tiles, tile)
	}
	return tiles, nil
}
