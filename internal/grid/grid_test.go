package grid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellID(t *testing.T) {
	assert.Equal(t, "y0000x0000", Cell{}.ID())
	assert.Equal(t, "y0003x0127", Cell{X: 127, Y: 3}.ID())
	assert.Equal(t, "y1200x0042", Cell{X: 42, Y: 1200}.ID())
}

func TestDecomposeByRowsTwoByTwo(t *testing.T) {
	tiles, err := DecomposeByRows(2, 2, 1)
	require.NoError(t, err)
	require.Len(t, tiles, 2)

	assert.Equal(t, 0, tiles[0].ID)
	assert.Equal(t, []Cell{{X: 0, Y: 0}, {X: 1, Y: 0}}, tiles[0].Cells())
	assert.Equal(t, 1, tiles[1].ID)
	assert.Equal(t, []Cell{{X: 0, Y: 1}, {X: 1, Y: 1}}, tiles[1].Cells())
}

func TestDecomposeByRowsPartition(t *testing.T) {
	cases := []struct{ xsize, ysize, rowHeight int }{
		{1, 1, 1},
		{4, 6, 2},
		{4, 7, 2}, // last band shorter
		{3, 5, 5}, // single tile
		{3, 5, 8}, // row height larger than the grid
		{16, 9, 3},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d_h%d", tc.xsize, tc.ysize, tc.rowHeight), func(t *testing.T) {
			tiles, err := DecomposeByRows(tc.xsize, tc.ysize, tc.rowHeight)
			require.NoError(t, err)

			wantTiles := (tc.ysize + tc.rowHeight - 1) / tc.rowHeight
			require.Len(t, tiles, wantTiles)

			seen := map[Cell]int{}
			for i, tile := range tiles {
				assert.Equal(t, i, tile.ID, "tile ids must be contiguous in row order")
				for _, c := range tile.Cells() {
					seen[c]++
				}
			}
			for y := 0; y < tc.ysize; y++ {
				for x := 0; x < tc.xsize; x++ {
					assert.Equal(t, 1, seen[Cell{X: x, Y: y}], "cell (%d,%d) must appear exactly once", x, y)
				}
			}
			assert.Len(t, seen, tc.xsize*tc.ysize, "no cells outside the grid")
		})
	}
}

func TestTileCellsAreACopy(t *testing.T) {
	tiles, err := DecomposeByRows(2, 1, 1)
	require.NoError(t, err)

	cells := tiles[0].Cells()
	cells[0] = Cell{X: 99, Y: 99}
	assert.Equal(t, []Cell{{X: 0, Y: 0}, {X: 1, Y: 0}}, tiles[0].Cells())
}

func TestTileRowRange(t *testing.T) {
	tiles, err := DecomposeByRows(3, 5, 2)
	require.NoError(t, err)
	require.Len(t, tiles, 3)

	for i, want := range [][2]int{{0, 2}, {2, 4}, {4, 5}} {
		lo, hi := tiles[i].RowRange()
		assert.Equal(t, want[0], lo)
		assert.Equal(t, want[1], hi)
	}
}

func TestDecomposeByRowsInvalid(t *testing.T) {
	for _, tc := range []struct{ xsize, ysize, rowHeight int }{
		{0, 2, 1}, {2, 0, 1}, {2, 2, 0}, {-1, 2, 1}, {2, 2, -3},
	} {
		_, err := DecomposeByRows(tc.xsize, tc.ysize, tc.rowHeight)
		assert.Error(t, err)
	}
}
