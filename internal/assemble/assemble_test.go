package assemble

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmtiles/scmtiles/internal/dataset"
	"github.com/scmtiles/scmtiles/internal/grid"
)

var refTime = time.Date(2009, 4, 6, 1, 30, 0, 0, time.UTC)

var (
	lonCoord = []float64{10, 20}
	latCoord = []float64{50, 60}
)

// cellValue tags a cell with a recognizable scalar.
func cellValue(c grid.Cell) float64 {
	return float64(100*c.Y + 10*c.X)
}

// mkCell builds a cell dataset with q over two time steps, starting at
// the cell's tag value.
func mkCell(t *testing.T, c grid.Cell) CellData {
	t.Helper()
	ds := dataset.New()
	base := cellValue(c)
	q, err := dataset.NewVariable([]string{"time"}, []int{2}, []float64{base, base + 1})
	require.NoError(t, err)
	ds.Vars["q"] = q
	timeC, err := dataset.NewVariable([]string{"time"}, []int{2}, []float64{0, 900})
	require.NoError(t, err)
	timeC.SetAttr("long_name", "Time")
	ds.Coords["time"] = timeC
	ds.Coords["lon"] = dataset.Scalar(lonCoord[c.X])
	ds.Coords["lat"] = dataset.Scalar(latCoord[c.Y])
	return CellData{Cell: c, DS: ds}
}

func xTemplate(t *testing.T) *dataset.Variable {
	t.Helper()
	x, err := dataset.NewVariable([]string{"lon"}, []int{2}, lonCoord)
	require.NoError(t, err)
	return x
}

func TestAssembleTileOrderIndependent(t *testing.T) {
	cells := []CellData{
		mkCell(t, grid.Cell{X: 0, Y: 0}),
		mkCell(t, grid.Cell{X: 1, Y: 0}),
		mkCell(t, grid.Cell{X: 0, Y: 1}),
		mkCell(t, grid.Cell{X: 1, Y: 1}),
	}
	sorted, err := AssembleTile("lon", "lat", xTemplate(t), cells)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]CellData(nil), cells...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := AssembleTile("lon", "lat", xTemplate(t), shuffled)
		require.NoError(t, err)
		if diff := cmp.Diff(sorted, got); diff != "" {
			t.Fatalf("permutation %d changed the tile dataset (-want +got):\n%s", i, diff)
		}
	}

	q := sorted.Vars["q"]
	assert.Equal(t, []string{"lat", "lon", "time"}, q.Dims)
	assert.Equal(t, []float64{0, 1, 10, 11, 100, 101, 110, 111}, q.Values)
}

func TestAssembleTileSingleRow(t *testing.T) {
	tileDS, err := AssembleTile("lon", "lat", xTemplate(t), []CellData{
		mkCell(t, grid.Cell{X: 1, Y: 0}),
		mkCell(t, grid.Cell{X: 0, Y: 0}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"lat", "lon", "time"}, tileDS.Vars["q"].Dims)
	assert.Equal(t, []int{1, 2, 2}, tileDS.Vars["q"].Shape)
	assert.Equal(t, []float64{0, 1, 10, 11}, tileDS.Vars["q"].Values)
	assert.Equal(t, []float64{50}, tileDS.Coords["lat"].Values)
}

func TestAssembleTileEmpty(t *testing.T) {
	_, err := AssembleTile("lon", "lat", xTemplate(t), nil)
	assert.ErrorIs(t, err, ErrEmptyTile)
}

func TestAssembleTileSurvivesMissingCell(t *testing.T) {
	// A two-row tile missing cell (x=1, y=0): the surviving three cells
	// must assemble, with the hole padded by fill values.
	tileDS, err := AssembleTile("lon", "lat", xTemplate(t), []CellData{
		mkCell(t, grid.Cell{X: 0, Y: 0}),
		mkCell(t, grid.Cell{X: 0, Y: 1}),
		mkCell(t, grid.Cell{X: 1, Y: 1}),
	})
	require.NoError(t, err)

	q := tileDS.Vars["q"]
	require.Equal(t, []string{"lat", "lon", "time"}, q.Dims)
	require.Equal(t, []int{2, 2, 2}, q.Shape)
	for _, c := range []grid.Cell{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}} {
		v, err := q.At(c.Y, c.X, 0)
		require.NoError(t, err)
		assert.Equal(t, cellValue(c), v)
	}
	v, err := q.At(0, 1, 0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v), "the missing cell's column must be fill values")
	assert.Equal(t, lonCoord, tileDS.Coords["lon"].Values)

	// The partial tile still joins into a grid.
	gridDS, err := AssembleGrid("lon", "lat", xTemplate(t), []*dataset.Dataset{tileDS}, refTime)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, gridDS.Vars["q"].Shape)
}

func makeTiles(t *testing.T) []*dataset.Dataset {
	t.Helper()
	south, err := AssembleTile("lon", "lat", xTemplate(t), []CellData{
		mkCell(t, grid.Cell{X: 0, Y: 0}),
		mkCell(t, grid.Cell{X: 1, Y: 0}),
	})
	require.NoError(t, err)
	north, err := AssembleTile("lon", "lat", xTemplate(t), []CellData{
		mkCell(t, grid.Cell{X: 0, Y: 1}),
		mkCell(t, grid.Cell{X: 1, Y: 1}),
	})
	require.NoError(t, err)
	return []*dataset.Dataset{south, north}
}

func TestAssembleGridOrderIndependent(t *testing.T) {
	tiles := makeTiles(t)
	want, err := AssembleGrid("lon", "lat", xTemplate(t), tiles, refTime)
	require.NoError(t, err)

	reversed := []*dataset.Dataset{tiles[1].Clone(), tiles[0].Clone()}
	got, err := AssembleGrid("lon", "lat", xTemplate(t), reversed, refTime)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("completion order changed the grid dataset (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{50, 60}, want.Coords["lat"].Values,
		"tiles must be ordered by row coordinate value")
}

func TestAssembleGridRoundTripIdentity(t *testing.T) {
	gridDS, err := AssembleGrid("lon", "lat", xTemplate(t), makeTiles(t), refTime)
	require.NoError(t, err)

	q := gridDS.Vars["q"]
	require.Equal(t, []string{"time", "lat", "lon"}, q.Dims, "canonical serialization order")
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			v, err := q.At(0, y, x)
			require.NoError(t, err)
			assert.Equal(t, cellValue(grid.Cell{X: x, Y: y}), v,
				"value at (y=%d, x=%d) must come from the originating cell", y, x)
		}
	}

	assert.Equal(t, "seconds since 2009-04-06T01:30:00", gridDS.Coords["time"].Attrs["units"],
		"output time must be rebased to an absolute CF encoding")
}

func TestAssembleGridPadsMissingCells(t *testing.T) {
	// Row 0 lost cell x=1; its column comes back as fill values while
	// the surviving cells keep their data.
	south, err := AssembleTile("lon", "lat", xTemplate(t), []CellData{mkCell(t, grid.Cell{X: 0, Y: 0})})
	require.NoError(t, err)
	north, err := AssembleTile("lon", "lat", xTemplate(t), []CellData{
		mkCell(t, grid.Cell{X: 0, Y: 1}),
		mkCell(t, grid.Cell{X: 1, Y: 1}),
	})
	require.NoError(t, err)

	gridDS, err := AssembleGrid("lon", "lat", xTemplate(t), []*dataset.Dataset{north, south}, refTime)
	require.NoError(t, err)

	q := gridDS.Vars["q"]
	assert.Equal(t, []int{2, 2, 2}, q.Shape)
	v, err := q.At(0, 0, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v), "missing cell must be fill values")
	v, err = q.At(0, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, cellValue(grid.Cell{X: 1, Y: 1}), v)
}

func TestAssembleGridNoTiles(t *testing.T) {
	_, err := AssembleGrid("lon", "lat", xTemplate(t), nil, refTime)
	assert.ErrorIs(t, err, ErrNoTiles)

	_, err = AssembleGrid("lon", "lat", xTemplate(t), []*dataset.Dataset{nil, nil}, refTime)
	assert.ErrorIs(t, err, ErrNoTiles)
}
