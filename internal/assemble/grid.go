package assemble

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/scmtiles/scmtiles/internal/dataset"
	"github.com/scmtiles/scmtiles/internal/ifstime"
)

// ErrNoTiles marks a job in which not a single tile produced a dataset.
// Grid assembly cannot proceed; the whole job fails.
var ErrNoTiles = errors.New("no tile produced a usable dataset")

// levelDims is the fixed set of vertical and auxiliary model dimensions,
// in their canonical serialization position between time and the grid
// dimensions.
var levelDims = []string{"nlev", "nlevp1", "nlevs", "norg", "ntiles", "ncextr"}

// AssembleGrid merges tile datasets, which arrive in arbitrary worker
// completion order, into the final grid dataset. Determinism comes from a
// stable sort on each tile's maximum row-coordinate value, not from tile
// ids, since row bands need not be uniform. After concatenation the time
// coordinate is rebased to absolute form and the dimensions are reordered
// for serialization. Tiles with missing columns are padded with fill
// values against the full column coordinate before joining.
func AssembleGrid(xname, yname string, xCoord *dataset.Variable, tiles []*dataset.Dataset, ref time.Time) (*dataset.Dataset, error) {
	usable := make([]*dataset.Dataset, 0, len(tiles))
	for _, ds := range tiles {
		if ds != nil {
			usable = append(usable, ds)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoTiles
	}

	type keyed struct {
		key float64
		ds  *dataset.Dataset
	}
	ordered := make([]keyed, 0, len(usable))
	for i, ds := range usable {
		aligned, err := alignColumns(ds, xname, xCoord)
		if err != nil {
			return nil, fmt.Errorf("align tile %d columns: %w", i, err)
		}
		key, err := aligned.MaxCoord(yname)
		if err != nil {
			return nil, fmt.Errorf("tile %d has no %q coordinate: %w", i, yname, err)
		}
		ordered = append(ordered, keyed{key: key, ds: aligned})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].key < ordered[j].key })

	inputs := make([]*dataset.Dataset, len(ordered))
	for i, k := range ordered {
		inputs[i] = k.ds
	}
	gridDS, err := dataset.Concat(inputs, yname)
	if err != nil {
		return nil, fmt.Errorf("concatenate tiles: %w", err)
	}

	timeC, ok := gridDS.Coords["time"]
	if !ok {
		return nil, fmt.Errorf("assembled grid has no time coordinate")
	}
	if err := ifstime.Rebase(timeC, ref); err != nil {
		return nil, fmt.Errorf("rebase output time coordinate: %w", err)
	}

	order := append([]string{"time"}, levelDims...)
	order = append(order, yname, xname)
	out, err := gridDS.Transpose(order...)
	if err != nil {
		return nil, fmt.Errorf("reorder dimensions: %w", err)
	}
	return out, nil
}

// alignColumns pads a tile dataset out to the full column coordinate,
// filling absent columns with NaN. A tile that already spans every column
// is returned unchanged.
func alignColumns(ds *dataset.Dataset, xname string, full *dataset.Variable) (*dataset.Dataset, error) {
	have, ok := ds.Coords[xname]
	if !ok || have.IsScalar() {
		return nil, fmt.Errorf("tile dataset has no %q dimension coordinate", xname)
	}
	if len(have.Values) == len(full.Values) {
		return ds, nil
	}
	// index of each present column within the full coordinate
	target := make([]int, len(have.Values))
	for i, v := range have.Values {
		pos := -1
		for j, fv := range full.Values {
			if fv == v {
				pos = j
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("column coordinate %v not present in the template", v)
		}
		target[i] = pos
	}

	out := dataset.New()
	for name, v := range ds.Vars {
		out.Vars[name] = padVar(v, xname, target, len(full.Values))
	}
	for name, c := range ds.Coords {
		if name == xname {
			continue
		}
		out.Coords[name] = padVar(c, xname, target, len(full.Values))
	}
	fullC := full.Clone()
	fullC.Dims = []string{xname}
	fullC.Shape = []int{len(full.Values)}
	out.Coords[xname] = fullC
	if ds.Attrs != nil {
		out.Attrs = ds.Clone().Attrs
	}
	return out, nil
}

// padVar scatters the variable's columns into a full-width array, leaving
// NaN where no column was present.
func padVar(v *dataset.Variable, xname string, target []int, fullLen int) *dataset.Variable {
	axis := -1
	for i, d := range v.Dims {
		if d == xname {
			axis = i
			break
		}
	}
	if axis < 0 {
		return v.Clone()
	}
	outer := 1
	for i := 0; i < axis; i++ {
		outer *= v.Shape[i]
	}
	inner := 1
	for i := axis + 1; i < len(v.Shape); i++ {
		inner *= v.Shape[i]
	}
	n := v.Shape[axis]

	out := v.Clone()
	out.Shape[axis] = fullLen
	out.Values = make([]float64, outer*fullLen*inner)
	for i := range out.Values {
		out.Values[i] = math.NaN()
	}
	for o := 0; o < outer; o++ {
		for k := 0; k < n; k++ {
			src := v.Values[(o*n+k)*inner : (o*n+k+1)*inner]
			dst := out.Values[(o*fullLen+target[k])*inner : (o*fullLen+target[k]+1)*inner]
			copy(dst, src)
		}
	}
	return out
}
