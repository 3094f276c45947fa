package dataset

import (
	"fmt"
	"slices"
)

// Transpose reorders every variable's dimensions to follow the relative
// order given. Each variable keeps only the subset of the order it
// actually carries; a variable laid out over a dimension not named in the
// order is an error.
func (d *Dataset) Transpose(order ...string) (*Dataset, error) {
	out := New()
	for name, v := range d.Vars {
		t, err := transposeVar(v, order)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		out.Vars[name] = t
	}
	for name, c := range d.Coords {
		t, err := transposeVar(c, order)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", name, err)
		}
		out.Coords[name] = t
	}
	if d.Attrs != nil {
		out.Attrs = d.Clone().Attrs
	}
	return out, nil
}

func transposeVar(v *Variable, order []string) (*Variable, error) {
	if len(v.Dims) < 2 {
		return v.Clone(), nil
	}
	for _, dim := range v.Dims {
		if !slices.Contains(order, dim) {
			return nil, fmt.Errorf("dimension %q not present in transpose order %v", dim, order)
		}
	}
	// perm[i] is the source axis serving output axis i.
	perm := make([]int, 0, len(v.Dims))
	for _, dim := range order {
		if i := slices.Index(v.Dims, dim); i >= 0 {
			perm = append(perm, i)
		}
	}
	if slices.IsSorted(perm) {
		return v.Clone(), nil
	}
	newDims := make([]string, len(perm))
	newShape := make([]int, len(perm))
	for i, p := range perm {
		newDims[i] = v.Dims[p]
		newShape[i] = v.Shape[p]
	}
	srcStrides := strides(v.Shape)
	out := &Variable{
		Dims:   newDims,
		Shape:  newShape,
		Values: make([]float64, len(v.Values)),
		Kind:   v.Kind,
	}
	if v.Attrs != nil {
		out.Attrs = v.Clone().Attrs
	}
	idx := make([]int, len(newShape))
	for n := range out.Values {
		src := 0
		for i, p := range perm {
			src += idx[i] * srcStrides[p]
		}
		out.Values[n] = v.Values[src]
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < newShape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

// SelectIndex extracts the slice of the dataset at position i along the
// named dimension, dropping that dimension. The dimension coordinate
// collapses to a scalar coordinate carrying the selected value, so the
// result can later be re-concatenated along the same name.
func (d *Dataset) SelectIndex(dim string, i int) (*Dataset, error) {
	n := d.DimLen(dim)
	if n < 0 {
		return nil, fmt.Errorf("no dimension named %q", dim)
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("index %d out of range for dimension %q (length %d)", i, dim, n)
	}
	out := New()
	for name, v := range d.Vars {
		out.Vars[name] = sliceVar(v, dim, i)
	}
	for name, c := range d.Coords {
		out.Coords[name] = sliceVar(c, dim, i)
	}
	if d.Attrs != nil {
		out.Attrs = d.Clone().Attrs
	}
	return out, nil
}

// SelectRange restricts the dataset to indices [lo, hi) along the named
// dimension, keeping the dimension. The dimension coordinate is sliced
// with it.
func (d *Dataset) SelectRange(dim string, lo, hi int) (*Dataset, error) {
	n := d.DimLen(dim)
	if n < 0 {
		return nil, fmt.Errorf("no dimension named %q", dim)
	}
	if lo < 0 || hi > n || lo >= hi {
		return nil, fmt.Errorf("range [%d, %d) out of bounds for dimension %q (length %d)", lo, hi, dim, n)
	}
	out := New()
	for name, v := range d.Vars {
		out.Vars[name] = sliceRangeVar(v, dim, lo, hi)
	}
	for name, c := range d.Coords {
		out.Coords[name] = sliceRangeVar(c, dim, lo, hi)
	}
	if d.Attrs != nil {
		out.Attrs = d.Clone().Attrs
	}
	return out, nil
}

func sliceRangeVar(v *Variable, dim string, lo, hi int) *Variable {
	axis := slices.Index(v.Dims, dim)
	if axis < 0 {
		return v.Clone()
	}
	outer := 1
	for k := 0; k < axis; k++ {
		outer *= v.Shape[k]
	}
	inner := 1
	for k := axis + 1; k < len(v.Shape); k++ {
		inner *= v.Shape[k]
	}
	n := v.Shape[axis]
	width := hi - lo
	out := &Variable{
		Dims:   slices.Clone(v.Dims),
		Shape:  slices.Clone(v.Shape),
		Values: make([]float64, 0, outer*width*inner),
		Kind:   v.Kind,
	}
	out.Shape[axis] = width
	if v.Attrs != nil {
		out.Attrs = v.Clone().Attrs
	}
	for o := 0; o < outer; o++ {
		start := (o*n + lo) * inner
		out.Values = append(out.Values, v.Values[start:start+width*inner]...)
	}
	return out
}

func sliceVar(v *Variable, dim string, i int) *Variable {
	axis := slices.Index(v.Dims, dim)
	if axis < 0 {
		return v.Clone()
	}
	outer := 1
	for k := 0; k < axis; k++ {
		outer *= v.Shape[k]
	}
	inner := 1
	for k := axis + 1; k < len(v.Shape); k++ {
		inner *= v.Shape[k]
	}
	n := v.Shape[axis]
	out := &Variable{
		Dims:   append(slices.Clone(v.Dims[:axis]), v.Dims[axis+1:]...),
		Shape:  append(slices.Clone(v.Shape[:axis]), v.Shape[axis+1:]...),
		Values: make([]float64, 0, outer*inner),
		Kind:   v.Kind,
	}
	if v.Attrs != nil {
		out.Attrs = v.Clone().Attrs
	}
	for o := 0; o < outer; o++ {
		start := (o*n + i) * inner
		out.Values = append(out.Values, v.Values[start:start+inner]...)
	}
	return out
}
