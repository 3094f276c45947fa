package dataset

import (
	"fmt"
	"slices"
	"sort"
)

// Concat joins datasets along the named dimension.
//
// If the dimension already exists in the inputs, variables carrying it are
// concatenated along it and its coordinate values are joined; variables
// without it are taken from the first input. If the dimension does not yet
// exist, a new leading dimension is created (one slot per input) and each
// input's scalar coordinate of that name becomes one element of the new
// coordinate. A single input is valid in either mode.
func Concat(inputs []*Dataset, dim string) (*Dataset, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("cannot concatenate zero datasets along %q", dim)
	}
	if inputs[0].DimLen(dim) >= 0 {
		return concatExisting(inputs, dim)
	}
	return concatNew(inputs, dim)
}

func sortedNames(m map[string]*Variable) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func concatNew(inputs []*Dataset, dim string) (*Dataset, error) {
	out := New()
	for _, name := range sortedNames(inputs[0].Vars) {
		first := inputs[0].Vars[name]
		vars := make([]*Variable, len(inputs))
		for i, in := range inputs {
			v, ok := in.Vars[name]
			if !ok {
				return nil, fmt.Errorf("variable %q missing from input %d", name, i)
			}
			if !slices.Equal(v.Dims, first.Dims) || !slices.Equal(v.Shape, first.Shape) {
				return nil, fmt.Errorf("variable %q has mismatched layout across inputs", name)
			}
			vars[i] = v
		}
		stacked := &Variable{
			Dims:  append([]string{dim}, first.Dims...),
			Shape: append([]int{len(inputs)}, first.Shape...),
			Kind:  first.Kind,
		}
		for _, v := range vars {
			stacked.Values = append(stacked.Values, v.Values...)
		}
		if first.Attrs != nil {
			stacked.Attrs = first.Clone().Attrs
		}
		out.Vars[name] = stacked
	}
	// The scalar coordinate of each input becomes the new dimension
	// coordinate.
	coordVals := make([]float64, len(inputs))
	for i, in := range inputs {
		c, ok := in.Coords[dim]
		if !ok || !c.IsScalar() {
			return nil, fmt.Errorf("input %d has no scalar coordinate %q to concatenate along", i, dim)
		}
		coordVals[i] = c.Values[0]
	}
	dimCoord := &Variable{Dims: []string{dim}, Shape: []int{len(inputs)}, Values: coordVals}
	if c := inputs[0].Coords[dim]; c.Attrs != nil {
		dimCoord.Attrs = c.Clone().Attrs
		dimCoord.Kind = c.Kind
	}
	out.Coords[dim] = dimCoord
	for name, c := range inputs[0].Coords {
		if name != dim {
			out.Coords[name] = c.Clone()
		}
	}
	if inputs[0].Attrs != nil {
		out.Attrs = inputs[0].Clone().Attrs
	}
	return out, nil
}

func concatExisting(inputs []*Dataset, dim string) (*Dataset, error) {
	out := New()
	for _, name := range sortedNames(inputs[0].Vars) {
		first := inputs[0].Vars[name]
		if !first.HasDim(dim) {
			out.Vars[name] = first.Clone()
			continue
		}
		vars := make([]*Variable, len(inputs))
		for i, in := range inputs {
			v, ok := in.Vars[name]
			if !ok {
				return nil, fmt.Errorf("variable %q missing from input %d", name, i)
			}
			vars[i] = v
		}
		joined, err := concatAxis(vars, slices.Index(first.Dims, dim))
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		out.Vars[name] = joined
	}
	for name, c := range inputs[0].Coords {
		if name != dim && !c.HasDim(dim) {
			out.Coords[name] = c.Clone()
		}
	}
	coords := make([]*Variable, len(inputs))
	for i, in := range inputs {
		c, ok := in.Coords[dim]
		if !ok || c.IsScalar() {
			return nil, fmt.Errorf("input %d has no dimension coordinate %q", i, dim)
		}
		coords[i] = c
	}
	joined, err := concatAxis(coords, 0)
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", dim, err)
	}
	out.Coords[dim] = joined
	if inputs[0].Attrs != nil {
		out.Attrs = inputs[0].Clone().Attrs
	}
	return out, nil
}

// concatAxis joins variables along the given axis. All other axes must
// agree in name and length.
func concatAxis(vars []*Variable, axis int) (*Variable, error) {
	first := vars[0]
	outLen := 0
	for _, v := range vars {
		if !slices.Equal(v.Dims, first.Dims) {
			return nil, fmt.Errorf("dimension names differ: %v vs %v", v.Dims, first.Dims)
		}
		for i := range v.Shape {
			if i != axis && v.Shape[i] != first.Shape[i] {
				return nil, fmt.Errorf("length of dim %q differs: %d vs %d", v.Dims[i], v.Shape[i], first.Shape[i])
			}
		}
		outLen += v.Shape[axis]
	}
	outShape := slices.Clone(first.Shape)
	outShape[axis] = outLen

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= first.Shape[i]
	}
	inner := 1
	for i := axis + 1; i < len(first.Shape); i++ {
		inner *= first.Shape[i]
	}

	out := &Variable{
		Dims:   slices.Clone(first.Dims),
		Shape:  outShape,
		Values: make([]float64, outer*outLen*inner),
		Kind:   first.Kind,
	}
	if first.Attrs != nil {
		out.Attrs = first.Clone().Attrs
	}
	axisOff := 0
	for _, v := range vars {
		n := v.Shape[axis]
		for o := 0; o < outer; o++ {
			src := v.Values[o*n*inner : (o+1)*n*inner]
			dst := out.Values[(o*outLen+axisOff)*inner : (o*outLen+axisOff+n)*inner]
			copy(dst, src)
		}
		axisOff += n
	}
	return out, nil
}
