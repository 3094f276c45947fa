// Package dataset provides an in-memory labeled multi-dimensional array
// container: named variables over named dimensions, with coordinate
// variables and attributes. It is the unit of data exchanged between the
// cell runner, the tile assembler and the grid assembler, and maps onto
// the on-disk structure handled by the cdf package.
package dataset

import (
	"fmt"
	"math"
	"slices"
)

// Kind selects the on-disk numeric type a variable serializes to. In
// memory all values are held as float64.
type Kind int

const (
	Double Kind = iota
	Float
	Int
)

// Variable is a single labeled array. Values are stored row-major over
// Shape; a variable with no dimensions is a scalar holding one value.
type Variable struct {
	Dims   []string
	Shape  []int
	Values []float64
	Attrs  map[string]string
	Kind   Kind
}

// NewVariable builds a variable and checks that the value count matches
// the shape.
func NewVariable(dims []string, shape []int, values []float64) (*Variable, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("variable has %d dims but %d shape entries", len(dims), len(shape))
	}
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("non-positive dimension length %d", s)
		}
		n *= s
	}
	if n != len(values) {
		return nil, fmt.Errorf("shape %v requires %d values, got %d", shape, n, len(values))
	}
	return &Variable{Dims: dims, Shape: shape, Values: values}, nil
}

// Scalar builds a zero-dimensional variable holding a single value.
func Scalar(value float64) *Variable {
	return &Variable{Values: []float64{value}}
}

// IsScalar reports whether the variable has no dimensions.
func (v *Variable) IsScalar() bool {
	return len(v.Dims) == 0
}

// HasDim reports whether the variable is laid out over the named dimension.
func (v *Variable) HasDim(dim string) bool {
	return slices.Contains(v.Dims, dim)
}

// DimLen returns the length of the named dimension, or -1 if the variable
// does not have it.
func (v *Variable) DimLen(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return v.Shape[i]
		}
	}
	return -1
}

// Clone returns a deep copy of the variable.
func (v *Variable) Clone() *Variable {
	c := &Variable{
		Dims:   slices.Clone(v.Dims),
		Shape:  slices.Clone(v.Shape),
		Values: slices.Clone(v.Values),
		Kind:   v.Kind,
	}
	if v.Attrs != nil {
		c.Attrs = make(map[string]string, len(v.Attrs))
		for k, a := range v.Attrs {
			c.Attrs[k] = a
		}
	}
	return c
}

// SetAttr sets a single attribute, allocating the map on first use.
func (v *Variable) SetAttr(key, value string) {
	if v.Attrs == nil {
		v.Attrs = map[string]string{}
	}
	v.Attrs[key] = value
}

// strides returns the row-major stride of each axis.
func strides(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

// Dataset is a collection of data variables and coordinate variables
// sharing a dimension namespace.
type Dataset struct {
	Vars   map[string]*Variable
	Coords map[string]*Variable
	Attrs  map[string]string
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		Vars:   map[string]*Variable{},
		Coords: map[string]*Variable{},
	}
}

// DimLen returns the length of the named dimension as seen by any
// variable or coordinate that carries it, or -1 if unknown.
func (d *Dataset) DimLen(dim string) int {
	if c, ok := d.Coords[dim]; ok && !c.IsScalar() {
		return c.Shape[0]
	}
	for _, v := range d.Vars {
		if n := v.DimLen(dim); n >= 0 {
			return n
		}
	}
	for _, c := range d.Coords {
		if n := c.DimLen(dim); n >= 0 {
			return n
		}
	}
	return -1
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	c := New()
	for name, v := range d.Vars {
		c.Vars[name] = v.Clone()
	}
	for name, v := range d.Coords {
		c.Coords[name] = v.Clone()
	}
	if d.Attrs != nil {
		c.Attrs = make(map[string]string, len(d.Attrs))
		for k, a := range d.Attrs {
			c.Attrs[k] = a
		}
	}
	return c
}

// MaxCoord returns the maximum value of the named coordinate. It is the
// deterministic sort key used when reassembling tiles that arrive in
// scheduler completion order.
func (d *Dataset) MaxCoord(name string) (float64, error) {
	c, ok := d.Coords[name]
	if !ok {
		return 0, fmt.Errorf("no coordinate named %q", name)
	}
	if len(c.Values) == 0 {
		return 0, fmt.Errorf("coordinate %q is empty", name)
	}
	max := math.Inf(-1)
	for _, v := range c.Values {
		if v > max {
			max = v
		}
	}
	return max, nil
}

// At returns the value of a variable at the given index along each of its
// dimensions, in the variable's own dimension order.
func (v *Variable) At(idx ...int) (float64, error) {
	if len(idx) != len(v.Dims) {
		return 0, fmt.Errorf("need %d indices, got %d", len(v.Dims), len(idx))
	}
	st := strides(v.Shape)
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= v.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dim %q (length %d)", ix, v.Dims[i], v.Shape[i])
		}
		off += ix * st[i]
	}
	return v.Values[off], nil
}
