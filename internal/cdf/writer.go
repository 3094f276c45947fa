package cdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/scmtiles/scmtiles/internal/dataset"
)

// writerOptions holds serialization choices for WriteFile.
type writerOptions struct {
	recordDim string
}

// WriterOption configures WriteFile.
type WriterOption func(*writerOptions)

// WithRecordDimension marks the named dimension as the file's unbounded
// (record) dimension. Any variable carrying it must have it as its first
// dimension, as the classic format requires.
func WithRecordDimension(name string) WriterOption {
	return func(o *writerOptions) { o.recordDim = name }
}

// ncVar is the on-disk layout of one variable.
type ncVar struct {
	name   string
	v      *dataset.Variable
	dimIDs []int
	ncType uint32
	vsize  int
	begin  int
	record bool
}

// WriteFile serializes the dataset to path in netCDF-3 classic form.
// Coordinate variables are written before data variables, each group in
// name order.
func WriteFile(path string, ds *dataset.Dataset, opts ...WriterOption) error {
	var o writerOptions
	for _, opt := range opts {
		opt(&o)
	}

	vars, err := layoutVars(ds, o.recordDim)
	if err != nil {
		return fmt.Errorf("cdf: %w", err)
	}
	dims, dimIndex, err := layoutDims(vars, o.recordDim)
	if err != nil {
		return fmt.Errorf("cdf: %w", err)
	}
	for _, nv := range vars {
		for _, d := range nv.v.Dims {
			nv.dimIDs = append(nv.dimIDs, dimIndex[d])
		}
		nv.record = o.recordDim != "" && nv.v.HasDim(o.recordDim)
		nv.ncType = kindToType(nv.v.Kind)
		n := 1
		start := 0
		if nv.record {
			start = 1 // per-record slice excludes the record axis
		}
		for _, s := range nv.v.Shape[start:] {
			n *= s
		}
		nv.vsize = pad4(n * typeSize(nv.ncType))
	}

	numrecs := 0
	if o.recordDim != "" {
		if n := ds.DimLen(o.recordDim); n > 0 {
			numrecs = n
		}
	}

	headerSize := fileHeaderSize(ds, dims, vars)
	offset := headerSize
	for _, nv := range vars {
		if !nv.record {
			nv.begin = offset
			offset += nv.vsize
		}
	}
	for _, nv := range vars {
		if nv.record {
			nv.begin = offset
			offset += nv.vsize
		}
	}

	var buf bytes.Buffer
	e := &encoder{w: &buf}
	e.bytes([]byte{'C', 'D', 'F', 0x01})
	e.u32(uint32(numrecs))
	writeDimList(e, dims, o.recordDim)
	writeAttrList(e, ds.Attrs)
	writeVarList(e, vars)
	if buf.Len() != headerSize {
		return fmt.Errorf("cdf: internal error: header is %d bytes, expected %d", buf.Len(), headerSize)
	}
	for _, nv := range vars {
		if !nv.record {
			writeValues(e, nv, nv.v.Values)
		}
	}
	for r := 0; r < numrecs; r++ {
		for _, nv := range vars {
			if !nv.record {
				continue
			}
			n := len(nv.v.Values) / nv.v.Shape[0]
			writeValues(e, nv, nv.v.Values[r*n:(r+1)*n])
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// layoutVars orders the dataset's variables for serialization: coordinate
// variables first, then data variables, each in name order.
func layoutVars(ds *dataset.Dataset, recordDim string) ([]*ncVar, error) {
	var vars []*ncVar
	add := func(m map[string]*dataset.Variable) error {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := m[name]
			if recordDim != "" && v.HasDim(recordDim) && v.Dims[0] != recordDim {
				return fmt.Errorf("variable %q must have record dimension %q first, has %v",
					name, recordDim, v.Dims)
			}
			vars = append(vars, &ncVar{name: name, v: v})
		}
		return nil
	}
	if err := add(ds.Coords); err != nil {
		return nil, err
	}
	if err := add(ds.Vars); err != nil {
		return nil, err
	}
	return vars, nil
}

type ncDim struct {
	name   string
	length int
}

func layoutDims(vars []*ncVar, recordDim string) ([]ncDim, map[string]int, error) {
	var dims []ncDim
	index := map[string]int{}
	if recordDim != "" {
		for _, nv := range vars {
			if nv.v.HasDim(recordDim) {
				// Record dimension always gets id 0.
				index[recordDim] = 0
				dims = append(dims, ncDim{name: recordDim, length: nv.v.DimLen(recordDim)})
				break
			}
		}
	}
	for _, nv := range vars {
		for i, d := range nv.v.Dims {
			if id, ok := index[d]; ok {
				if dims[id].length != nv.v.Shape[i] {
					return nil, nil, fmt.Errorf("dimension %q has conflicting lengths %d and %d",
						d, dims[id].length, nv.v.Shape[i])
				}
				continue
			}
			index[d] = len(dims)
			dims = append(dims, ncDim{name: d, length: nv.v.Shape[i]})
		}
	}
	return dims, index, nil
}

func nameSize(s string) int {
	return 4 + pad4(len(s))
}

func attrListSize(attrs map[string]string) int {
	size := 8
	for name, value := range attrs {
		size += nameSize(name) + 8 + pad4(len(value))
	}
	return size
}

func fileHeaderSize(ds *dataset.Dataset, dims []ncDim, vars []*ncVar) int {
	size := 8 // magic + numrecs
	size += 8
	for _, d := range dims {
		size += nameSize(d.name) + 4
	}
	size += attrListSize(ds.Attrs)
	size += 8
	for _, nv := range vars {
		size += nameSize(nv.name) + 4 + 4*len(nv.dimIDs) + attrListSize(nv.v.Attrs) + 12
	}
	return size
}

func writeDimList(e *encoder, dims []ncDim, recordDim string) {
	if len(dims) == 0 {
		e.u32(0)
		e.u32(0)
		return
	}
	e.u32(tagDimension)
	e.u32(uint32(len(dims)))
	for _, d := range dims {
		e.name(d.name)
		if d.name == recordDim {
			e.u32(0) // record dimension length is written as zero
		} else {
			e.u32(uint32(d.length))
		}
	}
}

func writeAttrList(e *encoder, attrs map[string]string) {
	if len(attrs) == 0 {
		e.u32(0)
		e.u32(0)
		return
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	e.u32(tagAttribute)
	e.u32(uint32(len(names)))
	for _, name := range names {
		value := attrs[name]
		e.name(name)
		e.u32(ncChar)
		e.u32(uint32(len(value)))
		e.padded([]byte(value))
	}
}

func writeVarList(e *encoder, vars []*ncVar) {
	if len(vars) == 0 {
		e.u32(0)
		e.u32(0)
		return
	}
	e.u32(tagVariable)
	e.u32(uint32(len(vars)))
	for _, nv := range vars {
		e.name(nv.name)
		e.u32(uint32(len(nv.dimIDs)))
		for _, id := range nv.dimIDs {
			e.u32(uint32(id))
		}
		writeAttrList(e, nv.v.Attrs)
		e.u32(nv.ncType)
		e.u32(uint32(nv.vsize))
		e.u32(uint32(nv.begin))
	}
}

func writeValues(e *encoder, nv *ncVar, values []float64) {
	start := e.len()
	switch nv.ncType {
	case ncInt:
		for _, v := range values {
			e.u32(uint32(int32(math.Round(v))))
		}
	case ncFloat:
		for _, v := range values {
			e.u32(math.Float32bits(float32(v)))
		}
	default:
		for _, v := range values {
			e.u64(math.Float64bits(v))
		}
	}
	written := e.len() - start
	if n := pad4(written) - written; n > 0 {
		e.bytes(make([]byte, n))
	}
}

// encoder writes big-endian fields into a growing buffer, in the manner
// of a minimal binary writer.
type encoder struct {
	w *bytes.Buffer
}

func (e *encoder) len() int { return e.w.Len() }

func (e *encoder) bytes(b []byte) { e.w.Write(b) }

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.w.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.w.Write(b[:])
}

func (e *encoder) name(s string) {
	e.u32(uint32(len(s)))
	e.padded([]byte(s))
}

func (e *encoder) padded(b []byte) {
	e.w.Write(b)
	if n := pad4(len(b)) - len(b); n > 0 {
		e.w.Write(make([]byte, n))
	}
}
