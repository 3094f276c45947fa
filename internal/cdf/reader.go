package cdf

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/scmtiles/scmtiles/internal/dataset"
)

// ReadFile loads a netCDF classic file fully into memory and returns it
// as a dataset. Variables named in drop are skipped. Variables whose name
// matches one of their dimensions are classified as coordinates. The file
// handle is released before returning.
func ReadFile(path string, drop []string) (*dataset.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cdf: read %s: %w", path, err)
	}
	ds, err := decode(raw, drop)
	if err != nil {
		return nil, fmt.Errorf("cdf: %s: %w", path, err)
	}
	return ds, nil
}

type rawVar struct {
	name   string
	dims   []string
	shape  []int
	attrs  map[string]string
	ncType uint32
	vsize  int
	begin  int
	record bool
}

func decode(raw []byte, drop []string) (*dataset.Dataset, error) {
	d := &decoder{b: raw}
	magic := d.take(4)
	if d.err != nil || magic[0] != 'C' || magic[1] != 'D' || magic[2] != 'F' {
		return nil, fmt.Errorf("not a netCDF classic file")
	}
	version := magic[3]
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	numrecs := int(d.u32())

	dimNames, dimLens, err := readDimList(d)
	if err != nil {
		return nil, err
	}
	ds := dataset.New()
	ds.Attrs, err = readAttrList(d)
	if err != nil {
		return nil, err
	}

	vars, err := readVarList(d, dimNames, dimLens, numrecs, version)
	if err != nil {
		return nil, err
	}

	recSize := 0
	nrec := 0
	for _, rv := range vars {
		if rv.record {
			recSize += rv.vsize
			nrec++
		}
	}

	for _, rv := range vars {
		if slices.Contains(drop, rv.name) {
			continue
		}
		values, err := readValues(raw, rv, numrecs, recSize, nrec)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", rv.name, err)
		}
		v := &dataset.Variable{
			Dims:   rv.dims,
			Shape:  rv.shape,
			Values: values,
			Kind:   typeToKind(rv.ncType),
		}
		if len(rv.attrs) > 0 {
			v.Attrs = rv.attrs
		}
		if slices.Contains(rv.dims, rv.name) {
			ds.Coords[rv.name] = v
		} else {
			ds.Vars[rv.name] = v
		}
	}
	return ds, nil
}

func readDimList(d *decoder) ([]string, []int, error) {
	tag := d.u32()
	n := int(d.u32())
	if d.err != nil {
		return nil, nil, d.err
	}
	if tag == 0 && n == 0 {
		return nil, nil, nil
	}
	if tag != tagDimension {
		return nil, nil, fmt.Errorf("expected dimension list, got tag %#x", tag)
	}
	names := make([]string, n)
	lens := make([]int, n)
	for i := 0; i < n; i++ {
		names[i] = d.name()
		lens[i] = int(d.u32())
	}
	return names, lens, d.err
}

func readAttrList(d *decoder) (map[string]string, error) {
	tag := d.u32()
	n := int(d.u32())
	if d.err != nil {
		return nil, d.err
	}
	if tag == 0 && n == 0 {
		return nil, nil
	}
	if tag != tagAttribute {
		return nil, fmt.Errorf("expected attribute list, got tag %#x", tag)
	}
	attrs := make(map[string]string, n)
	for i := 0; i < n; i++ {
		name := d.name()
		ncType := d.u32()
		nelems := int(d.u32())
		size := typeSize(ncType)
		if size == 0 {
			return nil, fmt.Errorf("attribute %q has unknown type %d", name, ncType)
		}
		payload := d.take(pad4(nelems * size))
		if d.err != nil {
			return nil, d.err
		}
		attrs[name] = decodeAttr(ncType, nelems, payload)
	}
	return attrs, nil
}

func decodeAttr(ncType uint32, nelems int, payload []byte) string {
	if ncType == ncChar {
		return string(payload[:nelems])
	}
	parts := make([]string, 0, nelems)
	for i := 0; i < nelems; i++ {
		parts = append(parts, strconv.FormatFloat(decodeValue(ncType, payload[i*typeSize(ncType):]), 'g', -1, 64))
	}
	return strings.Join(parts, " ")
}

func readVarList(d *decoder, dimNames []string, dimLens []int, numrecs int, version byte) ([]*rawVar, error) {
	tag := d.u32()
	n := int(d.u32())
	if d.err != nil {
		return nil, d.err
	}
	if tag == 0 && n == 0 {
		return nil, nil
	}
	if tag != tagVariable {
		return nil, fmt.Errorf("expected variable list, got tag %#x", tag)
	}
	vars := make([]*rawVar, 0, n)
	for i := 0; i < n; i++ {
		rv := &rawVar{name: d.name()}
		ndims := int(d.u32())
		for k := 0; k < ndims; k++ {
			id := int(d.u32())
			if d.err == nil && (id < 0 || id >= len(dimNames)) {
				return nil, fmt.Errorf("variable %q references unknown dimension id %d", rv.name, id)
			}
			if d.err != nil {
				return nil, d.err
			}
			rv.dims = append(rv.dims, dimNames[id])
			length := dimLens[id]
			if length == 0 { // record dimension
				if k != 0 {
					return nil, fmt.Errorf("variable %q has record dimension in position %d", rv.name, k)
				}
				rv.record = true
				length = numrecs
			}
			rv.shape = append(rv.shape, length)
		}
		attrs, err := readAttrList(d)
		if err != nil {
			return nil, err
		}
		rv.attrs = attrs
		rv.ncType = d.u32()
		rv.vsize = int(d.u32())
		if version == 2 {
			rv.begin = int(d.u64())
		} else {
			rv.begin = int(d.u32())
		}
		if d.err != nil {
			return nil, d.err
		}
		if typeSize(rv.ncType) == 0 {
			return nil, fmt.Errorf("variable %q has unknown type %d", rv.name, rv.ncType)
		}
		vars = append(vars, rv)
	}
	return vars, d.err
}

func readValues(raw []byte, rv *rawVar, numrecs, recSize, nrec int) ([]float64, error) {
	size := typeSize(rv.ncType)
	count := 1
	for _, s := range rv.shape {
		count *= s
	}
	values := make([]float64, 0, count)
	read := func(off, n int) error {
		end := off + n*size
		if off < 0 || end > len(raw) {
			return fmt.Errorf("data extends past end of file")
		}
		for i := 0; i < n; i++ {
			values = append(values, decodeValue(rv.ncType, raw[off+i*size:]))
		}
		return nil
	}
	if !rv.record {
		if err := read(rv.begin, count); err != nil {
			return nil, err
		}
		return values, nil
	}
	perRec := count
	if len(rv.shape) > 0 && rv.shape[0] > 0 {
		perRec = count / rv.shape[0]
	}
	stride := recSize
	if nrec == 1 {
		// A lone record variable is packed without inter-record padding.
		stride = perRec * size
	}
	for r := 0; r < numrecs; r++ {
		if err := read(rv.begin+r*stride, perRec); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func decodeValue(ncType uint32, b []byte) float64 {
	switch ncType {
	case ncByte, ncChar:
		return float64(int8(b[0]))
	case ncShort:
		return float64(int16(binary.BigEndian.Uint16(b)))
	case ncInt:
		return float64(int32(binary.BigEndian.Uint32(b)))
	case ncFloat:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	default:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	}
}

// decoder walks the header with a sticky error.
type decoder struct {
	b   []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.b) {
		d.err = fmt.Errorf("truncated header at offset %d", d.off)
		return nil
	}
	out := d.b[d.off : d.off+n]
	d.off += n
	return out
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if d.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if d.err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) name() string {
	n := int(d.u32())
	b := d.take(pad4(n))
	if d.err != nil {
		return ""
	}
	return string(b[:n])
}
